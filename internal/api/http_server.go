package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"fixit/internal/config"
	"fixit/internal/domain"
	"fixit/internal/metrics"
	"fixit/internal/models"
	"fixit/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Backend bundles the components the HTTP API dispatches to.
type Backend struct {
	Matching  *service.MatchingEngine
	Lifecycle *service.LifecycleManager
	Payments  *service.PaymentCoordinator
	Providers *service.ProviderService
	Catalog   *service.CatalogService
	Admin     *service.AdminService
	// MaxUploadBytes caps a single completion image.
	MaxUploadBytes int64
}

// HTTPServer exposes the booking API over JSON.
type HTTPServer struct {
	cfg      config.APIConfig
	backend  Backend
	server   *http.Server
	handler  http.Handler
	auth     *HTTPAuth
	validate *validator.Validate
	logger   *zerolog.Logger
}

// principalHandler is an endpoint that needs the caller's identity.
type principalHandler func(w http.ResponseWriter, r *http.Request, p models.Principal)

func NewHTTPServer(cfg config.APIConfig, backend Backend, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if backend.MaxUploadBytes <= 0 {
		backend.MaxUploadBytes = 5 << 20
	}
	l := logger.With().Str("component", "http").Logger()

	srv := &HTTPServer{
		cfg:      cfg,
		backend:  backend,
		auth:     NewHTTPAuth(cfg),
		validate: newValidator(),
		logger:   &l,
	}

	mux := http.NewServeMux()
	srv.routes(mux)
	srv.handler = srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	s.handle(mux, "GET /healthz", s.handleHealth)

	s.handleAuthed(mux, "POST /api/v1/bookings", s.handleCreateBooking)
	s.handleAuthed(mux, "GET /api/v1/bookings", s.handleListBookings)
	s.handleAuthed(mux, "GET /api/v1/bookings/{id}", s.handleGetBooking)
	s.handleAuthed(mux, "POST /api/v1/bookings/{id}/accept", s.handleAccept)
	s.handleAuthed(mux, "POST /api/v1/bookings/{id}/reject", s.handleReject)
	s.handleAuthed(mux, "POST /api/v1/bookings/{id}/start", s.handleStart)
	s.handleAuthed(mux, "POST /api/v1/bookings/{id}/cancel", s.handleCancel)
	s.handleAuthed(mux, "POST /api/v1/bookings/{id}/status", s.handleUpdateStatus)
	s.handleAuthed(mux, "POST /api/v1/bookings/{id}/completion", s.handleSubmitCompletion)
	s.handleAuthed(mux, "GET /api/v1/bookings/{id}/completion", s.handleGetCompletion)
	s.handleAuthed(mux, "POST /api/v1/bookings/{id}/rating", s.handleRate)

	s.handleAuthed(mux, "POST /api/v1/bookings/{id}/payments/intent", s.handlePaymentIntent)
	s.handleAuthed(mux, "POST /api/v1/bookings/{id}/payments/manual", s.handleManualPayment)
	s.handleAuthed(mux, "GET /api/v1/bookings/{id}/payments", s.handlePaymentStatus)
	s.handleAuthed(mux, "POST /api/v1/payments/{id}/verify", s.handleVerifyPayment)

	s.handle(mux, "GET /api/v1/services", s.handleListServices)
	s.handle(mux, "GET /api/v1/services/categories", s.handleCategories)

	s.handle(mux, "GET /api/v1/providers/nearby", s.handleNearbyProviders)
	s.handleAuthed(mux, "POST /api/v1/providers", s.handleRegisterProvider)
	s.handleAuthed(mux, "POST /api/v1/providers/location", s.handleUpdateLocation)
	s.handleAuthed(mux, "POST /api/v1/providers/tracking", s.handleUpdateTracking)
	s.handleAuthed(mux, "GET /api/v1/providers/{id}/track", s.handleTrack)
	s.handleAuthed(mux, "POST /api/v1/providers/skills", s.handleAddSkill)
	s.handleAuthed(mux, "DELETE /api/v1/providers/skills", s.handleRemoveSkill)

	s.handleAuthed(mux, "GET /api/v1/admin/stats", s.handleAdminStats)
	s.handleAuthed(mux, "GET /api/v1/admin/export", s.handleAdminExport)
	s.handleAuthed(mux, "POST /api/v1/admin/ledger/replay", s.handleAdminLedgerReplay)
}

func (s *HTTPServer) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		metrics.IncHTTP(pattern)
		h(w, r)
	})
}

func (s *HTTPServer) handleAuthed(mux *http.ServeMux, pattern string, h principalHandler) {
	s.handle(mux, pattern, func(w http.ResponseWriter, r *http.Request) {
		p, err := parsePrincipal(r.Header.Get(userIDHeader), r.Header.Get(userRoleHeader))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
			return
		}
		h(w, r, p)
	})
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	cfg     config.APIConfig
	keys    *apiKeys
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{
		cfg:     cfg,
		keys:    newAPIKeys(cfg.Auth),
		limiter: newRateLimiter(cfg.RateLimit, "http"),
	}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled || !a.cfg.HTTP.Enabled || r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			apiKey := strings.TrimSpace(r.Header.Get(a.keys.keyHeader()))
			extra := strings.TrimSpace(r.Header.Get(a.keys.extraHeader()))
			if err := a.keys.check(apiKey, extra, requiredPermissionHTTP(r)); err != nil {
				statusCode := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, "unauthenticated", err.Error())
				return
			}
		}

		if !a.limiter.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func requiredPermissionHTTP(r *http.Request) string {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/v1/admin"):
		return permAdmin
	case r.Method == http.MethodGet:
		return permReadBookings
	default:
		return permWriteBookings
	}
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.keys.keyHeader())); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorBody{Error: code, Message: message})
}

// writeServiceError maps a classified error to its status code. Internal
// errors are logged and answered without detail.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var derr *domain.Error
	if errors.As(err, &derr) && derr.Kind != domain.KindInternal {
		writeError(w, derr.Kind.HTTPStatus(), derr.Code, derr.Message)
		return
	}
	s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal", "internal error")
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads an optional JSON body into dst and validates it.
func (s *HTTPServer) decode(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return domain.Validation("invalid_request", "invalid JSON body").Wrap(err)
	}
	return s.check(dst)
}

func (s *HTTPServer) check(dst any) error {
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return domain.Validation("invalid_request", fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
		}
		return domain.Validation("invalid_request", err.Error())
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validation("invalid_id", "id must be a positive integer")
	}
	return id, nil
}

func queryFloat(r *http.Request, name string) (*float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, domain.Validation("invalid_query", fmt.Sprintf("%s must be a number", name))
	}
	return &v, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"fixit/internal/config"
	"fixit/internal/database"
	"fixit/internal/events"
	"fixit/internal/export"
	"fixit/internal/models"
	"fixit/internal/payment"
	"fixit/internal/repository"
	"fixit/internal/service"
	"fixit/internal/storage"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type apiEnv struct {
	db      *database.DB
	router  *events.Router
	gateway *payment.OfflineGateway
	backend Backend
	server  *httptest.Server

	customer *models.User
	admin    *models.User
	elecUser *models.User
	provider *models.Provider
}

func newAPIEnv(t *testing.T, cfg config.APIConfig) *apiEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	router := events.NewRouter(64, &logger)
	gateway := payment.NewOfflineGateway("test_key", "test_secret")
	blobs := storage.NewLocalStore(t.TempDir(), 1<<20, &logger)
	matching := service.NewMatchingEngine(db, router, nil, nil, orb.Point{77.2090, 28.6139}, 0, &logger)

	e := &apiEnv{
		db:      db,
		router:  router,
		gateway: gateway,
		backend: Backend{
			Matching:       matching,
			Lifecycle:      service.NewLifecycleManager(db, router, nil, repository.NewMemoryLocker(), blobs, matching, &logger),
			Payments:       service.NewPaymentCoordinator(db, gateway, router, "INR", time.Second, &logger),
			Providers:      service.NewProviderService(db, router, &logger),
			Catalog:        service.NewCatalogService(db, &logger),
			Admin:          service.NewAdminService(db, export.NewExcelExporter(t.TempDir(), &logger), &logger),
			MaxUploadBytes: 1 << 20,
		},
	}

	ctx := context.Background()
	_, err = e.backend.Catalog.Seed(ctx, nil)
	require.NoError(t, err)

	e.customer = e.newUser(t, "Asha", models.RoleCustomer)
	e.admin = e.newUser(t, "Root", models.RoleAdmin)
	e.elecUser = e.newUser(t, "Ravi", models.RoleProvider)
	e.provider, err = e.backend.Providers.RegisterProvider(ctx, e.elecUser.ID, []string{"Electrician"})
	require.NoError(t, err)

	srv := NewHTTPServer(cfg, e.backend, &logger)
	e.server = httptest.NewServer(srv.Handler())
	t.Cleanup(e.server.Close)
	return e
}

func (e *apiEnv) newUser(t *testing.T, name string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{Name: name, Email: name + "@example.com", Role: role}
	require.NoError(t, e.db.CreateUser(context.Background(), u))
	return u
}

// as builds identity headers for a user.
func as(u *models.User) http.Header {
	h := http.Header{}
	h.Set("X-User-ID", strconv.FormatInt(u.ID, 10))
	h.Set("X-User-Role", string(u.Role))
	return h
}

// call sends a JSON request and decodes the JSON response into out when non-nil.
func (e *apiEnv) call(t *testing.T, method, path string, headers http.Header, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// createBooking books the seeded Electrician service as the customer.
func (e *apiEnv) createBooking(t *testing.T) int64 {
	t.Helper()
	var res createBookingResponse
	code := e.call(t, http.MethodPost, "/api/v1/bookings", as(e.customer), map[string]any{"notes": "fan"}, &res)
	require.Equal(t, http.StatusCreated, code)
	return res.Booking.ID
}

func bookingPath(id int64, suffix string) string {
	return "/api/v1/bookings/" + strconv.FormatInt(id, 10) + suffix
}

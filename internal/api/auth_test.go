package api

import (
	"context"
	"net/http"
	"testing"

	"fixit/internal/config"
	"fixit/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func authConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Enabled: true},
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: "valid-key", Extra: "valid-extra", Permissions: []string{permReadEvents, permReadBookings}},
				{Key: "full-key", Extra: "full-extra"},
			},
		},
		RateLimit: config.APIRateLimitConfig{
			RPS:   100,
			Burst: 200,
		},
	}
}

func TestAuthInterceptor(t *testing.T) {
	cfg := authConfig()
	auth := NewAuthInterceptor(&cfg)
	interceptor := auth.Unary()

	handler := func(_ context.Context, req any) (any, error) {
		return "ok", nil
	}

	info := &grpc.UnaryServerInfo{FullMethod: getBookingMethod}

	t.Run("Success", func(t *testing.T) {
		md := metadata.Pairs("x-api-key", "valid-key", "x-api-extra", "valid-extra")
		ctx := metadata.NewIncomingContext(context.Background(), md)
		resp, err := interceptor(ctx, "req", info, handler)
		assert.NoError(t, err)
		assert.Equal(t, "ok", resp)
	})

	t.Run("MissingMetadata", func(t *testing.T) {
		_, err := interceptor(context.Background(), "req", info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("InvalidKey", func(t *testing.T) {
		md := metadata.Pairs("x-api-key", "nope", "x-api-extra", "valid-extra")
		ctx := metadata.NewIncomingContext(context.Background(), md)
		_, err := interceptor(ctx, "req", info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("InvalidExtra", func(t *testing.T) {
		md := metadata.Pairs("x-api-key", "valid-key", "x-api-extra", "wrong")
		ctx := metadata.NewIncomingContext(context.Background(), md)
		_, err := interceptor(ctx, "req", info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("PermissionDenied", func(t *testing.T) {
		limited := authConfig()
		limited.Auth.APIKeys[0].Permissions = []string{permReadEvents}
		md := metadata.Pairs("x-api-key", "valid-key", "x-api-extra", "valid-extra")
		ctx := metadata.NewIncomingContext(context.Background(), md)
		_, err := NewAuthInterceptor(&limited).Unary()(ctx, "req", info, handler)
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	})

	t.Run("Disabled", func(t *testing.T) {
		off := authConfig()
		off.Enabled = false
		resp, err := NewAuthInterceptor(&off).Unary()(context.Background(), "req", info, handler)
		assert.NoError(t, err)
		assert.Equal(t, "ok", resp)
	})
}

func TestAuthInterceptorRateLimit(t *testing.T) {
	cfg := authConfig()
	cfg.Auth.Enabled = false
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 1}
	interceptor := NewAuthInterceptor(&cfg).Unary()

	handler := func(_ context.Context, req any) (any, error) { return "ok", nil }
	info := &grpc.UnaryServerInfo{FullMethod: getBookingMethod}
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "k"))

	_, err := interceptor(ctx, "req", info, handler)
	require.NoError(t, err)
	_, err = interceptor(ctx, "req", info, handler)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestParsePrincipal(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		role    string
		want    models.Principal
		wantErr error
	}{
		{"Customer", "7", "customer", models.Principal{UserID: 7, Role: models.RoleCustomer}, nil},
		{"DefaultRole", "7", "", models.Principal{UserID: 7, Role: models.RoleCustomer}, nil},
		{"UserAlias", "7", "user", models.Principal{UserID: 7, Role: models.RoleCustomer}, nil},
		{"Provider", "8", "Provider", models.Principal{UserID: 8, Role: models.RoleProvider}, nil},
		{"Admin", "9", "admin", models.Principal{UserID: 9, Role: models.RoleAdmin}, nil},
		{"MissingID", "", "admin", models.Principal{}, errMissingPrincipal},
		{"NegativeID", "-1", "", models.Principal{}, errMissingPrincipal},
		{"UnknownRole", "1", "root", models.Principal{}, errInvalidRoleHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePrincipal(tt.id, tt.role)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPAuth(t *testing.T) {
	e := newAPIEnv(t, authConfig())

	keyed := func(key, extra string) http.Header {
		h := as(e.customer)
		h.Set("X-API-Key", key)
		h.Set("X-API-Extra", extra)
		return h
	}

	t.Run("HealthzIsOpen", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, e.call(t, http.MethodGet, "/healthz", nil, nil, nil))
	})

	t.Run("MissingKey", func(t *testing.T) {
		var body errorBody
		code := e.call(t, http.MethodGet, "/api/v1/bookings", as(e.customer), nil, &body)
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, errMissingAPIKey.Error(), body.Message)
	})

	t.Run("ReadAllowed", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, e.call(t, http.MethodGet, "/api/v1/bookings", keyed("valid-key", "valid-extra"), nil, nil))
	})

	t.Run("WriteDenied", func(t *testing.T) {
		code := e.call(t, http.MethodPost, "/api/v1/bookings", keyed("valid-key", "valid-extra"), map[string]any{}, nil)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("EmptyPermissionsAllowAll", func(t *testing.T) {
		code := e.call(t, http.MethodPost, "/api/v1/bookings", keyed("full-key", "full-extra"), map[string]any{}, nil)
		assert.Equal(t, http.StatusCreated, code)
	})
}

func TestHTTPRateLimit(t *testing.T) {
	cfg := config.APIConfig{
		Enabled:   true,
		HTTP:      config.APIHTTPConfig{Enabled: true},
		RateLimit: config.APIRateLimitConfig{RPS: 0.001, Burst: 1},
	}
	e := newAPIEnv(t, cfg)

	assert.Equal(t, http.StatusOK, e.call(t, http.MethodGet, "/api/v1/services", nil, nil, nil))
	var body errorBody
	assert.Equal(t, http.StatusTooManyRequests, e.call(t, http.MethodGet, "/api/v1/services", nil, nil, &body))
	assert.Equal(t, "rate_limited", body.Error)
}

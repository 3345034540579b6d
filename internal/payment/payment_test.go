package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fixit/internal/config"
	"fixit/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	sig := Sign("secret", "order_1", "pay_1")
	assert.Len(t, sig, 64)
	assert.True(t, Verify("secret", "order_1", "pay_1", sig))

	assert.False(t, Verify("secret", "order_1", "pay_2", sig))
	assert.False(t, Verify("other", "order_1", "pay_1", sig))
	assert.False(t, Verify("secret", "order_1", "pay_1", strings.ToUpper(sig)))
	assert.False(t, Verify("", "order_1", "pay_1", sig))
	assert.False(t, Verify("secret", "order_1", "pay_1", ""))
}

type sentOrder struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes"`
}

func TestRazorpayGateway_CreateOrder(t *testing.T) {
	var got sentOrder
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_key", user)
		assert.Equal(t, "rzp_secret", pass)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":       "order_abc",
			"entity":   "order",
			"amount":   got.Amount,
			"currency": got.Currency,
			"receipt":  got.Receipt,
			"status":   "created",
		})
	}))
	defer srv.Close()

	g := NewRazorpayGateway(srv.URL+"/", "rzp_key", "rzp_secret", time.Second)
	order, err := g.CreateOrder(context.Background(), domain.OrderRequest{
		Amount: 2000, Currency: "INR", Receipt: "booking_7", Notes: map[string]string{"booking_id": "7"},
	})
	require.NoError(t, err)
	assert.Equal(t, "order_abc", order.ID)
	assert.Equal(t, int64(2000), order.Amount)
	assert.Equal(t, "booking_7", got.Receipt)
	assert.Equal(t, "INR", order.Currency)
	assert.Equal(t, "7", got.Notes["booking_id"])
	assert.Equal(t, "rzp_key", g.KeyID())

	assert.True(t, g.VerifySignature("order_abc", "pay_1", Sign("rzp_secret", "order_abc", "pay_1")))
}

func TestRazorpayGateway_Errors(t *testing.T) {
	t.Run("GatewayError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too low"}}`))
		}))
		defer srv.Close()

		_, err := NewRazorpayGateway(srv.URL, "k", "s", time.Second).CreateOrder(context.Background(), domain.OrderRequest{Amount: 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "amount too low")
	})

	t.Run("MissingOrderID", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"entity":"order","amount":1}`))
		}))
		defer srv.Close()

		_, err := NewRazorpayGateway(srv.URL, "k", "s", time.Second).CreateOrder(context.Background(), domain.OrderRequest{Amount: 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty order id")
	})

	t.Run("CanceledContext", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewRazorpayGateway(srv.URL, "k", "s", time.Second).CreateOrder(ctx, domain.OrderRequest{Amount: 1})
		require.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, calls)
	})

	t.Run("Timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer srv.Close()

		_, err := NewRazorpayGateway(srv.URL, "k", "s", 20*time.Millisecond).CreateOrder(context.Background(), domain.OrderRequest{Amount: 1})
		assert.Error(t, err)
	})
}

func TestOfflineGateway(t *testing.T) {
	g := NewOfflineGateway("offline_key", "secret")
	order, err := g.CreateOrder(context.Background(), domain.OrderRequest{Amount: 1500, Currency: "INR", Receipt: "booking_1"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(order.ID, "order_"))
	assert.Equal(t, int64(1500), order.Amount)

	assert.True(t, g.VerifySignature(order.ID, "pay_x", g.Sign(order.ID, "pay_x")))
	assert.False(t, g.VerifySignature(order.ID, "pay_x", "forged"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.CreateOrder(ctx, domain.OrderRequest{})
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	g, err := New(config.PaymentConfig{Mode: config.PaymentModeOnline, BaseURL: "http://x", KeyID: "k", KeySecret: "s"})
	require.NoError(t, err)
	assert.IsType(t, &RazorpayGateway{}, g)

	g, err = New(config.PaymentConfig{Mode: config.PaymentModeOffline, KeySecret: "s"})
	require.NoError(t, err)
	assert.IsType(t, &OfflineGateway{}, g)

	_, err = New(config.PaymentConfig{Mode: "paypal"})
	assert.Error(t, err)
}

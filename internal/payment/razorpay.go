package payment

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fixit/internal/domain"

	razorpay "github.com/razorpay/razorpay-go"
)

// RazorpayGateway creates orders through the Razorpay SDK.
type RazorpayGateway struct {
	client    *razorpay.Client
	keyID     string
	keySecret string
}

func NewRazorpayGateway(baseURL, keyID, keySecret string, timeout time.Duration) *RazorpayGateway {
	client := razorpay.NewClient(keyID, keySecret)
	if baseURL != "" {
		client.Order.Request.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if timeout > 0 {
		client.Order.Request.HTTPClient = &http.Client{Timeout: timeout}
	}
	return &RazorpayGateway{client: client, keyID: keyID, keySecret: keySecret}
}

// CreateOrder registers the order with Razorpay. The SDK call is not
// context aware, so ctx is only checked up front and the client timeout
// bounds the request.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, req domain.OrderRequest) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
	}
	if len(req.Notes) > 0 {
		data["notes"] = req.Notes
	}

	body, err := g.client.Order.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	id, _ := body["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("create order: empty order id")
	}
	order := &domain.Order{ID: id, Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt}
	if amount, ok := body["amount"].(float64); ok {
		order.Amount = int64(amount)
	}
	if currency, ok := body["currency"].(string); ok && currency != "" {
		order.Currency = currency
	}
	if receipt, ok := body["receipt"].(string); ok && receipt != "" {
		order.Receipt = receipt
	}
	return order, nil
}

func (g *RazorpayGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return Verify(g.keySecret, orderID, paymentID, signature)
}

func (g *RazorpayGateway) KeyID() string { return g.keyID }

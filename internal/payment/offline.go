package payment

import (
	"context"

	"fixit/internal/domain"

	"github.com/google/uuid"
)

// OfflineGateway issues local order ids and verifies signatures with the
// same scheme as the online gateway.
type OfflineGateway struct {
	keyID     string
	keySecret string
}

func NewOfflineGateway(keyID, keySecret string) *OfflineGateway {
	return &OfflineGateway{keyID: keyID, keySecret: keySecret}
}

func (g *OfflineGateway) CreateOrder(ctx context.Context, req domain.OrderRequest) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &domain.Order{
		ID:       "order_" + uuid.NewString(),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
	}, nil
}

func (g *OfflineGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return Verify(g.keySecret, orderID, paymentID, signature)
}

func (g *OfflineGateway) KeyID() string { return g.keyID }

// Sign produces the signature a client would receive for orderID and paymentID.
func (g *OfflineGateway) Sign(orderID, paymentID string) string {
	return Sign(g.keySecret, orderID, paymentID)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"fixit/internal/database"
	"fixit/internal/domain"
	"fixit/internal/events"
	"fixit/internal/metrics"
	"fixit/internal/models"

	"github.com/rs/zerolog"
)

type PaymentIntent struct {
	PaymentID int64  `json:"payment_id"`
	OrderID   string `json:"order_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	KeyID     string `json:"key_id"`
}

type SignaturePayload struct {
	GatewayPaymentID string
	Signature        string
}

type PaymentStatusResult struct {
	HasPayment bool            `json:"has_payment"`
	Payment    *models.Payment `json:"payment,omitempty"`
}

// PaymentCoordinator links payments to completed bookings.
type PaymentCoordinator struct {
	repo     domain.Repository
	gateway  domain.PaymentGateway
	notify   notifier
	currency string
	timeout  time.Duration
	logger   *zerolog.Logger
}

func NewPaymentCoordinator(repo domain.Repository, gateway domain.PaymentGateway, pub domain.EventPublisher, currency string, timeout time.Duration, logger *zerolog.Logger) *PaymentCoordinator {
	if currency == "" {
		currency = models.DefaultCurrency
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger = nopLogger(logger)
	return &PaymentCoordinator{
		repo:     repo,
		gateway:  gateway,
		notify:   notifier{pub: pub, logger: logger},
		currency: currency,
		timeout:  timeout,
		logger:   logger,
	}
}

// payable loads a booking that may still receive its payment.
func (c *PaymentCoordinator) payable(ctx context.Context, principal models.Principal, bookingID int64) (*models.Booking, error) {
	b, err := c.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, storeError(err, domain.ErrBookingNotFound)
	}
	if b.UserID != principal.UserID && !principal.IsAdmin() {
		return nil, domain.ErrNotRequester
	}
	if b.Status != models.StatusCompleted {
		return nil, domain.ErrNotCompleted
	}
	if b.PaymentID != nil {
		return nil, domain.ErrAlreadyPaid
	}
	return b, nil
}

// CreatePaymentIntent opens a gateway order for a completed booking.
func (c *PaymentCoordinator) CreatePaymentIntent(ctx context.Context, bookingID, userID int64) (*PaymentIntent, error) {
	b, err := c.payable(ctx, models.Principal{UserID: userID, Role: models.RoleCustomer}, bookingID)
	if err != nil {
		return nil, err
	}

	gwCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	order, err := c.gateway.CreateOrder(gwCtx, domain.OrderRequest{
		Amount:   MinorUnits(b.Price),
		Currency: c.currency,
		Receipt:  fmt.Sprintf("booking_%d", b.ID),
		Notes: map[string]string{
			"booking_id": strconv.FormatInt(b.ID, 10),
			"user_id":    strconv.FormatInt(b.UserID, 10),
		},
	})
	if err != nil {
		c.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("gateway order failed")
		return nil, domain.Internal("payment gateway error", err)
	}

	payment := &models.Payment{
		BookingID:      b.ID,
		Amount:         b.Price,
		Method:         models.MethodRazorpay,
		Status:         models.PaymentPending,
		GatewayOrderID: order.ID,
	}
	if err := c.link(ctx, b, payment); err != nil {
		return nil, err
	}
	metrics.IncPayment(string(models.PaymentPending))

	return &PaymentIntent{
		PaymentID: payment.ID,
		OrderID:   order.ID,
		Amount:    order.Amount,
		Currency:  order.Currency,
		KeyID:     c.gateway.KeyID(),
	}, nil
}

func (c *PaymentCoordinator) link(ctx context.Context, b *models.Booking, payment *models.Payment) error {
	err := c.repo.CreatePaymentAndLink(ctx, b.Version, payment)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrDuplicate), errors.Is(err, database.ErrConcurrentModification):
		return domain.ErrAlreadyPaid.Wrap(err)
	default:
		return storeError(err, domain.ErrBookingNotFound)
	}
}

// VerifyPayment checks the gateway signature and settles the payment. A bad
// signature fails the payment and frees the booking for a new intent.
func (c *PaymentCoordinator) VerifyPayment(ctx context.Context, paymentID, userID int64, sig SignaturePayload) (*models.Payment, error) {
	p, err := c.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, storeError(err, domain.ErrPaymentNotFound)
	}
	b, err := c.repo.GetBooking(ctx, p.BookingID)
	if err != nil {
		return nil, storeError(err, domain.ErrBookingNotFound)
	}
	if b.UserID != userID {
		return nil, domain.ErrNotRequester
	}
	if p.Status != models.PaymentPending {
		return nil, domain.ErrPaymentNotPending
	}

	if !c.gateway.VerifySignature(p.GatewayOrderID, sig.GatewayPaymentID, sig.Signature) {
		if err := c.repo.MarkPaymentFailedAndUnlink(ctx, p.ID, sig.GatewayPaymentID); err != nil {
			if errors.Is(err, database.ErrConcurrentModification) {
				return nil, domain.ErrPaymentNotPending
			}
			return nil, storeError(err, domain.ErrPaymentNotFound)
		}
		metrics.IncPayment(string(models.PaymentFailed))
		c.logger.Warn().Int64("payment_id", p.ID).Int64("booking_id", b.ID).Msg("payment signature rejected")
		return nil, domain.ErrPaymentVerificationFailed
	}

	if err := c.repo.MarkPaymentSuccess(ctx, p.ID, sig.GatewayPaymentID, sig.Signature); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			return nil, domain.ErrPaymentNotPending
		}
		return nil, storeError(err, domain.ErrPaymentNotFound)
	}

	updated, err := c.repo.GetPayment(ctx, p.ID)
	if err != nil {
		return nil, storeError(err, domain.ErrPaymentNotFound)
	}
	c.settled(ctx, updated)
	return updated, nil
}

// RecordManualPayment records an offline (cash, card, UPI) payment as
// already successful.
func (c *PaymentCoordinator) RecordManualPayment(ctx context.Context, principal models.Principal, bookingID int64, amount *float64, rawMethod string) (*models.Payment, error) {
	method, ok := models.ParsePaymentMethod(rawMethod)
	if !ok {
		return nil, domain.ErrInvalidMethod
	}
	b, err := c.payable(ctx, principal, bookingID)
	if err != nil {
		return nil, err
	}

	value := b.Price
	if amount != nil {
		value = *amount
	}
	if value <= 0 {
		return nil, domain.Validation("invalid_amount", "amount must be positive")
	}

	payment := &models.Payment{
		BookingID: b.ID,
		Amount:    value,
		Method:    method,
		Status:    models.PaymentSuccess,
	}
	if err := c.link(ctx, b, payment); err != nil {
		return nil, err
	}
	c.settled(ctx, payment)
	return payment, nil
}

func (c *PaymentCoordinator) settled(ctx context.Context, p *models.Payment) {
	metrics.IncPayment(string(models.PaymentSuccess))
	c.logger.Info().Int64("payment_id", p.ID).Int64("booking_id", p.BookingID).Str("method", string(p.Method)).Msg("payment settled")

	details, err := c.repo.GetBookingDetails(ctx, p.BookingID)
	if err != nil {
		c.logger.Error().Err(err).Int64("booking_id", p.BookingID).Msg("load booking for payment events")
		return
	}
	if details.ProviderID != nil {
		c.notify.publish(ctx, events.ProviderRoom(*details.ProviderID), events.EventPaymentReceived, events.PaymentReceivedPayload{
			BookingID:   details.ID,
			Amount:      p.Amount,
			UserName:    details.UserName,
			ServiceName: details.ServiceName,
		})
	}
	c.notify.publish(ctx, events.UserRoom(details.UserID), events.EventPaymentSuccessful, events.PaymentSuccessPayload{
		BookingID: details.ID,
		Amount:    p.Amount,
		PaymentID: p.ID,
	})
}

// PaymentStatus reports the live payment of a booking to its requester.
func (c *PaymentCoordinator) PaymentStatus(ctx context.Context, principal models.Principal, bookingID int64) (*PaymentStatusResult, error) {
	b, err := c.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, storeError(err, domain.ErrBookingNotFound)
	}
	if b.UserID != principal.UserID && !principal.IsAdmin() {
		return nil, domain.ErrNotRequester
	}
	p, err := c.repo.GetPaymentByBooking(ctx, bookingID)
	if errors.Is(err, database.ErrNotFound) {
		return &PaymentStatusResult{}, nil
	}
	if err != nil {
		return nil, storeError(err, domain.ErrPaymentNotFound)
	}
	return &PaymentStatusResult{HasPayment: true, Payment: p}, nil
}

// MinorUnits converts a price to the smallest currency unit.
func MinorUnits(price float64) int64 {
	return int64(math.Round(price * 100))
}

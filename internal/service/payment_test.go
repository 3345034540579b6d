package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"fixit/internal/domain"
	"fixit/internal/events"
	"fixit/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestPaymentFlow(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, true)

	b := e.completed(t)
	provSub := e.router.Subscribe(events.ProviderRoom(e.electrician.ID))
	userSub := e.router.Subscribe(events.UserRoom(e.customer.ID))

	intent, err := e.payments.CreatePaymentIntent(ctx, b.ID, e.customer.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2000, intent.Amount)
	assert.Equal(t, "INR", intent.Currency)
	assert.Equal(t, "test_key", intent.KeyID)
	assert.NotEmpty(t, intent.OrderID)

	linked, err := e.db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, linked.PaymentID)
	assert.Equal(t, intent.PaymentID, *linked.PaymentID)

	_, err = e.payments.CreatePaymentIntent(ctx, b.ID, e.customer.ID)
	requireKind(t, err, domain.KindConflict)

	status, err := e.payments.PaymentStatus(ctx, e.customerPrincipal(), b.ID)
	require.NoError(t, err)
	require.True(t, status.HasPayment)
	assert.Equal(t, models.PaymentPending, status.Payment.Status)

	p, err := e.payments.VerifyPayment(ctx, intent.PaymentID, e.customer.ID, SignaturePayload{
		GatewayPaymentID: "pay_1",
		Signature:        e.gateway.Sign(intent.OrderID, "pay_1"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, p.Status)
	assert.Equal(t, "pay_1", p.GatewayPaymentID)

	assert.Equal(t, []string{events.EventPaymentReceived}, eventTypes(drain(provSub)))
	userEvents := drain(userSub)
	require.Len(t, userEvents, 1)
	var success events.PaymentSuccessPayload
	require.NoError(t, userEvents[0].Decode(&success))
	assert.Equal(t, 20.0, success.Amount)
	assert.Equal(t, intent.PaymentID, success.PaymentID)

	_, err = e.payments.VerifyPayment(ctx, intent.PaymentID, e.customer.ID, SignaturePayload{
		GatewayPaymentID: "pay_1",
		Signature:        e.gateway.Sign(intent.OrderID, "pay_1"),
	})
	requireKind(t, err, domain.KindConflict)
}

func TestCreatePaymentIntent_Rules(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, true)

	t.Run("NotCompleted", func(t *testing.T) {
		b := e.inProgress(t)
		_, err := e.payments.CreatePaymentIntent(ctx, b.ID, e.customer.ID)
		requireKind(t, err, domain.KindInvalidState)
	})

	t.Run("NotRequester", func(t *testing.T) {
		b := e.completed(t)
		_, err := e.payments.CreatePaymentIntent(ctx, b.ID, e.elecUser.ID)
		requireKind(t, err, domain.KindUnauthorized)
	})

	t.Run("UnknownBooking", func(t *testing.T) {
		_, err := e.payments.CreatePaymentIntent(ctx, 999, e.customer.ID)
		requireKind(t, err, domain.KindNotFound)
	})
}

func TestVerifyPayment_BadSignatureUnlinks(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, true)

	b := e.completed(t)
	intent, err := e.payments.CreatePaymentIntent(ctx, b.ID, e.customer.ID)
	require.NoError(t, err)

	_, err = e.payments.VerifyPayment(ctx, intent.PaymentID, e.elecUser.ID, SignaturePayload{GatewayPaymentID: "pay_x", Signature: "x"})
	requireKind(t, err, domain.KindUnauthorized)

	_, err = e.payments.VerifyPayment(ctx, intent.PaymentID, e.customer.ID, SignaturePayload{GatewayPaymentID: "pay_x", Signature: "forged"})
	require.True(t, errors.Is(err, domain.ErrPaymentVerificationFailed))

	failed, err := e.db.GetPayment(ctx, intent.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, failed.Status)

	unlinked, err := e.db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, unlinked.PaymentID)

	status, err := e.payments.PaymentStatus(ctx, e.customerPrincipal(), b.ID)
	require.NoError(t, err)
	assert.False(t, status.HasPayment)

	retry, err := e.payments.CreatePaymentIntent(ctx, b.ID, e.customer.ID)
	require.NoError(t, err)
	assert.NotEqual(t, intent.PaymentID, retry.PaymentID)

	_, err = e.payments.VerifyPayment(ctx, 999, e.customer.ID, SignaturePayload{})
	requireKind(t, err, domain.KindNotFound)
}

func TestRecordManualPayment(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, true)

	t.Run("DefaultsToPriceAndCash", func(t *testing.T) {
		b := e.completed(t)
		p, err := e.payments.RecordManualPayment(ctx, e.customerPrincipal(), b.ID, nil, "")
		require.NoError(t, err)
		assert.Equal(t, models.MethodCash, p.Method)
		assert.Equal(t, models.PaymentSuccess, p.Status)
		assert.Equal(t, 20.0, p.Amount)

		_, err = e.payments.RecordManualPayment(ctx, e.customerPrincipal(), b.ID, nil, "UPI")
		requireKind(t, err, domain.KindConflict)
	})

	t.Run("ExplicitAmount", func(t *testing.T) {
		b := e.completed(t)
		p, err := e.payments.RecordManualPayment(ctx, e.customerPrincipal(), b.ID, floatPtr(25), "Card")
		require.NoError(t, err)
		assert.Equal(t, 25.0, p.Amount)
		assert.Equal(t, models.MethodCard, p.Method)
	})

	t.Run("InvalidMethod", func(t *testing.T) {
		b := e.completed(t)
		_, err := e.payments.RecordManualPayment(ctx, e.customerPrincipal(), b.ID, nil, "Barter")
		requireKind(t, err, domain.KindValidation)
	})

	t.Run("NonPositiveAmount", func(t *testing.T) {
		b := e.completed(t)
		_, err := e.payments.RecordManualPayment(ctx, e.customerPrincipal(), b.ID, floatPtr(0), "Cash")
		requireKind(t, err, domain.KindValidation)
	})

	t.Run("NotCompleted", func(t *testing.T) {
		b := e.book(t)
		_, err := e.payments.RecordManualPayment(ctx, e.customerPrincipal(), b.ID, nil, "Cash")
		requireKind(t, err, domain.KindInvalidState)
	})
}

func TestPaymentStatus_Unauthorized(t *testing.T) {
	e := newTestEnv(t, true)
	b := e.completed(t)

	_, err := e.payments.PaymentStatus(context.Background(), models.Principal{UserID: e.elecUser.ID, Role: models.RoleProvider}, b.ID)
	requireKind(t, err, domain.KindUnauthorized)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateOrder(ctx context.Context, req domain.OrderRequest) (*domain.Order, error) {
	args := m.Called(ctx, req)
	if o := args.Get(0); o != nil {
		return o.(*domain.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return m.Called(orderID, paymentID, signature).Bool(0)
}

func (m *mockGateway) KeyID() string { return "mock_key" }

func TestCreatePaymentIntent_Gateway(t *testing.T) {
	ctx := context.Background()

	t.Run("OrderRequest", func(t *testing.T) {
		e := newTestEnv(t, true)
		gw := &mockGateway{}
		e.payments = NewPaymentCoordinator(e.db, gw, e.router, "USD", time.Second, nil)

		b := e.completed(t)
		gw.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req domain.OrderRequest) bool {
			return req.Amount == 2000 && req.Currency == "USD" && req.Receipt == "booking_1" && req.Notes["booking_id"] == "1"
		})).Return(&domain.Order{ID: "order_abc", Amount: 2000, Currency: "USD"}, nil).Once()

		intent, err := e.payments.CreatePaymentIntent(ctx, b.ID, e.customer.ID)
		require.NoError(t, err)
		assert.Equal(t, "order_abc", intent.OrderID)
		assert.Equal(t, "mock_key", intent.KeyID)
		gw.AssertExpectations(t)
	})

	t.Run("GatewayError", func(t *testing.T) {
		e := newTestEnv(t, true)
		gw := &mockGateway{}
		e.payments = NewPaymentCoordinator(e.db, gw, e.router, "", 0, nil)

		b := e.completed(t)
		gw.On("CreateOrder", mock.Anything, mock.Anything).Return(nil, errors.New("gateway down")).Once()

		_, err := e.payments.CreatePaymentIntent(ctx, b.ID, e.customer.ID)
		requireKind(t, err, domain.KindInternal)

		got, err := e.db.GetBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Nil(t, got.PaymentID)
		gw.AssertExpectations(t)
	})
}

func TestMinorUnits(t *testing.T) {
	assert.EqualValues(t, 2000, MinorUnits(20))
	assert.EqualValues(t, 1999, MinorUnits(19.99))
	assert.EqualValues(t, 1, MinorUnits(0.005))
	assert.EqualValues(t, 0, MinorUnits(0))
}

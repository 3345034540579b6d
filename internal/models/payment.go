package models

import "time"

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "Pending"
	PaymentSuccess  PaymentStatus = "Success"
	PaymentFailed   PaymentStatus = "Failed"
	PaymentRefunded PaymentStatus = "Refunded"
)

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "Cash"
	MethodCard         PaymentMethod = "Card"
	MethodUPI          PaymentMethod = "UPI"
	MethodBankTransfer PaymentMethod = "Bank Transfer"
	MethodRazorpay     PaymentMethod = "Razorpay"
)

// ParsePaymentMethod validates a method name, defaulting empty input to Cash.
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	switch PaymentMethod(raw) {
	case "":
		return MethodCash, true
	case MethodCash, MethodCard, MethodUPI, MethodBankTransfer, MethodRazorpay:
		return PaymentMethod(raw), true
	}
	return "", false
}

type Payment struct {
	ID               int64         `json:"id"`
	BookingID        int64         `json:"booking_id"`
	Amount           float64       `json:"amount"`
	Method           PaymentMethod `json:"method"`
	Status           PaymentStatus `json:"status"`
	GatewayOrderID   string        `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string        `json:"gateway_payment_id,omitempty"`
	GatewaySignature string        `json:"-"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

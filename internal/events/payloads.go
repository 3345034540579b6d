package events

import (
	"time"

	"fixit/internal/models"
)

type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type NewBookingPayload struct {
	Booking     *models.Booking `json:"booking"`
	ServiceName string          `json:"service_name"`
	Location    *Location       `json:"location,omitempty"`
}

// BookingStatusPayload is shared by the three status events.
type BookingStatusPayload struct {
	BookingID    int64  `json:"booking_id"`
	Status       string `json:"status"`
	OldStatus    string `json:"old_status"`
	UserName     string `json:"user_name"`
	ProviderName string `json:"provider_name"`
	ServiceName  string `json:"service_name"`
}

type RatingPayload struct {
	BookingID int64  `json:"booking_id"`
	Rating    int    `json:"rating"`
	Review    string `json:"review"`
	UserName  string `json:"user_name"`
}

type CompletionPayload struct {
	BookingID   int64     `json:"booking_id"`
	ProviderID  int64     `json:"provider_id"`
	Notes       string    `json:"notes"`
	Images      []string  `json:"images"`
	CompletedAt time.Time `json:"completed_at"`
}

type PaymentReceivedPayload struct {
	BookingID   int64   `json:"booking_id"`
	Amount      float64 `json:"amount"`
	UserName    string  `json:"user_name"`
	ServiceName string  `json:"service_name"`
}

type PaymentSuccessPayload struct {
	BookingID int64   `json:"booking_id"`
	Amount    float64 `json:"amount"`
	PaymentID int64   `json:"payment_id"`
}

type ProviderLocationPayload struct {
	ProviderID int64   `json:"provider_id"`
	UserID     int64   `json:"user_id"`
	Name       string  `json:"name"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Address    string  `json:"address"`
	Rating     float64 `json:"rating"`
}

type TrackingPayload struct {
	ProviderID int64     `json:"provider_id"`
	Name       string    `json:"name"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Timestamp  time.Time `json:"timestamp"`
}

type ProviderServicesPayload struct {
	ProviderID int64    `json:"provider_id"`
	Services   []string `json:"services"`
}

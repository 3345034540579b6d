package models

import "time"

// Completion is the provider's record of the work performed for a booking.
type Completion struct {
	ID          int64     `json:"id"`
	BookingID   int64     `json:"booking_id"`
	ProviderID  int64     `json:"provider_id"`
	Notes       string    `json:"notes"`
	Images      []string  `json:"images"`
	CompletedAt time.Time `json:"completed_at"`
}

package models

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending    BookingStatus = "Pending"
	StatusAccepted   BookingStatus = "Accepted"
	StatusRejected   BookingStatus = "Rejected"
	StatusInProgress BookingStatus = "In Progress"
	StatusCompleted  BookingStatus = "Completed"
	StatusCancelled  BookingStatus = "Cancelled"
)

var transitions = map[BookingStatus][]BookingStatus{
	StatusPending:    {StatusAccepted, StatusRejected, StatusCancelled},
	StatusAccepted:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// ParseBookingStatus accepts the canonical names plus the lowercase and
// snake_case spellings clients tend to send.
func ParseBookingStatus(raw string) (BookingStatus, bool) {
	switch raw {
	case "Pending", "pending":
		return StatusPending, true
	case "Accepted", "accepted":
		return StatusAccepted, true
	case "Rejected", "rejected":
		return StatusRejected, true
	case "In Progress", "in_progress", "in progress", "InProgress":
		return StatusInProgress, true
	case "Completed", "completed":
		return StatusCompleted, true
	case "Cancelled", "cancelled", "canceled":
		return StatusCancelled, true
	}
	return "", false
}

func (s BookingStatus) String() string { return string(s) }

// IsTerminal reports whether no further status change is possible.
func (s BookingStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Booking is a single service request. CompletionNotes, CompletionImages and
// CompletedAt mirror the Completion record and are written together with it.
type Booking struct {
	ID               int64         `json:"id"`
	UserID           int64         `json:"user_id"`
	ProviderID       *int64        `json:"provider_id,omitempty"`
	ServiceID        int64         `json:"service_id"`
	Status           BookingStatus `json:"status"`
	ScheduledTime    *time.Time    `json:"scheduled_time,omitempty"`
	Price            float64       `json:"price"`
	LocationLat      *float64      `json:"location_lat,omitempty"`
	LocationLon      *float64      `json:"location_lon,omitempty"`
	Notes            string        `json:"notes"`
	Rating           *int          `json:"rating,omitempty"`
	Review           string        `json:"review,omitempty"`
	CompletionNotes  string        `json:"completion_notes,omitempty"`
	CompletionImages []string      `json:"completion_images,omitempty"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	PaymentID        *int64        `json:"payment_id,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	Version          int64         `json:"version"`
}

// IsAssigned reports whether a provider has been attached to the booking.
func (b *Booking) IsAssigned() bool {
	return b.ProviderID != nil
}

// AssignedTo reports whether the booking is assigned to providerID.
func (b *Booking) AssignedTo(providerID int64) bool {
	return b.ProviderID != nil && *b.ProviderID == providerID
}

// HasLocation reports whether both coordinates are set.
func (b *Booking) HasLocation() bool {
	return b.LocationLat != nil && b.LocationLon != nil
}

// BookingDetails is a booking joined with the names notifications carry.
type BookingDetails struct {
	Booking
	UserName     string `json:"user_name"`
	ProviderName string `json:"provider_name,omitempty"`
	ServiceName  string `json:"service_name"`
	Category     string `json:"category"`
}

package events

import "fmt"

// AllProvidersRoom receives every unassigned booking broadcast.
const AllProvidersRoom = "all_providers"

func ProviderRoom(providerID int64) string { return fmt.Sprintf("provider_%d", providerID) }

func UserRoom(userID int64) string { return fmt.Sprintf("user_%d", userID) }

func BookingRoom(bookingID int64) string { return fmt.Sprintf("booking_%d", bookingID) }

const (
	EventBookingCreated         = "booking_created"
	EventNewBookingAvailable    = "new_booking_available"
	EventBookingStatus          = "booking_status"
	EventBookingStatusChange    = "booking_status_change"
	EventBookingStatusUpdated   = "booking_status_updated"
	EventBookingRated           = "booking_rated"
	EventRatingSubmitted        = "rating_submitted"
	EventServiceCompleted       = "service_completed"
	EventCompletionUploaded     = "completion_uploaded"
	EventPaymentReceived        = "payment_received"
	EventPaymentSuccessful      = "payment_successful"
	EventProviderLocation       = "provider_location"
	EventProviderLocationUpdate = "provider_location_update"
	EventProviderServices       = "provider_services_updated"
)

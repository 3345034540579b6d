package models

// Stats is the admin dashboard aggregate.
type Stats struct {
	Users            int64            `json:"users"`
	Providers        int64            `json:"providers"`
	Bookings         int64            `json:"bookings"`
	BookingsByStatus map[string]int64 `json:"bookings_by_status"`
	Revenue          float64          `json:"revenue"`
}

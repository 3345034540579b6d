package models

import "time"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

// ParseRole maps a role name to a Role. "user" is an alias for customer.
func ParseRole(raw string) (Role, bool) {
	switch raw {
	case "customer", "user":
		return RoleCustomer, true
	case "provider":
		return RoleProvider, true
	case "admin":
		return RoleAdmin, true
	}
	return "", false
}

const DefaultUserRating = 5.0

type User struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	Role       Role      `json:"role"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`
	Address    string    `json:"address,omitempty"`
	AvatarPath string    `json:"avatar_path,omitempty"`
	Credits    float64   `json:"credits"`
	Rating     float64   `json:"rating"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HasLocation reports whether both coordinates are set.
func (u *User) HasLocation() bool {
	return u.Latitude != nil && u.Longitude != nil
}

// Principal is the caller identity handed over by the identity provider.
type Principal struct {
	UserID int64
	Role   Role
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

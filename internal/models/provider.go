package models

import "time"

type Provider struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Skills       []string  `json:"skills"`
	Availability bool      `json:"availability"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasSkill reports an exact skill match.
func (p *Provider) HasSkill(skill string) bool {
	for _, s := range p.Skills {
		if s == skill {
			return true
		}
	}
	return false
}

// ProviderWithUser is a provider joined with its owning user.
type ProviderWithUser struct {
	Provider
	User User `json:"user"`
}

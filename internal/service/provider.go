package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"fixit/internal/database"
	"fixit/internal/domain"
	"fixit/internal/events"
	"fixit/internal/models"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
)

type ProviderService struct {
	repo   domain.Repository
	notify notifier
	logger *zerolog.Logger
}

func NewProviderService(repo domain.Repository, pub domain.EventPublisher, logger *zerolog.Logger) *ProviderService {
	logger = nopLogger(logger)
	return &ProviderService{repo: repo, notify: notifier{pub: pub, logger: logger}, logger: logger}
}

// RegisterProvider creates the provider profile of a user.
func (s *ProviderService) RegisterProvider(ctx context.Context, userID int64, skills []string) (*models.Provider, error) {
	if _, err := s.repo.GetUserByID(ctx, userID); err != nil {
		return nil, storeError(err, domain.ErrUserNotFound)
	}
	provider := &models.Provider{UserID: userID, Skills: cleanSkills(skills), Availability: true}
	if err := s.repo.CreateProvider(ctx, provider); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, domain.ErrProviderExists
		}
		return nil, storeError(err, domain.ErrUserNotFound)
	}
	s.logger.Info().Int64("provider_id", provider.ID).Int64("user_id", userID).Msg("provider registered")
	return provider, nil
}

// ResolveProvider returns the provider profile owned by userID.
func (s *ProviderService) ResolveProvider(ctx context.Context, userID int64) (*models.Provider, error) {
	p, err := s.repo.GetProviderByUserID(ctx, userID)
	if err != nil {
		return nil, storeError(err, domain.ErrNotProvider)
	}
	return p, nil
}

func validCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// UpdateLocation stores the user's position; providers also announce it.
func (s *ProviderService) UpdateLocation(ctx context.Context, userID int64, lat, lon float64, address *string) error {
	if !validCoordinates(lat, lon) {
		return domain.Validation("invalid_coordinates", "coordinates out of range")
	}
	if err := s.repo.UpdateUserLocation(ctx, userID, lat, lon, address); err != nil {
		return storeError(err, domain.ErrUserNotFound)
	}

	provider, err := s.repo.GetProviderByUserID(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeError(err, domain.ErrProviderNotFound)
	}
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return storeError(err, domain.ErrUserNotFound)
	}

	payload := events.ProviderLocationPayload{
		ProviderID: provider.ID,
		UserID:     userID,
		Name:       user.Name,
		Lat:        lat,
		Lon:        lon,
		Address:    user.Address,
		Rating:     user.Rating,
	}
	s.notify.publish(ctx, events.ProviderRoom(provider.ID), events.EventProviderLocation, payload)
	s.notify.publish(ctx, events.AllProvidersRoom, events.EventProviderLocation, payload)
	return nil
}

// UpdateTrackingLocation streams a provider's live position to the rooms of
// the bookings they are working on.
func (s *ProviderService) UpdateTrackingLocation(ctx context.Context, userID int64, lat, lon float64) error {
	if !validCoordinates(lat, lon) {
		return domain.Validation("invalid_coordinates", "coordinates out of range")
	}
	provider, err := s.ResolveProvider(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateUserLocation(ctx, userID, lat, lon, nil); err != nil {
		return storeError(err, domain.ErrUserNotFound)
	}
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return storeError(err, domain.ErrUserNotFound)
	}
	active, err := s.repo.ListActiveBookingsByProvider(ctx, provider.ID)
	if err != nil {
		return storeError(err, domain.ErrProviderNotFound)
	}

	payload := events.TrackingPayload{
		ProviderID: provider.ID,
		Name:       user.Name,
		Lat:        lat,
		Lon:        lon,
		Timestamp:  time.Now().UTC(),
	}
	s.notify.publish(ctx, events.ProviderRoom(provider.ID), events.EventProviderLocationUpdate, payload)
	for _, b := range active {
		s.notify.publish(ctx, events.BookingRoom(b.ID), events.EventProviderLocationUpdate, payload)
	}
	return nil
}

type TrackInfo struct {
	ProviderID   int64           `json:"provider_id"`
	ProviderName string          `json:"provider_name"`
	Location     events.Location `json:"location"`
	DistanceKM   float64         `json:"distance_km"`
	ETAMinutes   int             `json:"eta_minutes"`
}

// Track estimates how far a provider is from the viewer.
func (s *ProviderService) Track(ctx context.Context, providerID, viewerUserID int64) (*TrackInfo, error) {
	p, err := s.repo.GetProviderWithUser(ctx, providerID)
	if err != nil {
		return nil, storeError(err, domain.ErrProviderNotFound)
	}
	viewer, err := s.repo.GetUserByID(ctx, viewerUserID)
	if err != nil {
		return nil, storeError(err, domain.ErrUserNotFound)
	}
	if !p.User.HasLocation() || !viewer.HasLocation() {
		return nil, domain.ErrMissingLocation
	}

	from := orb.Point{*p.User.Longitude, *p.User.Latitude}
	to := orb.Point{*viewer.Longitude, *viewer.Latitude}
	km := distanceKM(from, to)
	return &TrackInfo{
		ProviderID:   p.ID,
		ProviderName: p.User.Name,
		Location:     events.Location{Lat: *p.User.Latitude, Lon: *p.User.Longitude},
		DistanceKM:   km,
		ETAMinutes:   ETAMinutes(km),
	}, nil
}

// ETAMinutes assumes city traffic speed and never reports less than the minimum.
func ETAMinutes(km float64) int {
	eta := int(math.Round(km / models.TrackingSpeedKMH * 60))
	if eta < models.MinETAMinutes {
		return models.MinETAMinutes
	}
	return eta
}

func (s *ProviderService) AddSkill(ctx context.Context, userID int64, skill string) (*models.Provider, error) {
	skill = strings.TrimSpace(skill)
	if skill == "" {
		return nil, domain.Validation("empty_skill", "service name is required")
	}
	provider, err := s.ResolveProvider(ctx, userID)
	if err != nil {
		return nil, err
	}
	if provider.HasSkill(skill) {
		return nil, domain.ErrSkillExists
	}
	return s.saveSkills(ctx, provider, append(provider.Skills, skill))
}

func (s *ProviderService) RemoveSkill(ctx context.Context, userID int64, skill string) (*models.Provider, error) {
	skill = strings.TrimSpace(skill)
	if skill == "" {
		return nil, domain.Validation("empty_skill", "service name is required")
	}
	provider, err := s.ResolveProvider(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !provider.HasSkill(skill) {
		return nil, domain.ErrSkillNotFound
	}
	kept := make([]string, 0, len(provider.Skills)-1)
	for _, sk := range provider.Skills {
		if sk != skill {
			kept = append(kept, sk)
		}
	}
	return s.saveSkills(ctx, provider, kept)
}

func (s *ProviderService) saveSkills(ctx context.Context, provider *models.Provider, skills []string) (*models.Provider, error) {
	if err := s.repo.UpdateProviderSkills(ctx, provider.ID, skills); err != nil {
		return nil, storeError(err, domain.ErrProviderNotFound)
	}
	provider.Skills = skills
	s.notify.publish(ctx, events.AllProvidersRoom, events.EventProviderServices, events.ProviderServicesPayload{
		ProviderID: provider.ID,
		Services:   skills,
	})
	return provider, nil
}

func cleanSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	seen := make(map[string]bool)
	for _, s := range skills {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

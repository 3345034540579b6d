package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"fixit/internal/database"
	"fixit/internal/domain"
	"fixit/internal/events"
	"fixit/internal/metrics"
	"fixit/internal/models"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/rs/zerolog"
)

type CreateBookingRequest struct {
	ServiceID     *int64
	ProviderID    *int64
	ScheduledTime *time.Time
	Price         *float64
	Lat           *float64
	Lon           *float64
	Notes         string
}

// MatchResult is the outcome of dispatching a new booking.
type MatchResult struct {
	Booking *models.Booking
	Service *models.Service
	// Targets are the rooms new_booking_available was sent to.
	Targets []string
}

type MatchingEngine struct {
	repo    domain.Repository
	matcher domain.Matcher
	notify  notifier
	centre  orb.Point
	limit   int
	logger  *zerolog.Logger
}

// NewMatchingEngine builds the engine. centre is the fallback position
// (lon, lat) for providers without a location.
func NewMatchingEngine(repo domain.Repository, pub domain.EventPublisher, ledger domain.SyncWorker, matcher domain.Matcher, centre orb.Point, limit int, logger *zerolog.Logger) *MatchingEngine {
	if matcher == nil {
		matcher = NewKeywordMatcher()
	}
	if limit <= 0 {
		limit = models.DefaultNearbyLimit
	}
	logger = nopLogger(logger)
	return &MatchingEngine{
		repo:    repo,
		matcher: matcher,
		notify:  notifier{pub: pub, ledger: ledger, logger: logger},
		centre:  centre,
		limit:   limit,
		logger:  logger,
	}
}

func (e *MatchingEngine) CreateBooking(ctx context.Context, principal models.Principal, req CreateBookingRequest) (*MatchResult, error) {
	if _, err := e.repo.GetUserByID(ctx, principal.UserID); err != nil {
		return nil, storeError(err, domain.ErrUserNotFound)
	}

	provider := e.preselectedProvider(ctx, req.ProviderID)

	service, err := e.resolveService(ctx, req.ServiceID, provider)
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		UserID:        principal.UserID,
		ServiceID:     service.ID,
		Status:        models.StatusPending,
		ScheduledTime: req.ScheduledTime,
		Price:         service.BasePrice,
		LocationLat:   req.Lat,
		LocationLon:   req.Lon,
		Notes:         req.Notes,
	}
	if req.Price != nil {
		booking.Price = *req.Price
	}
	if provider != nil {
		booking.ProviderID = &provider.ID
	}

	var targets []string
	if provider != nil {
		targets = append(targets, events.ProviderRoom(provider.ID))
		if provider.UserID != 0 {
			targets = append(targets, events.UserRoom(provider.UserID))
		}
	} else {
		candidates, err := e.candidates(ctx, service)
		if err != nil {
			return nil, err
		}
		for _, c := range candidates {
			targets = append(targets, events.ProviderRoom(c.ID))
		}
		targets = append(targets, events.AllProvidersRoom)
	}

	if err := e.repo.CreateBooking(ctx, booking); err != nil {
		return nil, storeError(err, domain.ErrServiceNotFound)
	}
	metrics.IncBookingCreated()
	e.logger.Info().Int64("booking_id", booking.ID).Int64("service_id", service.ID).Int("targets", len(targets)).Msg("booking created")

	e.notify.publish(ctx, events.UserRoom(booking.UserID), events.EventBookingCreated, booking)
	payload := events.NewBookingPayload{Booking: booking, ServiceName: service.Name}
	if booking.HasLocation() {
		payload.Location = &events.Location{Lat: *booking.LocationLat, Lon: *booking.LocationLon}
	}
	// A direct booking reaches its provider as booking_created; open
	// broadcasts go out as new_booking_available.
	for _, room := range targets {
		if provider != nil {
			e.notify.publish(ctx, room, events.EventBookingCreated, booking)
			continue
		}
		e.notify.publish(ctx, room, events.EventNewBookingAvailable, payload)
	}

	if details, err := e.repo.GetBookingDetails(ctx, booking.ID); err == nil {
		e.notify.enqueueSync(ctx, TaskUpsert, details)
	}

	return &MatchResult{Booking: booking, Service: service, Targets: targets}, nil
}

// preselectedProvider returns the requested provider, or nil when none was
// requested or it does not exist.
func (e *MatchingEngine) preselectedProvider(ctx context.Context, id *int64) *models.Provider {
	if id == nil {
		return nil
	}
	provider, err := e.repo.GetProviderByID(ctx, *id)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			e.logger.Warn().Err(err).Int64("provider_id", *id).Msg("provider lookup failed, broadcasting")
		}
		return nil
	}
	return provider
}

func (e *MatchingEngine) resolveService(ctx context.Context, id *int64, provider *models.Provider) (*models.Service, error) {
	if id != nil {
		service, err := e.repo.GetServiceByID(ctx, *id)
		if err == nil {
			return service, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return nil, storeError(err, domain.ErrServiceNotFound)
		}
	}

	catalog, err := e.repo.ListServices(ctx)
	if err != nil {
		return nil, storeError(err, domain.ErrServiceNotFound)
	}
	if len(catalog) == 0 {
		return nil, domain.ErrNoServiceAvailable
	}

	if provider != nil {
		for _, s := range catalog {
			if provider.HasSkill(s.Category) {
				return s, nil
			}
		}
		for _, s := range catalog {
			if provider.HasSkill(s.Name) {
				return s, nil
			}
		}
	}
	return catalog[0], nil
}

// candidates returns available providers able to serve the service: exact
// skill matches on name or category first, then matcher hits.
func (e *MatchingEngine) candidates(ctx context.Context, service *models.Service) ([]*models.Provider, error) {
	exact, err := e.repo.FindProvidersBySkills(ctx, []string{service.Name, service.Category})
	if err != nil {
		return nil, storeError(err, domain.ErrProviderNotFound)
	}
	all, err := e.repo.ListProvidersWithUsers(ctx)
	if err != nil {
		return nil, storeError(err, domain.ErrProviderNotFound)
	}

	seen := make(map[int64]bool)
	var out []*models.Provider
	add := func(p *models.Provider) {
		if !p.Availability || seen[p.ID] {
			return
		}
		seen[p.ID] = true
		out = append(out, p)
	}

	for _, p := range exact {
		add(p)
	}
	for _, p := range all {
		if e.Serves(service, p.Skills) {
			provider := p.Provider
			add(&provider)
		}
	}
	return out, nil
}

// Serves reports whether skills cover the service by name or category.
func (e *MatchingEngine) Serves(service *models.Service, skills []string) bool {
	return e.matcher.Matches(service.Name, skills) || e.matcher.Matches(service.Category, skills)
}

type NearbyQuery struct {
	Lat         *float64
	Lon         *float64
	ServiceType string
	RadiusKM    float64
	Limit       int
}

type NearbyProvider struct {
	ProviderID int64    `json:"provider_id"`
	UserID     int64    `json:"user_id"`
	Name       string   `json:"name"`
	Skills     []string `json:"skills"`
	Rating     float64  `json:"rating"`
	Lat        float64  `json:"lat"`
	Lon        float64  `json:"lon"`
	Address    string   `json:"address,omitempty"`
	DistanceKM float64  `json:"distance_km"`
	HourlyRate int      `json:"hourly_rate"`
	JobsCount  int64    `json:"jobs_count"`
}

// NearbyProviders lists available providers around a point, nearest first
// and best rated among equals.
func (e *MatchingEngine) NearbyProviders(ctx context.Context, q NearbyQuery) ([]NearbyProvider, error) {
	origin := e.centre
	if q.Lat != nil && q.Lon != nil {
		origin = orb.Point{*q.Lon, *q.Lat}
	}
	limit := q.Limit
	if limit <= 0 || limit > e.limit {
		limit = e.limit
	}

	providers, err := e.repo.ListProvidersWithUsers(ctx)
	if err != nil {
		return nil, storeError(err, domain.ErrProviderNotFound)
	}

	var out []NearbyProvider
	for _, p := range providers {
		if !p.Availability {
			continue
		}
		if q.ServiceType != "" && !e.matcher.Matches(q.ServiceType, p.Skills) {
			continue
		}
		pos := e.centre
		if p.User.HasLocation() {
			pos = orb.Point{*p.User.Longitude, *p.User.Latitude}
		}
		km := distanceKM(origin, pos)
		if q.RadiusKM > 0 && km > q.RadiusKM {
			continue
		}
		out = append(out, NearbyProvider{
			ProviderID: p.ID,
			UserID:     p.UserID,
			Name:       p.User.Name,
			Skills:     p.Skills,
			Rating:     p.User.Rating,
			Lat:        pos.Lat(),
			Lon:        pos.Lon(),
			Address:    p.User.Address,
			DistanceKM: km,
			HourlyRate: models.BaseHourlyRate + models.SkillRateStep*len(p.Skills),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceKM != out[j].DistanceKM {
			return out[i].DistanceKM < out[j].DistanceKM
		}
		return out[i].Rating > out[j].Rating
	})
	if len(out) > limit {
		out = out[:limit]
	}

	for i := range out {
		jobs, err := e.repo.CountProviderBookings(ctx, out[i].ProviderID)
		if err != nil {
			return nil, storeError(err, domain.ErrProviderNotFound)
		}
		out[i].JobsCount = jobs
	}
	return out, nil
}

// distanceKM is the great-circle distance rounded to two decimals.
func distanceKM(a, b orb.Point) float64 {
	return math.Round(geo.Distance(a, b)/1000*100) / 100
}

package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"fixit/internal/database"
	"fixit/internal/domain"
	"fixit/internal/events"
	"fixit/internal/metrics"
	"fixit/internal/models"

	"github.com/rs/zerolog"
)

// LifecycleManager owns booking status changes after creation.
type LifecycleManager struct {
	repo    domain.Repository
	locker  domain.Locker
	blobs   domain.BlobStore
	matcher *MatchingEngine
	notify  notifier
	logger  *zerolog.Logger
}

func NewLifecycleManager(repo domain.Repository, pub domain.EventPublisher, ledger domain.SyncWorker, locker domain.Locker, blobs domain.BlobStore, matcher *MatchingEngine, logger *zerolog.Logger) *LifecycleManager {
	logger = nopLogger(logger)
	return &LifecycleManager{
		repo:    repo,
		locker:  locker,
		blobs:   blobs,
		matcher: matcher,
		notify:  notifier{pub: pub, ledger: ledger, logger: logger},
		logger:  logger,
	}
}

func (m *LifecycleManager) load(ctx context.Context, bookingID int64) (*models.Booking, error) {
	b, err := m.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, storeError(err, domain.ErrBookingNotFound)
	}
	return b, nil
}

// Accept assigns providerID to a pending booking. A booking that another
// provider accepted first yields a Conflict.
func (m *LifecycleManager) Accept(ctx context.Context, bookingID, providerID int64) (*models.Booking, error) {
	b, err := m.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if _, err := m.repo.GetProviderByID(ctx, providerID); err != nil {
		return nil, storeError(err, domain.ErrProviderNotFound)
	}

	switch {
	case b.Status == models.StatusAccepted:
		return nil, domain.ErrAlreadyAccepted
	case b.Status != models.StatusPending:
		return nil, domain.ErrNotPending
	case b.IsAssigned() && !b.AssignedTo(providerID):
		return nil, domain.ErrNotAssignedProvider
	}

	if err := m.repo.AcceptBookingWithVersion(ctx, b.ID, b.Version, providerID); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			return nil, domain.ErrAlreadyAccepted.Wrap(err)
		}
		return nil, storeError(err, domain.ErrBookingNotFound)
	}
	return m.afterTransition(ctx, b.ID, b.Status)
}

// Reject declines a pending booking.
func (m *LifecycleManager) Reject(ctx context.Context, bookingID, providerID int64) (*models.Booking, error) {
	b, err := m.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if _, err := m.repo.GetProviderByID(ctx, providerID); err != nil {
		return nil, storeError(err, domain.ErrProviderNotFound)
	}
	if b.Status != models.StatusPending {
		return nil, domain.ErrNotPending
	}
	if b.IsAssigned() && !b.AssignedTo(providerID) {
		return nil, domain.ErrNotAssignedProvider
	}
	return m.transition(ctx, b, models.StatusRejected)
}

// Start moves an accepted booking into progress.
func (m *LifecycleManager) Start(ctx context.Context, bookingID, providerID int64) (*models.Booking, error) {
	b, err := m.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.StatusAccepted {
		return nil, domain.ErrInvalidTransition.WithMessage("booking must be accepted before it starts")
	}
	if !b.AssignedTo(providerID) {
		return nil, domain.ErrNotAssignedProvider
	}
	return m.transition(ctx, b, models.StatusInProgress)
}

// Cancel ends a non-terminal booking on behalf of a participant or an admin.
func (m *LifecycleManager) Cancel(ctx context.Context, principal models.Principal, bookingID int64) (*models.Booking, error) {
	b, err := m.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := m.authorizeParticipant(ctx, principal, b); err != nil {
		return nil, err
	}
	if !b.Status.CanTransitionTo(models.StatusCancelled) {
		return nil, domain.ErrInvalidTransition
	}
	return m.transition(ctx, b, models.StatusCancelled)
}

// UpdateStatus applies a generic status change. Cancellation is open to any
// participant; every other target is a provider action and goes through
// Accept, Reject or Start with the caller's provider profile. Completion is
// only reachable through SubmitCompletion.
func (m *LifecycleManager) UpdateStatus(ctx context.Context, principal models.Principal, bookingID int64, rawStatus string) (*models.Booking, error) {
	next, ok := models.ParseBookingStatus(strings.TrimSpace(rawStatus))
	if !ok {
		return nil, domain.ErrInvalidStatus
	}
	b, err := m.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := m.authorizeParticipant(ctx, principal, b); err != nil {
		return nil, err
	}
	if !b.Status.CanTransitionTo(next) {
		return nil, domain.ErrInvalidTransition.WithMessage(fmt.Sprintf("cannot move booking from %s to %s", b.Status, next))
	}

	switch next {
	case models.StatusCancelled:
		return m.transition(ctx, b, next)
	case models.StatusCompleted:
		return nil, domain.ErrInvalidTransition.WithMessage("completion requires a completion submission")
	}

	provider, err := m.repo.GetProviderByUserID(ctx, principal.UserID)
	if err != nil {
		return nil, storeError(err, domain.ErrNotProvider)
	}
	switch next {
	case models.StatusAccepted:
		return m.Accept(ctx, bookingID, provider.ID)
	case models.StatusRejected:
		return m.Reject(ctx, bookingID, provider.ID)
	case models.StatusInProgress:
		return m.Start(ctx, bookingID, provider.ID)
	}
	return nil, domain.ErrInvalidTransition
}

func (m *LifecycleManager) transition(ctx context.Context, b *models.Booking, next models.BookingStatus) (*models.Booking, error) {
	if err := m.repo.UpdateBookingStatusWithVersion(ctx, b.ID, b.Version, b.Status, next); err != nil {
		return nil, storeError(err, domain.ErrBookingNotFound)
	}
	return m.afterTransition(ctx, b.ID, b.Status)
}

// afterTransition reloads the booking and emits the status events.
func (m *LifecycleManager) afterTransition(ctx context.Context, bookingID int64, old models.BookingStatus) (*models.Booking, error) {
	details, err := m.repo.GetBookingDetails(ctx, bookingID)
	if err != nil {
		return nil, storeError(err, domain.ErrBookingNotFound)
	}
	metrics.IncTransition(old.String(), details.Status.String())
	m.logger.Info().
		Int64("booking_id", bookingID).
		Str("from", old.String()).
		Str("to", details.Status.String()).
		Msg("booking status changed")

	payload := events.BookingStatusPayload{
		BookingID:    details.ID,
		Status:       details.Status.String(),
		OldStatus:    old.String(),
		UserName:     details.UserName,
		ProviderName: details.ProviderName,
		ServiceName:  details.ServiceName,
	}
	m.notify.publish(ctx, events.BookingRoom(details.ID), events.EventBookingStatus, payload)
	m.notify.publish(ctx, events.UserRoom(details.UserID), events.EventBookingStatusChange, payload)
	if details.ProviderID != nil {
		m.notify.publish(ctx, events.ProviderRoom(*details.ProviderID), events.EventBookingStatusUpdated, payload)
	}
	m.notify.enqueueSync(ctx, TaskUpdateStatus, details)

	return &details.Booking, nil
}

// SubmitCompletion records proof of work and completes the booking.
func (m *LifecycleManager) SubmitCompletion(ctx context.Context, bookingID, providerID int64, notes string, images []string) (*models.Completion, error) {
	b, err := m.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := checkCompletable(b, providerID); err != nil {
		return nil, err
	}

	completion := &models.Completion{
		BookingID:  b.ID,
		ProviderID: providerID,
		Notes:      notes,
		Images:     images,
	}
	if completion.Images == nil {
		completion.Images = []string{}
	}
	if err := m.repo.SubmitCompletion(ctx, b.Version, completion); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, domain.ErrConcurrentUpdate.Wrap(err)
		}
		return nil, storeError(err, domain.ErrBookingNotFound)
	}

	if _, err := m.afterTransition(ctx, b.ID, b.Status); err != nil {
		return nil, err
	}
	payload := events.CompletionPayload{
		BookingID:   completion.BookingID,
		ProviderID:  completion.ProviderID,
		Notes:       completion.Notes,
		Images:      completion.Images,
		CompletedAt: completion.CompletedAt,
	}
	m.notify.publish(ctx, events.UserRoom(b.UserID), events.EventServiceCompleted, payload)
	m.notify.publish(ctx, events.ProviderRoom(providerID), events.EventCompletionUploaded, payload)
	m.notify.publish(ctx, events.BookingRoom(b.ID), events.EventCompletionUploaded, payload)
	return completion, nil
}

func checkCompletable(b *models.Booking, providerID int64) error {
	if b.Status != models.StatusInProgress {
		return domain.ErrNotInProgress
	}
	if !b.AssignedTo(providerID) {
		return domain.ErrNotAssignedProvider
	}
	return nil
}

// Upload is a file received from a client.
type Upload struct {
	Name string
	Data []byte
}

// UploadCompletion stores the images in blob storage and then submits the
// completion with their paths. Blobs stored for a submission that fails are
// removed again.
func (m *LifecycleManager) UploadCompletion(ctx context.Context, bookingID, providerID int64, notes string, files []Upload) (*models.Completion, error) {
	b, err := m.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := checkCompletable(b, providerID); err != nil {
		return nil, err
	}
	if len(files) > 0 && m.blobs == nil {
		return nil, domain.Internal("blob storage not configured", nil)
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path, err := m.blobs.Store(ctx, f.Name, f.Data)
		if err != nil {
			m.discardBlobs(ctx, bookingID, paths)
			return nil, err
		}
		paths = append(paths, path)
	}
	completion, err := m.SubmitCompletion(ctx, bookingID, providerID, notes, paths)
	if err != nil {
		m.discardBlobs(ctx, bookingID, paths)
		return nil, err
	}
	return completion, nil
}

// discardBlobs deletes uploads that no completion refers to. Paths that
// cannot be deleted are logged as orphaned.
func (m *LifecycleManager) discardBlobs(ctx context.Context, bookingID int64, paths []string) {
	ctx = context.WithoutCancel(ctx)
	var orphaned []string
	for _, path := range paths {
		if err := m.blobs.Delete(ctx, path); err != nil {
			m.logger.Warn().Err(err).Str("path", path).Msg("blob cleanup failed")
			orphaned = append(orphaned, path)
		}
	}
	if len(orphaned) > 0 {
		m.logger.Error().Int64("booking_id", bookingID).Strs("paths", orphaned).Msg("orphaned completion uploads")
	}
}

// Rate stores the requester's single rating and refreshes the provider's
// aggregate rating.
func (m *LifecycleManager) Rate(ctx context.Context, bookingID, userID int64, rating int, review string) (*models.Booking, error) {
	if rating < 1 || rating > 5 {
		return nil, domain.ErrInvalidRating
	}
	b, err := m.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, domain.ErrNotRequester
	}
	if b.Status != models.StatusCompleted {
		return nil, domain.ErrNotCompleted
	}
	if b.Rating != nil {
		return nil, domain.ErrAlreadyRated
	}

	if err := m.repo.RateBookingWithVersion(ctx, b.ID, b.Version, rating, review); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			if cur, gerr := m.repo.GetBooking(ctx, b.ID); gerr == nil && cur.Rating != nil {
				return nil, domain.ErrAlreadyRated
			}
		}
		return nil, storeError(err, domain.ErrBookingNotFound)
	}

	if b.ProviderID != nil {
		if err := m.refreshProviderRating(ctx, *b.ProviderID); err != nil {
			m.logger.Error().Err(err).Int64("provider_id", *b.ProviderID).Msg("provider rating refresh failed")
		}
	}

	details, err := m.repo.GetBookingDetails(ctx, b.ID)
	if err != nil {
		return nil, storeError(err, domain.ErrBookingNotFound)
	}
	payload := events.RatingPayload{BookingID: b.ID, Rating: rating, Review: review, UserName: details.UserName}
	if details.ProviderID != nil {
		m.notify.publish(ctx, events.ProviderRoom(*details.ProviderID), events.EventBookingRated, payload)
	}
	m.notify.publish(ctx, events.UserRoom(b.UserID), events.EventRatingSubmitted, payload)
	m.notify.publish(ctx, events.BookingRoom(b.ID), events.EventRatingSubmitted, payload)
	m.notify.enqueueSync(ctx, TaskUpsert, details)
	return &details.Booking, nil
}

// refreshProviderRating recomputes the owning user's rating as the mean of
// all rated bookings, rounded to one decimal.
func (m *LifecycleManager) refreshProviderRating(ctx context.Context, providerID int64) error {
	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, fmt.Sprintf("provider_rating:%d", providerID))
		if err != nil {
			return fmt.Errorf("lock provider rating: %w", err)
		}
		defer unlock()
	}

	avg, count, err := m.repo.ProviderRatingAverage(ctx, providerID)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	provider, err := m.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		return err
	}
	return m.repo.UpdateUserRating(ctx, provider.UserID, RoundRating(avg))
}

// RoundRating rounds a mean rating to one decimal place.
func RoundRating(mean float64) float64 {
	return math.Round(mean*10) / 10
}

func (m *LifecycleManager) GetCompletion(ctx context.Context, principal models.Principal, bookingID int64) (*models.Completion, error) {
	b, err := m.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := m.authorizeParticipant(ctx, principal, b); err != nil {
		return nil, err
	}
	c, err := m.repo.GetCompletionByBooking(ctx, bookingID)
	if err != nil {
		return nil, storeError(err, domain.ErrCompletionNotFound)
	}
	return c, nil
}

// GetBooking returns a booking visible to the principal: its participants,
// admins, and any provider while it is still an open broadcast.
func (m *LifecycleManager) GetBooking(ctx context.Context, principal models.Principal, bookingID int64) (*models.BookingDetails, error) {
	details, err := m.repo.GetBookingDetails(ctx, bookingID)
	if err != nil {
		return nil, storeError(err, domain.ErrBookingNotFound)
	}
	if !details.IsAssigned() && details.Status == models.StatusPending && principal.Role == models.RoleProvider {
		return details, nil
	}
	if err := m.authorizeParticipant(ctx, principal, &details.Booking); err != nil {
		return nil, err
	}
	return details, nil
}

func (m *LifecycleManager) ListUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error) {
	bookings, err := m.repo.ListBookingsByUser(ctx, userID)
	if err != nil {
		return nil, storeError(err, domain.ErrUserNotFound)
	}
	return bookings, nil
}

// ListProviderBookings returns bookings assigned to the provider plus open
// broadcasts whose service the provider can serve, newest first.
func (m *LifecycleManager) ListProviderBookings(ctx context.Context, providerID int64) ([]*models.Booking, error) {
	provider, err := m.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, storeError(err, domain.ErrProviderNotFound)
	}
	assigned, err := m.repo.ListBookingsByProvider(ctx, providerID)
	if err != nil {
		return nil, storeError(err, domain.ErrProviderNotFound)
	}
	open, err := m.repo.ListUnassignedPendingBookings(ctx)
	if err != nil {
		return nil, storeError(err, domain.ErrBookingNotFound)
	}
	services, err := m.repo.ListServices(ctx)
	if err != nil {
		return nil, storeError(err, domain.ErrServiceNotFound)
	}
	byID := make(map[int64]*models.Service, len(services))
	for _, s := range services {
		byID[s.ID] = s
	}

	out := assigned
	for _, b := range open {
		s, ok := byID[b.ServiceID]
		if !ok {
			continue
		}
		if provider.HasSkill(s.Name) || provider.HasSkill(s.Category) || (m.matcher != nil && m.matcher.Serves(s, provider.Skills)) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// authorizeParticipant allows the requester, the assigned provider's user
// and admins.
func (m *LifecycleManager) authorizeParticipant(ctx context.Context, principal models.Principal, b *models.Booking) error {
	if principal.IsAdmin() || principal.UserID == b.UserID {
		return nil
	}
	if b.ProviderID != nil {
		provider, err := m.repo.GetProviderByID(ctx, *b.ProviderID)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return storeError(err, domain.ErrProviderNotFound)
		}
		if err == nil && provider.UserID == principal.UserID {
			return nil
		}
	}
	return domain.ErrNotParticipant
}

package service

import (
	"context"
	"errors"

	"fixit/internal/database"
	"fixit/internal/domain"
	"fixit/internal/models"

	"github.com/rs/zerolog"
)

// Ledger task types.
const (
	TaskUpsert       = "upsert"
	TaskUpdateStatus = "update_status"
)

// storeError translates store sentinels into the domain taxonomy.
func storeError(err error, notFound *domain.Error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrNotFound):
		return notFound
	case errors.Is(err, database.ErrConcurrentModification):
		return domain.ErrConcurrentUpdate
	default:
		var de *domain.Error
		if errors.As(err, &de) {
			return err
		}
		return domain.Internal("store error", err)
	}
}

// notifier wraps the publisher so that delivery problems never fail the
// operation that produced the event.
type notifier struct {
	pub    domain.EventPublisher
	ledger domain.SyncWorker
	logger *zerolog.Logger
}

func (n notifier) publish(ctx context.Context, room, event string, payload any) {
	if n.pub == nil {
		return
	}
	if err := n.pub.Publish(ctx, room, event, payload); err != nil {
		n.logger.Error().Err(err).Str("event", event).Str("room", room).Msg("publish event error")
	}
}

func (n notifier) enqueueSync(ctx context.Context, taskType string, booking *models.BookingDetails) {
	if n.ledger == nil || booking == nil {
		return
	}
	if err := n.ledger.EnqueueTask(ctx, taskType, booking.ID, booking); err != nil {
		n.logger.Error().Err(err).Int64("booking_id", booking.ID).Str("task", taskType).Msg("ledger enqueue error")
	}
}

func nopLogger(logger *zerolog.Logger) *zerolog.Logger {
	if logger != nil {
		return logger
	}
	nop := zerolog.Nop()
	return &nop
}

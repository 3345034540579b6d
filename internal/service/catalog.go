package service

import (
	"context"
	"time"

	"fixit/internal/domain"
	"fixit/internal/models"

	"github.com/rs/zerolog"
)

type CatalogService struct {
	repo   domain.Repository
	logger *zerolog.Logger
}

func NewCatalogService(repo domain.Repository, logger *zerolog.Logger) *CatalogService {
	return &CatalogService{repo: repo, logger: nopLogger(logger)}
}

func (s *CatalogService) ListServices(ctx context.Context) ([]*models.Service, error) {
	services, err := s.repo.ListServices(ctx)
	if err != nil {
		return nil, storeError(err, domain.ErrServiceNotFound)
	}
	return services, nil
}

func (s *CatalogService) CountByCategory(ctx context.Context) ([]models.CategoryCount, error) {
	counts, err := s.repo.CountServicesByCategory(ctx)
	if err != nil {
		return nil, storeError(err, domain.ErrServiceNotFound)
	}
	return counts, nil
}

// AdminService serves the admin-only reports.
type AdminService struct {
	repo     domain.Repository
	exporter domain.BookingExporter
	ledger   domain.LedgerReplayer
	logger   *zerolog.Logger
}

func NewAdminService(repo domain.Repository, exporter domain.BookingExporter, logger *zerolog.Logger) *AdminService {
	return &AdminService{repo: repo, exporter: exporter, logger: nopLogger(logger)}
}

// WithLedger enables ReplayLedger.
func (s *AdminService) WithLedger(ledger domain.LedgerReplayer) *AdminService {
	s.ledger = ledger
	return s
}

func (s *AdminService) Stats(ctx context.Context, principal models.Principal) (*models.Stats, error) {
	if !principal.IsAdmin() {
		return nil, domain.ErrAdminOnly
	}
	stats, err := s.repo.GetStats(ctx)
	if err != nil {
		return nil, storeError(err, domain.ErrBookingNotFound)
	}
	return stats, nil
}

// ExportBookings writes the bookings created in [from, to) to a report.
func (s *AdminService) ExportBookings(ctx context.Context, principal models.Principal, from, to time.Time) (string, error) {
	if !principal.IsAdmin() {
		return "", domain.ErrAdminOnly
	}
	if !from.Before(to) {
		return "", domain.Validation("invalid_range", "from must be before to")
	}
	if s.exporter == nil {
		return "", domain.Internal("export not configured", nil)
	}
	bookings, err := s.repo.ListBookingsByDateRange(ctx, from, to)
	if err != nil {
		return "", storeError(err, domain.ErrBookingNotFound)
	}
	path, err := s.exporter.ExportBookings(ctx, bookings, from, to)
	if err != nil {
		return "", domain.Internal("export failed", err)
	}
	s.logger.Info().Str("path", path).Int("bookings", len(bookings)).Msg("bookings exported")
	return path, nil
}

// ReplayLedger requeues dead ledger tasks and reports how many were requeued.
func (s *AdminService) ReplayLedger(ctx context.Context, principal models.Principal) (int64, error) {
	if !principal.IsAdmin() {
		return 0, domain.ErrAdminOnly
	}
	if s.ledger == nil {
		return 0, domain.ErrLedgerDisabled
	}
	n, err := s.ledger.ReplayFailed(ctx)
	if err != nil {
		return 0, domain.Internal("replay ledger tasks", err)
	}
	s.logger.Info().Int64("tasks", n).Int64("admin_id", principal.UserID).Msg("ledger replay requested")
	return n, nil
}

// Seed fills an empty catalog and reports how many services were added.
func (s *CatalogService) Seed(ctx context.Context, services []models.Service) (int, error) {
	if len(services) == 0 {
		services = models.DefaultServices()
	}
	n, err := s.repo.SeedServices(ctx, services)
	if err != nil {
		return 0, storeError(err, domain.ErrServiceNotFound)
	}
	if n > 0 {
		s.logger.Info().Int("services", n).Msg("service catalog seeded")
	}
	return n, nil
}

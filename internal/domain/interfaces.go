package domain

import (
	"context"
	"time"

	"fixit/internal/models"
)

// Repository is the entity store the engine runs against.
type Repository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUserLocation(ctx context.Context, id int64, lat, lon float64, address *string) error
	UpdateUserRating(ctx context.Context, id int64, rating float64) error

	CreateProvider(ctx context.Context, provider *models.Provider) error
	GetProviderByID(ctx context.Context, id int64) (*models.Provider, error)
	GetProviderByUserID(ctx context.Context, userID int64) (*models.Provider, error)
	GetProviderWithUser(ctx context.Context, id int64) (*models.ProviderWithUser, error)
	ListProvidersWithUsers(ctx context.Context) ([]*models.ProviderWithUser, error)
	FindProvidersBySkills(ctx context.Context, skills []string) ([]*models.Provider, error)
	UpdateProviderSkills(ctx context.Context, id int64, skills []string) error
	CountProviderBookings(ctx context.Context, providerID int64) (int64, error)

	CreateService(ctx context.Context, service *models.Service) error
	GetServiceByID(ctx context.Context, id int64) (*models.Service, error)
	ListServices(ctx context.Context) ([]*models.Service, error)
	CountServicesByCategory(ctx context.Context) ([]models.CategoryCount, error)
	SeedServices(ctx context.Context, services []models.Service) (int, error)

	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetBookingDetails(ctx context.Context, id int64) (*models.BookingDetails, error)
	ListBookingsByUser(ctx context.Context, userID int64) ([]*models.Booking, error)
	ListBookingsByProvider(ctx context.Context, providerID int64) ([]*models.Booking, error)
	ListBookingsByStatus(ctx context.Context, status models.BookingStatus) ([]*models.Booking, error)
	ListUnassignedPendingBookings(ctx context.Context) ([]*models.Booking, error)
	ListActiveBookingsByProvider(ctx context.Context, providerID int64) ([]*models.Booking, error)
	ListBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.BookingDetails, error)
	UpdateBookingStatusWithVersion(ctx context.Context, id, version int64, from, to models.BookingStatus) error
	AcceptBookingWithVersion(ctx context.Context, id, version, providerID int64) error
	RateBookingWithVersion(ctx context.Context, id, version int64, rating int, review string) error
	ProviderRatingAverage(ctx context.Context, providerID int64) (float64, int64, error)

	SubmitCompletion(ctx context.Context, bookingVersion int64, completion *models.Completion) error
	GetCompletionByBooking(ctx context.Context, bookingID int64) (*models.Completion, error)

	CreatePaymentAndLink(ctx context.Context, bookingVersion int64, payment *models.Payment) error
	GetPayment(ctx context.Context, id int64) (*models.Payment, error)
	GetPaymentByBooking(ctx context.Context, bookingID int64) (*models.Payment, error)
	MarkPaymentSuccess(ctx context.Context, id int64, gatewayPaymentID, signature string) error
	MarkPaymentFailedAndUnlink(ctx context.Context, id int64, gatewayPaymentID string) error

	GetStats(ctx context.Context) (*models.Stats, error)

	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	GetSyncTask(ctx context.Context, id int64) (*models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// EventPublisher delivers an event to every subscriber of a room.
type EventPublisher interface {
	Publish(ctx context.Context, room, event string, payload any) error
}

// Locker serializes work per key across goroutines, and across instances
// when backed by a shared store.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Matcher decides whether a requested term matches a provider's skills.
type Matcher interface {
	Matches(term string, skills []string) bool
}

// PaymentGateway creates orders and checks payment signatures.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	VerifySignature(orderID, paymentID, signature string) bool
	KeyID() string
}

type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

type Order struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
}

// BlobStore persists uploaded files and returns their relative path.
type BlobStore interface {
	Store(ctx context.Context, name string, data []byte) (string, error)
	// Delete removes a stored blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, path string) error
}

// SyncWorker mirrors bookings into an external ledger.
type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, bookingID int64, booking *models.BookingDetails) error
}

// LedgerReplayer requeues ledger writes that exhausted their retries.
type LedgerReplayer interface {
	ReplayFailed(ctx context.Context) (int64, error)
}

// LedgerWriter is the external ledger the sync worker writes to.
type LedgerWriter interface {
	UpsertBooking(ctx context.Context, booking *models.BookingDetails) error
	UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error
}

// BookingExporter renders bookings into a downloadable report and returns its path.
type BookingExporter interface {
	ExportBookings(ctx context.Context, bookings []*models.BookingDetails, from, to time.Time) (string, error)
}

package service

import (
	"context"
	"io"
	"testing"
	"time"

	"fixit/internal/database"
	"fixit/internal/domain"
	"fixit/internal/events"
	"fixit/internal/models"
	"fixit/internal/payment"
	"fixit/internal/repository"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	db        *database.DB
	router    *events.Router
	gateway   *payment.OfflineGateway
	engine    *MatchingEngine
	lifecycle *LifecycleManager
	payments  *PaymentCoordinator
	providers *ProviderService
	catalog   *CatalogService

	customer    *models.User
	elecUser    *models.User
	plumbUser   *models.User
	electrician *models.Provider
	plumber     *models.Provider
}

var delhi = orb.Point{77.2090, 28.6139}

func newTestEnv(t *testing.T, seedCatalog bool) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	router := events.NewRouter(64, &logger)
	gateway := payment.NewOfflineGateway("test_key", "test_secret")
	engine := NewMatchingEngine(db, router, nil, nil, delhi, 0, &logger)

	e := &testEnv{
		db:        db,
		router:    router,
		gateway:   gateway,
		engine:    engine,
		lifecycle: NewLifecycleManager(db, router, nil, repository.NewMemoryLocker(), nil, engine, &logger),
		payments:  NewPaymentCoordinator(db, gateway, router, "INR", time.Second, &logger),
		providers: NewProviderService(db, router, &logger),
		catalog:   NewCatalogService(db, &logger),
	}

	ctx := context.Background()
	if seedCatalog {
		_, err := e.catalog.Seed(ctx, nil)
		require.NoError(t, err)
	}

	e.customer = e.newUser(t, "Asha", models.RoleCustomer)
	e.elecUser = e.newUser(t, "Ravi", models.RoleProvider)
	e.plumbUser = e.newUser(t, "Meera", models.RoleProvider)

	e.electrician, err = e.providers.RegisterProvider(ctx, e.elecUser.ID, []string{"Electrician"})
	require.NoError(t, err)
	e.plumber, err = e.providers.RegisterProvider(ctx, e.plumbUser.ID, []string{"Plumber"})
	require.NoError(t, err)
	return e
}

func (e *testEnv) newUser(t *testing.T, name string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{Name: name, Email: name + "@example.com", Role: role}
	require.NoError(t, e.db.CreateUser(context.Background(), u))
	return u
}

func (e *testEnv) customerPrincipal() models.Principal {
	return models.Principal{UserID: e.customer.ID, Role: models.RoleCustomer}
}

func (e *testEnv) serviceID(t *testing.T, name string) int64 {
	t.Helper()
	services, err := e.catalog.ListServices(context.Background())
	require.NoError(t, err)
	for _, s := range services {
		if s.Name == name {
			return s.ID
		}
	}
	t.Fatalf("service %s not seeded", name)
	return 0
}

// book creates an electrician booking for the customer.
func (e *testEnv) book(t *testing.T) *models.Booking {
	t.Helper()
	id := e.serviceID(t, "Electrician")
	res, err := e.engine.CreateBooking(context.Background(), e.customerPrincipal(), CreateBookingRequest{ServiceID: &id, Notes: "fan"})
	require.NoError(t, err)
	return res.Booking
}

// inProgress drives a new booking to In Progress with the electrician.
func (e *testEnv) inProgress(t *testing.T) *models.Booking {
	t.Helper()
	ctx := context.Background()
	b := e.book(t)
	_, err := e.lifecycle.Accept(ctx, b.ID, e.electrician.ID)
	require.NoError(t, err)
	b, err = e.lifecycle.Start(ctx, b.ID, e.electrician.ID)
	require.NoError(t, err)
	return b
}

// completed drives a new booking to Completed.
func (e *testEnv) completed(t *testing.T) *models.Booking {
	t.Helper()
	ctx := context.Background()
	b := e.inProgress(t)
	_, err := e.lifecycle.SubmitCompletion(ctx, b.ID, e.electrician.ID, "done", nil)
	require.NoError(t, err)
	b, err = e.db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	return b
}

// drain collects the events currently buffered on sub.
func drain(sub *events.Subscription) []events.Event {
	var out []events.Event
	for {
		select {
		case evt := <-sub.Events():
			out = append(out, evt)
		default:
			return out
		}
	}
}

func eventTypes(evts []events.Event) []string {
	out := make([]string, 0, len(evts))
	for _, e := range evts {
		out = append(out, e.Type)
	}
	return out
}

func requireKind(t *testing.T, err error, kind domain.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, domain.KindOf(err), "unexpected error: %v", err)
}

func floatPtr(v float64) *float64 { return &v }
func int64Ptr(v int64) *int64     { return &v }

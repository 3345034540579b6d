package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fixit/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetBooking(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	f := seedFixture(t, db)

	lat, lon := 28.61, 77.20
	when := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)
	b := &models.Booking{
		UserID:        f.customer.ID,
		ServiceID:     f.service.ID,
		Price:         20,
		LocationLat:   &lat,
		LocationLon:   &lon,
		ScheduledTime: &when,
		Notes:         "ceiling fan",
	}
	require.NoError(t, db.CreateBooking(ctx, b))
	assert.Equal(t, int64(1), b.Version)
	assert.Equal(t, models.StatusPending, b.Status)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, f.service.ID, got.ServiceID)
	assert.Nil(t, got.ProviderID)
	assert.Nil(t, got.Rating)
	assert.Nil(t, got.PaymentID)
	assert.True(t, got.HasLocation())
	require.NotNil(t, got.ScheduledTime)
	assert.True(t, when.Equal(*got.ScheduledTime))
	assert.Empty(t, got.CompletionImages)

	details, err := db.GetBookingDetails(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Asha", details.UserName)
	assert.Equal(t, "Electrician", details.ServiceName)
	assert.Equal(t, "", details.ProviderName)

	_, err = db.GetBooking(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBookingRequiresExistingService(t *testing.T) {
	db := setupTestDB(t)
	f := seedFixture(t, db)

	err := db.CreateBooking(context.Background(), &models.Booking{UserID: f.customer.ID, ServiceID: 999})
	assert.Error(t, err)
}

func TestListBookingsSortedByCreation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	f := seedFixture(t, db)

	first := createBooking(t, db, f, nil)
	second := createBooking(t, db, f, &f.provider.ID)

	list, err := db.ListBookingsByUser(ctx, f.customer.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	byProvider, err := db.ListBookingsByProvider(ctx, f.provider.ID)
	require.NoError(t, err)
	require.Len(t, byProvider, 1)
	assert.Equal(t, second.ID, byProvider[0].ID)

	unassigned, err := db.ListUnassignedPendingBookings(ctx)
	require.NoError(t, err)
	require.Len(t, unassigned, 1)
	assert.Equal(t, first.ID, unassigned[0].ID)

	pending, err := db.ListBookingsByStatus(ctx, models.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	ranged, err := db.ListBookingsByDateRange(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, ranged, 2)
}

func TestUpdateBookingStatusWithVersion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	f := seedFixture(t, db)
	b := createBooking(t, db, f, nil)

	require.NoError(t, db.UpdateBookingStatusWithVersion(ctx, b.ID, 1, models.StatusPending, models.StatusRejected))

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, got.Status)
	assert.Equal(t, int64(2), got.Version)

	err = db.UpdateBookingStatusWithVersion(ctx, b.ID, 1, models.StatusPending, models.StatusCancelled)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	err = db.UpdateBookingStatusWithVersion(ctx, b.ID, 2, models.StatusPending, models.StatusCancelled)
	assert.ErrorIs(t, err, ErrConcurrentModification, "status guard rejects stale source status")
}

func TestAcceptBookingWithVersion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	f := seedFixture(t, db)

	t.Run("Unassigned", func(t *testing.T) {
		b := createBooking(t, db, f, nil)
		require.NoError(t, db.AcceptBookingWithVersion(ctx, b.ID, b.Version, f.provider.ID))

		got, err := db.GetBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusAccepted, got.Status)
		assert.True(t, got.AssignedTo(f.provider.ID))
	})

	t.Run("PreassignedToOther", func(t *testing.T) {
		otherUser := &models.User{Name: "Meera", Email: "meera@example.com", Role: models.RoleProvider}
		require.NoError(t, db.CreateUser(ctx, otherUser))
		other := &models.Provider{UserID: otherUser.ID, Skills: []string{"Plumber"}, Availability: true}
		require.NoError(t, db.CreateProvider(ctx, other))

		b := createBooking(t, db, f, &other.ID)
		err := db.AcceptBookingWithVersion(ctx, b.ID, b.Version, f.provider.ID)
		assert.ErrorIs(t, err, ErrConcurrentModification)

		require.NoError(t, db.AcceptBookingWithVersion(ctx, b.ID, b.Version, other.ID))
	})
}

func TestConcurrentAccept(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "concurrency.db"), &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	f := seedFixture(t, db)
	b := createBooking(t, db, f, nil)

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			results <- db.AcceptBookingWithVersion(ctx, b.ID, b.Version, f.provider.ID)
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		if err == nil {
			success++
		} else {
			assert.ErrorIs(t, err, ErrConcurrentModification)
		}
	}
	assert.Equal(t, 1, success)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
}

func TestRatingAndAverage(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	f := seedFixture(t, db)

	for _, r := range []int{5, 4, 3} {
		b := createBooking(t, db, f, &f.provider.ID)
		_, err := db.ExecContext(ctx, `UPDATE bookings SET status = ? WHERE id = ?`, string(models.StatusCompleted), b.ID)
		require.NoError(t, err)
		require.NoError(t, db.RateBookingWithVersion(ctx, b.ID, b.Version, r, "ok"))

		err = db.RateBookingWithVersion(ctx, b.ID, b.Version+1, 1, "again")
		assert.ErrorIs(t, err, ErrConcurrentModification, "rated bookings cannot be re-rated")
	}

	avg, count, err := db.ProviderRatingAverage(ctx, f.provider.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.InDelta(t, 4.0, avg, 1e-9)

	avg, count, err = db.ProviderRatingAverage(ctx, 999)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, avg)
}

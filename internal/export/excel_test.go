package export

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"fixit/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExportBookings(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	exporter := NewExcelExporter(dir, nil)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)
	rating := 5
	paymentID := int64(11)
	completedAt := from.Add(26 * time.Hour)

	bookings := []*models.BookingDetails{
		{
			Booking: models.Booking{
				ID: 1, Status: models.StatusCompleted, Price: 20, Rating: &rating, Review: "great",
				CompletedAt: &completedAt, PaymentID: &paymentID, CreatedAt: from.Add(time.Hour),
			},
			UserName: "Asha", ProviderName: "Ravi", ServiceName: "Electrician", Category: "Electrical",
		},
		{
			Booking:  models.Booking{ID: 2, Status: models.StatusPending, Price: 18, CreatedAt: from.Add(2 * time.Hour)},
			UserName: "Asha", ServiceName: "Plumber", Category: "Plumbing",
		},
		{
			Booking:  models.Booking{ID: 3, Status: models.StatusCompleted, Price: 22, CreatedAt: from.Add(3 * time.Hour)},
			UserName: "Dev", ProviderName: "Ravi", ServiceName: "Carpenter", Category: "Woodwork",
		},
	}

	path, err := exporter.ExportBookings(context.Background(), bookings, from, to)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{bookingsSheet, summarySheet}, f.GetSheetList())

	title, err := f.GetCellValue(bookingsSheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Period: 01.03.2026 - 08.03.2026", title)

	rows, err := f.GetRows(bookingsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, bookingHeaders, rows[1])
	assert.Equal(t, "1", rows[2][0])
	assert.Equal(t, "Completed", rows[2][2])
	assert.Equal(t, "Electrician", rows[2][3])
	assert.Equal(t, "Ravi", rows[2][6])
	assert.Equal(t, "5", rows[2][9])
	assert.Equal(t, "02.03.2026 02:00", rows[2][11])
	assert.Equal(t, "11", rows[2][12])
	assert.Equal(t, "Pending", rows[3][2])

	summary, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Status", "Bookings"},
		{"Completed", "2"},
		{"Pending", "1"},
		{"Total", "3"},
		{"Completed value", "42"},
	}, summary)
}

func TestExportBookings_Empty(t *testing.T) {
	exporter := NewExcelExporter(t.TempDir(), nil)
	now := time.Now()

	path, err := exporter.ExportBookings(context.Background(), nil, now.Add(-time.Hour), now)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(bookingsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestExportBookings_Cancelled(t *testing.T) {
	exporter := NewExcelExporter(t.TempDir(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exporter.ExportBookings(ctx, nil, time.Now(), time.Now())
	require.ErrorIs(t, err, context.Canceled)
}

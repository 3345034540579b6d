package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fixit/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func setupMockServer(t *testing.T) (*http.ServeMux, *LedgerService) {
	t.Helper()
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	srv, err := sheets.NewService(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	s := newLedgerService(srv, "ledger_id", "")
	s.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }
	return mux, s
}

func sampleBooking() *models.BookingDetails {
	providerID := int64(7)
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	return &models.BookingDetails{
		Booking: models.Booking{
			ID:         42,
			UserID:     3,
			ProviderID: &providerID,
			Status:     models.StatusAccepted,
			Price:      20,
			CreatedAt:  created,
			UpdatedAt:  created.Add(time.Hour),
		},
		UserName:     "Asha",
		ProviderName: "Ravi",
		ServiceName:  "Electrician",
		Category:     "Electrical",
	}
}

func TestLedgerService_TestConnection(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/ledger_id/values/Bookings!A1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})
	require.NoError(t, s.TestConnection(context.Background()))
}

func TestLedgerService_WarmUpCache(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/ledger_id/values/Bookings!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{
			Values: [][]interface{}{{"ID"}, {"123"}, {}, {"456"}},
		})
	})

	require.NoError(t, s.WarmUpCache(context.Background()))
	row, ok := s.getCachedRow(123)
	assert.True(t, ok)
	assert.Equal(t, 2, row)
	row, _ = s.getCachedRow(456)
	assert.Equal(t, 4, row)
	_, ok = s.getCachedRow(0)
	assert.False(t, ok)
}

func TestLedgerService_UpsertAppendsMissingRow(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/ledger_id/values/Bookings!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})
	var appended sheets.ValueRange
	mux.HandleFunc("/v4/spreadsheets/ledger_id/values/Bookings!A:A:append", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&appended)
		_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{
			Updates: &sheets.UpdateValuesResponse{UpdatedRange: "Bookings!A10:L10"},
		})
	})

	require.NoError(t, s.UpsertBooking(context.Background(), sampleBooking()))
	require.Len(t, appended.Values, 1)
	assert.Len(t, appended.Values[0], len(ledgerHeaders))
	assert.Equal(t, "Accepted", appended.Values[0][5])

	row, ok := s.getCachedRow(42)
	assert.True(t, ok)
	assert.Equal(t, 10, row)
}

func TestLedgerService_UpsertUpdatesCachedRow(t *testing.T) {
	mux, s := setupMockServer(t)
	s.setCachedRow(42, 3)
	called := false
	mux.HandleFunc("/v4/spreadsheets/ledger_id/values/Bookings!A3:L3", func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodPut, r.Method)
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})

	require.NoError(t, s.UpsertBooking(context.Background(), sampleBooking()))
	assert.True(t, called)

	assert.Error(t, s.UpsertBooking(context.Background(), nil))
}

func TestLedgerService_UpdateBookingStatus(t *testing.T) {
	mux, s := setupMockServer(t)
	s.setCachedRow(42, 5)
	var req sheets.BatchUpdateValuesRequest
	mux.HandleFunc("/v4/spreadsheets/ledger_id/values:batchUpdate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(sheets.BatchUpdateValuesResponse{})
	})

	require.NoError(t, s.UpdateBookingStatus(context.Background(), 42, "Completed"))
	require.Len(t, req.Data, 2)
	assert.Equal(t, "Bookings!F5", req.Data[0].Range)
	assert.Equal(t, "Completed", req.Data[0].Values[0][0])
	assert.Equal(t, "Bookings!L5", req.Data[1].Range)
	assert.Equal(t, "2026-03-02 10:00:00", req.Data[1].Values[0][0])
}

func TestLedgerService_UpdateBookingStatusMissingRow(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/ledger_id/values/Bookings!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}, {"1"}}})
	})

	err := s.UpdateBookingStatus(context.Background(), 42, "Completed")
	assert.ErrorIs(t, err, ErrRowNotFound)
}

func TestLedgerService_ReplaceBookings(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/ledger_id/values/Bookings!A2:L:clear", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ClearValuesResponse{})
	})
	var written sheets.ValueRange
	mux.HandleFunc("/v4/spreadsheets/ledger_id/values/Bookings!A2", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&written)
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})

	second := sampleBooking()
	second.ID = 43
	require.NoError(t, s.ReplaceBookings(context.Background(), []*models.BookingDetails{sampleBooking(), second}))
	assert.Len(t, written.Values, 2)

	row, _ := s.getCachedRow(43)
	assert.Equal(t, 3, row)
}

func TestBookingRowValues(t *testing.T) {
	b := sampleBooking()
	values := bookingRowValues(b)
	assert.Equal(t, []interface{}{
		int64(42), int64(3), int64(7), "Electrician", "Electrical", "Accepted",
		"Asha", "Ravi", 20.0, "", "2026-03-01 09:30:00", "2026-03-01 10:30:00",
	}, values)

	b.ProviderID = nil
	assert.Equal(t, "", bookingRowValues(b)[2])
}

func TestFirstRow(t *testing.T) {
	tests := map[string]int{
		"Bookings!A10:L10": 10,
		"A2":               2,
		"'My Sheet'!B7:C9": 7,
	}
	for in, want := range tests {
		row, ok := firstRow(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, row, in)
	}
	_, ok := firstRow("Bookings!A:A")
	assert.False(t, ok)
}

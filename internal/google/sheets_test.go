package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"hotelledger/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func setupMockServer(t *testing.T) (*http.ServeMux, *SheetsService) {
	t.Helper()
	ctx := context.Background()
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	srv, err := sheets.NewService(ctx, option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	return mux, newSheetsService(srv, "ledger_sid")
}

func sampleBooking() *models.Booking {
	return &models.Booking{
		ID: 123, HotelID: 1, RoomNumber: "101",
		Guest:   models.GuestContact{Name: "Ann", Email: "ann@example.com"},
		CheckIn: 20100, CheckOut: 20102, PartySize: 2,
		Status:    models.StatusCompleted,
		Extras:    []models.Extra{{Description: "Minibar", Amount: decimal.RequireFromString("12.5")}},
		AmountDue: decimal.NewNullDecimal(decimal.RequireFromString("212.5")),
		UpdatedAt: time.Date(2025, 1, 12, 10, 0, 0, 0, time.UTC),
	}
}

func TestSheetsService_TestConnection(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/ledger_sid/values/Bookings!A1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})
	assert.NoError(t, s.TestConnection(context.Background()))
}

func TestSheetsService_WarmUpCache(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/ledger_sid/values/Bookings!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}, {"123"}, {}, {456.0}}})
	})
	mux.HandleFunc("/v4/spreadsheets/ledger_sid/values/Transactions!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}, {"7"}}})
	})

	require.NoError(t, s.WarmUpCache(context.Background()))

	row, ok := s.getCachedRow(bookingsSheet, 123)
	assert.True(t, ok)
	assert.Equal(t, 2, row)
	row, ok = s.getCachedRow(bookingsSheet, 456)
	assert.True(t, ok)
	assert.Equal(t, 4, row)
	row, ok = s.getCachedRow(transactionsSheet, 7)
	assert.True(t, ok)
	assert.Equal(t, 2, row)
}

func TestSheetsService_UpsertBooking_Append(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/ledger_sid/values/Bookings!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})

	var appended sheets.ValueRange
	mux.HandleFunc("/v4/spreadsheets/ledger_sid/values/Bookings!A:A:append", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &appended)
		assert.Equal(t, "RAW", r.URL.Query().Get("valueInputOption"))
		_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{
			Updates: &sheets.UpdateValuesResponse{UpdatedRange: "Bookings!A10:M10"},
		})
	})

	require.NoError(t, s.UpsertBooking(context.Background(), sampleBooking()))

	row, ok := s.getCachedRow(bookingsSheet, 123)
	assert.True(t, ok)
	assert.Equal(t, 10, row)

	require.Len(t, appended.Values, 1)
	values := appended.Values[0]
	require.Len(t, values, 13)
	assert.Equal(t, "101", values[2])
	assert.Equal(t, "2025-01-13", values[6])
	assert.Equal(t, "completed", values[9])
	assert.Equal(t, "12.50", values[10])
	assert.Equal(t, "212.50", values[11])
}

func TestSheetsService_UpsertBooking_Update(t *testing.T) {
	mux, s := setupMockServer(t)
	s.setCachedRow(bookingsSheet, 123, 2)

	var calls int32
	mux.HandleFunc("/v4/spreadsheets/ledger_sid/values/Bookings!A2:M2", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodPut, r.Method)
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})

	require.NoError(t, s.UpsertBooking(context.Background(), sampleBooking()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSheetsService_UpsertTransaction(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/ledger_sid/values/Transactions!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}, {"5"}}})
	})
	mux.HandleFunc("/v4/spreadsheets/ledger_sid/values/Transactions!A2:J2", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})

	done := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	tx := &models.InventoryTransaction{
		ID: 5, HotelID: 1, ItemID: 2, ItemName: "Towels", Quantity: 4,
		UnitPrice: decimal.RequireFromString("2.5"), TotalCost: decimal.RequireFromString("10"),
		Status: models.TxCompleted, CreatedAt: done.Add(-time.Hour), CompletedAt: &done,
	}
	require.NoError(t, s.UpsertTransaction(context.Background(), tx))

	row, ok := s.getCachedRow(transactionsSheet, 5)
	assert.True(t, ok)
	assert.Equal(t, 2, row)
}

func TestSheetsService_Errors(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/ledger_sid/values/Bookings!A:A", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":400,"message":"bad range"}}`, http.StatusBadRequest)
	})

	ctx := context.Background()
	assert.Error(t, s.UpsertBooking(ctx, sampleBooking()))
	assert.Error(t, s.UpsertBooking(ctx, nil))
	assert.Error(t, s.UpsertTransaction(ctx, nil))
	assert.Error(t, s.WarmUpCache(ctx))
}

func TestNewSheetsService_BadCredentials(t *testing.T) {
	ctx := context.Background()
	_, err := NewSheetsService(ctx, filepath.Join(t.TempDir(), "missing.json"), "sid")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"nope"}`), 0o600))
	_, err = NewSheetsService(ctx, path, "sid")
	assert.Error(t, err)
}

func TestRowFromRange(t *testing.T) {
	tests := map[string]int{
		"Bookings!A10:M10": 10,
		"Transactions!A2":  2,
		"'Bookings'!A7:M7": 7,
	}
	for in, want := range tests {
		got, ok := rowFromRange(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := rowFromRange("Bookings!A:A")
	assert.False(t, ok)
}

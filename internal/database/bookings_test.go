package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"hotelledger/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBooking(t *testing.T, room *models.Room, in, out string) *models.Booking {
	return &models.Booking{
		RoomID:    room.ID,
		HotelID:   room.HotelID,
		Guest:     models.GuestContact{Name: "Ann", Email: "ann@example.com"},
		CheckIn:   day(t, in),
		CheckOut:  day(t, out),
		PartySize: 2,
		Rate:      room.Rate,
	}
}

func TestCreateBookingWithLock(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	room := createRoom(t, db, 1, "101", 2, "100")

	b := newBooking(t, room, "2025-01-10", "2025-01-12")
	require.NoError(t, db.CreateBookingWithLock(ctx, b))
	assert.NotZero(t, b.ID)
	assert.Equal(t, models.StatusActive, b.Status)
	assert.Equal(t, int64(1), b.Version)

	stored, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, stored.Rate.Equal(room.Rate), "rate %s", stored.Rate)

	// overlapping
	err = db.CreateBookingWithLock(ctx, newBooking(t, room, "2025-01-11", "2025-01-13"))
	assert.ErrorIs(t, err, models.ErrConflict)

	// touching endpoints are fine
	require.NoError(t, db.CreateBookingWithLock(ctx, newBooking(t, room, "2025-01-12", "2025-01-14")))
	require.NoError(t, db.CreateBookingWithLock(ctx, newBooking(t, room, "2025-01-08", "2025-01-10")))

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-10", got.CheckIn.String())
	assert.Equal(t, "2025-01-12", got.CheckOut.String())
	assert.Equal(t, "101", got.RoomNumber)
	assert.Equal(t, "Ann", got.Guest.Name)
	assert.False(t, got.AmountDue.Valid)
	assert.Empty(t, got.Extras)

	_, err = db.GetBooking(ctx, 999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCancelBooking(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	room := createRoom(t, db, 1, "101", 2, "100")

	b := newBooking(t, room, "2025-01-10", "2025-01-12")
	require.NoError(t, db.CreateBookingWithLock(ctx, b))

	cancelled, err := db.CancelBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, int64(2), cancelled.Version)

	_, err = db.CancelBooking(ctx, b.ID)
	assert.ErrorIs(t, err, models.ErrAlreadyTerminal)

	_, err = db.CancelBooking(ctx, 999)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// cancelled bookings free the interval
	require.NoError(t, db.CreateBookingWithLock(ctx, newBooking(t, room, "2025-01-10", "2025-01-12")))
}

func TestCompleteBooking(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	room := createRoom(t, db, 1, "101", 2, "100")

	b := newBooking(t, room, "2025-01-10", "2025-01-12")
	require.NoError(t, db.CreateBookingWithLock(ctx, b))

	done, err := db.CompleteBooking(ctx, b.ID, decimal.RequireFromString("225"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	require.True(t, done.AmountDue.Valid)
	assert.Equal(t, "225.00", done.AmountDue.Decimal.StringFixed(2))
	assert.NotNil(t, done.CompletedAt)

	_, err = db.CompleteBooking(ctx, b.ID, decimal.Zero)
	assert.ErrorIs(t, err, models.ErrAlreadyTerminal)
	_, err = db.CancelBooking(ctx, b.ID)
	assert.ErrorIs(t, err, models.ErrAlreadyTerminal)
}

func TestAddBookingExtra(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	room := createRoom(t, db, 1, "101", 2, "100")

	b := newBooking(t, room, "2025-01-10", "2025-01-12")
	require.NoError(t, db.CreateBookingWithLock(ctx, b))

	extra := &models.Extra{Description: "Minibar", Amount: decimal.RequireFromString("12.50")}
	require.NoError(t, db.AddBookingExtra(ctx, b.ID, extra))
	assert.NotZero(t, extra.ID)
	require.NoError(t, db.AddBookingExtra(ctx, b.ID, &models.Extra{Description: "Spa", Amount: decimal.NewFromInt(40)}))

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, got.Extras, 2)
	assert.Equal(t, "Minibar", got.Extras[0].Description)
	assert.Equal(t, "12.5", got.Extras[0].Amount.String())
	assert.Equal(t, int64(3), got.Version)

	_, err = db.CancelBooking(ctx, b.ID)
	require.NoError(t, err)
	err = db.AddBookingExtra(ctx, b.ID, &models.Extra{Description: "Late", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, models.ErrAlreadyTerminal)

	err = db.AddBookingExtra(ctx, 999, &models.Extra{Description: "Late", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListBookings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	r1 := createRoom(t, db, 1, "101", 2, "100")
	r2 := createRoom(t, db, 1, "102", 2, "100")
	r3 := createRoom(t, db, 2, "101", 2, "100")

	b1 := newBooking(t, r1, "2025-01-10", "2025-01-12")
	b2 := newBooking(t, r2, "2025-01-05", "2025-01-11")
	b3 := newBooking(t, r3, "2025-01-10", "2025-01-20")
	for _, b := range []*models.Booking{b1, b2, b3} {
		require.NoError(t, db.CreateBookingWithLock(ctx, b))
	}
	require.NoError(t, db.AddBookingExtra(ctx, b2.ID, &models.Extra{Description: "Parking", Amount: decimal.NewFromInt(5)}))
	_, err := db.CancelBooking(ctx, b1.ID)
	require.NoError(t, err)

	hotel1, err := db.ListBookings(ctx, 1)
	require.NoError(t, err)
	require.Len(t, hotel1, 2)
	assert.Equal(t, b2.ID, hotel1[0].ID)
	assert.Len(t, hotel1[0].Extras, 1)

	all, err := db.ListBookings(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	active, err := db.ListActiveBookings(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	forRoom, err := db.ListActiveBookingsForRoom(ctx, r1.ID)
	require.NoError(t, err)
	assert.Empty(t, forRoom)

	covering, err := db.ListActiveBookingsCovering(ctx, 1, day(t, "2025-01-10"))
	require.NoError(t, err)
	require.Len(t, covering, 1)
	assert.Equal(t, b2.ID, covering[0].ID)

	covering, err = db.ListActiveBookingsCovering(ctx, 1, day(t, "2025-01-11"))
	require.NoError(t, err)
	assert.Empty(t, covering)
}

func TestConcurrentBooking(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "concurrency.db"), &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	room := createRoom(t, db, 1, "101", 2, "100")

	const numGoroutines = 10
	var wg sync.WaitGroup
	results := make(chan error, numGoroutines)

	attempts := make([]*models.Booking, numGoroutines)
	for i := range attempts {
		attempts[i] = newBooking(t, room, "2025-03-01", "2025-03-04")
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(b *models.Booking) {
			defer wg.Done()
			results <- db.CreateBookingWithLock(ctx, b)
		}(attempts[i])
	}
	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		if err == nil {
			successCount++
		} else {
			assert.ErrorIs(t, err, models.ErrConflict)
		}
	}
	assert.Equal(t, 1, successCount, "only one overlapping booking may be stored")

	active, err := db.ListActiveBookingsForRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

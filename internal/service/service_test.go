package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"hotelledger/internal/database"
	"hotelledger/internal/events"
	"hotelledger/internal/interval"
	"hotelledger/internal/keylock"
	"hotelledger/internal/models"
	"hotelledger/internal/repository"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// testNow is the fixed clock for every service under test.
var testNow = time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC)

type mockMirror struct {
	mock.Mock
}

func (m *mockMirror) EnqueueBooking(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockMirror) EnqueueTransaction(ctx context.Context, tx *models.InventoryTransaction) error {
	return m.Called(ctx, tx).Error(0)
}

type eventRecorder struct {
	mu    sync.Mutex
	types []string
}

func (r *eventRecorder) handle(e *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, e.Type)
	return nil
}

func (r *eventRecorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.types {
		if t == eventType {
			n++
		}
	}
	return n
}

type testEnv struct {
	db           *database.DB
	index        *interval.Index
	locks        *keylock.Locker
	bus          *events.EventBus
	recorder     *eventRecorder
	cache        *repository.MemoryOccupancyCache
	mirror       *mockMirror
	projector    *OccupancyProjector
	rooms        *RoomService
	availability *AvailabilityService
	bookings     *BookingService
	inventory    *InventoryService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newTestEnvWithDB(db)
}

func newTestEnvWithDB(db *database.DB) *testEnv {
	logger := zerolog.Nop()
	clock := func() time.Time { return testNow }

	env := &testEnv{
		db:       db,
		index:    interval.NewIndex(),
		locks:    keylock.New(),
		bus:      events.NewEventBus(),
		recorder: &eventRecorder{},
		cache:    repository.NewMemoryOccupancyCache(time.Hour),
		mirror:   new(mockMirror),
	}
	env.bus.Subscribe(events.AllEvents, env.recorder.handle)
	env.mirror.On("EnqueueBooking", mock.Anything, mock.Anything).Return(nil).Maybe()
	env.mirror.On("EnqueueTransaction", mock.Anything, mock.Anything).Return(nil).Maybe()

	env.projector = NewOccupancyProjector(db, db, env.cache, env.bus, env.locks, &logger)
	env.projector.SetClock(clock)
	env.rooms = NewRoomService(db, env.projector, env.locks, &logger)
	env.availability = NewAvailabilityService(db, env.index)
	env.availability.SetClock(clock)
	env.bookings = NewBookingService(db, db, env.index, env.locks, env.projector, env.bus, env.mirror, 30, &logger)
	env.bookings.SetClock(clock)
	env.inventory = NewInventoryService(db, env.locks, env.bus, env.mirror, &logger)
	return env
}

func (env *testEnv) addRoom(t *testing.T, hotelID int64, number string, capacity int, rate string) *models.Room {
	t.Helper()
	room := &models.Room{HotelID: hotelID, Number: number, Capacity: capacity, Rate: decimal.RequireFromString(rate)}
	require.NoError(t, env.rooms.Register(context.Background(), room))
	return room
}

func day(t *testing.T, s string) models.Day {
	t.Helper()
	d, err := models.ParseDay(s)
	require.NoError(t, err)
	return d
}

func guest() models.GuestContact {
	return models.GuestContact{Name: "Ann Lee", Email: "ann@example.com"}
}

func (env *testEnv) book(t *testing.T, roomID int64, checkIn, checkOut string, party int) *models.Booking {
	t.Helper()
	b, err := env.bookings.CreateBooking(context.Background(), CreateBookingRequest{
		RoomID:    roomID,
		CheckIn:   day(t, checkIn),
		CheckOut:  day(t, checkOut),
		PartySize: party,
		Guest:     guest(),
	})
	require.NoError(t, err)
	return b
}

func roomIDs(rooms []*models.Room) []int64 {
	ids := make([]int64, 0, len(rooms))
	for _, r := range rooms {
		ids = append(ids, r.ID)
	}
	return ids
}

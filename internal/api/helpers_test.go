package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hotelledger/internal/config"
	"hotelledger/internal/database"
	"hotelledger/internal/events"
	"hotelledger/internal/interval"
	"hotelledger/internal/keylock"
	"hotelledger/internal/models"
	"hotelledger/internal/repository"
	"hotelledger/internal/service"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// testNow pins "today" to 2024-05-30 for every service behind the API.
var testNow = time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestServices(db *database.DB) *Services {
	return newTestServicesWithCache(db, repository.NewMemoryOccupancyCache(time.Hour))
}

func newTestServicesWithCache(db *database.DB, cache *repository.MemoryOccupancyCache) *Services {
	logger := zerolog.Nop()
	clock := func() time.Time { return testNow }
	index := interval.NewIndex()
	locks := keylock.New()
	bus := events.NewEventBus()

	projector := service.NewOccupancyProjector(db, db, cache, bus, locks, &logger)
	projector.SetClock(clock)
	availability := service.NewAvailabilityService(db, index)
	availability.SetClock(clock)
	bookings := service.NewBookingService(db, db, index, locks, projector, bus, nil, 30, &logger)
	bookings.SetClock(clock)

	return &Services{
		Rooms:        service.NewRoomService(db, projector, locks, &logger),
		Availability: availability,
		Bookings:     bookings,
		Inventory:    service.NewInventoryService(db, locks, bus, nil, &logger),
		Outbox:       db,
	}
}

func openAPIConfig() *config.APIConfig {
	return &config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Enabled: true, Port: 0},
		GRPC:    config.APIGRPCConfig{Enabled: true, Port: 0},
	}
}

func authAPIConfig() *config.APIConfig {
	cfg := openAPIConfig()
	cfg.Auth = config.APIAuthConfig{
		Enabled: true,
		APIKeys: []config.APIClientKey{
			{Key: "front-desk", Extra: "s3cret", Name: "front desk", Permissions: []string{PermReadLedger, PermWriteBookings}},
			{Key: "admin", Extra: "root", Name: "admin"},
		},
	}
	return cfg
}

type testAPI struct {
	db    *database.DB
	svc   *Services
	cache *repository.MemoryOccupancyCache
	ts    *httptest.Server
}

func newTestAPI(t *testing.T, cfg *config.APIConfig) *testAPI {
	t.Helper()
	db := newTestDB(t)
	cache := repository.NewMemoryOccupancyCache(time.Hour)
	svc := newTestServicesWithCache(db, cache)
	logger := zerolog.New(io.Discard)
	server := NewHTTPServer(cfg, svc, db, &logger)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return &testAPI{db: db, svc: svc, cache: cache, ts: ts}
}

func (a *testAPI) addRoom(t *testing.T, hotelID int64, number string, capacity int, rate string) *models.Room {
	t.Helper()
	room := &models.Room{HotelID: hotelID, Number: number, Capacity: capacity, Rate: decimal.RequireFromString(rate)}
	require.NoError(t, a.svc.Rooms.Register(context.Background(), room))
	return room
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func bookingBody(roomID int64, checkIn, checkOut string, party int) map[string]any {
	return map[string]any{
		"room_id":    roomID,
		"check_in":   checkIn,
		"check_out":  checkOut,
		"party_size": party,
		"guest":      map[string]any{"name": "Ann Lee", "email": "ann@example.com"},
	}
}

package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"hotelledger/internal/events"
	"hotelledger/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roomStatus(t *testing.T, env *testEnv, roomID int64) string {
	t.Helper()
	room, err := env.rooms.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	return room.Status
}

func TestProjector_FollowsLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.addRoom(t, 1, "101", 2, "100")

	future := env.book(t, room.ID, "2024-06-10", "2024-06-12", 1)
	assert.Equal(t, models.RoomAvailable, roomStatus(t, env, room.ID))

	current := env.book(t, room.ID, "2024-05-30", "2024-06-01", 1)
	assert.Equal(t, models.RoomOccupied, roomStatus(t, env, room.ID))
	cached, ok, err := env.cache.GetRoomStatus(ctx, room.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.RoomOccupied, cached)

	_, err = env.bookings.Checkout(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomAvailable, roomStatus(t, env, room.ID))

	_, err = env.bookings.CancelBooking(ctx, future.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomAvailable, roomStatus(t, env, room.ID))

	// available -> occupied -> available
	assert.Equal(t, 2, env.recorder.count(events.EventRoomStatusChanged))
}

func TestProjector_ReconcileOnDayRollover(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.addRoom(t, 1, "101", 2, "100")
	env.book(t, room.ID, "2024-05-31", "2024-06-02", 1)
	assert.Equal(t, models.RoomAvailable, roomStatus(t, env, room.ID))

	env.projector.SetClock(func() time.Time { return testNow.Add(24 * time.Hour) })
	n, err := env.projector.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.RoomOccupied, roomStatus(t, env, room.ID))

	env.projector.SetClock(func() time.Time { return testNow.Add(72 * time.Hour) })
	_, err = env.projector.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RoomAvailable, roomStatus(t, env, room.ID))
}

func TestProjector_RoomStatusUsesCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.addRoom(t, 1, "101", 2, "100")

	status, err := env.projector.RoomStatus(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomAvailable, status)

	require.NoError(t, env.cache.SetRoomStatus(ctx, room.ID, models.RoomOccupied))
	status, err = env.projector.RoomStatus(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomOccupied, status)

	_, err = env.projector.RoomStatus(ctx, 999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestProjector_Start(t *testing.T) {
	env := newTestEnv(t)
	room := env.addRoom(t, 1, "101", 2, "100")
	env.book(t, room.ID, "2024-05-31", "2024-06-02", 1)
	env.projector.SetClock(func() time.Time { return testNow.Add(24 * time.Hour) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		env.projector.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return roomStatus(t, env, room.ID) == models.RoomOccupied
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

type failingPublisher struct{}

func (failingPublisher) PublishJSON(string, interface{}) error {
	return errors.New("bus closed")
}

func TestProjector_PublishErrorLogged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.addRoom(t, 1, "101", 2, "100")
	env.book(t, room.ID, "2024-05-30", "2024-06-01", 1)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	projector := NewOccupancyProjector(env.db, env.db, env.cache, failingPublisher{}, env.locks, &logger)
	projector.SetClock(func() time.Time { return testNow.Add(72 * time.Hour) })

	status, err := projector.Refresh(ctx, room.ID)
	require.NoError(t, err, "a failed publish must not fail the refresh")
	assert.Equal(t, models.RoomAvailable, status)
	assert.Equal(t, models.RoomAvailable, roomStatus(t, env, room.ID))

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, "Failed to publish event")
	assert.Contains(t, out, events.EventRoomStatusChanged)
}

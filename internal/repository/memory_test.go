package repository

import (
	"context"
	"testing"
	"time"

	"hotelledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryOccupancyCache(t *testing.T) {
	repo := NewMemoryOccupancyCache(time.Hour)
	ctx := context.Background()

	_, ok, err := repo.GetRoomStatus(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SetRoomStatus(ctx, 1, models.RoomOccupied))
	status, ok, err := repo.GetRoomStatus(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.RoomOccupied, status)

	require.NoError(t, repo.ClearRoomStatus(ctx, 1))
	_, ok, _ = repo.GetRoomStatus(ctx, 1)
	assert.False(t, ok)
}

func TestMemoryOccupancyCache_Expiry(t *testing.T) {
	repo := NewMemoryOccupancyCache(time.Millisecond)
	ctx := context.Background()

	require.NoError(t, repo.SetRoomStatus(ctx, 1, models.RoomAvailable))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := repo.GetRoomStatus(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

package repository

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	status    string
	expiresAt time.Time
}

type MemoryOccupancyCache struct {
	statuses sync.Map
	ttl      time.Duration
}

func NewMemoryOccupancyCache(ttl time.Duration) *MemoryOccupancyCache {
	return &MemoryOccupancyCache{ttl: ttl}
}

func (r *MemoryOccupancyCache) GetRoomStatus(ctx context.Context, roomID int64) (string, bool, error) {
	val, ok := r.statuses.Load(roomID)
	if !ok {
		return "", false, nil
	}
	entry := val.(memoryEntry)
	if r.ttl > 0 && time.Now().After(entry.expiresAt) {
		r.statuses.Delete(roomID)
		return "", false, nil
	}
	return entry.status, true, nil
}

func (r *MemoryOccupancyCache) SetRoomStatus(ctx context.Context, roomID int64, status string) error {
	r.statuses.Store(roomID, memoryEntry{status: status, expiresAt: time.Now().Add(r.ttl)})
	return nil
}

func (r *MemoryOccupancyCache) ClearRoomStatus(ctx context.Context, roomID int64) error {
	r.statuses.Delete(roomID)
	return nil
}

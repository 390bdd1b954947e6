package repository

import (
	"context"
	"sync/atomic"
	"time"

	"hotelledger/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverOccupancyCache writes to the primary cache until it fails, then
// serves from the fallback and retries the primary once a minute.
type FailoverOccupancyCache struct {
	primary   domain.OccupancyCache
	fallback  domain.OccupancyCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverOccupancyCache(primary, fallback domain.OccupancyCache, logger *zerolog.Logger) *FailoverOccupancyCache {
	return &FailoverOccupancyCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *FailoverOccupancyCache) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary occupancy cache failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

// usePrimary reports whether the primary should be tried for this call.
func (r *FailoverOccupancyCache) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return r.now().Sub(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverOccupancyCache) recovered() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary occupancy cache recovered")
	}
}

func (r *FailoverOccupancyCache) GetRoomStatus(ctx context.Context, roomID int64) (string, bool, error) {
	if r.usePrimary() {
		status, ok, err := r.primary.GetRoomStatus(ctx, roomID)
		if err == nil {
			r.recovered()
			return status, ok, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetRoomStatus(ctx, roomID)
}

func (r *FailoverOccupancyCache) SetRoomStatus(ctx context.Context, roomID int64, status string) error {
	// the fallback mirrors every write
	_ = r.fallback.SetRoomStatus(ctx, roomID, status)
	if r.usePrimary() {
		err := r.primary.SetRoomStatus(ctx, roomID, status)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return nil
}

func (r *FailoverOccupancyCache) ClearRoomStatus(ctx context.Context, roomID int64) error {
	_ = r.fallback.ClearRoomStatus(ctx, roomID)
	if r.usePrimary() {
		err := r.primary.ClearRoomStatus(ctx, roomID)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return nil
}

// IsDown reports whether the fallback is currently serving.
func (r *FailoverOccupancyCache) IsDown() bool {
	return r.isDown.Load()
}

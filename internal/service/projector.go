package service

import (
	"context"
	"fmt"
	"time"

	"hotelledger/internal/domain"
	"hotelledger/internal/events"
	"hotelledger/internal/keylock"
	"hotelledger/internal/models"

	"github.com/rs/zerolog"
)

// OccupancyProjector keeps the room display status in step with bookings.
// The status is a projection: occupied iff an Active booking covers today,
// maintenance when the room is taken out of service. It never decides
// booking eligibility.
type OccupancyProjector struct {
	rooms    domain.RoomRepository
	bookings domain.BookingRepository
	cache    domain.OccupancyCache
	events   domain.EventPublisher
	locks    *keylock.Locker
	now      func() time.Time
	logger   *zerolog.Logger
}

func NewOccupancyProjector(
	rooms domain.RoomRepository,
	bookings domain.BookingRepository,
	cache domain.OccupancyCache,
	eventBus domain.EventPublisher,
	locks *keylock.Locker,
	logger *zerolog.Logger,
) *OccupancyProjector {
	return &OccupancyProjector{
		rooms:    rooms,
		bookings: bookings,
		cache:    cache,
		events:   eventBus,
		locks:    locks,
		now:      time.Now,
		logger:   logger,
	}
}

func (p *OccupancyProjector) SetClock(now func() time.Time) {
	p.now = now
}

// Refresh recomputes the status of one room under the room's lock.
func (p *OccupancyProjector) Refresh(ctx context.Context, roomID int64) (string, error) {
	unlock := p.locks.Lock(keylock.RoomKey(roomID))
	defer unlock()
	return p.refreshLocked(ctx, roomID)
}

// refreshLocked expects the caller to hold the room's lock.
func (p *OccupancyProjector) refreshLocked(ctx context.Context, roomID int64) (string, error) {
	room, err := p.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return "", err
	}
	return p.project(ctx, room, room.InMaintenance())
}

// project stores the status the room should show and announces a change.
// The caller holds the room's lock.
func (p *OccupancyProjector) project(ctx context.Context, room *models.Room, maintenance bool) (string, error) {
	status := models.RoomMaintenance
	if !maintenance {
		var err error
		if status, err = p.occupancy(ctx, room.ID); err != nil {
			return "", err
		}
	}

	if status != room.Status {
		if err := p.rooms.UpdateRoomStatus(ctx, room.ID, status); err != nil {
			return "", err
		}
		p.logger.Info().
			Int64("room_id", room.ID).
			Str("from", room.Status).
			Str("to", status).
			Msg("Room status changed")
		if p.events != nil {
			if err := p.events.PublishJSON(events.EventRoomStatusChanged, events.RoomStatusPayload{
				RoomID:  room.ID,
				HotelID: room.HotelID,
				Number:  room.Number,
				Status:  status,
			}); err != nil {
				p.logger.Warn().Err(err).Str("event", events.EventRoomStatusChanged).Msg("Failed to publish event")
			}
		}
	}

	if p.cache != nil {
		if err := p.cache.SetRoomStatus(ctx, room.ID, status); err != nil {
			p.logger.Warn().Err(err).Int64("room_id", room.ID).Msg("Failed to cache room status")
		}
	}
	return status, nil
}

func (p *OccupancyProjector) occupancy(ctx context.Context, roomID int64) (string, error) {
	active, err := p.bookings.ListActiveBookingsForRoom(ctx, roomID)
	if err != nil {
		return "", err
	}
	today := models.Today(p.now())
	for _, b := range active {
		if b.Covers(today) {
			return models.RoomOccupied, nil
		}
	}
	return models.RoomAvailable, nil
}

// RoomStatus returns the cached projection, computing it on a miss.
func (p *OccupancyProjector) RoomStatus(ctx context.Context, roomID int64) (string, error) {
	if p.cache != nil {
		status, ok, err := p.cache.GetRoomStatus(ctx, roomID)
		if err != nil {
			p.logger.Warn().Err(err).Int64("room_id", roomID).Msg("Room status cache read failed")
		} else if ok {
			return status, nil
		}
	}
	return p.Refresh(ctx, roomID)
}

// ReconcileAll refreshes every room and returns how many were processed.
// A failing room is logged and skipped.
func (p *OccupancyProjector) ReconcileAll(ctx context.Context) (int, error) {
	rooms, err := p.rooms.ListRoomsByHotel(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list rooms: %w", err)
	}
	n := 0
	for _, room := range rooms {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if _, err := p.Refresh(ctx, room.ID); err != nil {
			p.logger.Error().Err(err).Int64("room_id", room.ID).Msg("Failed to reconcile room status")
			continue
		}
		n++
	}
	return n, nil
}

// Start reconciles on every tick so statuses follow day rollover.
func (p *OccupancyProjector) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.ReconcileAll(ctx)
			if err != nil {
				p.logger.Error().Err(err).Msg("Room status reconcile failed")
				continue
			}
			p.logger.Debug().Int("rooms", n).Msg("Room statuses reconciled")
		}
	}
}

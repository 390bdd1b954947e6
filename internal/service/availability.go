package service

import (
	"context"
	"fmt"
	"time"

	"hotelledger/internal/domain"
	"hotelledger/internal/interval"
	"hotelledger/internal/models"
)

// AvailabilityService answers room searches from the interval index. The
// result is a point-in-time view and reserves nothing.
type AvailabilityService struct {
	rooms domain.RoomRepository
	index *interval.Index
	now   func() time.Time
}

func NewAvailabilityService(rooms domain.RoomRepository, index *interval.Index) *AvailabilityService {
	return &AvailabilityService{rooms: rooms, index: index, now: time.Now}
}

func (s *AvailabilityService) SetClock(now func() time.Time) {
	s.now = now
}

// FindAvailable returns rooms of the hotel with enough capacity and no
// Active booking overlapping [start, end), ordered by number then id.
// Rooms under maintenance are never offered.
func (s *AvailabilityService) FindAvailable(ctx context.Context, hotelID int64, start, end models.Day, minCapacity int) ([]*models.Room, error) {
	if hotelID <= 0 {
		return nil, fmt.Errorf("%w: hotel_id must be positive", models.ErrValidation)
	}
	if minCapacity < 0 {
		return nil, fmt.Errorf("%w: min capacity must not be negative", models.ErrValidation)
	}
	if err := validateRange(start, end, models.Today(s.now())); err != nil {
		return nil, err
	}

	rooms, err := s.rooms.ListRoomsByHotel(ctx, hotelID)
	if err != nil {
		return nil, err
	}

	available := make([]*models.Room, 0, len(rooms))
	for _, room := range rooms {
		if room.Capacity < minCapacity || room.InMaintenance() {
			continue
		}
		if s.index.Occupied(room.ID, start, end) {
			continue
		}
		available = append(available, room)
	}
	return available, nil
}

// validateRange rejects inverted, empty and retroactive date ranges.
func validateRange(start, end, today models.Day) error {
	if start >= end {
		return fmt.Errorf("%w: check-in %s must be before check-out %s", models.ErrValidation, start, end)
	}
	if start < today {
		return fmt.Errorf("%w: check-in %s is in the past", models.ErrValidation, start)
	}
	return nil
}

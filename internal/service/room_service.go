package service

import (
	"context"

	"hotelledger/internal/domain"
	"hotelledger/internal/keylock"
	"hotelledger/internal/models"

	"github.com/rs/zerolog"
)

// RoomService registers rooms and switches them in and out of maintenance.
type RoomService struct {
	repo      domain.RoomRepository
	projector *OccupancyProjector
	locks     *keylock.Locker
	logger    *zerolog.Logger
}

func NewRoomService(repo domain.RoomRepository, projector *OccupancyProjector, locks *keylock.Locker, logger *zerolog.Logger) *RoomService {
	return &RoomService{repo: repo, projector: projector, locks: locks, logger: logger}
}

func (s *RoomService) Register(ctx context.Context, room *models.Room) error {
	if err := room.Validate(); err != nil {
		return err
	}
	room.Status = models.RoomAvailable
	if err := s.repo.CreateRoom(ctx, room); err != nil {
		return err
	}
	s.logger.Info().Int64("room_id", room.ID).Int64("hotel_id", room.HotelID).Str("number", room.Number).Msg("Room registered")
	return nil
}

// Seed inserts rooms that do not exist yet and returns how many were created.
func (s *RoomService) Seed(ctx context.Context, rooms []*models.Room) (int, error) {
	created := 0
	for _, room := range rooms {
		if err := room.Validate(); err != nil {
			return created, err
		}
		ok, err := s.repo.EnsureRoom(ctx, room)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// SetMaintenance takes the room out of service or returns it. Leaving
// maintenance recomputes the projection from bookings.
func (s *RoomService) SetMaintenance(ctx context.Context, roomID int64, enabled bool) (*models.Room, error) {
	unlock := s.locks.Lock(keylock.RoomKey(roomID))
	defer unlock()

	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if _, err := s.projector.project(ctx, room, enabled); err != nil {
		return nil, err
	}

	s.logger.Info().Int64("room_id", roomID).Bool("maintenance", enabled).Msg("Room maintenance updated")
	return s.repo.GetRoom(ctx, roomID)
}

func (s *RoomService) GetRoom(ctx context.Context, roomID int64) (*models.Room, error) {
	return s.repo.GetRoom(ctx, roomID)
}

// RoomStatus returns the room's display status, served from the occupancy
// cache when it holds one.
func (s *RoomService) RoomStatus(ctx context.Context, roomID int64) (string, error) {
	if _, err := s.repo.GetRoom(ctx, roomID); err != nil {
		return "", err
	}
	return s.projector.RoomStatus(ctx, roomID)
}

func (s *RoomService) ListRooms(ctx context.Context, hotelID int64) ([]*models.Room, error) {
	return s.repo.ListRoomsByHotel(ctx, hotelID)
}

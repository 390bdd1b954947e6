package domain

import (
	"context"

	"hotelledger/internal/models"

	"github.com/shopspring/decimal"
)

type RoomRepository interface {
	CreateRoom(ctx context.Context, room *models.Room) error
	EnsureRoom(ctx context.Context, room *models.Room) (bool, error)
	GetRoom(ctx context.Context, id int64) (*models.Room, error)
	ListRoomsByHotel(ctx context.Context, hotelID int64) ([]*models.Room, error)
	UpdateRoomStatus(ctx context.Context, id int64, status string) error
}

type BookingRepository interface {
	CreateBookingWithLock(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListBookings(ctx context.Context, hotelID int64) ([]*models.Booking, error)
	ListActiveBookings(ctx context.Context) ([]*models.Booking, error)
	ListActiveBookingsForRoom(ctx context.Context, roomID int64) ([]*models.Booking, error)
	ListActiveBookingsCovering(ctx context.Context, hotelID int64, day models.Day) ([]*models.Booking, error)
	CancelBooking(ctx context.Context, id int64) (*models.Booking, error)
	CompleteBooking(ctx context.Context, id int64, amountDue decimal.Decimal) (*models.Booking, error)
	AddBookingExtra(ctx context.Context, bookingID int64, extra *models.Extra) error
}

type InventoryRepository interface {
	CreateItem(ctx context.Context, item *models.InventoryItem) error
	GetItem(ctx context.Context, id int64) (*models.InventoryItem, error)
	ListItemsByHotel(ctx context.Context, hotelID int64) ([]*models.InventoryItem, error)
	DeleteItem(ctx context.Context, id int64) error
	CreateTransaction(ctx context.Context, itemID, quantity int64) (*models.InventoryTransaction, error)
	GetTransaction(ctx context.Context, id int64) (*models.InventoryTransaction, error)
	ListTransactionsByHotel(ctx context.Context, hotelID int64) ([]*models.InventoryTransaction, error)
	CompleteTransaction(ctx context.Context, id int64) (*models.InventoryTransaction, error)
}

// OccupancyCache holds the room display status projection.
type OccupancyCache interface {
	GetRoomStatus(ctx context.Context, roomID int64) (string, bool, error)
	SetRoomStatus(ctx context.Context, roomID int64, status string) error
	ClearRoomStatus(ctx context.Context, roomID int64) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// MirrorQueue accepts entities to be copied to the external spreadsheet.
type MirrorQueue interface {
	EnqueueBooking(ctx context.Context, booking *models.Booking) error
	EnqueueTransaction(ctx context.Context, tx *models.InventoryTransaction) error
}

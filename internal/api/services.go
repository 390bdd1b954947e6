package api

import (
	"context"

	"hotelledger/internal/models"
	"hotelledger/internal/service"
)

// Services are the ledger operations the transports expose.
type Services struct {
	Rooms        *service.RoomService
	Availability *service.AvailabilityService
	Bookings     *service.BookingService
	Inventory    *service.InventoryService
	Outbox       FailedTaskLister
}

// FailedTaskLister lists sheet mirror tasks that ran out of retries.
// *database.DB satisfies it.
type FailedTaskLister interface {
	GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error)
}

// Pinger reports whether storage is reachable. *database.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

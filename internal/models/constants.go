package models

// Booking statuses.
const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// Room display statuses.
const (
	RoomAvailable   = "available"
	RoomOccupied    = "occupied"
	RoomMaintenance = "maintenance"
)

// Inventory transaction statuses.
const (
	TxPending   = "pending"
	TxCompleted = "completed"
)

const (
	// DefaultMaxBookingDays ограничение длины одного бронирования
	DefaultMaxBookingDays = 365

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 1000

	// DefaultProjectionTTL время жизни статуса комнаты в кэше
	DefaultProjectionTTL = 36 * 60 * 60 // 36 часов в секундах

	// MoneyPlaces количество знаков после запятой для денежных сумм
	MoneyPlaces = 2
)

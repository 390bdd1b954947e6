package events

import (
	"encoding/json"
	"sync"
	"time"

	"hotelledger/internal/models"

	"github.com/shopspring/decimal"
)

const (
	EventBookingCreated     = "booking_created"
	EventBookingCancelled   = "booking_cancelled"
	EventBookingCheckedOut  = "booking_checked_out"
	EventBookingExtraAdded  = "booking_extra_added"
	EventRoomStatusChanged  = "room_status_changed"
	EventInventoryItemAdded = "inventory_item_added"
	EventInventoryOrdered   = "inventory_order_placed"
	EventInventoryReceived  = "inventory_order_received"
	EventInventoryDeleted   = "inventory_item_deleted"

	// AllEvents subscribes a handler to every event type.
	AllEvents = "*"
)

// BookingEventPayload describes the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID  int64               `json:"booking_id"`
	HotelID    int64               `json:"hotel_id"`
	RoomID     int64               `json:"room_id"`
	RoomNumber string              `json:"room_number"`
	GuestName  string              `json:"guest_name"`
	CheckIn    models.Day          `json:"check_in"`
	CheckOut   models.Day          `json:"check_out"`
	Status     string              `json:"status"`
	AmountDue  decimal.NullDecimal `json:"amount_due"`
}

func NewBookingPayload(b *models.Booking) BookingEventPayload {
	return BookingEventPayload{
		BookingID:  b.ID,
		HotelID:    b.HotelID,
		RoomID:     b.RoomID,
		RoomNumber: b.RoomNumber,
		GuestName:  b.Guest.Name,
		CheckIn:    b.CheckIn,
		CheckOut:   b.CheckOut,
		Status:     b.Status,
		AmountDue:  b.AmountDue,
	}
}

type RoomStatusPayload struct {
	RoomID  int64  `json:"room_id"`
	HotelID int64  `json:"hotel_id"`
	Number  string `json:"number"`
	Status  string `json:"status"`
}

type InventoryEventPayload struct {
	HotelID       int64           `json:"hotel_id"`
	ItemID        int64           `json:"item_id"`
	ItemName      string          `json:"item_name"`
	TransactionID int64           `json:"transaction_id,omitempty"`
	Quantity      int64           `json:"quantity"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	Status        string          `json:"status,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type, or AllEvents.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type and returns the errors
// handlers reported.
func (b *EventBus) Publish(event *Event) []error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.subscribers[AllEvents]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// PublishJSON serializes the payload and publishes an event. Subscriber
// failures do not fail the publisher.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	b.Publish(&event)
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}

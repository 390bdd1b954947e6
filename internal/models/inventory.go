package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type InventoryItem struct {
	ID        int64           `json:"id"`
	HotelID   int64           `json:"hotel_id"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	CreatedAt time.Time       `json:"created_at"`
}

// InventoryTransaction is a purchase order for an item. UnitPrice and
// TotalCost are fixed when the order is placed.
type InventoryTransaction struct {
	ID          int64           `json:"id"`
	ItemID      int64           `json:"item_id"`
	HotelID     int64           `json:"hotel_id"`
	ItemName    string          `json:"item_name"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	Status      string          `json:"status"` // pending, completed
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

func (t *InventoryTransaction) IsPending() bool {
	return t.Status == TxPending
}

package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Room struct {
	ID        int64           `json:"id"`
	HotelID   int64           `json:"hotel_id"`
	Number    string          `json:"number"`
	Capacity  int             `json:"capacity"`
	Rate      decimal.Decimal `json:"rate"`
	Status    string          `json:"status"` // available, occupied, maintenance
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (r *Room) Validate() error {
	if r.HotelID <= 0 {
		return fmt.Errorf("%w: hotel_id must be positive", ErrValidation)
	}
	if strings.TrimSpace(r.Number) == "" {
		return fmt.Errorf("%w: room number is required", ErrValidation)
	}
	if r.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive", ErrValidation)
	}
	if !r.Rate.IsPositive() {
		return fmt.Errorf("%w: rate must be positive", ErrValidation)
	}
	return nil
}

func (r *Room) InMaintenance() bool {
	return r.Status == RoomMaintenance
}

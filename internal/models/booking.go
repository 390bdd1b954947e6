package models

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// GuestContact is the guest identity attached to a booking.
type GuestContact struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

func (g GuestContact) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return fmt.Errorf("%w: guest name is required", ErrValidation)
	}
	if g.Email == "" && g.Phone == "" {
		return fmt.Errorf("%w: guest email or phone is required", ErrValidation)
	}
	if g.Email != "" {
		if _, err := mail.ParseAddress(g.Email); err != nil {
			return fmt.Errorf("%w: invalid guest email %q", ErrValidation, g.Email)
		}
	}
	return nil
}

type Extra struct {
	ID          int64           `json:"id,omitempty"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (e Extra) Validate() error {
	if strings.TrimSpace(e.Description) == "" {
		return fmt.Errorf("%w: extra description is required", ErrValidation)
	}
	if !e.Amount.IsPositive() {
		return fmt.Errorf("%w: extra amount must be positive", ErrValidation)
	}
	return nil
}

type Booking struct {
	ID          int64               `json:"id"`
	RoomID      int64               `json:"room_id"`
	HotelID     int64               `json:"hotel_id"`
	RoomNumber  string              `json:"room_number"`
	Guest       GuestContact        `json:"guest"`
	CheckIn     Day                 `json:"check_in"`
	CheckOut    Day                 `json:"check_out"`
	PartySize   int                 `json:"party_size"`
	Rate        decimal.Decimal     `json:"rate"` // nightly rate fixed at creation
	Status      string              `json:"status"` // active, cancelled, completed
	Extras      []Extra             `json:"extras"`
	AmountDue   decimal.NullDecimal `json:"amount_due"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	CancelledAt *time.Time          `json:"cancelled_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Version     int64               `json:"version"`
}

func (b *Booking) IsActive() bool {
	return b.Status == StatusActive
}

func (b *Booking) Nights() int {
	return int(b.CheckOut - b.CheckIn)
}

// Covers reports whether day falls inside [CheckIn, CheckOut).
func (b *Booking) Covers(day Day) bool {
	return b.CheckIn <= day && day < b.CheckOut
}

// BillingResult is the outcome of pricing a booking.
type BillingResult struct {
	BookingID   int64           `json:"booking_id"`
	Nights      int             `json:"nights"`
	Rate        decimal.Decimal `json:"rate"`
	RoomTotal   decimal.Decimal `json:"room_total"`
	ExtrasTotal decimal.Decimal `json:"extras_total"`
	AmountDue   decimal.Decimal `json:"amount_due"`
}

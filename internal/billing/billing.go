// Package billing prices a booking. It is pure: no storage, no clock.
package billing

import (
	"fmt"

	"hotelledger/internal/models"

	"github.com/shopspring/decimal"
)

// ComputeBill returns rate × nights + sum(extras), rounded half-to-even to
// cents. Components are summed at full precision and rounded once.
func ComputeBill(b *models.Booking, rate decimal.Decimal) (*models.BillingResult, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: booking is nil", models.ErrValidation)
	}
	nights := b.Nights()
	if nights <= 0 {
		return nil, fmt.Errorf("%w: booking %d has no nights", models.ErrValidation, b.ID)
	}
	if rate.IsNegative() {
		return nil, fmt.Errorf("%w: negative rate %s", models.ErrValidation, rate)
	}

	roomTotal := rate.Mul(decimal.NewFromInt(int64(nights)))
	extrasTotal := decimal.Zero
	for _, e := range b.Extras {
		extrasTotal = extrasTotal.Add(e.Amount)
	}

	return &models.BillingResult{
		BookingID:   b.ID,
		Nights:      nights,
		Rate:        rate,
		RoomTotal:   roomTotal.RoundBank(models.MoneyPlaces),
		ExtrasTotal: extrasTotal.RoundBank(models.MoneyPlaces),
		AmountDue:   roomTotal.Add(extrasTotal).RoundBank(models.MoneyPlaces),
	}, nil
}

// SameAmount compares two money values at cent precision.
func SameAmount(a, b decimal.Decimal) bool {
	return a.RoundBank(models.MoneyPlaces).Equal(b.RoundBank(models.MoneyPlaces))
}

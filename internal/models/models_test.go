package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDay(t *testing.T) {
	t.Run("ParseAndFormat", func(t *testing.T) {
		d, err := ParseDay("2025-01-10")
		require.NoError(t, err)
		assert.Equal(t, "2025-01-10", d.String())
		assert.Equal(t, Day(0), mustDay(t, "1970-01-01"))
		assert.Equal(t, d+1, mustDay(t, "2025-01-11"))
		assert.Equal(t, d.AddDays(22), mustDay(t, "2025-02-01"))
	})

	t.Run("RejectsOtherLayouts", func(t *testing.T) {
		for _, s := range []string{"10.01.2025", "2025-1-10", "2025-01-10T00:00:00Z", "", "2025-02-30"} {
			_, err := ParseDay(s)
			assert.True(t, errors.Is(err, ErrValidation), s)
		}
	})

	t.Run("DayOfIgnoresClock", func(t *testing.T) {
		morning := time.Date(2025, 3, 1, 0, 5, 0, 0, time.UTC)
		evening := time.Date(2025, 3, 1, 23, 55, 0, 0, time.UTC)
		assert.Equal(t, DayOf(morning), DayOf(evening))
		assert.Equal(t, "2025-03-01", Today(evening).String())
	})

	t.Run("JSON", func(t *testing.T) {
		var v struct {
			D Day `json:"d"`
		}
		require.NoError(t, json.Unmarshal([]byte(`{"d":"2025-05-05"}`), &v))
		assert.Equal(t, "2025-05-05", v.D.String())

		out, err := json.Marshal(v)
		require.NoError(t, err)
		assert.JSONEq(t, `{"d":"2025-05-05"}`, string(out))

		err = json.Unmarshal([]byte(`{"d":20250505}`), &v)
		assert.True(t, errors.Is(err, ErrValidation))
	})
}

func TestGuestContact_Validate(t *testing.T) {
	assert.NoError(t, GuestContact{Name: "Ann", Email: "ann@example.com"}.Validate())
	assert.NoError(t, GuestContact{Name: "Ann", Phone: "+100200300"}.Validate())

	assert.ErrorIs(t, GuestContact{Email: "ann@example.com"}.Validate(), ErrValidation)
	assert.ErrorIs(t, GuestContact{Name: "Ann"}.Validate(), ErrValidation)
	assert.ErrorIs(t, GuestContact{Name: "Ann", Email: "not-an-email"}.Validate(), ErrValidation)
}

func TestExtra_Validate(t *testing.T) {
	assert.NoError(t, Extra{Description: "Minibar", Amount: decimal.RequireFromString("12.50")}.Validate())
	assert.ErrorIs(t, Extra{Description: "", Amount: decimal.NewFromInt(1)}.Validate(), ErrValidation)
	assert.ErrorIs(t, Extra{Description: "Spa", Amount: decimal.Zero}.Validate(), ErrValidation)
	assert.ErrorIs(t, Extra{Description: "Spa", Amount: decimal.NewFromInt(-3)}.Validate(), ErrValidation)
}

func TestRoom_Validate(t *testing.T) {
	r := Room{HotelID: 1, Number: "101", Capacity: 2, Rate: decimal.NewFromInt(100)}
	assert.NoError(t, r.Validate())

	bad := r
	bad.Capacity = 0
	assert.ErrorIs(t, bad.Validate(), ErrValidation)

	bad = r
	bad.Rate = decimal.Zero
	assert.ErrorIs(t, bad.Validate(), ErrValidation)

	bad = r
	bad.Number = " "
	assert.ErrorIs(t, bad.Validate(), ErrValidation)
}

func TestBooking_Helpers(t *testing.T) {
	b := &Booking{CheckIn: mustDay(t, "2025-01-10"), CheckOut: mustDay(t, "2025-01-12"), Status: StatusActive}
	assert.True(t, b.IsActive())
	assert.Equal(t, 2, b.Nights())
	assert.True(t, b.Covers(mustDay(t, "2025-01-10")))
	assert.True(t, b.Covers(mustDay(t, "2025-01-11")))
	assert.False(t, b.Covers(mustDay(t, "2025-01-12")))
	assert.False(t, b.Covers(mustDay(t, "2025-01-09")))
}

func mustDay(t *testing.T, s string) Day {
	t.Helper()
	d, err := ParseDay(s)
	require.NoError(t, err)
	return d
}

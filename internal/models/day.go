package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DayLayout is the only accepted calendar date format.
const DayLayout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

// Day is a calendar date counted in whole days since 1970-01-01 UTC.
// Intervals of days are half-open: [CheckIn, CheckOut).
type Day int

func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", ErrValidation, s)
	}
	return DayOf(t), nil
}

// DayOf returns the calendar date of t as seen in t's own location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / secondsPerDay)
}

// Today returns the UTC calendar date of now.
func Today(now time.Time) Day {
	return DayOf(now.UTC())
}

func (d Day) Time() time.Time {
	return time.Unix(int64(d)*secondsPerDay, 0).UTC()
}

func (d Day) String() string {
	return d.Time().Format(DayLayout)
}

func (d Day) AddDays(n int) Day {
	return d + Day(n)
}

func (d Day) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Day) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: date must be a string", ErrValidation)
	}
	parsed, err := ParseDay(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

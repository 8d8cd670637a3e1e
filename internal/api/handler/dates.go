package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Date accepts "2006-01-02" as well as RFC 3339 timestamps. A bare date is
// midnight UTC.
type Date struct{ time.Time }

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
}

func (d *Date) ptr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

// addDays returns now plus days, in UTC.
func addDays(now time.Time, days int) *time.Time {
	t := now.UTC().AddDate(0, 0, days)
	return &t
}

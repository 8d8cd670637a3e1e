// Package billing holds the pure money logic shared by quotes and invoices:
// lenient number parsing, line totals and status lifecycles.
package billing

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Number is a decimal parsed leniently from client input. Valid is false
// when the value was absent, null, empty or not numeric.
type Number struct {
	Value decimal.Decimal
	Valid bool
}

// NewNumber returns a valid Number.
func NewNumber(d decimal.Decimal) Number { return Number{Value: d, Valid: true} }

// ParseNumber accepts French and English notations: "2", "2,5", "1 200.50".
// Non-breaking and regular spaces are ignored. When both ',' and '.' occur
// the comma is taken as a thousands separator.
func ParseNumber(s string) Number {
	s = strings.TrimSpace(s)
	if s == "" {
		return Number{}
	}
	s = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "").Replace(s)
	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ",", ".")
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Number{}
	}
	return NewNumber(d)
}

// UnmarshalJSON never fails: garbage decodes to an invalid Number so the
// caller's defaults apply.
func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*n = Number{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil //nolint:nilerr // invalid input means missing
		}
		*n = ParseNumber(s)
		return nil
	}
	*n = ParseNumber(string(b))
	return nil
}

// MarshalJSON writes the value as a bare JSON number, or null when invalid.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(n.Value.String()), nil
}

// Or returns the value, or def when the Number is invalid.
func (n Number) Or(def decimal.Decimal) decimal.Decimal {
	if !n.Valid {
		return def
	}
	return n.Value
}

package billing

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrInvalidTransition is returned when a status change is not in the
	// lifecycle's transition table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnknownStatus is returned for a status value outside the vocabulary.
	ErrUnknownStatus = errors.New("unknown status")
)

// DevisStatus is the lifecycle state of a quote.
type DevisStatus string

const (
	DevisDraft    DevisStatus = "draft"
	DevisSent     DevisStatus = "sent"
	DevisAccepted DevisStatus = "accepted"
	DevisRefused  DevisStatus = "refused"
	DevisExpired  DevisStatus = "expired"
	DevisPaid     DevisStatus = "paid"
)

// FactureStatus is the lifecycle state of an invoice.
type FactureStatus string

const (
	FactureDraft   FactureStatus = "draft"
	FactureSent    FactureStatus = "sent"
	FacturePaid    FactureStatus = "paid"
	FactureOverdue FactureStatus = "overdue"
)

// Lifecycle is a transition table plus the date column each target state
// stamps.
type Lifecycle[S ~string] struct {
	next   map[S][]S
	stamps map[S]string
}

// DevisLifecycle governs quotes.
var DevisLifecycle = Lifecycle[DevisStatus]{
	next: map[DevisStatus][]DevisStatus{
		DevisDraft:    {DevisSent},
		DevisSent:     {DevisAccepted, DevisRefused, DevisExpired},
		DevisAccepted: {DevisPaid},
		DevisRefused:  nil,
		DevisExpired:  nil,
		DevisPaid:     nil,
	},
	stamps: map[DevisStatus]string{
		DevisSent:     "date_envoi",
		DevisAccepted: "date_acceptation",
	},
}

// FactureLifecycle governs invoices.
var FactureLifecycle = Lifecycle[FactureStatus]{
	next: map[FactureStatus][]FactureStatus{
		FactureDraft:   {FactureSent},
		FactureSent:    {FacturePaid, FactureOverdue},
		FactureOverdue: {FacturePaid},
		FacturePaid:    nil,
	},
	stamps: map[FactureStatus]string{
		FactureSent: "date_envoi",
		FacturePaid: "date_paiement",
	},
}

// Valid reports whether s belongs to the vocabulary.
func (l Lifecycle[S]) Valid(s S) bool {
	_, ok := l.next[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (l Lifecycle[S]) Terminal(s S) bool {
	return l.Valid(s) && len(l.next[s]) == 0
}

// Parse validates a raw status value.
func (l Lifecycle[S]) Parse(raw string) (S, error) {
	s := S(raw)
	if !l.Valid(s) {
		return s, fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	return s, nil
}

// Check returns nil when from → to is allowed. Writing the current state
// again is allowed and has no effect beyond re-applying absent stamps.
func (l Lifecycle[S]) Check(from, to S) error {
	if !l.Valid(from) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, from)
	}
	if !l.Valid(to) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if from == to || slices.Contains(l.next[from], to) {
		return nil
	}
	return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
}

// Stamp returns the date column set when entering s, or "".
func (l Lifecycle[S]) Stamp(s S) string { return l.stamps[s] }

// Targets lists the states reachable from s, in table order.
func (l Lifecycle[S]) Targets(s S) []S { return slices.Clone(l.next[s]) }

package billing

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusDraft     Status = "BROUILLON"
	StatusIssued    Status = "EMISE"
	StatusPaid      Status = "PAYEE"
	StatusCancelled Status = "ANNULEE"
	StatusOverdue   Status = "EN_RETARD"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusDraft, StatusIssued, StatusPaid, StatusCancelled, StatusOverdue}

// Rank is the position of s in Statuses, or len(Statuses) when unknown.
func (s Status) Rank() int {
	for i, st := range Statuses {
		if st == s {
			return i
		}
	}
	return len(Statuses)
}

var transitions = map[Status][]Status{
	StatusDraft:     {StatusIssued, StatusCancelled},
	StatusIssued:    {StatusPaid, StatusCancelled, StatusOverdue},
	StatusPaid:      {},
	StatusCancelled: {StatusDraft},
	StatusOverdue:   {StatusPaid, StatusCancelled},
}

// ParseStatus accepts the wire value of a status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown invoice status %q", s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) String() string { return string(s) }

// CanTransitionTo reports whether the table allows s -> to. A self transition
// is always allowed.
func (s Status) CanTransitionTo(to Status) bool {
	if !s.Valid() || !to.Valid() {
		return false
	}
	if s == to {
		return true
	}
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the targets reachable from s, self excluded.
func (s Status) AllowedTransitions() []Status {
	out := make([]Status, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// Transition validates from -> to against the table.
func Transition(from, to Status) error {
	if !from.CanTransitionTo(to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

func (s Status) Editable() bool { return s == StatusDraft }

func (s Status) Deletable() bool { return s == StatusDraft || s == StatusCancelled }

// Overdue reports a passed due date on an invoice still awaiting emission or
// payment. Dates are compared on calendar days.
func Overdue(s Status, dueDate, today time.Time) bool {
	if s != StatusIssued && s != StatusDraft {
		return false
	}
	return Day(dueDate).Before(Day(today))
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

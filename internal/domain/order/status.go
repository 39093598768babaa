package order

import (
	"strings"

	"github.com/go-faster/errors"
)

// Status is the fulfillment state of an order. Values are always lowercase.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every status in pipeline order.
var Statuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
}

// ErrUnknownStatus is returned by ParseStatus for values outside the enum.
var ErrUnknownStatus = errors.New("unknown order status")

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusDelivered, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
	StatusDelivered:  nil,
	StatusCancelled:  nil,
}

// NormalizeStatus maps a stored status onto the enum. Matching ignores case
// and surrounding space; empty and unrecognized values become StatusPending.
func NormalizeStatus(raw string) Status {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := transitions[s]; ok {
		return s
	}
	return StatusPending
}

// ParseStatus is the strict counterpart of NormalizeStatus used for
// requested target statuses.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := transitions[s]; !ok {
		return "", errors.Wrapf(ErrUnknownStatus, "%q", raw)
	}
	return s, nil
}

func (s Status) String() string { return string(s) }

// Terminal reports whether no transition out of s is legal.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Targets returns the statuses reachable from s in one step.
func (s Status) Targets() []Status {
	out := make([]Status, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// CanTransition reports whether an order in status from may be moved to
// status to. Both arguments are normalized first. Self-transitions are never
// legal.
func CanTransition(from, to Status) bool {
	from = NormalizeStatus(string(from))
	to = Status(strings.ToLower(strings.TrimSpace(string(to))))
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

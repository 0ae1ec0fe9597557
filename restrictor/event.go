package restrictor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EventType classifies recorded events.
type EventType uint8

const (
	// EventAttempt is recorded when a challenge is sent.
	EventAttempt EventType = iota + 1
	// EventSuccess is recorded when a response verifies.
	EventSuccess
	// EventFailure is recorded when a response does not verify.
	EventFailure
)

// AllEventTypes lists every event type in a stable order.
var AllEventTypes = []EventType{EventAttempt, EventSuccess, EventFailure}

func (t EventType) String() string {
	switch t {
	case EventAttempt:
		return "attempt"
	case EventSuccess:
		return "success"
	case EventFailure:
		return "failure"
	default:
		return fmt.Sprintf("event(%d)", uint8(t))
	}
}

// Valid reports whether t is a known type.
func (t EventType) Valid() bool {
	return t >= EventAttempt && t <= EventFailure
}

// Event is a single append-only record.
type Event struct {
	Key  string
	Type EventType
	At   time.Time
}

// Rule is a policy bound to the event types it counts.
type Rule struct {
	Kind   LimitKind
	Policy Policy
	Types  []EventType
}

// EventStore persists events and counts them over a window.
type EventStore interface {
	// Count returns the number of events for key of any of types with At >= since.
	Count(ctx context.Context, key string, since time.Time, types ...EventType) (int, error)
	// Append stores ev.
	Append(ctx context.Context, ev Event) error
	// Prune drops events for key older than before.
	Prune(ctx context.Context, key string, before time.Time) error
}

// AtomicStore can count and append in one backend transaction.
type AtomicStore interface {
	EventStore
	// AppendWithin appends ev unless a rule is violated at ev.At. It returns the
	// index of the first violated rule, or -1 when ev was stored.
	AppendWithin(ctx context.Context, ev Event, rules []Rule) (int, error)
}

var (
	// ErrLimitReached is matched by every *LimitError.
	ErrLimitReached = errors.New("restrictor: limit reached")
	// ErrStoreUnavailable wraps event store failures.
	ErrStoreUnavailable = errors.New("restrictor: event store unavailable")
	// ErrInvalidEvent is returned for empty keys and unknown event types.
	ErrInvalidEvent = errors.New("restrictor: invalid event")
)

// LimitKind names the policy table that refused an event.
type LimitKind uint8

const (
	// LimitTotal is the table applied to every event.
	LimitTotal LimitKind = iota + 1
	// LimitFailure is the table applied to failures.
	LimitFailure
)

func (k LimitKind) String() string {
	switch k {
	case LimitTotal:
		return "attempt"
	case LimitFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// LimitError reports the window/limit pair that refused an event.
type LimitError struct {
	Kind   LimitKind
	Window time.Duration
	Max    int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("restrictor: %s limit of %d per %s reached", e.Kind, e.Max, e.Window)
}

// Is makes errors.Is(err, ErrLimitReached) hold.
func (e *LimitError) Is(target error) bool {
	return target == ErrLimitReached
}

// AsLimitError unwraps err into a *LimitError.
func AsLimitError(err error) (*LimitError, bool) {
	var le *LimitError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

func countMatches(t EventType, types []EventType) bool {
	if len(types) == 0 {
		return true
	}
	for _, want := range types {
		if t == want {
			return true
		}
	}
	return false
}

package restrictor

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/goStepUp/clock"
)

const lockStripes = 256

// Config holds the two policy tables.
type Config struct {
	// Total applies to every event type.
	Total []Policy
	// Failures applies to failure events only.
	Failures []Policy
	// Logger receives prune failures. Defaults to slog.Default().
	Logger *slog.Logger
}

// Restrictor enforces Config over an EventStore.
type Restrictor struct {
	store     EventStore
	atomic    AtomicStore
	total     []Policy
	failures  []Policy
	retention time.Duration
	clock     clock.Clock
	logger    *slog.Logger
	locks     [lockStripes]sync.Mutex
}

// New validates cfg and returns a Restrictor recording into store.
func New(store EventStore, cfg Config, c clock.Clock) (*Restrictor, error) {
	if store == nil {
		return nil, errors.New("restrictor: event store required")
	}
	if err := validatePolicies(cfg.Total); err != nil {
		return nil, err
	}
	if err := validatePolicies(cfg.Failures); err != nil {
		return nil, err
	}

	r := &Restrictor{
		store:    store,
		total:    append([]Policy(nil), cfg.Total...),
		failures: append([]Policy(nil), cfg.Failures...),
		clock:    clock.OrSystem(c),
		logger:   cfg.Logger,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	sortPolicies(r.total)
	sortPolicies(r.failures)
	if a, ok := store.(AtomicStore); ok {
		r.atomic = a
	}
	for _, p := range append(append([]Policy(nil), r.total...), r.failures...) {
		if p.Window > r.retention {
			r.retention = p.Window
		}
	}
	return r, nil
}

// Retention is the largest configured window; older events are irrelevant.
func (r *Restrictor) Retention() time.Duration {
	return r.retention
}

// Rules returns the rules that apply to an event of type t.
func (r *Restrictor) Rules(t EventType) []Rule {
	rules := make([]Rule, 0, len(r.total)+len(r.failures))
	for _, p := range r.total {
		rules = append(rules, Rule{Kind: LimitTotal, Policy: p})
	}
	if t == EventFailure {
		for _, p := range r.failures {
			rules = append(rules, Rule{Kind: LimitFailure, Policy: p, Types: []EventType{EventFailure}})
		}
	}
	return rules
}

// Allow reports whether an event of type t could be recorded for key now,
// without recording it. It returns a *LimitError when a rule would refuse it.
func (r *Restrictor) Allow(ctx context.Context, key string, t EventType) error {
	if err := validateEvent(key, t); err != nil {
		return err
	}
	mu := r.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	_, err := r.check(ctx, key, r.Rules(t), r.clock.Now())
	return err
}

// Record counts matching events and stores a new one when every rule passes.
// A refused event is not stored. Once the event is stored Record succeeds;
// pruning failures are only logged.
func (r *Restrictor) Record(ctx context.Context, key string, t EventType) error {
	if err := validateEvent(key, t); err != nil {
		return err
	}
	rules := r.Rules(t)
	now := r.clock.Now()
	ev := Event{Key: key, Type: t, At: now}

	mu := r.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	if r.atomic != nil {
		idx, err := r.atomic.AppendWithin(ctx, ev, rules)
		if err != nil {
			return wrapStore(err)
		}
		if idx >= 0 {
			return limitError(rules[idx])
		}
		r.prune(ctx, key, now)
		return nil
	}

	if _, err := r.check(ctx, key, rules, now); err != nil {
		return err
	}
	if err := r.store.Append(ctx, ev); err != nil {
		return wrapStore(err)
	}
	r.prune(ctx, key, now)
	return nil
}

// Count returns events of types for key within window of now.
func (r *Restrictor) Count(ctx context.Context, key string, window time.Duration, types ...EventType) (int, error) {
	n, err := r.store.Count(ctx, key, r.clock.Now().Add(-window), types...)
	if err != nil {
		return 0, wrapStore(err)
	}
	return n, nil
}

func (r *Restrictor) check(ctx context.Context, key string, rules []Rule, now time.Time) (int, error) {
	for i, rule := range rules {
		n, err := r.store.Count(ctx, key, now.Add(-rule.Policy.Window), rule.Types...)
		if err != nil {
			return i, wrapStore(err)
		}
		if n >= rule.Policy.Max {
			return i, limitError(rule)
		}
	}
	return -1, nil
}

// prune drops events that no window can see. The event that triggered it is
// already stored, so failures never reach the caller.
func (r *Restrictor) prune(ctx context.Context, key string, now time.Time) {
	if r.retention <= 0 {
		return
	}
	if err := r.store.Prune(ctx, key, now.Add(-r.retention)); err != nil {
		r.logger.WarnContext(ctx, "prune restriction events failed",
			slog.String("error", err.Error()),
		)
	}
}

func (r *Restrictor) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &r.locks[h.Sum32()%lockStripes]
}

func limitError(rule Rule) *LimitError {
	return &LimitError{Kind: rule.Kind, Window: rule.Policy.Window, Max: rule.Policy.Max}
}

func validateEvent(key string, t EventType) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidEvent)
	}
	if !t.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidEvent, t)
	}
	return nil
}

func wrapStore(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	var le *LimitError
	if errors.As(err, &le) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

package event

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/example/user-registration/internal/models"
)

// Subscriber receives facts on the in-process channel. Handlers run on the
// caller's goroutine, inside the caller's unit of work, so a returned error
// aborts the triggering operation.
type Subscriber interface {
	Name() string
	// Handles reports whether the subscriber wants facts of the given type.
	Handles(factType string) bool
	Handle(ctx context.Context, fact models.Fact) error
}

// Registration pairs a subscriber with its dispatch priority. Lower
// priorities run first.
type Registration struct {
	Priority   int
	Subscriber Subscriber
}

// Dispatcher delivers a fact synchronously to every registered subscriber
// that handles its type, in ascending priority order. Delivery is fail-fast:
// the first subscriber error stops the walk and propagates unchanged.
type Dispatcher struct {
	regs   []Registration
	logger zerolog.Logger
}

// NewDispatcher resolves the subscriber list once, at construction. The
// order is deterministic: ascending priority, registration order breaking
// ties.
func NewDispatcher(logger zerolog.Logger, regs ...Registration) *Dispatcher {
	sorted := make([]Registration, len(regs))
	copy(sorted, regs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	return &Dispatcher{
		regs:   sorted,
		logger: logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch walks the subscriber list for the fact's type. Subscribers that
// ran before a failure are not compensated; the caller is expected to roll
// back the whole operation.
func (d *Dispatcher) Dispatch(ctx context.Context, fact models.Fact) error {
	if fact == nil {
		return nil
	}

	for _, reg := range d.regs {
		if !reg.Subscriber.Handles(fact.FactType()) {
			continue
		}
		if err := reg.Subscriber.Handle(ctx, fact); err != nil {
			d.logger.Warn().
				Str("subscriber", reg.Subscriber.Name()).
				Str("event_type", fact.FactType()).
				Str("aggregate_id", fact.AggregateID()).
				Err(err).
				Msg("subscriber failed; aborting dispatch")
			return err
		}
	}
	return nil
}

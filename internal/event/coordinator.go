package event

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/example/user-registration/internal/models"
)

// Publisher is the durable channel leg of the coordinator. Implementations
// submit asynchronously; an error return means the fact could not be handed
// to the broker client at all.
type Publisher interface {
	Publish(ctx context.Context, fact models.Fact) error
}

// Coordinator sequences the two delivery channels for a fact. The in-process
// channel is part of the caller's atomic operation: its failure propagates
// and the durable leg is never attempted. The durable channel is best-effort
// cross-service notification: its failure is logged and swallowed so broker
// unavailability can never block a user-visible write.
type Coordinator struct {
	dispatcher *Dispatcher
	publisher  Publisher
	logger     zerolog.Logger
}

// NewCoordinator wires the two channels together.
func NewCoordinator(dispatcher *Dispatcher, publisher Publisher, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger.With().Str("component", "coordinator").Logger(),
	}
}

// Notify delivers the fact on both channels. The only error it can return is
// a subscriber error from the in-process channel, passed through unchanged.
// Serialization and enqueue errors on the durable leg are logged here and
// swallowed; local side effects have already committed at that point, so
// failing the write would leave the two channels inconsistent.
func (c *Coordinator) Notify(ctx context.Context, fact models.Fact) error {
	if fact == nil {
		return nil
	}

	if err := c.dispatcher.Dispatch(ctx, fact); err != nil {
		return err
	}

	if c.publisher == nil {
		return nil
	}
	if err := c.publisher.Publish(ctx, fact); err != nil {
		c.logger.Error().
			Str("event_type", fact.FactType()).
			Str("aggregate_id", fact.AggregateID()).
			Err(err).
			Msg("durable publish failed; write proceeds without broker notification")
	}
	return nil
}

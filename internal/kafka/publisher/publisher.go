package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/example/user-registration/internal/kafka/producer"
	"github.com/example/user-registration/internal/models"
)

var errProducerNotInitialised = errors.New("kafka publisher: producer not initialised")

// AsyncProducer captures the producer behaviour the event publisher needs.
type AsyncProducer interface {
	SendAsync(topic string, key []byte, headers map[string][]byte, payload []byte, cb producer.DeliveryCallback) error
}

// SyncProducer captures the producer behaviour the dead-letter publisher
// needs.
type SyncProducer interface {
	SendSync(topic string, key []byte, headers map[string][]byte, payload []byte) error
}

// ErrProducerNotInitialised exposes the sentinel error for callers and tests.
func ErrProducerNotInitialised() error {
	return errProducerNotInitialised
}

// EventPublisher is the durable channel. Each fact is serialized to JSON and
// sent asynchronously to the topic named after its event type; the message
// key is the string form of the aggregate id, so all facts about one
// aggregate hash to the same partition and are consumed in emission order.
// Nothing prevents two entity types from sharing an identifier space; if
// that ever happens their ordering becomes coupled. The envelope's
// event_type field is the only way to tell them apart downstream.
type EventPublisher struct {
	producer AsyncProducer
	logger   zerolog.Logger
}

// NewEventPublisher constructs an EventPublisher instance.
func NewEventPublisher(prod AsyncProducer, logger zerolog.Logger) *EventPublisher {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &EventPublisher{
		producer: prod,
		logger:   logger.With().Str("component", "event_publisher").Logger(),
	}
}

// Publish submits the fact and returns without waiting for the broker. The
// returned error covers only pre-send conditions (nil producer, marshal
// failure, full client buffer); broker-side outcomes arrive on the delivery
// callback, where success logs partition and offset and failure logs the
// error. Neither outcome reaches the caller.
func (p *EventPublisher) Publish(_ context.Context, fact models.Fact) error {
	if p == nil || p.producer == nil {
		return errProducerNotInitialised
	}
	if fact == nil {
		return errors.New("kafka publisher: fact is required")
	}

	payload, err := json.Marshal(fact)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal %s: %w", fact.FactType(), err)
	}

	topic := fact.FactType()
	key := []byte(fact.AggregateID())
	headers := map[string][]byte{
		"content-type": []byte("application/json"),
		"event-type":   []byte(fact.FactType()),
	}

	lg := p.logger.With().
		Str("topic", topic).
		Str("aggregate_id", fact.AggregateID()).
		Logger()

	cb := func(partition int32, offset int64, err error) {
		if err != nil {
			lg.Error().Err(err).Msg("event delivery failed")
			return
		}
		lg.Info().
			Int32("partition", partition).
			Int64("offset", offset).
			Msg("event delivered")
	}

	if err := p.producer.SendAsync(topic, key, headers, payload, cb); err != nil {
		return fmt.Errorf("kafka publisher: enqueue %s: %w", topic, err)
	}
	return nil
}

// DeadLetterPublisher writes exhausted-retry records to the dead-letter
// topic derived from the originating topic. Sends are synchronous: the
// recovery policy must see the record accepted before it commits the failed
// offset.
type DeadLetterPublisher struct {
	producer SyncProducer
	suffix   string
	logger   zerolog.Logger
}

// NewDeadLetterPublisher constructs a DeadLetterPublisher. An empty suffix
// falls back to the standard ".dlt".
func NewDeadLetterPublisher(prod SyncProducer, suffix string, logger zerolog.Logger) *DeadLetterPublisher {
	if prod == nil {
		return nil
	}
	if suffix == "" {
		suffix = models.DeadLetterSuffix
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &DeadLetterPublisher{
		producer: prod,
		suffix:   suffix,
		logger:   logger.With().Str("component", "dlt_publisher").Logger(),
	}
}

// Publish writes the record to "<original topic><suffix>", keyed like the
// original message so replay tooling preserves partition affinity.
func (p *DeadLetterPublisher) Publish(_ context.Context, record models.DeadLetterRecord) error {
	if p == nil || p.producer == nil {
		return errProducerNotInitialised
	}
	if record.OriginalTopic == "" {
		return errors.New("kafka publisher: dead-letter record missing original topic")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal dead-letter record: %w", err)
	}

	topic := record.OriginalTopic + p.suffix
	headers := map[string][]byte{
		"content-type": []byte("application/json"),
	}

	if err := p.producer.SendSync(topic, []byte(record.Key), headers, payload); err != nil {
		return fmt.Errorf("kafka publisher: publish dead-letter record: %w", err)
	}

	p.logger.Warn().
		Str("topic", topic).
		Str("key", record.Key).
		Int("attempts", record.Attempts).
		Msg("record dead-lettered")
	return nil
}

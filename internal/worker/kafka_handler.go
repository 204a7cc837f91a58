package worker

import (
	"context"

	"github.com/example/user-registration/internal/kafka/consumer"
)

// NewRecordFromConsumer builds an engine record from a Kafka consumer record
// and binds the commit function to the underlying offset.
func NewRecordFromConsumer(rec *consumer.Record, commit func(ctx context.Context) error) *Record {
	if rec == nil {
		return nil
	}
	return &Record{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       rec.Key,
		Value:     rec.Value,
		Timestamp: rec.Timestamp,
		Headers:   rec.Headers,
		commit:    commit,
	}
}

// KafkaHandler adapts the engine to the consumer's handler contract. The
// engine runs synchronously inside the claim loop, so retry delays hold back
// only the partition the record arrived on.
func KafkaHandler(engine *Engine, cons *consumer.Consumer) consumer.Handler {
	return func(ctx context.Context, rec *consumer.Record) error {
		if engine == nil || rec == nil {
			return nil
		}

		commitFn := func(context.Context) error { return nil }
		if cons != nil {
			commitFn = func(c context.Context) error {
				return cons.Commit(c, rec)
			}
		}

		return engine.HandleRecord(ctx, NewRecordFromConsumer(rec, commitFn))
	}
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/example/user-registration/internal/models"
)

// Config contains the recovery settings applied to every consumed record.
type Config struct {
	// RetryAttempts is the total number of times a record is handed to the
	// processor before it is dead-lettered.
	RetryAttempts int
	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration
	// MaxInFlight bounds records being processed across all partitions.
	MaxInFlight int
}

// Record is a broker message as seen by the engine, decoupled from the
// concrete consumer. The commit function binds back to the originating
// offset.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
	Headers   map[string][]byte

	commit func(ctx context.Context) error
}

// Commit acknowledges the record's offset.
func (r *Record) Commit(ctx context.Context) error {
	if r == nil || r.commit == nil {
		return nil
	}
	return r.commit(ctx)
}

// Processor applies the business-side effect of one delivered record.
type Processor interface {
	Process(ctx context.Context, record *Record) error
}

// ProcessFunc adapts a function to the Processor interface.
type ProcessFunc func(ctx context.Context, record *Record) error

// Process implements Processor.
func (f ProcessFunc) Process(ctx context.Context, record *Record) error { return f(ctx, record) }

// DeadLetterPublisher routes an exhausted record to the dead-letter
// destination derived from its originating topic.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, record models.DeadLetterRecord) error
}

// Dependencies collects the collaborators required by the engine.
type Dependencies struct {
	Processor  Processor
	DeadLetter DeadLetterPublisher
	Logger     zerolog.Logger
	Now        func() time.Time
}

// Engine applies the recovery policy to consumed records: a failing
// processor is retried a fixed number of times with a fixed delay, then the
// record is dead-lettered and its offset committed so the partition
// advances. Retries run inline on the consuming goroutine, so a failing
// record delays only its own partition.
type Engine struct {
	cfg        Config
	processor  Processor
	deadLetter DeadLetterPublisher
	logger     zerolog.Logger
	inFlight   *semaphore.Weighted
	now        func() time.Time
}

// NewEngine validates configuration and dependencies and constructs an
// engine.
func NewEngine(cfg Config, deps Dependencies) (*Engine, error) {
	if cfg.RetryAttempts < 1 {
		return nil, errors.New("worker: retry attempts must be >= 1")
	}
	if cfg.RetryDelay < 0 {
		return nil, errors.New("worker: retry delay cannot be negative")
	}
	if cfg.MaxInFlight < 1 {
		cfg.MaxInFlight = 1
	}
	if deps.Processor == nil {
		return nil, errors.New("worker: processor dependency is required")
	}
	if deps.DeadLetter == nil {
		return nil, errors.New("worker: dead-letter publisher dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "recovery_engine").Logger()

	nowFunc := deps.Now
	if nowFunc == nil {
		nowFunc = time.Now
	}

	return &Engine{
		cfg:        cfg,
		processor:  deps.Processor,
		deadLetter: deps.DeadLetter,
		logger:     logger,
		inFlight:   semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		now:        nowFunc,
	}, nil
}

// HandleRecord runs the full recovery policy for one record and returns once
// the record is either processed, dead-lettered, or abandoned due to
// shutdown. A non-nil return means the record was neither processed nor
// dead-lettered and will be redelivered.
func (e *Engine) HandleRecord(ctx context.Context, record *Record) error {
	if record == nil {
		return nil
	}

	if err := e.inFlight.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.inFlight.Release(1)

	lg := e.logger.With().
		Str("topic", record.Topic).
		Int32("partition", record.Partition).
		Int64("offset", record.Offset).
		Logger()

	var lastErr error
	for attempt := 1; attempt <= e.cfg.RetryAttempts; attempt++ {
		err := e.processor.Process(ctx, record)
		if err == nil {
			if attempt > 1 {
				lg.Info().Int("attempt", attempt).Msg("record processed after retry")
			}
			return e.commit(ctx, record, lg)
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			lg.Warn().Err(err).Msg("context cancelled during processing; record will be redelivered")
			return err
		}

		lastErr = err
		lg.Warn().Int("attempt", attempt).Err(err).Msg("processing failed")

		if attempt < e.cfg.RetryAttempts {
			if !e.wait(ctx) {
				lg.Warn().Msg("context cancelled between retries; record will be redelivered")
				return ctx.Err()
			}
		}
	}

	if err := e.publishDeadLetter(ctx, record, lastErr); err != nil {
		// Leave the offset uncommitted so the record is redelivered rather
		// than lost.
		lg.Error().Err(err).Msg("dead-letter publish failed; deferring commit")
		return err
	}

	return e.commit(ctx, record, lg)
}

func (e *Engine) publishDeadLetter(ctx context.Context, record *Record, lastErr error) error {
	reason := ""
	if lastErr != nil {
		reason = lastErr.Error()
	}

	// A payload that is not valid JSON would make the dead-letter record
	// itself unmarshalable; carry it as a JSON string instead.
	payload := json.RawMessage(append([]byte(nil), record.Value...))
	if !json.Valid(payload) {
		payload, _ = json.Marshal(string(record.Value))
	}

	dlr := models.DeadLetterRecord{
		OriginalTopic:     record.Topic,
		OriginalPartition: record.Partition,
		OriginalOffset:    record.Offset,
		Key:               string(record.Key),
		Payload:           payload,
		Attempts:          e.cfg.RetryAttempts,
		LastError:         reason,
		FailedAt:          e.now(),
	}

	return e.deadLetter.Publish(ctx, dlr)
}

func (e *Engine) commit(ctx context.Context, record *Record, lg zerolog.Logger) error {
	if err := record.Commit(ctx); err != nil {
		lg.Error().Err(err).Msg("offset commit failed")
		return err
	}
	return nil
}

// wait blocks for the configured fixed delay, returning false when the
// context ends first.
func (e *Engine) wait(ctx context.Context) bool {
	if e.cfg.RetryDelay <= 0 {
		return true
	}

	timer := time.NewTimer(e.cfg.RetryDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

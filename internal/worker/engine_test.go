package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/user-registration/internal/kafka/consumer"
	"github.com/example/user-registration/internal/models"
	"github.com/example/user-registration/internal/worker"
)

type fakeProcessor struct {
	failures int // fail this many leading attempts, then succeed
	always   error
	attempts int
}

func (p *fakeProcessor) Process(context.Context, *worker.Record) error {
	p.attempts++
	if p.always != nil {
		return p.always
	}
	if p.attempts <= p.failures {
		return errors.New("transient failure")
	}
	return nil
}

type fakeDeadLetter struct {
	err     error
	records []models.DeadLetterRecord
}

func (d *fakeDeadLetter) Publish(_ context.Context, record models.DeadLetterRecord) error {
	if d.err != nil {
		return d.err
	}
	d.records = append(d.records, record)
	return nil
}

func newEngine(t *testing.T, cfg worker.Config, proc worker.Processor, dlt worker.DeadLetterPublisher) *worker.Engine {
	t.Helper()
	eng, err := worker.NewEngine(cfg, worker.Dependencies{
		Processor:  proc,
		DeadLetter: dlt,
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return time.Unix(1700000000, 0).UTC() },
	})
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}
	return eng
}

func testRecord(commits *int) *worker.Record {
	rec := &consumer.Record{
		Topic:     "user.created",
		Partition: 2,
		Offset:    7,
		Key:       []byte("U1"),
		Value:     []byte(`{"user_id":"U1"}`),
	}
	return worker.NewRecordFromConsumer(rec, func(context.Context) error {
		*commits++
		return nil
	})
}

func TestSuccessCommitsWithoutDeadLetter(t *testing.T) {
	proc := &fakeProcessor{}
	dlt := &fakeDeadLetter{}
	eng := newEngine(t, worker.Config{RetryAttempts: 3}, proc, dlt)

	commits := 0
	if err := eng.HandleRecord(context.Background(), testRecord(&commits)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proc.attempts != 1 {
		t.Fatalf("expected single attempt, got %d", proc.attempts)
	}
	if commits != 1 {
		t.Fatalf("expected one commit, got %d", commits)
	}
	if len(dlt.records) != 0 {
		t.Fatalf("nothing should be dead-lettered on success")
	}
}

func TestRetriesThenSucceeds(t *testing.T) {
	proc := &fakeProcessor{failures: 2}
	dlt := &fakeDeadLetter{}
	eng := newEngine(t, worker.Config{RetryAttempts: 3, RetryDelay: time.Millisecond}, proc, dlt)

	commits := 0
	if err := eng.HandleRecord(context.Background(), testRecord(&commits)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proc.attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", proc.attempts)
	}
	if commits != 1 {
		t.Fatalf("expected one commit, got %d", commits)
	}
	if len(dlt.records) != 0 {
		t.Fatalf("recovered record must not be dead-lettered")
	}
}

func TestExhaustedRetriesDeadLetterThenCommit(t *testing.T) {
	proc := &fakeProcessor{always: errors.New("handler always fails")}
	dlt := &fakeDeadLetter{}
	eng := newEngine(t, worker.Config{RetryAttempts: 3, RetryDelay: time.Millisecond}, proc, dlt)

	commits := 0
	if err := eng.HandleRecord(context.Background(), testRecord(&commits)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if proc.attempts != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", proc.attempts)
	}
	if len(dlt.records) != 1 {
		t.Fatalf("expected one dead-letter record, got %d", len(dlt.records))
	}
	record := dlt.records[0]
	if record.OriginalTopic != "user.created" || record.OriginalPartition != 2 || record.OriginalOffset != 7 {
		t.Fatalf("dead-letter record missing origin metadata: %+v", record)
	}
	if record.Attempts != 3 {
		t.Fatalf("expected attempts=3 in record, got %d", record.Attempts)
	}
	if record.LastError != "handler always fails" {
		t.Fatalf("expected last error summary, got %q", record.LastError)
	}
	if string(record.Payload) != `{"user_id":"U1"}` {
		t.Fatalf("original payload must be carried verbatim, got %s", record.Payload)
	}
	// offset advances only after the dead-letter publish succeeded
	if commits != 1 {
		t.Fatalf("expected one commit after dead-lettering, got %d", commits)
	}
}

func TestFixedDelayBetweenAttempts(t *testing.T) {
	proc := &fakeProcessor{always: errors.New("fail")}
	dlt := &fakeDeadLetter{}
	delay := 20 * time.Millisecond
	eng := newEngine(t, worker.Config{RetryAttempts: 3, RetryDelay: delay}, proc, dlt)

	commits := 0
	start := time.Now()
	if err := eng.HandleRecord(context.Background(), testRecord(&commits)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	elapsed := time.Since(start)

	// two inter-attempt pauses for three attempts
	if elapsed < 2*delay {
		t.Fatalf("expected at least %v of fixed delays, took %v", 2*delay, elapsed)
	}
}

func TestDeadLetterFailureDefersCommit(t *testing.T) {
	proc := &fakeProcessor{always: errors.New("fail")}
	dltErr := errors.New("dlt unreachable")
	eng := newEngine(t, worker.Config{RetryAttempts: 2, RetryDelay: time.Millisecond}, proc, &fakeDeadLetter{err: dltErr})

	commits := 0
	err := eng.HandleRecord(context.Background(), testRecord(&commits))
	if !errors.Is(err, dltErr) {
		t.Fatalf("expected dead-letter error, got %v", err)
	}
	if commits != 0 {
		t.Fatalf("offset must stay uncommitted when dead-lettering fails, got %d commits", commits)
	}
}

func TestContextCancellationAbandonsRecord(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	proc := worker.ProcessFunc(func(context.Context, *worker.Record) error {
		cancel()
		return context.Canceled
	})
	dlt := &fakeDeadLetter{}
	eng := newEngine(t, worker.Config{RetryAttempts: 3, RetryDelay: time.Second}, proc, dlt)

	commits := 0
	err := eng.HandleRecord(ctx, testRecord(&commits))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if commits != 0 {
		t.Fatalf("cancelled record must not be committed")
	}
	if len(dlt.records) != 0 {
		t.Fatalf("cancelled record must not be dead-lettered")
	}
}

func TestNewEngineValidation(t *testing.T) {
	deps := worker.Dependencies{
		Processor:  &fakeProcessor{},
		DeadLetter: &fakeDeadLetter{},
		Logger:     zerolog.Nop(),
	}

	if _, err := worker.NewEngine(worker.Config{RetryAttempts: 0}, deps); err == nil {
		t.Fatalf("expected error for zero retry attempts")
	}
	if _, err := worker.NewEngine(worker.Config{RetryAttempts: 1}, worker.Dependencies{DeadLetter: &fakeDeadLetter{}}); err == nil {
		t.Fatalf("expected error for missing processor")
	}
	if _, err := worker.NewEngine(worker.Config{RetryAttempts: 1}, worker.Dependencies{Processor: &fakeProcessor{}}); err == nil {
		t.Fatalf("expected error for missing dead-letter publisher")
	}
}

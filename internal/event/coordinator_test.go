package event_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/user-registration/internal/event"
	"github.com/example/user-registration/internal/models"
)

type fakePublisher struct {
	err   error
	facts []models.Fact
}

func (p *fakePublisher) Publish(_ context.Context, fact models.Fact) error {
	p.facts = append(p.facts, fact)
	return p.err
}

func TestNotifyDispatchesThenPublishes(t *testing.T) {
	sub := &recordingSubscriber{name: "sub"}
	pub := &fakePublisher{}
	c := event.NewCoordinator(
		event.NewDispatcher(zerolog.Nop(), event.Registration{Priority: 1, Subscriber: sub}),
		pub,
		zerolog.Nop(),
	)

	fact := testFact()
	if err := c.Notify(context.Background(), fact); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.handled != 1 {
		t.Fatalf("subscriber not invoked")
	}
	if len(pub.facts) != 1 || pub.facts[0].AggregateID() != fact.UserID {
		t.Fatalf("publisher did not receive the fact: %+v", pub.facts)
	}
}

func TestNotifyPropagatesSubscriberErrorAndSkipsPublish(t *testing.T) {
	boom := errors.New("local side effect failed")
	sub := &recordingSubscriber{name: "sub", err: boom}
	pub := &fakePublisher{}
	c := event.NewCoordinator(
		event.NewDispatcher(zerolog.Nop(), event.Registration{Priority: 1, Subscriber: sub}),
		pub,
		zerolog.Nop(),
	)

	err := c.Notify(context.Background(), testFact())
	if !errors.Is(err, boom) {
		t.Fatalf("expected subscriber error unchanged, got %v", err)
	}
	if len(pub.facts) != 0 {
		t.Fatalf("durable publisher must never be invoked after a fan-out failure")
	}
}

func TestNotifySwallowsPublishError(t *testing.T) {
	var buf strings.Builder
	logger := zerolog.New(&buf)

	sub := &recordingSubscriber{name: "sub"}
	pub := &fakePublisher{err: errors.New("broker unreachable")}
	c := event.NewCoordinator(
		event.NewDispatcher(zerolog.Nop(), event.Registration{Priority: 1, Subscriber: sub}),
		pub,
		logger,
	)

	if err := c.Notify(context.Background(), testFact()); err != nil {
		t.Fatalf("publish failure must not propagate, got %v", err)
	}
	if !strings.Contains(buf.String(), "broker unreachable") {
		t.Fatalf("publish failure must be logged, log output: %s", buf.String())
	}
}

func TestNotifyNilFactIsNoop(t *testing.T) {
	pub := &fakePublisher{}
	c := event.NewCoordinator(event.NewDispatcher(zerolog.Nop()), pub, zerolog.Nop())

	if err := c.Notify(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.facts) != 0 {
		t.Fatalf("nothing should be published for a nil fact")
	}
}

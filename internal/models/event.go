package models

import "time"

// Event type constants. The type doubles as the Kafka topic name, following
// the dotted domain convention.
const (
	EventTypeUserCreated = "user.created"
)

// Fact is the envelope behaviour shared by every domain event that flows
// through the dispatch pipeline. A fact is immutable: it records something
// that already happened and is never updated after construction.
type Fact interface {
	// FactType returns the dotted event type, e.g. "user.created".
	FactType() string
	// AggregateID identifies the aggregate the fact belongs to. All facts
	// sharing an aggregate id are delivered in emission order on the durable
	// channel.
	AggregateID() string
	// OccurredAt is the absolute time the underlying change happened.
	OccurredAt() time.Time
}

// UserCreated is emitted once a user registration has been persisted.
type UserCreated struct {
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Segment   string    `json:"segment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FactType returns the dotted event type for user creation.
func (e UserCreated) FactType() string { return EventTypeUserCreated }

// AggregateID returns the user id the event belongs to.
func (e UserCreated) AggregateID() string { return e.UserID }

// OccurredAt returns the creation timestamp.
func (e UserCreated) OccurredAt() time.Time { return e.CreatedAt }

package event

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/example/user-registration/internal/models"
)

// Default priorities for the built-in subscribers. External collaborators
// pick their own values; lower runs first.
const (
	PriorityAudit   = 10
	PriorityWelcome = 20
)

// AuditSubscriber writes an audit line for every user.created fact. It is
// deliberately first in the order so an audit trail exists even when a later
// subscriber aborts the operation.
type AuditSubscriber struct {
	logger zerolog.Logger
}

// NewAuditSubscriber constructs the audit subscriber.
func NewAuditSubscriber(logger zerolog.Logger) *AuditSubscriber {
	return &AuditSubscriber{logger: logger.With().Str("component", "audit").Logger()}
}

// Name identifies the subscriber in dispatch logs.
func (s *AuditSubscriber) Name() string { return "audit" }

// Handles accepts user.created facts.
func (s *AuditSubscriber) Handles(factType string) bool {
	return factType == models.EventTypeUserCreated
}

// Handle records the registration in the audit log.
func (s *AuditSubscriber) Handle(_ context.Context, fact models.Fact) error {
	created, ok := fact.(models.UserCreated)
	if !ok {
		return fmt.Errorf("event: audit: unexpected fact %T", fact)
	}
	s.logger.Info().
		Str("user_id", created.UserID).
		Str("email", created.Email).
		Time("created_at", created.CreatedAt).
		Msg("user registered")
	return nil
}

// WelcomeSender delivers the welcome notification for a new user. The
// concrete transport lives outside this core.
type WelcomeSender interface {
	SendWelcome(ctx context.Context, userID, email, name string) error
}

// WelcomeSubscriber triggers the welcome notification as part of the
// registration's unit of work: if the send fails, the registration aborts.
type WelcomeSubscriber struct {
	sender WelcomeSender
}

// NewWelcomeSubscriber constructs the welcome subscriber.
func NewWelcomeSubscriber(sender WelcomeSender) *WelcomeSubscriber {
	return &WelcomeSubscriber{sender: sender}
}

// Name identifies the subscriber in dispatch logs.
func (s *WelcomeSubscriber) Name() string { return "welcome" }

// Handles accepts user.created facts.
func (s *WelcomeSubscriber) Handles(factType string) bool {
	return factType == models.EventTypeUserCreated
}

// Handle forwards the fact to the welcome sender.
func (s *WelcomeSubscriber) Handle(ctx context.Context, fact models.Fact) error {
	created, ok := fact.(models.UserCreated)
	if !ok {
		return fmt.Errorf("event: welcome: unexpected fact %T", fact)
	}
	return s.sender.SendWelcome(ctx, created.UserID, created.Email, created.Name)
}

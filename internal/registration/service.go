// Package registration holds the write and read use cases. They are thin by
// design: the interesting machinery is the dispatch pipeline and the guarded
// enrichment they drive.
package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/user-registration/internal/enrichment"
	"github.com/example/user-registration/internal/models"
)

var (
	// ErrInvalidInput is returned when email or name fail validation.
	ErrInvalidInput = errors.New("registration: invalid input")
	// ErrNotFound is returned when no user exists for the given id.
	ErrNotFound = errors.New("registration: user not found")
	// ErrEmailTaken is returned when the email is already registered.
	ErrEmailTaken = errors.New("registration: email already registered")
)

// Repository persists users. Implementations outside this core map to real
// storage; the in-memory one here backs tests and local runs.
type Repository interface {
	Save(ctx context.Context, user models.User) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (models.User, error)
}

// Notifier is the dispatch coordinator's entry point.
type Notifier interface {
	Notify(ctx context.Context, fact models.Fact) error
}

// Service implements the registration use cases.
type Service struct {
	repo     Repository
	enricher enrichment.Enricher
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
	newID    func() string
}

// Option customises the service, mainly for tests.
type Option func(*Service)

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides user/event id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewService wires the use cases. The enricher may be nil when the
// dependency is not configured; registration then proceeds unenriched.
func NewService(repo Repository, enricher enrichment.Enricher, notifier Notifier, logger zerolog.Logger, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("registration: repository is required")
	}
	if notifier == nil {
		return nil, errors.New("registration: notifier is required")
	}

	s := &Service{
		repo:     repo,
		enricher: enricher,
		notifier: notifier,
		logger:   logger.With().Str("component", "registration").Logger(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Register validates the input, enriches it through the breaker-guarded
// dependency, persists the user and notifies both event channels. A
// subscriber failure on the in-process channel aborts the registration and
// rolls the persisted row back; enrichment failures of any kind only degrade
// the stored attributes.
func (s *Service) Register(ctx context.Context, email, name string) (models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if email == "" || !strings.Contains(email, "@") {
		return models.User{}, fmt.Errorf("%w: email", ErrInvalidInput)
	}
	if name == "" {
		return models.User{}, fmt.Errorf("%w: name", ErrInvalidInput)
	}

	enriched := s.enrich(ctx, email)

	user := models.User{
		ID:        s.newID(),
		Email:     email,
		Name:      name,
		Country:   enriched.Country,
		Segment:   enriched.Segment,
		CreatedAt: s.now().UTC(),
	}

	if err := s.repo.Save(ctx, user); err != nil {
		return models.User{}, fmt.Errorf("registration: save user: %w", err)
	}

	fact := models.UserCreated{
		EventID:   s.newID(),
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Segment:   user.Segment,
		CreatedAt: user.CreatedAt,
	}

	if err := s.notifier.Notify(ctx, fact); err != nil {
		if delErr := s.repo.Delete(ctx, user.ID); delErr != nil {
			s.logger.Error().
				Str("user_id", user.ID).
				Err(delErr).
				Msg("rollback after subscriber failure also failed")
		}
		return models.User{}, err
	}

	return user, nil
}

// Get returns the user by id.
func (s *Service) Get(ctx context.Context, id string) (models.User, error) {
	if strings.TrimSpace(id) == "" {
		return models.User{}, fmt.Errorf("%w: id", ErrInvalidInput)
	}
	return s.repo.FindByID(ctx, id)
}

// enrich calls the guarded dependency and degrades to an empty enrichment on
// every failure mode: a breaker rejection, a dependency error, a timeout.
// The registration itself must never fail because of optional enrichment.
func (s *Service) enrich(ctx context.Context, email string) models.Enrichment {
	if s.enricher == nil {
		return models.Enrichment{}
	}

	enriched, err := s.enricher.Enrich(ctx, email)
	if err == nil {
		return enriched
	}

	if errors.Is(err, enrichment.ErrUnavailable) {
		s.logger.Warn().Msg("enrichment degraded; registering without profile attributes")
	} else {
		s.logger.Warn().Err(err).Msg("enrichment failed; registering without profile attributes")
	}
	return models.Enrichment{}
}

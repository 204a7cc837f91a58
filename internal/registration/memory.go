package registration

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/user-registration/internal/models"
)

// MemoryRepository is a concurrency-safe in-memory Repository used by tests
// and local runs.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]models.User
	byEmail map[string]string
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]models.User),
		byEmail: make(map[string]string),
	}
}

// Save stores the user, rejecting duplicate emails.
func (r *MemoryRepository) Save(_ context.Context, user models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byEmail[user.Email]; ok && existing != user.ID {
		return fmt.Errorf("%w: %s", ErrEmailTaken, user.Email)
	}
	r.byID[user.ID] = user
	r.byEmail[user.Email] = user.ID
	return nil
}

// Delete removes the user. Deleting an unknown id is a no-op.
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user, ok := r.byID[id]; ok {
		delete(r.byEmail, user.Email)
		delete(r.byID, id)
	}
	return nil
}

// FindByID returns the user or ErrNotFound.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return models.User{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return user, nil
}

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/kordite/voicerelay/internal/models"
	"github.com/kordite/voicerelay/internal/store"
)

// UserStore implements store.UserStore using in-memory storage.
type UserStore struct {
	mu sync.RWMutex

	users map[string]*models.User // uid -> User
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		users: make(map[string]*models.User),
	}
}

// cloneUser copies the record including the roster slice, so callers
// mutating chat entries in place never alias stored state.
func cloneUser(user *models.User) models.User {
	clone := *user
	if user.AvailableChats != nil {
		clone.AvailableChats = append([]models.Chat(nil), user.AvailableChats...)
	}
	return clone
}

// Save upserts the user record.
func (s *UserStore) Save(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := cloneUser(user)
	if existing, ok := s.users[user.UID]; ok {
		clone.CreatedAt = existing.CreatedAt
	} else if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	clone.UpdatedAt = time.Now()

	s.users[user.UID] = &clone
	return nil
}

// Get returns the user or store.ErrUserNotFound.
func (s *UserStore) Get(ctx context.Context, uid string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[uid]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	clone := cloneUser(user)
	return &clone, nil
}

// Delete removes the user record.
func (s *UserStore) Delete(ctx context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[uid]; !exists {
		return store.ErrUserNotFound
	}

	delete(s.users, uid)
	return nil
}

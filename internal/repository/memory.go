package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shlomihaimov1/demoweb/internal/model"
)

// MemoryUserStore and MemoryTokenStore are in-memory stand-ins for the
// Postgres repositories, used by tests that do not need a database. They
// uphold the same contracts, including atomic consume-if-present.

type MemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[string]model.User
	byEmail map[string]model.User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    map[string]model.User{},
		byEmail: map[string]model.User{},
	}
}

func (s *MemoryUserStore) FindByID(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (s *MemoryUserStore) FindByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (s *MemoryUserStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byEmail[normalizeEmail(email)]
	return ok, nil
}

func (s *MemoryUserStore) Create(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeEmail(u.Email)
	if _, ok := s.byEmail[key]; ok {
		return model.ErrUserAlreadyExists
	}

	u.Email = key
	s.byID[u.ID] = u
	s.byEmail[key] = u
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type memoryToken struct {
	userID    string
	expiresAt time.Time
}

type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]memoryToken
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: map[string]memoryToken{}}
}

func (s *MemoryTokenStore) Store(_ context.Context, token string, userID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[token] = memoryToken{userID: userID, expiresAt: expiresAt}
	return nil
}

func (s *MemoryTokenStore) Consume(_ context.Context, token string, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tokens[token]
	if !ok || entry.userID != userID || !entry.expiresAt.After(time.Now()) {
		return false, nil
	}

	delete(s.tokens, token)
	return true, nil
}

func (s *MemoryTokenStore) Exists(_ context.Context, token string, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tokens[token]
	return ok && entry.userID == userID && entry.expiresAt.After(time.Now()), nil
}

func (s *MemoryTokenStore) RevokeAllForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, entry := range s.tokens {
		if entry.userID == userID {
			delete(s.tokens, token)
		}
	}
	return nil
}

func (s *MemoryTokenStore) CleanExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	now := time.Now()
	for token, entry := range s.tokens {
		if !entry.expiresAt.After(now) {
			delete(s.tokens, token)
			removed++
		}
	}
	return removed, nil
}

// CountForUser reports how many valid tokens a user currently holds. Test
// helper for asserting session-list state.
func (s *MemoryTokenStore) CountForUser(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	now := time.Now()
	for _, entry := range s.tokens {
		if entry.userID == userID && entry.expiresAt.After(now) {
			count++
		}
	}
	return count
}

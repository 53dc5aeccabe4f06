package auth

import (
	"context"
	"sync"
	"time"

	"github.com/clipvault/backend/internal/models"
)

// NewInMemorySessionStore returns a SessionStore backed by an in-memory map.
func NewInMemorySessionStore(hasher Hasher, ttl time.Duration) *InMemorySessionStore {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &InMemorySessionStore{
		hasher:   hasher,
		ttl:      ttl,
		sessions: make(map[int64]*models.Session),
		now:      time.Now,
	}
}

// InMemorySessionStore implements SessionStore for tests and local
// development. Revocation happens under the store lock, so the conditional
// transition carries the same first-writer-wins guarantee as the SQL
// variant's conditional update.
type InMemorySessionStore struct {
	mu       sync.Mutex
	hasher   Hasher
	ttl      time.Duration
	nextID   int64
	sessions map[int64]*models.Session
	now      func() time.Time
}

// Create persists a new session holding only the hash of the secret.
func (s *InMemorySessionStore) Create(_ context.Context, userID int64, refreshSecret, userAgent, ip string) (int64, error) {
	hash, err := s.hasher.Hash(refreshSecret)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := s.now().UTC()
	s.sessions[s.nextID] = &models.Session{
		ID:                s.nextID,
		UserID:            userID,
		RefreshSecretHash: hash,
		UserAgent:         userAgent,
		IP:                ip,
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.ttl),
	}
	return s.nextID, nil
}

// FindActive trial-verifies the presented secret against the user's live
// sessions, newest first.
func (s *InMemorySessionStore) FindActive(_ context.Context, userID int64, refreshSecret string) (models.Session, error) {
	now := s.now().UTC()

	s.mu.Lock()
	var candidates []models.Session
	for _, session := range s.sessions {
		if session.UserID == userID && session.Active(now) {
			candidates = append(candidates, *session)
		}
	}
	s.mu.Unlock()

	// Verify outside the lock: bcrypt is deliberately slow.
	best := models.Session{}
	for _, session := range candidates {
		if !s.hasher.Verify(refreshSecret, session.RefreshSecretHash) {
			continue
		}
		if session.ID > best.ID {
			best = session
		}
	}
	if best.ID == 0 {
		return models.Session{}, ErrSessionNotFound
	}
	return best, nil
}

// Revoke marks the session revoked and reports whether this call performed
// the transition.
func (s *InMemorySessionStore) Revoke(_ context.Context, sessionID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.RevokedAt != nil {
		return false, nil
	}
	now := s.now().UTC()
	session.RevokedAt = &now
	return true, nil
}

// RevokeAllForUser revokes every active session owned by the user.
func (s *InMemorySessionStore) RevokeAllForUser(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	for _, session := range s.sessions {
		if session.UserID == userID && session.RevokedAt == nil {
			t := now
			session.RevokedAt = &t
		}
	}
	return nil
}

// ActiveCount reports the number of live sessions for a user. Useful for tests.
func (s *InMemorySessionStore) ActiveCount(userID int64) int {
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, session := range s.sessions {
		if session.UserID == userID && session.Active(now) {
			count++
		}
	}
	return count
}

// WithNowFunc allows tests to override the time source.
func (s *InMemorySessionStore) WithNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

var _ SessionStore = (*InMemorySessionStore)(nil)

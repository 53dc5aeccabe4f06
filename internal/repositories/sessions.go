package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/clipvault/backend/internal/auth"
	"github.com/clipvault/backend/internal/db"
	"github.com/clipvault/backend/internal/models"
)

// PostgresSessionStore persists refresh sessions to PostgreSQL. It is the
// sole writer of user_sessions rows; refresh secrets are stored only as
// one-way hashes produced by the credential manager.
type PostgresSessionStore struct {
	pool   db.Pool
	hasher auth.Hasher
	ttl    time.Duration
}

// NewPostgresSessionStore constructs a session store whose sessions expire
// after the provided TTL.
func NewPostgresSessionStore(pool db.Pool, hasher auth.Hasher, ttl time.Duration) *PostgresSessionStore {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &PostgresSessionStore{pool: pool, hasher: hasher, ttl: ttl}
}

// Create stores a new session for the user and returns its ID.
func (s *PostgresSessionStore) Create(ctx context.Context, userID int64, refreshSecret, userAgent, ip string) (int64, error) {
	hash, err := s.hasher.Hash(refreshSecret)
	if err != nil {
		return 0, err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	now := time.Now().UTC()
	var id int64
	err = conn.QueryRow(ctx, `
        INSERT INTO user_sessions (user_id, refresh_token_hash, user_agent, ip, created_at, expires_at)
        VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6)
        RETURNING id
    `, userID, hash, userAgent, ip, now, now.Add(s.ttl)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}

	return id, nil
}

// FindActive identifies the session matching the presented secret by
// trial-verifying it against the stored hashes of the user's live
// sessions, newest first. The linear scan is intentional: only hashes are
// stored, so there is nothing to look up by equality.
func (s *PostgresSessionStore) FindActive(ctx context.Context, userID int64, refreshSecret string) (models.Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return models.Session{}, fmt.Errorf("acquire connection: %w", err)
	}

	rows, err := conn.Query(ctx, `
        SELECT id, user_id, refresh_token_hash, COALESCE(user_agent, ''), COALESCE(ip, ''), created_at, expires_at
        FROM user_sessions
        WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > now()
        ORDER BY id DESC
    `, userID)
	if err != nil {
		conn.Release()
		return models.Session{}, fmt.Errorf("query sessions: %w", err)
	}

	var candidates []models.Session
	for rows.Next() {
		var session models.Session
		if err := rows.Scan(&session.ID, &session.UserID, &session.RefreshSecretHash, &session.UserAgent, &session.IP, &session.CreatedAt, &session.ExpiresAt); err != nil {
			rows.Close()
			conn.Release()
			return models.Session{}, fmt.Errorf("scan session: %w", err)
		}
		candidates = append(candidates, session)
	}
	rowsErr := rows.Err()
	rows.Close()
	conn.Release()
	if rowsErr != nil {
		return models.Session{}, fmt.Errorf("iterate sessions: %w", rowsErr)
	}

	// Verify after releasing the connection: bcrypt is deliberately slow.
	for _, session := range candidates {
		if s.hasher.Verify(refreshSecret, session.RefreshSecretHash) {
			return session, nil
		}
	}

	return models.Session{}, auth.ErrSessionNotFound
}

// Revoke marks the session revoked via a single conditional update and
// reports whether this call performed the transition. Concurrent rotations
// of the same session resolve first-writer-wins here: the loser observes
// zero affected rows.
func (s *PostgresSessionStore) Revoke(ctx context.Context, sessionID int64) (bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE user_sessions
        SET revoked_at = now()
        WHERE id = $1 AND revoked_at IS NULL
    `, sessionID)
	if err != nil {
		return false, fmt.Errorf("revoke session: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// RevokeAllForUser revokes every active session owned by the user.
func (s *PostgresSessionStore) RevokeAllForUser(ctx context.Context, userID int64) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        UPDATE user_sessions
        SET revoked_at = now()
        WHERE user_id = $1 AND revoked_at IS NULL
    `, userID); err != nil {
		return fmt.Errorf("revoke sessions for user: %w", err)
	}

	return nil
}

var _ auth.SessionStore = (*PostgresSessionStore)(nil)

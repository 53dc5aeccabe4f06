package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clipvault/backend/internal/models"
)

var (
	// ErrInvalidCredentials covers both an unknown identity and a password
	// mismatch; callers must not be able to tell the two apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRefresh covers a missing, revoked, expired, or already
	// rotated session uniformly.
	ErrInvalidRefresh = errors.New("invalid refresh")
	// ErrUserExists indicates the username or email is already registered.
	ErrUserExists = errors.New("username or email already exists")
	// ErrUserNotFound indicates no identity matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionNotFound indicates no active session matches the presented
	// refresh secret.
	ErrSessionNotFound = errors.New("session not found")
)

const refreshSecretBytes = 48

// UserStore captures the identity persistence required by the Service.
// Implementations return ErrUserExists on uniqueness violations and
// ErrUserNotFound on missed lookups.
type UserStore interface {
	Create(ctx context.Context, user models.User) (int64, error)
	FindByID(ctx context.Context, id int64) (models.User, error)
	FindByUsernameOrEmail(ctx context.Context, q string) (models.User, error)
}

// SessionStore is the sole mutator of persisted session rows.
//
// FindActive identifies a session by trial-verifying the presented secret
// against the stored hashes of the user's live sessions; secrets cannot be
// looked up by equality because only their one-way hash is persisted. The
// scan is O(active sessions per user) on purpose.
//
// Revoke performs a single conditional update and reports whether this
// call made the ACTIVE -> REVOKED transition; repeat calls are no-ops.
type SessionStore interface {
	Create(ctx context.Context, userID int64, refreshSecret, userAgent, ip string) (int64, error)
	FindActive(ctx context.Context, userID int64, refreshSecret string) (models.Session, error)
	Revoke(ctx context.Context, sessionID int64) (bool, error)
	RevokeAllForUser(ctx context.Context, userID int64) error
}

// AuthResult groups everything a successful signup, login, or refresh
// hands back to the client. RefreshSecret is the only copy of the secret
// that will ever exist in plaintext.
type AuthResult struct {
	User          models.PublicUser
	AccessToken   string
	RefreshSecret string
	SessionID     int64
}

// Service composes credential verification, token issuance, and session
// persistence into the signup, login, refresh, and logout flows.
type Service struct {
	users    UserStore
	sessions SessionStore
	hasher   Hasher
	tokens   *TokenIssuer
	now      func() time.Time
}

// NewService wires the authentication orchestrator.
func NewService(users UserStore, sessions SessionStore, hasher Hasher, tokens *TokenIssuer) *Service {
	if users == nil || sessions == nil || tokens == nil {
		panic("auth: service dependencies must not be nil")
	}
	return &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		tokens:   tokens,
		now:      time.Now,
	}
}

// Signup registers a new identity and immediately logs it in; from the
// caller's perspective the two are one operation and signup never returns
// without valid tokens.
func (s *Service) Signup(ctx context.Context, username, password string, role models.Role, email, userAgent, ip string) (AuthResult, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	email = strings.ToLower(strings.TrimSpace(email))

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return AuthResult{}, err
	}

	now := s.now().UTC()
	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.users.Create(ctx, user); err != nil {
		return AuthResult{}, err
	}

	return s.Login(ctx, username, password, userAgent, ip)
}

// Login authenticates by username or email. An absent identity and a
// password mismatch fail identically with ErrInvalidCredentials; datastore
// failures propagate unchanged so an outage never reads as a bad password.
func (s *Service) Login(ctx context.Context, usernameOrEmail, password, userAgent, ip string) (AuthResult, error) {
	q := strings.ToLower(strings.TrimSpace(usernameOrEmail))

	user, err := s.users.FindByUsernameOrEmail(ctx, q)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return AuthResult{}, ErrInvalidCredentials
	}

	return s.startSession(ctx, user, userAgent, ip)
}

// Refresh rotates the session identified by the presented secret: the
// matched session is revoked and a brand-new one issued before any result
// is returned. A secret is single-use; re-presenting a rotated one fails
// as if it never existed. The conditional revoke is the first-writer-wins
// gate that keeps two concurrent refreshes from both succeeding.
func (s *Service) Refresh(ctx context.Context, userID int64, refreshSecret, userAgent, ip string) (AuthResult, error) {
	session, err := s.sessions.FindActive(ctx, userID, refreshSecret)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return AuthResult{}, ErrInvalidRefresh
		}
		return AuthResult{}, err
	}

	revoked, err := s.sessions.Revoke(ctx, session.ID)
	if err != nil {
		return AuthResult{}, err
	}
	if !revoked {
		// A concurrent refresh won the rotation.
		return AuthResult{}, ErrInvalidRefresh
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return AuthResult{}, ErrInvalidRefresh
		}
		return AuthResult{}, err
	}

	return s.startSession(ctx, user, userAgent, ip)
}

// Logout revokes the session matching the presented secret. It succeeds
// whether or not a match exists; only datastore failures surface.
func (s *Service) Logout(ctx context.Context, userID int64, refreshSecret string) error {
	session, err := s.sessions.FindActive(ctx, userID, refreshSecret)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}

	if _, err := s.sessions.Revoke(ctx, session.ID); err != nil {
		return err
	}
	return nil
}

// RevokeAll terminates every active session for the user. Exposed for
// logout-everywhere flows triggered outside the core request paths.
func (s *Service) RevokeAll(ctx context.Context, userID int64) error {
	return s.sessions.RevokeAllForUser(ctx, userID)
}

func (s *Service) startSession(ctx context.Context, user models.User, userAgent, ip string) (AuthResult, error) {
	secret, err := newRefreshSecret()
	if err != nil {
		return AuthResult{}, err
	}

	sessionID, err := s.sessions.Create(ctx, user.ID, secret, userAgent, ip)
	if err != nil {
		return AuthResult{}, err
	}

	token, err := s.tokens.Issue(user.Public())
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		User:          user.Public(),
		AccessToken:   token,
		RefreshSecret: secret,
		SessionID:     sessionID,
	}, nil
}

// WithNowFunc allows tests to override the time source.
func (s *Service) WithNowFunc(now func() time.Time) {
	s.now = now
}

func newRefreshSecret() (string, error) {
	buf := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

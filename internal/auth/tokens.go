package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clipvault/backend/internal/models"
)

var (
	// ErrTokenInvalid indicates the access token is malformed, forged, or
	// signed with an unexpected method.
	ErrTokenInvalid = errors.New("access token invalid")
	// ErrTokenExpired indicates a well-formed access token past its expiry.
	ErrTokenExpired = errors.New("access token expired")
)

// AccessClaims is the payload carried by a signed access token. Tokens are
// self-contained: verification never touches persisted state.
type AccessClaims struct {
	UserID   int64       `json:"id"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	jwt.RegisteredClaims
}

// PublicUser rebuilds the identity projection embedded in the claims.
func (c AccessClaims) PublicUser() models.PublicUser {
	return models.PublicUser{ID: c.UserID, Username: c.Username, Role: c.Role}
}

// TokenIssuer signs and verifies short-lived HS256 access tokens. The
// signing secret is process-wide configuration; config.Load refuses to
// start the process without one.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer constructs an issuer for tokens valid for the given TTL.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if secret == "" {
		panic("auth: token signing secret must not be empty")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs an access token for the provided identity.
func (t *TokenIssuer) Issue(user models.PublicUser) (string, error) {
	now := t.now().UTC()
	claims := AccessClaims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify checks the token's signature and expiry and returns its claims.
// Expired tokens yield ErrTokenExpired; everything else wrong with the
// token yields ErrTokenInvalid. Neither outcome is ever treated as valid.
func (t *TokenIssuer) Verify(token string) (AccessClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &AccessClaims{}, func(tk *jwt.Token) (any, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return t.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(t.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AccessClaims{}, ErrTokenExpired
		}
		return AccessClaims{}, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return AccessClaims{}, ErrTokenInvalid
	}
	return *claims, nil
}

// WithNowFunc allows tests to override the time source used for issue and
// expiry checks.
func (t *TokenIssuer) WithNowFunc(now func() time.Time) {
	t.now = now
}

package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/clipvault/backend/internal/auth"
	"github.com/clipvault/backend/internal/models"
)

// Identity is the verified caller attached to the request context after
// access-token verification.
type Identity struct {
	UserID   int64
	Username string
	Role     models.Role
}

// TokenVerifier validates an access token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (auth.AccessClaims, error)
}

type identityCtxKey struct{}

// WithIdentity stores the verified identity on the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the verified identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}

// RequireAuth rejects requests lacking a valid bearer access token and
// attaches the verified identity to the context otherwise. Token
// verification is pure: no store lookup happens per request.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeErrorEnvelope(w, http.StatusUnauthorized, "AUTH_REQUIRED", "missing token")
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				writeErrorEnvelope(w, http.StatusUnauthorized, "INVALID_TOKEN", "invalid token")
				return
			}

			ctx := WithIdentity(r.Context(), Identity{
				UserID:   claims.UserID,
				Username: claims.Username,
				Role:     claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches an identity when a valid bearer token is present
// and lets the request through either way. Read paths use it so the same
// handler serves anonymous and authenticated viewers.
func OptionalAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := bearerToken(r); ok {
				if claims, err := verifier.Verify(token); err == nil {
					ctx := WithIdentity(r.Context(), Identity{
						UserID:   claims.UserID,
						Username: claims.Username,
						Role:     claims.Role,
					})
					r = r.WithContext(ctx)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole rejects authenticated callers whose role does not match.
// It must run inside RequireAuth.
func RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				writeErrorEnvelope(w, http.StatusUnauthorized, "AUTH_REQUIRED", "missing token")
				return
			}
			if id.Role != role {
				writeErrorEnvelope(w, http.StatusForbidden, "FORBIDDEN", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	return token, token != ""
}

func writeErrorEnvelope(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok": false,
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

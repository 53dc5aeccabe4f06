package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher derives and verifies one-way bcrypt hashes. The same scheme guards
// account passwords and refresh secrets: both are stored hashed only, and
// both are checked through bcrypt's own comparison rather than string
// equality.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher with the provided bcrypt cost. Costs outside
// bcrypt's supported range fall back to the default (2^10 rounds).
func NewHasher(cost int) Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return Hasher{cost: cost}
}

// Hash returns the bcrypt hash of the provided secret.
func (h Hasher) Hash(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether secret matches the stored hash. Malformed or
// truncated hashes verify as false rather than erroring; callers treat a
// false result as invalid credentials, never as a system failure.
func (h Hasher) Verify(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

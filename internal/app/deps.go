package app

import (
	"context"
	"time"

	"github.com/clipvault/backend/internal/auth"
	"github.com/clipvault/backend/internal/config"
	"github.com/clipvault/backend/internal/db"
	"github.com/clipvault/backend/internal/handlers"
	"github.com/clipvault/backend/internal/middleware"
	"github.com/clipvault/backend/internal/repositories"
	"github.com/clipvault/backend/internal/storage"
)

// buildDependencies wires repositories, services, and storage into the
// handler dependency set.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, error) {
	hasher := auth.NewHasher(cfg.BcryptCost)
	issuer := auth.NewTokenIssuer(cfg.AccessTokenSecret, cfg.AccessTokenTTL)

	refreshTTL := time.Duration(cfg.RefreshTTLDays) * 24 * time.Hour

	users := repositories.NewPostgresUserRepository(pool)
	sessions := repositories.NewPostgresSessionStore(pool, hasher, refreshTTL)
	authService := auth.NewService(users, sessions, hasher, issuer)

	assets, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
	if err != nil {
		return handlers.Dependencies{}, err
	}

	return handlers.Dependencies{
		Auth:     authService,
		Limiter:  auth.NewLoginLimiter(cfg.LoginRateMax, cfg.LoginRateWindow),
		Verifier: issuer,
		Videos:   repositories.NewPostgresVideoRepository(pool),
		Comments: repositories.NewPostgresCommentRepository(pool),
		Ratings:  repositories.NewPostgresRatingRepository(pool),
		Storage:  assets,
		Cache:    middleware.NewResponseCache(cfg.ResponseCacheTTL),

		CookieTokens:   cfg.CookieTokens,
		Secure:         cfg.Production(),
		RefreshTTL:     refreshTTL,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, nil
}

package handlers

import (
	"net/http"
	"time"

	"github.com/clipvault/backend/internal/middleware"
	"github.com/clipvault/backend/internal/models"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Auth     AuthService
	Limiter  LoginLimiter
	Verifier middleware.TokenVerifier
	Videos   VideoStore
	Comments CommentStore
	Ratings  RatingStore
	Storage  AssetStorage
	Cache    *middleware.ResponseCache

	CookieTokens   bool
	Secure         bool
	RefreshTTL     time.Duration
	MaxUploadBytes int64
}

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	authH := AuthHandler{
		Service:      deps.Auth,
		Limiter:      deps.Limiter,
		CookieTokens: deps.CookieTokens,
		Secure:       deps.Secure,
		RefreshTTL:   deps.RefreshTTL,
	}
	videos := VideoHandler{
		Videos:         deps.Videos,
		Storage:        deps.Storage,
		Cache:          deps.Cache,
		MaxUploadBytes: deps.MaxUploadBytes,
	}
	comments := CommentHandler{Videos: deps.Videos, Comments: deps.Comments, Cache: deps.Cache}
	ratings := RatingHandler{Videos: deps.Videos, Ratings: deps.Ratings, Cache: deps.Cache}

	requireAuth := middleware.RequireAuth(deps.Verifier)
	optionalAuth := middleware.OptionalAuth(deps.Verifier)
	requireCreator := middleware.RequireRole(models.RoleCreator)
	cached := func(next http.Handler) http.Handler {
		if deps.Cache == nil {
			return next
		}
		return deps.Cache.Wrap(next)
	}

	mux.HandleFunc("GET /healthz", health.Handle)

	mux.HandleFunc("POST /api/v1/auth/signup", authH.SignUp)
	mux.HandleFunc("POST /api/v1/auth/login", authH.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", authH.Refresh)
	mux.HandleFunc("POST /api/v1/auth/logout", authH.Logout)
	mux.Handle("GET /api/v1/auth/me", requireAuth(http.HandlerFunc(authH.Me)))

	mux.Handle("POST /api/v1/videos/upload", requireAuth(requireCreator(http.HandlerFunc(videos.Upload))))
	mux.Handle("GET /api/v1/videos", optionalAuth(cached(http.HandlerFunc(videos.List))))
	mux.Handle("GET /api/v1/videos/{id}", optionalAuth(cached(http.HandlerFunc(videos.Get))))
	mux.Handle("PATCH /api/v1/videos/{id}", requireAuth(http.HandlerFunc(videos.Update)))
	mux.Handle("DELETE /api/v1/videos/{id}", requireAuth(http.HandlerFunc(videos.Delete)))

	mux.Handle("GET /api/v1/videos/{id}/comments", optionalAuth(cached(http.HandlerFunc(comments.List))))
	mux.Handle("POST /api/v1/videos/{id}/comments", requireAuth(http.HandlerFunc(comments.Create)))
	mux.Handle("DELETE /api/v1/videos/{id}/comments/{commentId}", requireAuth(http.HandlerFunc(comments.Delete)))

	mux.Handle("GET /api/v1/videos/{id}/ratings/avg", optionalAuth(cached(http.HandlerFunc(ratings.Average))))
	mux.Handle("POST /api/v1/videos/{id}/ratings", requireAuth(http.HandlerFunc(ratings.Rate)))
}

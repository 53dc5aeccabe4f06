package handlers

import (
	"context"
	"io"

	"github.com/clipvault/backend/internal/auth"
	"github.com/clipvault/backend/internal/models"
	"github.com/clipvault/backend/internal/repositories"
)

// AuthService captures the session lifecycle operations required by the
// auth handlers.
type AuthService interface {
	Signup(ctx context.Context, username, password string, role models.Role, email, userAgent, ip string) (auth.AuthResult, error)
	Login(ctx context.Context, usernameOrEmail, password, userAgent, ip string) (auth.AuthResult, error)
	Refresh(ctx context.Context, userID int64, refreshSecret, userAgent, ip string) (auth.AuthResult, error)
	Logout(ctx context.Context, userID int64, refreshSecret string) error
}

// LoginLimiter guards the credential-verification path.
type LoginLimiter interface {
	Allow(key string) bool
}

// VideoStore captures persistence for the video catalog.
type VideoStore interface {
	Create(ctx context.Context, video models.Video) (int64, error)
	FindByID(ctx context.Context, id int64) (models.Video, error)
	List(ctx context.Context, params repositories.ListVideosParams) (repositories.VideoPage, error)
	Update(ctx context.Context, id int64, patch models.VideoPatch) error
	SoftDelete(ctx context.Context, id int64) error
}

// CommentStore captures persistence for video comments.
type CommentStore interface {
	ListForVideo(ctx context.Context, videoID int64) ([]models.Comment, error)
	Add(ctx context.Context, videoID, userID int64, comment string) (int64, error)
	FindWithOwner(ctx context.Context, videoID, commentID int64) (models.Comment, int64, error)
	Delete(ctx context.Context, videoID, commentID int64) error
}

// RatingStore captures persistence for video ratings.
type RatingStore interface {
	Upsert(ctx context.Context, videoID, userID int64, rating int) error
	Average(ctx context.Context, videoID int64) (models.RatingSummary, error)
}

// AssetStorage persists uploaded video content and returns its public URL.
type AssetStorage interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

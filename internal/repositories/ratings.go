package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clipvault/backend/internal/db"
	"github.com/clipvault/backend/internal/models"
)

// PostgresRatingRepository provides PostgreSQL-backed persistence for ratings.
type PostgresRatingRepository struct {
	pool db.Pool
}

// NewPostgresRatingRepository constructs a rating repository backed by PostgreSQL.
func NewPostgresRatingRepository(pool db.Pool) *PostgresRatingRepository {
	return &PostgresRatingRepository{pool: pool}
}

// Upsert records the viewer's rating for a video, replacing any previous
// one; a viewer rates each video at most once.
func (r *PostgresRatingRepository) Upsert(ctx context.Context, videoID, userID int64, rating int) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO ratings (video_id, user_id, rating)
        VALUES ($1, $2, $3)
        ON CONFLICT (video_id, user_id)
        DO UPDATE SET rating = EXCLUDED.rating
    `, videoID, userID, rating)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("upsert rating: %w", err)
	}

	return nil
}

// Average returns the video's mean rating rounded to two decimals together
// with the number of ratings.
func (r *PostgresRatingRepository) Average(ctx context.Context, videoID int64) (models.RatingSummary, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.RatingSummary{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var summary models.RatingSummary
	err = conn.QueryRow(ctx, `
        SELECT COALESCE(ROUND(AVG(rating)::numeric, 2)::float8, 0), COUNT(*)
        FROM ratings
        WHERE video_id = $1
    `, videoID).Scan(&summary.Average, &summary.Count)
	if err != nil {
		return models.RatingSummary{}, fmt.Errorf("select rating average: %w", err)
	}

	return summary, nil
}

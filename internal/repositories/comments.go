package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clipvault/backend/internal/db"
	"github.com/clipvault/backend/internal/models"
)

const commentPageSize = 200

// PostgresCommentRepository provides PostgreSQL-backed persistence for comments.
type PostgresCommentRepository struct {
	pool db.Pool
}

// NewPostgresCommentRepository constructs a comment repository backed by PostgreSQL.
func NewPostgresCommentRepository(pool db.Pool) *PostgresCommentRepository {
	return &PostgresCommentRepository{pool: pool}
}

// ListForVideo returns the newest comments on a video with their authors'
// usernames joined in.
func (r *PostgresCommentRepository) ListForVideo(ctx context.Context, videoID int64) ([]models.Comment, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT c.id, c.video_id, c.user_id, u.username, c.comment, c.created_at
        FROM comments c
        JOIN users u ON u.id = c.user_id
        WHERE c.video_id = $1
        ORDER BY c.id DESC
        LIMIT $2
    `, videoID, commentPageSize)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var comments []models.Comment
	for rows.Next() {
		var comment models.Comment
		if err := rows.Scan(&comment.ID, &comment.VideoID, &comment.UserID, &comment.Username, &comment.Comment, &comment.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}

	return comments, nil
}

// Add stores a new comment and returns its assigned ID.
func (r *PostgresCommentRepository) Add(ctx context.Context, videoID, userID int64, comment string) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var id int64
	err = conn.QueryRow(ctx, `
        INSERT INTO comments (video_id, user_id, comment)
        VALUES ($1, $2, $3)
        RETURNING id
    `, videoID, userID, comment).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("insert comment: %w", err)
	}

	return id, nil
}

// FindWithOwner loads a comment together with the owning video's uploader,
// which authz needs to decide who may delete it.
func (r *PostgresCommentRepository) FindWithOwner(ctx context.Context, videoID, commentID int64) (models.Comment, int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Comment{}, 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT c.id, c.video_id, c.user_id, c.comment, c.created_at, v.uploader_id
        FROM comments c
        JOIN videos v ON v.id = c.video_id
        WHERE c.id = $1 AND c.video_id = $2
    `, commentID, videoID)

	var comment models.Comment
	var ownerID int64
	if err := row.Scan(&comment.ID, &comment.VideoID, &comment.UserID, &comment.Comment, &comment.CreatedAt, &ownerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Comment{}, 0, ErrNotFound
		}
		return models.Comment{}, 0, fmt.Errorf("select comment: %w", err)
	}

	return comment, ownerID, nil
}

// Delete removes a comment.
func (r *PostgresCommentRepository) Delete(ctx context.Context, videoID, commentID int64) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM comments
        WHERE id = $1 AND video_id = $2
    `, commentID, videoID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

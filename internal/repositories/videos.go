package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clipvault/backend/internal/authz"
	"github.com/clipvault/backend/internal/db"
	"github.com/clipvault/backend/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// videoColumns is the projection shared by single fetches and listings,
// with the rating aggregate joined in.
const videoColumns = `
        v.id, v.title, COALESCE(v.description, ''), COALESCE(v.genre, ''),
        COALESCE(v.producer, ''), COALESCE(v.age_rating, ''), v.visibility,
        COALESCE(v.duration_s, 0), COALESCE(v.size_bytes, 0), v.uploader_id,
        v.blob_name, v.blob_url, v.created_at, v.updated_at,
        COALESCE(ra.avg_rating, 0), COALESCE(ra.rating_count, 0)`

const ratingJoin = `
        LEFT JOIN (
            SELECT video_id,
                   ROUND(AVG(rating)::numeric, 2)::float8 AS avg_rating,
                   COUNT(*)                               AS rating_count
            FROM ratings
            GROUP BY video_id
        ) ra ON ra.video_id = v.id`

// ListVideosParams captures the catalog listing filters. ViewerID 0 means
// an anonymous viewer; an empty Visibility applies the default
// public-or-owned rule.
type ListVideosParams struct {
	ViewerID   int64
	Query      string
	Genre      string
	UploaderID int64
	Visibility models.Visibility
	Page       int
	Limit      int
}

// VideoPage is one page of listing results.
type VideoPage struct {
	Data    []models.Video
	Page    int
	Limit   int
	Total   int64
	HasMore bool
}

// PostgresVideoRepository provides PostgreSQL-backed persistence for the
// video catalog.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

// Create stores a new video record and returns its assigned ID.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var id int64
	err = conn.QueryRow(ctx, `
        INSERT INTO videos (title, description, genre, producer, age_rating, visibility,
                            duration_s, size_bytes, uploader_id, blob_name, blob_url)
        VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6,
                NULLIF($7, 0), NULLIF($8, 0), $9, $10, $11)
        RETURNING id
    `, video.Title, video.Description, video.Genre, video.Producer, video.AgeRating,
		string(video.Visibility), video.DurationS, video.SizeBytes, video.UploaderID,
		video.BlobName, video.BlobURL).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("insert video: %w", err)
	}

	return id, nil
}

// FindByID fetches a single non-deleted video with its rating aggregate.
// Visibility is not applied here; callers decide access through authz.
func (r *PostgresVideoRepository) FindByID(ctx context.Context, id int64) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT`+videoColumns+`
        FROM videos v`+ratingJoin+`
        WHERE v.id = $1 AND v.deleted_at IS NULL
    `, id)

	video, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("select video: %w", err)
	}

	return video, nil
}

// List returns one page of catalog results visible to the viewer. The
// WHERE clause is assembled from typed predicate parts in a fixed order:
// soft-delete guard, visibility rule, then the optional search filters.
func (r *PostgresVideoRepository) List(ctx context.Context, params ListVideosParams) (VideoPage, error) {
	page := params.Page
	if page < 1 {
		page = 1
	}
	limit := params.Limit
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := (page - 1) * limit

	pred := &predicate{}
	pred.add("v.deleted_at IS NULL")
	expr, args := authz.ListClause(params.ViewerID, params.Visibility)
	pred.add(expr, args...)
	if params.Query != "" {
		like := "%" + params.Query + "%"
		pred.add("(v.title ILIKE ? OR v.description ILIKE ? OR v.genre ILIKE ? OR v.producer ILIKE ?)",
			like, like, like, like)
	}
	if params.Genre != "" {
		pred.add("v.genre = ?", params.Genre)
	}
	if params.UploaderID > 0 {
		pred.add("v.uploader_id = ?", params.UploaderID)
	}

	where, whereArgs := pred.build()

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return VideoPage{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var total int64
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM videos v `+where, whereArgs...).Scan(&total); err != nil {
		return VideoPage{}, fmt.Errorf("count videos: %w", err)
	}

	limitPos := pred.next()
	query := `
        SELECT` + videoColumns + `
        FROM videos v` + ratingJoin + `
        ` + where + `
        ORDER BY v.created_at DESC, v.id DESC
        LIMIT $` + strconv.Itoa(limitPos) + ` OFFSET $` + strconv.Itoa(limitPos+1)

	rows, err := conn.Query(ctx, query, append(whereArgs, limit, offset)...)
	if err != nil {
		return VideoPage{}, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	var videos []models.Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return VideoPage{}, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return VideoPage{}, fmt.Errorf("iterate videos: %w", err)
	}

	return VideoPage{
		Data:    videos,
		Page:    page,
		Limit:   limit,
		Total:   total,
		HasMore: int64(offset+len(videos)) < total,
	}, nil
}

// Update applies a partial metadata patch. Ownership is checked by the
// caller through authz before this runs.
func (r *PostgresVideoRepository) Update(ctx context.Context, id int64, patch models.VideoPatch) error {
	var (
		assigns []string
		args    []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		assigns = append(assigns, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	setNullable := func(column string, value string) {
		args = append(args, value)
		assigns = append(assigns, fmt.Sprintf("%s = NULLIF($%d, '')", column, len(args)))
	}

	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Description != nil {
		setNullable("description", *patch.Description)
	}
	if patch.Genre != nil {
		setNullable("genre", *patch.Genre)
	}
	if patch.Producer != nil {
		setNullable("producer", *patch.Producer)
	}
	if patch.AgeRating != nil {
		setNullable("age_rating", *patch.AgeRating)
	}
	if patch.Visibility != nil {
		set("visibility", string(*patch.Visibility))
	}
	if len(assigns) == 0 {
		return nil
	}
	assigns = append(assigns, "updated_at = now()")

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	args = append(args, id)
	tag, err := conn.Exec(ctx,
		`UPDATE videos SET `+strings.Join(assigns, ", ")+
			` WHERE id = $`+strconv.Itoa(len(args))+` AND deleted_at IS NULL`,
		args...)
	if err != nil {
		return fmt.Errorf("update video: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// SoftDelete hides the video from every read path while keeping the row.
func (r *PostgresVideoRepository) SoftDelete(ctx context.Context, id int64) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE videos
        SET deleted_at = now()
        WHERE id = $1 AND deleted_at IS NULL
    `, id)
	if err != nil {
		return fmt.Errorf("soft delete video: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func scanVideo(row pgx.Row) (models.Video, error) {
	var video models.Video
	var visibility string
	err := row.Scan(&video.ID, &video.Title, &video.Description, &video.Genre,
		&video.Producer, &video.AgeRating, &visibility, &video.DurationS,
		&video.SizeBytes, &video.UploaderID, &video.BlobName, &video.BlobURL,
		&video.CreatedAt, &video.UpdatedAt, &video.AvgRating, &video.RatingCount)
	if err != nil {
		return models.Video{}, err
	}
	video.Visibility = models.Visibility(visibility)
	return video, nil
}

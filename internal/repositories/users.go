package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clipvault/backend/internal/auth"
	"github.com/clipvault/backend/internal/db"
	"github.com/clipvault/backend/internal/models"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record and returns its assigned ID. A
// username or email collision yields auth.ErrUserExists.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var id int64
	err = conn.QueryRow(ctx, `
        INSERT INTO users (username, email, password_hash, role, created_at, updated_at)
        VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)
        RETURNING id
    `, user.Username, user.Email, user.PasswordHash, string(user.Role), user.CreatedAt, user.UpdatedAt).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, auth.ErrUserExists
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}

	return id, nil
}

// FindByID fetches a user by primary key.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id int64) (models.User, error) {
	return r.findOne(ctx, `WHERE id = $1`, id)
}

// FindByUsernameOrEmail fetches a user by either identifier. Lookups are
// case-insensitive on the stored normalized form: callers lower the query
// and usernames/emails are lowered at signup.
func (r *PostgresUserRepository) FindByUsernameOrEmail(ctx context.Context, q string) (models.User, error) {
	return r.findOne(ctx, `WHERE username = $1 OR email = $1 LIMIT 1`, q)
}

func (r *PostgresUserRepository) findOne(ctx context.Context, where string, arg any) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, username, COALESCE(email, ''), password_hash, role, created_at, updated_at
        FROM users
    `+where, arg)

	var user models.User
	var role string
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &role, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, auth.ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("select user: %w", err)
	}
	user.Role = models.Role(role)

	return user, nil
}

var _ auth.UserStore = (*PostgresUserRepository)(nil)

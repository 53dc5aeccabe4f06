package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/clipvault/backend/internal/auth"
	"github.com/clipvault/backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresUserRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)

	now := time.Now().UTC()
	id, err := repo.Create(ctx, models.User{
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "hash",
		Role:         models.RoleCreator,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a non-zero assigned id")
	}

	if _, err := repo.Create(ctx, models.User{
		Username: "alice", PasswordHash: "other", Role: models.RoleConsumer,
		CreatedAt: now, UpdatedAt: now,
	}); !errors.Is(err, auth.ErrUserExists) {
		t.Fatalf("expected ErrUserExists on duplicate username, got %v", err)
	}
	if _, err := repo.Create(ctx, models.User{
		Username: "alice2", Email: "alice@example.com", PasswordHash: "other",
		Role: models.RoleConsumer, CreatedAt: now, UpdatedAt: now,
	}); !errors.Is(err, auth.ErrUserExists) {
		t.Fatalf("expected ErrUserExists on duplicate email, got %v", err)
	}

	byName, err := repo.FindByUsernameOrEmail(ctx, "alice")
	if err != nil {
		t.Fatalf("find by username: %v", err)
	}
	byEmail, err := repo.FindByUsernameOrEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if byName.ID != id || byEmail.ID != id {
		t.Fatalf("expected both lookups to find user %d, got %d and %d", id, byName.ID, byEmail.ID)
	}
	if byName.Role != models.RoleCreator {
		t.Fatalf("expected role creator, got %q", byName.Role)
	}

	byID, err := repo.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if byID.Username != "alice" || byID.Email != "alice@example.com" {
		t.Fatalf("unexpected user fetched: %+v", byID)
	}

	if _, err := repo.FindByUsernameOrEmail(ctx, "nobody"); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := repo.FindByID(ctx, id+1000); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound by id, got %v", err)
	}
}

func TestPostgresUserRepository_NoEmail(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)
	now := time.Now().UTC()

	// Multiple users without email must not collide on the unique index.
	for _, name := range []string{"bob", "carol"} {
		if _, err := repo.Create(ctx, models.User{
			Username: name, PasswordHash: "hash", Role: models.RoleConsumer,
			CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	user, err := repo.FindByUsernameOrEmail(ctx, "bob")
	if err != nil {
		t.Fatalf("find bob: %v", err)
	}
	if user.Email != "" {
		t.Fatalf("expected empty email, got %q", user.Email)
	}
}

func TestPostgresSessionStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	alice := createTestUser(t, "alice")
	hasher := auth.NewHasher(bcrypt.MinCost)
	store := NewPostgresSessionStore(testPool, hasher, time.Hour)

	id, err := store.Create(ctx, alice.ID, "secret-one", "ua", "192.0.2.1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	found, err := store.FindActive(ctx, alice.ID, "secret-one")
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if found.ID != id || found.UserID != alice.ID {
		t.Fatalf("unexpected session: %+v", found)
	}
	if found.RefreshSecretHash == "secret-one" {
		t.Fatal("refresh secret must be stored hashed")
	}

	if _, err := store.FindActive(ctx, alice.ID, "wrong-secret"); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for wrong secret, got %v", err)
	}

	revoked, err := store.Revoke(ctx, id)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if !revoked {
		t.Fatal("first revoke must report the transition")
	}

	revoked, err = store.Revoke(ctx, id)
	if err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if revoked {
		t.Fatal("second revoke must be a no-op")
	}

	if _, err := store.FindActive(ctx, alice.ID, "secret-one"); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected revoked session to be invisible, got %v", err)
	}
}

func TestPostgresSessionStore_NewestSessionWins(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	alice := createTestUser(t, "alice")
	hasher := auth.NewHasher(bcrypt.MinCost)
	store := NewPostgresSessionStore(testPool, hasher, time.Hour)

	if _, err := store.Create(ctx, alice.ID, "secret-old", "ua", "192.0.2.1"); err != nil {
		t.Fatalf("create old session: %v", err)
	}
	newest, err := store.Create(ctx, alice.ID, "secret-new", "ua", "192.0.2.1")
	if err != nil {
		t.Fatalf("create new session: %v", err)
	}

	found, err := store.FindActive(ctx, alice.ID, "secret-new")
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if found.ID != newest {
		t.Fatalf("expected session %d, got %d", newest, found.ID)
	}
}

func TestPostgresSessionStore_Expiry(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	alice := createTestUser(t, "alice")
	hasher := auth.NewHasher(bcrypt.MinCost)
	store := NewPostgresSessionStore(testPool, hasher, 50*time.Millisecond)

	if _, err := store.Create(ctx, alice.ID, "short-lived", "ua", "192.0.2.1"); err != nil {
		t.Fatalf("create session: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	if _, err := store.FindActive(ctx, alice.ID, "short-lived"); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected expired session to be invisible, got %v", err)
	}
}

func TestPostgresSessionStore_RevokeAllForUser(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	alice := createTestUser(t, "alice")
	bob := createTestUser(t, "bob")
	hasher := auth.NewHasher(bcrypt.MinCost)
	store := NewPostgresSessionStore(testPool, hasher, time.Hour)

	for _, secret := range []string{"one", "two"} {
		if _, err := store.Create(ctx, alice.ID, secret, "ua", "192.0.2.1"); err != nil {
			t.Fatalf("create alice session: %v", err)
		}
	}
	if _, err := store.Create(ctx, bob.ID, "bob-secret", "ua", "192.0.2.2"); err != nil {
		t.Fatalf("create bob session: %v", err)
	}

	if err := store.RevokeAllForUser(ctx, alice.ID); err != nil {
		t.Fatalf("revoke all: %v", err)
	}

	for _, secret := range []string{"one", "two"} {
		if _, err := store.FindActive(ctx, alice.ID, secret); !errors.Is(err, auth.ErrSessionNotFound) {
			t.Fatalf("expected alice session %q revoked, got %v", secret, err)
		}
	}
	if _, err := store.FindActive(ctx, bob.ID, "bob-secret"); err != nil {
		t.Fatalf("bob's session must survive: %v", err)
	}
}

func TestPostgresVideoRepository_VisibilityListing(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	owner := createTestUser(t, "owner")
	viewer := createTestUser(t, "viewer")
	repo := NewPostgresVideoRepository(testPool)

	publicID := createTestVideo(t, repo, owner.ID, "Public Clip", models.VisibilityPublic)
	unlistedID := createTestVideo(t, repo, owner.ID, "Unlisted Clip", models.VisibilityUnlisted)
	privateID := createTestVideo(t, repo, owner.ID, "Private Clip", models.VisibilityPrivate)

	// Anonymous viewers see public only.
	page, err := repo.List(ctx, ListVideosParams{})
	if err != nil {
		t.Fatalf("anonymous list: %v", err)
	}
	if len(page.Data) != 1 || page.Data[0].ID != publicID {
		t.Fatalf("expected only the public clip for anonymous viewers, got %+v", page.Data)
	}

	// A non-owner sees public only.
	page, err = repo.List(ctx, ListVideosParams{ViewerID: viewer.ID})
	if err != nil {
		t.Fatalf("viewer list: %v", err)
	}
	if len(page.Data) != 1 || page.Data[0].ID != publicID {
		t.Fatalf("expected only the public clip for a stranger, got %+v", page.Data)
	}

	// The owner sees all three.
	page, err = repo.List(ctx, ListVideosParams{ViewerID: owner.ID})
	if err != nil {
		t.Fatalf("owner list: %v", err)
	}
	if len(page.Data) != 3 {
		t.Fatalf("expected owner to see 3 clips, got %d", len(page.Data))
	}

	// Requesting private restricts to the viewer's own rows.
	page, err = repo.List(ctx, ListVideosParams{ViewerID: owner.ID, Visibility: models.VisibilityPrivate})
	if err != nil {
		t.Fatalf("owner private list: %v", err)
	}
	if len(page.Data) != 1 || page.Data[0].ID != privateID {
		t.Fatalf("expected only the private clip, got %+v", page.Data)
	}
	page, err = repo.List(ctx, ListVideosParams{ViewerID: viewer.ID, Visibility: models.VisibilityPrivate})
	if err != nil {
		t.Fatalf("viewer private list: %v", err)
	}
	if len(page.Data) != 0 {
		t.Fatalf("a stranger requesting private must see nothing, got %+v", page.Data)
	}

	// Unlisted rows are reachable directly even though listings hide them.
	if _, err := repo.FindByID(ctx, unlistedID); err != nil {
		t.Fatalf("direct unlisted fetch: %v", err)
	}
}

func TestPostgresVideoRepository_FiltersAndPagination(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	owner := createTestUser(t, "owner")
	other := createTestUser(t, "other")
	repo := NewPostgresVideoRepository(testPool)

	for i := 0; i < 3; i++ {
		createTestVideo(t, repo, owner.ID, fmt.Sprintf("Jazz Session %d", i), models.VisibilityPublic)
	}
	rockID := createTestVideoWithGenre(t, repo, other.ID, "Rock Anthem", "rock", models.VisibilityPublic)

	page, err := repo.List(ctx, ListVideosParams{Query: "jazz"})
	if err != nil {
		t.Fatalf("search list: %v", err)
	}
	if page.Total != 3 || len(page.Data) != 3 {
		t.Fatalf("expected 3 jazz results, got total=%d len=%d", page.Total, len(page.Data))
	}

	page, err = repo.List(ctx, ListVideosParams{Genre: "rock"})
	if err != nil {
		t.Fatalf("genre list: %v", err)
	}
	if len(page.Data) != 1 || page.Data[0].ID != rockID {
		t.Fatalf("expected the rock clip, got %+v", page.Data)
	}

	page, err = repo.List(ctx, ListVideosParams{UploaderID: other.ID})
	if err != nil {
		t.Fatalf("uploader list: %v", err)
	}
	if len(page.Data) != 1 || page.Data[0].UploaderID != other.ID {
		t.Fatalf("expected only the other uploader's clip, got %+v", page.Data)
	}

	page, err = repo.List(ctx, ListVideosParams{Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page.Data) != 2 || page.Total != 4 || !page.HasMore {
		t.Fatalf("unexpected page 1: len=%d total=%d hasMore=%v", len(page.Data), page.Total, page.HasMore)
	}

	page, err = repo.List(ctx, ListVideosParams{Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page.Data) != 2 || page.HasMore {
		t.Fatalf("unexpected page 2: len=%d hasMore=%v", len(page.Data), page.HasMore)
	}

	// Out-of-range values clamp instead of erroring.
	page, err = repo.List(ctx, ListVideosParams{Page: -1, Limit: 5000})
	if err != nil {
		t.Fatalf("clamped list: %v", err)
	}
	if page.Page != 1 || page.Limit != maxPageSize {
		t.Fatalf("expected clamped page=1 limit=%d, got page=%d limit=%d", maxPageSize, page.Page, page.Limit)
	}
}

func TestPostgresVideoRepository_UpdateAndSoftDelete(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	owner := createTestUser(t, "owner")
	repo := NewPostgresVideoRepository(testPool)
	id := createTestVideo(t, repo, owner.ID, "Original Title", models.VisibilityPublic)

	title := "Updated Title"
	visibility := models.VisibilityPrivate
	if err := repo.Update(ctx, id, models.VideoPatch{Title: &title, Visibility: &visibility}); err != nil {
		t.Fatalf("update: %v", err)
	}

	video, err := repo.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("find after update: %v", err)
	}
	if video.Title != title || video.Visibility != models.VisibilityPrivate {
		t.Fatalf("patch not applied: %+v", video)
	}

	// An empty patch is a no-op, not an error.
	if err := repo.Update(ctx, id, models.VideoPatch{}); err != nil {
		t.Fatalf("empty patch: %v", err)
	}

	if err := repo.SoftDelete(ctx, id); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := repo.FindByID(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted video to read as absent, got %v", err)
	}
	if err := repo.SoftDelete(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected repeated delete to report ErrNotFound, got %v", err)
	}
	if err := repo.Update(ctx, id, models.VideoPatch{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected update of deleted video to report ErrNotFound, got %v", err)
	}
}

func TestPostgresCommentRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	owner := createTestUser(t, "owner")
	commenter := createTestUser(t, "commenter")
	videoRepo := NewPostgresVideoRepository(testPool)
	videoID := createTestVideo(t, videoRepo, owner.ID, "Clip", models.VisibilityPublic)

	repo := NewPostgresCommentRepository(testPool)

	first, err := repo.Add(ctx, videoID, commenter.ID, "first!")
	if err != nil {
		t.Fatalf("add first comment: %v", err)
	}
	second, err := repo.Add(ctx, videoID, owner.ID, "thanks for watching")
	if err != nil {
		t.Fatalf("add second comment: %v", err)
	}

	comments, err := repo.ListForVideo(ctx, videoID)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(comments))
	}
	if comments[0].ID != second || comments[1].ID != first {
		t.Fatalf("expected newest-first ordering, got %+v", comments)
	}
	if comments[1].Username != "commenter" {
		t.Fatalf("expected joined username, got %q", comments[1].Username)
	}

	comment, ownerID, err := repo.FindWithOwner(ctx, videoID, first)
	if err != nil {
		t.Fatalf("find with owner: %v", err)
	}
	if comment.UserID != commenter.ID || ownerID != owner.ID {
		t.Fatalf("unexpected author/owner: author=%d owner=%d", comment.UserID, ownerID)
	}

	if err := repo.Delete(ctx, videoID, first); err != nil {
		t.Fatalf("delete comment: %v", err)
	}
	if err := repo.Delete(ctx, videoID, first); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}

	if _, err := repo.Add(ctx, videoID+1000, commenter.ID, "orphan"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound commenting a missing video, got %v", err)
	}
}

func TestPostgresRatingRepository_UpsertAndAverage(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	owner := createTestUser(t, "owner")
	fan := createTestUser(t, "fan")
	critic := createTestUser(t, "critic")
	videoRepo := NewPostgresVideoRepository(testPool)
	videoID := createTestVideo(t, videoRepo, owner.ID, "Clip", models.VisibilityPublic)

	repo := NewPostgresRatingRepository(testPool)

	summary, err := repo.Average(ctx, videoID)
	if err != nil {
		t.Fatalf("average of unrated video: %v", err)
	}
	if summary.Average != 0 || summary.Count != 0 {
		t.Fatalf("expected zero summary, got %+v", summary)
	}

	if err := repo.Upsert(ctx, videoID, fan.ID, 5); err != nil {
		t.Fatalf("fan rates: %v", err)
	}
	if err := repo.Upsert(ctx, videoID, critic.ID, 2); err != nil {
		t.Fatalf("critic rates: %v", err)
	}

	summary, err = repo.Average(ctx, videoID)
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	if summary.Average != 3.5 || summary.Count != 2 {
		t.Fatalf("expected 3.5 across 2 ratings, got %+v", summary)
	}

	// A repeat rating replaces the previous one.
	if err := repo.Upsert(ctx, videoID, critic.ID, 4); err != nil {
		t.Fatalf("critic re-rates: %v", err)
	}
	summary, err = repo.Average(ctx, videoID)
	if err != nil {
		t.Fatalf("average after re-rate: %v", err)
	}
	if summary.Average != 4.5 || summary.Count != 2 {
		t.Fatalf("expected 4.5 across 2 ratings, got %+v", summary)
	}

	if err := repo.Upsert(ctx, videoID+1000, fan.ID, 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound rating a missing video, got %v", err)
	}

	// The listing aggregate reflects ratings.
	page, err := videoRepo.List(ctx, ListVideosParams{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Data) != 1 || page.Data[0].AvgRating != 4.5 || page.Data[0].RatingCount != 2 {
		t.Fatalf("expected aggregate on listing, got %+v", page.Data)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE ratings, comments, videos, user_sessions, users CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func createTestUser(t *testing.T, username string) models.User {
	t.Helper()
	repo := NewPostgresUserRepository(testPool)

	now := time.Now().UTC()
	user := models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "password-hash",
		Role:         models.RoleCreator,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	id, err := repo.Create(context.Background(), user)
	if err != nil {
		t.Fatalf("create test user %s: %v", username, err)
	}
	user.ID = id
	return user
}

func createTestVideo(t *testing.T, repo *PostgresVideoRepository, uploaderID int64, title string, visibility models.Visibility) int64 {
	t.Helper()
	return createTestVideoWithGenre(t, repo, uploaderID, title, "", visibility)
}

func createTestVideoWithGenre(t *testing.T, repo *PostgresVideoRepository, uploaderID int64, title, genre string, visibility models.Visibility) int64 {
	t.Helper()
	id, err := repo.Create(context.Background(), models.Video{
		Title:      title,
		Genre:      genre,
		Visibility: visibility,
		UploaderID: uploaderID,
		BlobName:   fmt.Sprintf("%d/%s.mp4", uploaderID, title),
		BlobURL:    fmt.Sprintf("https://cdn.example.com/%d/%s.mp4", uploaderID, title),
	})
	if err != nil {
		t.Fatalf("create test video %q: %v", title, err)
	}
	return id
}

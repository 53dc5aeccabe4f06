package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/clipvault/backend/internal/auth"
	"github.com/clipvault/backend/internal/middleware"
	"github.com/clipvault/backend/internal/models"
	"github.com/clipvault/backend/internal/repositories"
)

type fakeUserStore struct {
	mu      sync.Mutex
	nextID  int64
	users   map[int64]models.User
	lookups int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[int64]models.User)}
}

func (s *fakeUserStore) Create(_ context.Context, user models.User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == user.Username || (user.Email != "" && existing.Email == user.Email) {
			return 0, auth.ErrUserExists
		}
	}
	s.nextID++
	user.ID = s.nextID
	s.users[user.ID] = user
	return user.ID, nil
}

func (s *fakeUserStore) FindByID(_ context.Context, id int64) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, auth.ErrUserNotFound
	}
	return user, nil
}

func (s *fakeUserStore) FindByUsernameOrEmail(_ context.Context, q string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lookups++
	for _, user := range s.users {
		if user.Username == q || (user.Email != "" && user.Email == q) {
			return user, nil
		}
	}
	return models.User{}, auth.ErrUserNotFound
}

func (s *fakeUserStore) lookupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

type fakeVideoStore struct {
	mu         sync.Mutex
	nextID     int64
	videos     map[int64]models.Video
	listParams []repositories.ListVideosParams
}

func newFakeVideoStore() *fakeVideoStore {
	return &fakeVideoStore{videos: make(map[int64]models.Video)}
}

func (s *fakeVideoStore) Create(_ context.Context, video models.Video) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	video.ID = s.nextID
	now := time.Now().UTC()
	video.CreatedAt = now
	video.UpdatedAt = now
	s.videos[video.ID] = video
	return video.ID, nil
}

func (s *fakeVideoStore) FindByID(_ context.Context, id int64) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	video, ok := s.videos[id]
	if !ok {
		return models.Video{}, repositories.ErrNotFound
	}
	return video, nil
}

func (s *fakeVideoStore) List(_ context.Context, params repositories.ListVideosParams) (repositories.VideoPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listParams = append(s.listParams, params)

	var data []models.Video
	for _, video := range s.videos {
		if video.Visibility == models.VisibilityPublic || video.UploaderID == params.ViewerID {
			data = append(data, video)
		}
	}
	sort.Slice(data, func(i, j int) bool { return data[i].ID > data[j].ID })

	limit := params.Limit
	if limit < 1 {
		limit = 20
	}
	page := params.Page
	if page < 1 {
		page = 1
	}
	return repositories.VideoPage{
		Data:  data,
		Page:  page,
		Limit: limit,
		Total: int64(len(data)),
	}, nil
}

func (s *fakeVideoStore) Update(_ context.Context, id int64, patch models.VideoPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	video, ok := s.videos[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if patch.Title != nil {
		video.Title = *patch.Title
	}
	if patch.Description != nil {
		video.Description = *patch.Description
	}
	if patch.Genre != nil {
		video.Genre = *patch.Genre
	}
	if patch.Producer != nil {
		video.Producer = *patch.Producer
	}
	if patch.AgeRating != nil {
		video.AgeRating = *patch.AgeRating
	}
	if patch.Visibility != nil {
		video.Visibility = *patch.Visibility
	}
	video.UpdatedAt = time.Now().UTC()
	s.videos[id] = video
	return nil
}

func (s *fakeVideoStore) SoftDelete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.videos[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.videos, id)
	return nil
}

func (s *fakeVideoStore) lastListParams(t *testing.T) repositories.ListVideosParams {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.listParams) == 0 {
		t.Fatal("expected List to have been called")
	}
	return s.listParams[len(s.listParams)-1]
}

type fakeCommentStore struct {
	mu       sync.Mutex
	nextID   int64
	comments map[int64]models.Comment
	videos   *fakeVideoStore
}

func newFakeCommentStore(videos *fakeVideoStore) *fakeCommentStore {
	return &fakeCommentStore{comments: make(map[int64]models.Comment), videos: videos}
}

func (s *fakeCommentStore) ListForVideo(_ context.Context, videoID int64) ([]models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Comment
	for _, comment := range s.comments {
		if comment.VideoID == videoID {
			out = append(out, comment)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *fakeCommentStore) Add(_ context.Context, videoID, userID int64, comment string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.comments[s.nextID] = models.Comment{
		ID:        s.nextID,
		VideoID:   videoID,
		UserID:    userID,
		Comment:   comment,
		CreatedAt: time.Now().UTC(),
	}
	return s.nextID, nil
}

func (s *fakeCommentStore) FindWithOwner(ctx context.Context, videoID, commentID int64) (models.Comment, int64, error) {
	s.mu.Lock()
	comment, ok := s.comments[commentID]
	s.mu.Unlock()
	if !ok || comment.VideoID != videoID {
		return models.Comment{}, 0, repositories.ErrNotFound
	}

	video, err := s.videos.FindByID(ctx, videoID)
	if err != nil {
		return models.Comment{}, 0, err
	}
	return comment, video.UploaderID, nil
}

func (s *fakeCommentStore) Delete(_ context.Context, videoID, commentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	comment, ok := s.comments[commentID]
	if !ok || comment.VideoID != videoID {
		return repositories.ErrNotFound
	}
	delete(s.comments, commentID)
	return nil
}

type fakeRatingStore struct {
	mu      sync.Mutex
	ratings map[int64]map[int64]int
}

func newFakeRatingStore() *fakeRatingStore {
	return &fakeRatingStore{ratings: make(map[int64]map[int64]int)}
}

func (s *fakeRatingStore) Upsert(_ context.Context, videoID, userID int64, rating int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ratings[videoID] == nil {
		s.ratings[videoID] = make(map[int64]int)
	}
	s.ratings[videoID][userID] = rating
	return nil
}

func (s *fakeRatingStore) Average(_ context.Context, videoID int64) (models.RatingSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ratings := s.ratings[videoID]
	if len(ratings) == 0 {
		return models.RatingSummary{}, nil
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return models.RatingSummary{
		Average: float64(sum) / float64(len(ratings)),
		Count:   int64(len(ratings)),
	}, nil
}

type fakeStorage struct {
	mu    sync.Mutex
	saves []string
}

func (s *fakeStorage) Save(_ context.Context, name string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, name)
	return "https://cdn.example.com/" + name, nil
}

type testEnv struct {
	mux      *http.ServeMux
	users    *fakeUserStore
	sessions *auth.InMemorySessionStore
	videos   *fakeVideoStore
	comments *fakeCommentStore
	ratings  *fakeRatingStore
	storage  *fakeStorage
	limiter  *auth.LoginLimiter
	issuer   *auth.TokenIssuer
	service  *auth.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	hasher := auth.NewHasher(bcrypt.MinCost)
	issuer := auth.NewTokenIssuer("handler-test-secret", 15*time.Minute)
	users := newFakeUserStore()
	sessions := auth.NewInMemorySessionStore(hasher, 30*24*time.Hour)
	service := auth.NewService(users, sessions, hasher, issuer)

	videos := newFakeVideoStore()
	env := &testEnv{
		mux:      http.NewServeMux(),
		users:    users,
		sessions: sessions,
		videos:   videos,
		comments: newFakeCommentStore(videos),
		ratings:  newFakeRatingStore(),
		storage:  &fakeStorage{},
		limiter:  auth.NewLoginLimiter(10, time.Minute),
		issuer:   issuer,
		service:  service,
	}

	RegisterRoutes(env.mux, Dependencies{
		Auth:           service,
		Limiter:        env.limiter,
		Verifier:       issuer,
		Videos:         env.videos,
		Comments:       env.comments,
		Ratings:        env.ratings,
		Storage:        env.storage,
		Cache:          middleware.NewResponseCache(0),
		CookieTokens:   true,
		Secure:         false,
		RefreshTTL:     30 * 24 * time.Hour,
		MaxUploadBytes: 64 << 20,
	})

	return env
}

func buildJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	req := buildJSONRequest(t, method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

// signupUser registers an account directly through the service and
// returns its identity with a valid access token.
func (e *testEnv) signupUser(t *testing.T, username string, role models.Role) (models.PublicUser, string) {
	t.Helper()

	result, err := e.service.Signup(context.Background(), username, "hunter2hunter2", role, "", "test-agent", "192.0.2.1")
	if err != nil {
		t.Fatalf("signup %s: %v", username, err)
	}
	return result.User, result.AccessToken
}

func (e *testEnv) addVideo(t *testing.T, uploaderID int64, title string, visibility models.Visibility) int64 {
	t.Helper()

	id, err := e.videos.Create(context.Background(), models.Video{
		Title:      title,
		Visibility: visibility,
		UploaderID: uploaderID,
		BlobName:   fmt.Sprintf("%d/%s.mp4", uploaderID, title),
		BlobURL:    fmt.Sprintf("https://cdn.example.com/%d/%s.mp4", uploaderID, title),
	})
	if err != nil {
		t.Fatalf("create video: %v", err)
	}
	return id
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response body %q: %v", rec.Body.String(), err)
	}
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	body := decodeBody(t, rec)
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error envelope, got %q", rec.Body.String())
	}
	code, _ := errObj["code"].(string)
	return code
}

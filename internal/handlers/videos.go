package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clipvault/backend/internal/authz"
	"github.com/clipvault/backend/internal/logging"
	"github.com/clipvault/backend/internal/middleware"
	"github.com/clipvault/backend/internal/models"
	"github.com/clipvault/backend/internal/repositories"
)

const (
	titleMaxLen       = 200
	descriptionMaxLen = 5000
)

// CacheInvalidator drops memoized read responses after a mutation.
type CacheInvalidator interface {
	Invalidate()
}

// VideoHandler implements the video catalog endpoints.
type VideoHandler struct {
	Videos         VideoStore
	Storage        AssetStorage
	Cache          CacheInvalidator
	MaxUploadBytes int64
}

// Upload handles POST /api/v1/videos/upload. The route is limited to
// authenticated creators.
func (h VideoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	id, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "AUTH_REQUIRED", "missing token")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "invalid multipart upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "file field is required")
		return
	}
	defer file.Close()

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" || len(title) > titleMaxLen {
		respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "title must be 1-200 characters")
		return
	}

	visibility := models.Visibility(r.FormValue("visibility"))
	if visibility == "" {
		visibility = models.VisibilityPublic
	}
	if !visibility.Valid() {
		respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "visibility must be public, unlisted, or private")
		return
	}

	blobName := fmt.Sprintf("%d/%s-%s", id.UserID, uuid.NewString(), sanitizeFilename(header.Filename))

	saveCtx, span := logging.StartSpan(ctx, "video.upload.store")
	blobURL, err := h.Storage.Save(saveCtx, blobName, file)
	span.End()
	if err != nil {
		logger.Error("upload asset failed", "error", err, "blob", blobName)
		respondError(ctx, w, http.StatusInternalServerError, codeInternal, "failed to store video asset")
		return
	}

	video := models.Video{
		Title:       title,
		Description: strings.TrimSpace(r.FormValue("description")),
		Genre:       strings.TrimSpace(r.FormValue("genre")),
		Producer:    strings.TrimSpace(r.FormValue("producer")),
		AgeRating:   strings.TrimSpace(r.FormValue("age_rating")),
		Visibility:  visibility,
		SizeBytes:   header.Size,
		UploaderID:  id.UserID,
		BlobName:    blobName,
		BlobURL:     blobURL,
	}

	videoID, err := h.Videos.Create(ctx, video)
	if err != nil {
		logger.Error("create video failed", "error", err, "uploaderId", id.UserID)
		respondError(ctx, w, http.StatusInternalServerError, codeInternal, "failed to create video")
		return
	}

	h.invalidate()
	respondJSON(ctx, w, http.StatusCreated, map[string]any{
		"ok":  true,
		"id":  videoID,
		"url": blobURL,
	})
}

// List handles GET /api/v1/videos. Anonymous viewers see public videos
// only; authenticated viewers additionally see their own.
func (h VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params := repositories.ListVideosParams{
		Query: strings.TrimSpace(r.URL.Query().Get("q")),
		Genre: strings.TrimSpace(r.URL.Query().Get("genre")),
	}
	if id, ok := middleware.IdentityFromContext(ctx); ok {
		params.ViewerID = id.UserID
	}
	if raw := r.URL.Query().Get("uploaderId"); raw != "" {
		uploaderID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || uploaderID < 1 {
			respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "uploaderId must be a positive integer")
			return
		}
		params.UploaderID = uploaderID
	}
	if raw := r.URL.Query().Get("visibility"); raw != "" {
		visibility := models.Visibility(raw)
		if !visibility.Valid() {
			respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "visibility must be public, unlisted, or private")
			return
		}
		params.Visibility = visibility
	}
	params.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	params.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))

	page, err := h.Videos.List(ctx, params)
	if err != nil {
		logging.FromContext(ctx).Error("list videos failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, codeInternal, "failed to list videos")
		return
	}

	data := make([]videoResponse, 0, len(page.Data))
	for _, video := range page.Data {
		data = append(data, newVideoResponse(video))
	}

	respondJSON(ctx, w, http.StatusOK, videoPageResponse{
		OK:      true,
		Data:    data,
		Page:    page.Page,
		Limit:   page.Limit,
		Total:   page.Total,
		HasMore: page.HasMore,
	})
}

// Get handles GET /api/v1/videos/{id}. A private video a viewer may not
// see reads as absent, never as forbidden.
func (h VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	video, ok := h.loadVideo(w, r)
	if !ok {
		return
	}

	viewerID := viewerFromContext(ctx)
	if !authz.CanView(viewerID, video.UploaderID, video.Visibility) {
		respondError(ctx, w, http.StatusNotFound, codeNotFound, "video not found")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"ok": true, "video": newVideoResponse(video)})
}

// Update handles PATCH /api/v1/videos/{id}. Only the uploader may edit,
// and unlike reads, a non-owner who can already see the video gets an
// explicit 403.
func (h VideoHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	video, ok := h.loadVideo(w, r)
	if !ok {
		return
	}

	id, _ := middleware.IdentityFromContext(ctx)
	if !authz.CanView(id.UserID, video.UploaderID, video.Visibility) {
		respondError(ctx, w, http.StatusNotFound, codeNotFound, "video not found")
		return
	}
	if !authz.CanModify(id.UserID, video.UploaderID) {
		respondError(ctx, w, http.StatusForbidden, codeForbidden, "only the uploader may modify this video")
		return
	}

	var req updateVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "invalid request body")
		return
	}

	if req.Title != nil {
		trimmed := strings.TrimSpace(*req.Title)
		if trimmed == "" || len(trimmed) > titleMaxLen {
			respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "title must be 1-200 characters")
			return
		}
		*req.Title = trimmed
	}
	if req.Description != nil && len(*req.Description) > descriptionMaxLen {
		respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "description too long")
		return
	}

	var visibility *models.Visibility
	if req.Visibility != nil {
		v := models.Visibility(*req.Visibility)
		if !v.Valid() {
			respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "visibility must be public, unlisted, or private")
			return
		}
		visibility = &v
	}

	patch := models.VideoPatch{
		Title:       req.Title,
		Description: req.Description,
		Genre:       req.Genre,
		Producer:    req.Producer,
		AgeRating:   req.AgeRating,
		Visibility:  visibility,
	}

	if err := h.Videos.Update(ctx, video.ID, patch); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, codeNotFound, "video not found")
			return
		}
		logging.FromContext(ctx).Error("update video failed", "error", err, "videoId", video.ID)
		respondError(ctx, w, http.StatusInternalServerError, codeInternal, "failed to update video")
		return
	}

	updated, err := h.Videos.FindByID(ctx, video.ID)
	if err != nil {
		logging.FromContext(ctx).Error("reload video failed", "error", err, "videoId", video.ID)
		respondError(ctx, w, http.StatusInternalServerError, codeInternal, "failed to load video")
		return
	}

	h.invalidate()
	respondJSON(ctx, w, http.StatusOK, map[string]any{"ok": true, "video": newVideoResponse(updated)})
}

// Delete handles DELETE /api/v1/videos/{id}. Soft delete only; the blob
// stays in object storage.
func (h VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	video, ok := h.loadVideo(w, r)
	if !ok {
		return
	}

	id, _ := middleware.IdentityFromContext(ctx)
	if !authz.CanView(id.UserID, video.UploaderID, video.Visibility) {
		respondError(ctx, w, http.StatusNotFound, codeNotFound, "video not found")
		return
	}
	if !authz.CanModify(id.UserID, video.UploaderID) {
		respondError(ctx, w, http.StatusForbidden, codeForbidden, "only the uploader may delete this video")
		return
	}

	if err := h.Videos.SoftDelete(ctx, video.ID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, codeNotFound, "video not found")
			return
		}
		logging.FromContext(ctx).Error("delete video failed", "error", err, "videoId", video.ID)
		respondError(ctx, w, http.StatusInternalServerError, codeInternal, "failed to delete video")
		return
	}

	h.invalidate()
	respondJSON(ctx, w, http.StatusOK, map[string]any{"ok": true})
}

func (h VideoHandler) loadVideo(w http.ResponseWriter, r *http.Request) (models.Video, bool) {
	ctx := r.Context()

	videoID, err := pathID(r, "id")
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "invalid video id")
		return models.Video{}, false
	}

	video, err := h.Videos.FindByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, codeNotFound, "video not found")
			return models.Video{}, false
		}
		logging.FromContext(ctx).Error("load video failed", "error", err, "videoId", videoID)
		respondError(ctx, w, http.StatusInternalServerError, codeInternal, "failed to load video")
		return models.Video{}, false
	}

	return video, true
}

func (h VideoHandler) invalidate() {
	if h.Cache != nil {
		h.Cache.Invalidate()
	}
}

func viewerFromContext(ctx context.Context) int64 {
	if id, ok := middleware.IdentityFromContext(ctx); ok {
		return id.UserID
	}
	return 0
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) || base == "" {
		return "upload"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, base)
}

type updateVideoRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Genre       *string `json:"genre"`
	Producer    *string `json:"producer"`
	AgeRating   *string `json:"age_rating"`
	Visibility  *string `json:"visibility"`
}

type videoResponse struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Genre       string  `json:"genre"`
	Producer    string  `json:"producer"`
	AgeRating   string  `json:"age_rating"`
	Visibility  string  `json:"visibility"`
	DurationS   int64   `json:"duration_s"`
	SizeBytes   int64   `json:"size_bytes"`
	UploaderID  int64   `json:"uploader_id"`
	BlobURL     string  `json:"blob_url"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
	AvgRating   float64 `json:"avg_rating"`
	RatingCount int64   `json:"rating_count"`
}

func newVideoResponse(v models.Video) videoResponse {
	return videoResponse{
		ID:          v.ID,
		Title:       v.Title,
		Description: v.Description,
		Genre:       v.Genre,
		Producer:    v.Producer,
		AgeRating:   v.AgeRating,
		Visibility:  string(v.Visibility),
		DurationS:   v.DurationS,
		SizeBytes:   v.SizeBytes,
		UploaderID:  v.UploaderID,
		BlobURL:     v.BlobURL,
		CreatedAt:   v.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   v.UpdatedAt.UTC().Format(time.RFC3339),
		AvgRating:   v.AvgRating,
		RatingCount: v.RatingCount,
	}
}

type videoPageResponse struct {
	OK      bool            `json:"ok"`
	Data    []videoResponse `json:"data"`
	Page    int             `json:"page"`
	Limit   int             `json:"limit"`
	Total   int64           `json:"total"`
	HasMore bool            `json:"hasMore"`
}

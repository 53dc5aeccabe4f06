package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clipvault/backend/internal/authz"
	"github.com/clipvault/backend/internal/logging"
	"github.com/clipvault/backend/internal/middleware"
	"github.com/clipvault/backend/internal/models"
	"github.com/clipvault/backend/internal/repositories"
)

// RatingHandler implements the per-video rating endpoints.
type RatingHandler struct {
	Videos  VideoStore
	Ratings RatingStore
	Cache   CacheInvalidator
}

// Rate handles POST /api/v1/videos/{id}/ratings. A repeat rating from
// the same viewer replaces the previous one.
func (h RatingHandler) Rate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "AUTH_REQUIRED", "missing token")
		return
	}

	video, ok := h.visibleVideo(w, r)
	if !ok {
		return
	}

	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "invalid request body")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "rating must be an integer between 1 and 5")
		return
	}

	if err := h.Ratings.Upsert(ctx, video.ID, id.UserID, req.Rating); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, codeNotFound, "video not found")
			return
		}
		logging.FromContext(ctx).Error("upsert rating failed", "error", err, "videoId", video.ID)
		respondError(ctx, w, http.StatusInternalServerError, codeInternal, "failed to record rating")
		return
	}

	if h.Cache != nil {
		h.Cache.Invalidate()
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"ok": true})
}

// Average handles GET /api/v1/videos/{id}/ratings/avg.
func (h RatingHandler) Average(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	video, ok := h.visibleVideo(w, r)
	if !ok {
		return
	}

	summary, err := h.Ratings.Average(ctx, video.ID)
	if err != nil {
		logging.FromContext(ctx).Error("rating average failed", "error", err, "videoId", video.ID)
		respondError(ctx, w, http.StatusInternalServerError, codeInternal, "failed to load rating")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"ok":      true,
		"average": summary.Average,
		"count":   summary.Count,
	})
}

func (h RatingHandler) visibleVideo(w http.ResponseWriter, r *http.Request) (models.Video, bool) {
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

	if !authz.CanView(viewerFromContext(ctx), video.UploaderID, video.Visibility) {
		respondError(ctx, w, http.StatusNotFound, codeNotFound, "video not found")
		return models.Video{}, false
	}

	return video, true
}

type rateRequest struct {
	Rating int `json:"rating"`
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/clipvault/backend/internal/authz"
	"github.com/clipvault/backend/internal/logging"
	"github.com/clipvault/backend/internal/middleware"
	"github.com/clipvault/backend/internal/models"
	"github.com/clipvault/backend/internal/repositories"
)

const commentMaxLen = 2000

// CommentHandler implements the per-video comment endpoints.
type CommentHandler struct {
	Videos   VideoStore
	Comments CommentStore
	Cache    CacheInvalidator
}

// List handles GET /api/v1/videos/{id}/comments.
func (h CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	video, ok := h.visibleVideo(w, r)
	if !ok {
		return
	}

	comments, err := h.Comments.ListForVideo(ctx, video.ID)
	if err != nil {
		logging.FromContext(ctx).Error("list comments failed", "error", err, "videoId", video.ID)
		respondError(ctx, w, http.StatusInternalServerError, codeInternal, "failed to list comments")
		return
	}

	data := make([]commentResponse, 0, len(comments))
	for _, comment := range comments {
		data = append(data, newCommentResponse(comment))
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"ok": true, "data": data})
}

// Create handles POST /api/v1/videos/{id}/comments for authenticated
// viewers who can see the video.
func (h CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
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

	var req createCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "invalid request body")
		return
	}

	comment := strings.TrimSpace(req.Comment)
	if comment == "" || len(comment) > commentMaxLen {
		respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "comment must be 1-2000 characters")
		return
	}

	commentID, err := h.Comments.Add(ctx, video.ID, id.UserID, comment)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, codeNotFound, "video not found")
			return
		}
		logging.FromContext(ctx).Error("add comment failed", "error", err, "videoId", video.ID)
		respondError(ctx, w, http.StatusInternalServerError, codeInternal, "failed to add comment")
		return
	}

	if h.Cache != nil {
		h.Cache.Invalidate()
	}
	respondJSON(ctx, w, http.StatusCreated, map[string]any{"ok": true, "id": commentID})
}

// Delete handles DELETE /api/v1/videos/{id}/comments/{commentId}. The
// comment author and the video owner may both delete.
func (h CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "AUTH_REQUIRED", "missing token")
		return
	}

	videoID, err := pathID(r, "id")
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "invalid video id")
		return
	}
	commentID, err := pathID(r, "commentId")
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "invalid comment id")
		return
	}

	comment, ownerID, err := h.Comments.FindWithOwner(ctx, videoID, commentID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, codeNotFound, "comment not found")
			return
		}
		logging.FromContext(ctx).Error("load comment failed", "error", err, "commentId", commentID)
		respondError(ctx, w, http.StatusInternalServerError, codeInternal, "failed to load comment")
		return
	}

	if !authz.CanDeleteComment(id.UserID, comment.UserID, ownerID) {
		respondError(ctx, w, http.StatusForbidden, codeForbidden, "only the author or the video owner may delete this comment")
		return
	}

	if err := h.Comments.Delete(ctx, videoID, commentID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, codeNotFound, "comment not found")
			return
		}
		logging.FromContext(ctx).Error("delete comment failed", "error", err, "commentId", commentID)
		respondError(ctx, w, http.StatusInternalServerError, codeInternal, "failed to delete comment")
		return
	}

	if h.Cache != nil {
		h.Cache.Invalidate()
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"ok": true})
}

// visibleVideo loads the routed video and applies the viewer's
// visibility. Invisible and absent are indistinguishable.
func (h CommentHandler) visibleVideo(w http.ResponseWriter, r *http.Request) (models.Video, bool) {
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

type createCommentRequest struct {
	Comment string `json:"comment"`
}

type commentResponse struct {
	ID        int64  `json:"id"`
	VideoID   int64  `json:"video_id"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Comment   string `json:"comment"`
	CreatedAt string `json:"created_at"`
}

func newCommentResponse(c models.Comment) commentResponse {
	return commentResponse{
		ID:        c.ID,
		VideoID:   c.VideoID,
		UserID:    c.UserID,
		Username:  c.Username,
		Comment:   c.Comment,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

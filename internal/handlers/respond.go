package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/clipvault/backend/internal/logging"
)

// errorBody is the error envelope shared by every endpoint.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	OK    bool      `json:"ok"`
	Error errorBody `json:"error"`
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

func respondError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	respondJSON(ctx, w, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

const (
	codeInvalidInput       = "INVALID_INPUT"
	codeInvalidCredentials = "INVALID_CREDENTIALS"
	codeInvalidRefresh     = "INVALID_REFRESH"
	codeRateLimited        = "RATE_LIMITED"
	codeForbidden          = "FORBIDDEN"
	codeNotFound           = "NOT_FOUND"
	codeConflict           = "CONFLICT"
	codeInternal           = "INTERNAL"
)

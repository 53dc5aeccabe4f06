package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/clipvault/backend/internal/auth"
	"github.com/clipvault/backend/internal/logging"
	"github.com/clipvault/backend/internal/middleware"
	"github.com/clipvault/backend/internal/models"
)

const (
	usernameMinLen = 3
	usernameMaxLen = 100
	passwordMinLen = 8
	// bcrypt reads at most 72 bytes of its input; longer passwords are
	// rejected up front rather than silently truncated.
	passwordMaxBytes = 72
)

// AuthHandler implements the authentication endpoints.
type AuthHandler struct {
	Service AuthService
	Limiter LoginLimiter

	// CookieTokens switches refresh-secret delivery between an httpOnly
	// cookie and the response body.
	CookieTokens bool
	Secure       bool
	RefreshTTL   time.Duration
}

// SignUp handles POST /api/v1/auth/signup.
func (h AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "invalid request body")
		return
	}

	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if n := utf8.RuneCountInString(req.Username); n < usernameMinLen || n > usernameMaxLen {
		respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "username must be 3-100 characters")
		return
	}
	if utf8.RuneCountInString(req.Password) < passwordMinLen || len(req.Password) > passwordMaxBytes {
		respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "password must be at least 8 characters and at most 72 bytes")
		return
	}

	role := models.Role(req.Role)
	if role == "" {
		role = models.RoleConsumer
	}
	if !role.Valid() {
		respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "role must be creator or consumer")
		return
	}

	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "invalid email address")
			return
		}
	}

	result, err := h.Service.Signup(ctx, req.Username, req.Password, role, req.Email, r.UserAgent(), ClientIP(r))
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			respondError(ctx, w, http.StatusConflict, codeConflict, "username or email already exists")
			return
		}
		logger.Error("signup failed", "error", err, "username", req.Username)
		respondError(ctx, w, http.StatusInternalServerError, codeInternal, "failed to create account")
		return
	}

	h.respondAuth(w, r, http.StatusCreated, result)
}

// Login handles POST /api/v1/auth/login.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "invalid request body")
		return
	}

	identifier := strings.TrimSpace(req.UsernameOrEmail)
	if identifier == "" || req.Password == "" {
		respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "usernameOrEmail and password are required")
		return
	}

	// The limiter gate comes before any credential work so a flooded
	// identifier never reaches the password hash.
	if h.Limiter != nil && !h.Limiter.Allow(auth.LimiterKey(ClientIP(r), identifier)) {
		logger.Warn("login rate limited", "ip", ClientIP(r))
		respondError(ctx, w, http.StatusTooManyRequests, codeRateLimited, "too many login attempts")
		return
	}

	result, err := h.Service.Login(ctx, identifier, req.Password, r.UserAgent(), ClientIP(r))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondError(ctx, w, http.StatusUnauthorized, codeInvalidCredentials, "invalid credentials")
			return
		}
		logger.Error("login failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, codeInternal, "failed to log in")
		return
	}

	h.respondAuth(w, r, http.StatusOK, result)
}

// Refresh handles POST /api/v1/auth/refresh. The refresh secret arrives
// in the httpOnly cookie when cookie delivery is on, or in the body
// otherwise; the cookie wins when both are present.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, codeInvalidInput, "invalid request body")
		return
	}

	secret := h.refreshSecret(r, req.RefreshToken)
	if req.UserID <= 0 || secret == "" {
		respondError(ctx, w, http.StatusUnauthorized, codeInvalidRefresh, "invalid refresh token")
		return
	}

	result, err := h.Service.Refresh(ctx, req.UserID, secret, r.UserAgent(), ClientIP(r))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidRefresh) {
			if h.CookieTokens {
				clearRefreshCookie(w, h.Secure)
			}
			respondError(ctx, w, http.StatusUnauthorized, codeInvalidRefresh, "invalid refresh token")
			return
		}
		logger.Error("refresh failed", "error", err, "userId", req.UserID)
		respondError(ctx, w, http.StatusInternalServerError, codeInternal, "failed to refresh session")
		return
	}

	h.respondAuth(w, r, http.StatusOK, result)
}

// Logout handles POST /api/v1/auth/logout. It succeeds whether or not a
// matching session existed.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req refreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	secret := h.refreshSecret(r, req.RefreshToken)
	if req.UserID > 0 && secret != "" {
		if err := h.Service.Logout(ctx, req.UserID, secret); err != nil {
			logger.Error("logout failed", "error", err, "userId", req.UserID)
			respondError(ctx, w, http.StatusInternalServerError, codeInternal, "failed to log out")
			return
		}
	}

	if h.CookieTokens {
		clearRefreshCookie(w, h.Secure)
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"ok": true})
}

// Me handles GET /api/v1/auth/me for authenticated callers.
func (h AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "AUTH_REQUIRED", "missing token")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"ok":   true,
		"user": models.PublicUser{ID: id.UserID, Username: id.Username, Role: id.Role},
	})
}

func (h AuthHandler) refreshSecret(r *http.Request, bodySecret string) string {
	if h.CookieTokens {
		if cookie, err := r.Cookie(refreshCookieName); err == nil && cookie.Value != "" {
			return cookie.Value
		}
	}
	return strings.TrimSpace(bodySecret)
}

func (h AuthHandler) respondAuth(w http.ResponseWriter, r *http.Request, status int, result auth.AuthResult) {
	resp := authResponse{
		OK:          true,
		User:        result.User,
		AccessToken: result.AccessToken,
		SessionID:   result.SessionID,
	}

	if h.CookieTokens {
		setRefreshCookie(w, result.RefreshSecret, h.RefreshTTL, h.Secure)
	} else {
		resp.RefreshToken = result.RefreshSecret
	}

	respondJSON(r.Context(), w, status, resp)
}

type signUpRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
}

type refreshRequest struct {
	UserID       int64  `json:"userId"`
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	OK           bool              `json:"ok"`
	User         models.PublicUser `json:"user"`
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken,omitempty"`
	SessionID    int64             `json:"sessionId"`
}

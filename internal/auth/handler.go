package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"auth-service/internal/observability"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{4,32}$`)

const (
	maxJSONBodyBytes  = 1 << 20
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/auth/refresh"
)

type Handler struct {
	service    *Service
	logger     *observability.Logger
	refreshTTL time.Duration
}

func NewHandler(service *Service, logger *observability.Logger, refreshTTL time.Duration) *Handler {
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &Handler{service: service, logger: logger, refreshTTL: refreshTTL}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	body, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	user, err := h.service.Register(r.Context(), body.Username, body.Password)
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			writeError(w, http.StatusBadRequest, "username already exists")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	h.logger.Info("user_registered", map[string]any{"user_id": user.ID, "username": user.Username})
	writeJSON(w, http.StatusCreated, map[string]string{"message": "user registered successfully"})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	body, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	tokens, err := h.service.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		var lockedErr ErrAccountLocked
		if errors.As(err, &lockedErr) {
			h.logger.Info("login_locked", map[string]any{"username": body.Username, "until": lockedErr.Until.Format(time.RFC3339)})
			retryAfter := int(time.Until(lockedErr.Until).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusForbidden, "account locked, please try again later")
			return
		}
		if errors.Is(err, ErrInvalidCredentials) {
			h.logger.Info("login_failed", map[string]any{"username": body.Username})
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to login")
		return
	}

	h.logger.Info("login_success", map[string]any{"username": body.Username})
	h.setRefreshCookie(w, tokens.RefreshToken)
	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := h.refreshTokenFromRequest(w, r)

	tokens, err := h.service.RefreshSession(r.Context(), refreshToken)
	if err != nil {
		if errors.Is(err, ErrMissingRefreshToken) {
			writeError(w, http.StatusBadRequest, "refresh token is required")
			return
		}
		if errors.Is(err, ErrInvalidRefreshToken) {
			writeError(w, http.StatusForbidden, "invalid refresh token")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	h.logger.Info("token_refreshed", map[string]any{})
	h.setRefreshCookie(w, tokens.RefreshToken)
	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body credentialsRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return credentialsRequest{}, false
	}

	body.Username = strings.TrimSpace(body.Username)
	if !usernameRegex.MatchString(body.Username) {
		writeError(w, http.StatusBadRequest, "username must be 4-32 characters of letters, digits, '_', '.' or '-'")
		return credentialsRequest{}, false
	}
	if len(body.Password) < 6 || len(body.Password) > 200 {
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters long")
		return credentialsRequest{}, false
	}

	return body, true
}

// refreshTokenFromRequest prefers the http-only cookie and falls back to
// the JSON body for non-browser clients.
func (h *Handler) refreshTokenFromRequest(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(refreshCookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
		return strings.TrimSpace(cookie.Value)
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	var body refreshRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		return ""
	}

	return strings.TrimSpace(body.RefreshToken)
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    refreshToken,
		Path:     refreshCookiePath,
		MaxAge:   int(h.refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

package httptransport

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"chronicle/internal/authevents"
	"chronicle/pkg/requestcontext"
)

// AuthHandler exposes the authentication layer that feeds LOGIN/LOGOUT/
// FAILED_LOGIN events into the trail.
type AuthHandler struct {
	service *authevents.Service
	logger  *slog.Logger
}

// NewAuthHandler constructs the auth handler.
func NewAuthHandler(service *authevents.Service, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{service: service, logger: logger}
}

// Register mounts the auth endpoints on the router.
func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/logout", h.handleLogout)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[loginRequest](w, r)
	if !ok {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	token, err := h.service.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, authevents.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "username or password incorrect")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "login_failed", "could not complete login")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type logoutRequest struct {
	Username string `json:"username"`
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[logoutRequest](w, r)
	if !ok {
		return
	}
	if requestcontext.ActorID(r.Context()) == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no authenticated session")
		return
	}

	h.service.Logout(r.Context(), req.Username)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

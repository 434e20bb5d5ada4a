package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/peegflow-code/peegflow/internal/identity"
	"github.com/peegflow-code/peegflow/pkg/logging"
)

// SessionManager is the slice of identity.Sessions the auth handler uses.
type SessionManager interface {
	Login(ctx context.Context, tenantSlug, email, password string) (string, *identity.User, error)
	Logout(ctx context.Context, rawToken string) error
	Me(ctx context.Context, session *identity.Session) (*identity.User, error)
	Verify(ctx context.Context, rawToken string) (*identity.Session, error)
}

type AuthHandler struct {
	sessions SessionManager
	logger   *logging.Logger
}

func NewAuthHandler(sessions SessionManager, logger *logging.Logger) *AuthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AuthHandler{sessions: sessions, logger: logger}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges form credentials for a bearer token. The form field is
// named username for OAuth2 password flow compatibility but carries the
// user's email.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "tenantSlug")

	if err := r.ParseForm(); err != nil {
		writeBadRequest(w, "malformed form body")
		return
	}
	email := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")
	if email == "" || password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	token, user, err := h.sessions.Login(r.Context(), slug, email, password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("login", "tenant", slug, "user_id", user.ID, "role", user.Role)
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

// Me returns the profile behind the current session token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}
	user, err := h.sessions.Me(r.Context(), session)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Logout revokes the presented token for the rest of its lifetime.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerFromRequest(r)
	if !ok {
		writeError(w, h.logger, identity.ErrUnauthenticated)
		return
	}
	if err := h.sessions.Logout(r.Context(), token); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *AuthHandler) sessionFromRequest(w http.ResponseWriter, r *http.Request) (*identity.Session, bool) {
	token, ok := bearerFromRequest(r)
	if !ok {
		writeError(w, h.logger, identity.ErrUnauthenticated)
		return nil, false
	}
	session, err := h.sessions.Verify(r.Context(), token)
	if err != nil {
		writeError(w, h.logger, err)
		return nil, false
	}
	return session, true
}

func bearerFromRequest(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return token, token != ""
}

// ABOUTME: Chat web UI package providing login, session cookies, and routes
// ABOUTME: Gated on a shared password; chat state rides in a signed cookie

package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/helmline/chatgate/internal/auth"
	"github.com/helmline/chatgate/internal/chat"
	"github.com/helmline/chatgate/internal/mcp"
	"github.com/helmline/chatgate/internal/session"
	"github.com/helmline/chatgate/internal/store"
)

const (
	// SessionCookieName is the name of the session cookie
	SessionCookieName = "chatgate_session"

	// CSRFCookieName is the name of the CSRF token cookie
	CSRFCookieName = "chatgate_csrf"

	// SessionDuration is how long login sessions last
	SessionDuration = 7 * 24 * time.Hour
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const sessionContextKey contextKey = "web_session"
const csrfContextKey contextKey = "csrf_token"

// ToolConn is the subset of the MCP client the web layer drives directly:
// establishing the connection plus everything the registry holds.
type ToolConn interface {
	session.Connection
	Connect(ctx context.Context) ([]mcp.Tool, error)
	SessionID() string
}

// ToolDialer creates an unconnected tool client bound to a bearer token
type ToolDialer func(token string) ToolConn

// Config holds web UI configuration
type Config struct {
	// PasswordHash is the bcrypt hash of the shared UI password
	PasswordHash string

	// CookieSecret signs session cookies
	CookieSecret []byte

	// UserEmail identifies the tenant user; it tags transcripts and
	// model requests
	UserEmail string

	// SharedSession binds every browser to one tool connection instead
	// of dialing a fresh connection per chat session
	SharedSession bool
}

// Handler serves the chat UI routes
type Handler struct {
	config        Config
	store         store.Store
	registry      *session.Registry
	gate          *session.Gate
	authenticator auth.Authenticator
	model         chat.ModelClient
	dial          ToolDialer
	codec         *cookieCodec
	logger        *slog.Logger
}

// New creates a web handler
func New(cfg Config, st store.Store, registry *session.Registry, authenticator auth.Authenticator, model chat.ModelClient, dial ToolDialer, logger *slog.Logger) *Handler {
	return &Handler{
		config:        cfg,
		store:         st,
		registry:      registry,
		gate:          session.NewGate(registry),
		authenticator: authenticator,
		model:         model,
		dial:          dial,
		codec:         newCookieCodec(cfg.CookieSecret),
		logger:        logger.With("component", "web"),
	}
}

// RegisterRoutes attaches all UI routes to the mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Public routes (no auth required)
	mux.HandleFunc("GET /login", h.handleLoginPage)
	mux.HandleFunc("POST /login", h.handleLogin)

	// Protected routes (auth required)
	mux.HandleFunc("GET /{$}", h.requireLogin(h.handleChatPage))
	mux.HandleFunc("POST /logout", h.requireLogin(h.handleLogout))
	mux.HandleFunc("POST /chat/connect", h.requireLogin(h.handleConnect))
	mux.HandleFunc("POST /chat/message", h.requireLogin(h.handleMessage))
	mux.HandleFunc("POST /chat/disconnect", h.requireLogin(h.handleDisconnect))

	h.logger.Info("web routes registered")
}

// requireLogin wraps a handler to require a valid session cookie
func (h *Handler) requireLogin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := h.sessionFromRequest(r)
		if err != nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, sess)
		next(w, r.WithContext(ctx))
	}
}

// sessionFromRequest decodes the session cookie
func (h *Handler) sessionFromRequest(r *http.Request) (*webSession, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, err
	}
	return h.codec.Decode(cookie.Value)
}

// sessionFromContext retrieves the decoded session from the request context
func sessionFromContext(r *http.Request) *webSession {
	sess, _ := r.Context().Value(sessionContextKey).(*webSession)
	return sess
}

// setSessionCookie signs and sets the session cookie
func (h *Handler) setSessionCookie(w http.ResponseWriter, r *http.Request, sess *webSession) error {
	value, err := h.codec.Encode(sess, SessionDuration)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(SessionDuration),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// getCSRFToken retrieves the CSRF token from the request context
func getCSRFToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfContextKey).(string)
	return token
}

// ensureCSRFToken generates a CSRF token if not present and adds it to context
func (h *Handler) ensureCSRFToken(w http.ResponseWriter, r *http.Request) (*http.Request, string) {
	cookie, err := r.Cookie(CSRFCookieName)
	if err == nil && cookie.Value != "" {
		ctx := context.WithValue(r.Context(), csrfContextKey, cookie.Value)
		return r.WithContext(ctx), cookie.Value
	}

	token, err := generateSecureToken(32)
	if err != nil {
		h.logger.Error("failed to generate CSRF token", "error", err)
		token = "" // Will fail validation, but won't crash
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	ctx := context.WithValue(r.Context(), csrfContextKey, token)
	return r.WithContext(ctx), token
}

// validateCSRF checks the CSRF token from form against cookie
func (h *Handler) validateCSRF(r *http.Request) bool {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}

	formToken := r.FormValue("csrf_token")
	if formToken == "" {
		// Also check header for htmx requests
		formToken = r.Header.Get("X-CSRF-Token")
	}

	return formToken != "" && formToken == cookie.Value
}

// generateSecureToken creates a random hex token
func generateSecureToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	// Already logged in?
	if _, err := h.sessionFromRequest(r); err == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	_, csrfToken := h.ensureCSRFToken(w, r)
	h.renderLoginPage(w, "", csrfToken)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		_, csrfToken := h.ensureCSRFToken(w, r)
		h.renderLoginPage(w, "Invalid form data", csrfToken)
		return
	}

	if !h.validateCSRF(r) {
		_, csrfToken := h.ensureCSRFToken(w, r)
		h.renderLoginPage(w, "Invalid request, please try again", csrfToken)
		return
	}

	password := r.FormValue("password")
	if password == "" {
		_, csrfToken := h.ensureCSRFToken(w, r)
		h.renderLoginPage(w, "Password required", csrfToken)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(h.config.PasswordHash), []byte(password)); err != nil {
		_, csrfToken := h.ensureCSRFToken(w, r)
		h.renderLoginPage(w, "Invalid password", csrfToken)
		return
	}

	sess := &webSession{Email: h.config.UserEmail}
	if err := h.setSessionCookie(w, r, sess); err != nil {
		h.logger.Error("failed to create session cookie", "error", err)
		_, csrfToken := h.ensureCSRFToken(w, r)
		h.renderLoginPage(w, "An error occurred", csrfToken)
		return
	}

	h.logger.Info("login successful")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || !h.validateCSRF(r) {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	// Tear down any live chat session before dropping the cookie.
	if sess := sessionFromContext(r); sess != nil && sess.connected() {
		if err := h.registry.Remove(r.Context(), sess.SessionID); err != nil {
			h.logger.Warn("disconnect on logout failed", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

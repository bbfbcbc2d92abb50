// ABOUTME: Chat handlers: connect, message, and disconnect operations
// ABOUTME: Maps gate failures to distinct user-facing responses

package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/helmline/chatgate/internal/chat"
	"github.com/helmline/chatgate/internal/session"
	"github.com/helmline/chatgate/internal/store"
)

func (h *Handler) handleChatPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r)
	r, csrfToken := h.ensureCSRFToken(w, r)

	data := chatData{
		Email:     sess.Email,
		CSRFToken: csrfToken,
	}

	if sess.connected() {
		if conn, release, err := h.gate.Check(ticketFor(sess)); err == nil {
			data.Connected = true
			data.ToolCount = len(conn.Tools())
			release()
			h.registry.Touch(sess.SessionID)
		}
	}

	if data.Connected && sess.ThreadID != "" {
		msgs, err := h.store.ThreadMessages(r.Context(), sess.ThreadID, 0)
		if err != nil {
			h.logger.Error("failed to load transcript", "thread_id", sess.ThreadID, "error", err)
		} else {
			data.Messages = messageViews(msgs)
		}
	}

	h.renderChatPage(w, data)
}

// sharedSessionID is the registry key used when all browsers share one
// tool connection.
const sharedSessionID = "shared"

// handleConnect establishes a chat session: authenticate upstream, connect
// the tool client, bind it in the registry, and stamp the IDs into the
// session cookie.
func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r)
	r, csrfToken := h.ensureCSRFToken(w, r)

	if err := r.ParseForm(); err != nil || !h.validateCSRF(r) {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	// Reconnecting replaces any previous per-session connection. A shared
	// connection stays up for the other browsers using it.
	if sess.connected() && !h.config.SharedSession {
		if err := h.registry.Remove(r.Context(), sess.SessionID); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			h.logger.Warn("removing stale session failed", "error", err)
		}
	}

	cred, err := h.authenticator.Authenticate(r.Context())
	if err != nil {
		h.logger.Error("upstream authentication failed", "error", err)
		h.renderChatPage(w, chatData{Email: sess.Email, Error: "Authentication failed", CSRFToken: csrfToken})
		return
	}

	sessionID, ok := h.reuseSharedConnection()
	if !ok {
		conn := h.dial(cred.Token)
		if _, err := conn.Connect(r.Context()); err != nil {
			h.logger.Error("tool server connection failed", "error", err)
			h.renderChatPage(w, chatData{Email: sess.Email, Error: "Could not connect to tool server", CSRFToken: csrfToken})
			return
		}

		switch {
		case h.config.SharedSession:
			sessionID = sharedSessionID
		case conn.SessionID() != "":
			sessionID = conn.SessionID()
		default:
			// Server runs stateless; mint a local ID to track the connection.
			sessionID = uuid.NewString()
		}
		h.registry.Bind(sessionID, conn)
	}

	thread := &store.Thread{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserEmail: sess.Email,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := h.store.CreateThread(r.Context(), thread); err != nil {
		h.logger.Error("failed to create transcript thread", "error", err)
		// Chat still works without a transcript.
		thread.ID = ""
	}

	sess.Token = cred.Token
	sess.TokenExpiry = cred.ExpiresAt
	sess.SessionID = sessionID
	sess.ThreadID = thread.ID
	if err := h.setSessionCookie(w, r, sess); err != nil {
		h.logger.Error("failed to update session cookie", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("chat session established", "session_id", sessionID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleMessage processes one user message through the conversation driver
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r)

	if err := r.ParseForm(); err != nil || !h.validateCSRF(r) {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	text := strings.TrimSpace(r.FormValue("text"))
	if text == "" {
		http.Error(w, "empty message", http.StatusBadRequest)
		return
	}

	conn, release, err := h.gate.Check(ticketFor(sess))
	if err != nil {
		h.respondGateError(w, err)
		return
	}
	defer release()

	driver := chat.NewDriver(h.model, conn, h.logger)
	reply, err := driver.ProcessMessage(r.Context(), text, sess.Email)
	if err != nil {
		h.logger.Error("message processing failed", "session_id", sess.SessionID, "error", err)
		http.Error(w, "failed to process message", http.StatusBadGateway)
		return
	}

	h.persistExchange(r, sess, text, reply)

	h.renderExchange(w, []messageView{
		{Sender: store.SenderUser, HTML: escapedText(text)},
		{Sender: store.SenderAssistant, HTML: renderMarkdown(reply)},
	})
}

func (h *Handler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r)

	if err := r.ParseForm(); err != nil || !h.validateCSRF(r) {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	if sess.connected() {
		if err := h.registry.Remove(r.Context(), sess.SessionID); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			h.logger.Warn("disconnect failed", "session_id", sess.SessionID, "error", err)
		}
	}

	// Keep the login, drop the chat state.
	cleared := &webSession{Email: sess.Email}
	if err := h.setSessionCookie(w, r, cleared); err != nil {
		h.logger.Error("failed to update session cookie", "error", err)
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// reuseSharedConnection returns the shared session ID when shared mode is
// on and a live connection already exists.
func (h *Handler) reuseSharedConnection() (string, bool) {
	if !h.config.SharedSession {
		return "", false
	}
	_, release, err := h.registry.Acquire(sharedSessionID)
	if err != nil {
		return "", false
	}
	release()
	return sharedSessionID, true
}

// respondGateError maps gate failures onto HTTP responses the UI can act on
func (h *Handler) respondGateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrIncompleteSession):
		http.Error(w, "no chat session; connect first", http.StatusConflict)
	case errors.Is(err, session.ErrNoActiveSession):
		http.Error(w, "chat session expired; reconnect", http.StatusGone)
	case errors.Is(err, session.ErrValidationFailed):
		http.Error(w, "credentials expired; reconnect", http.StatusUnauthorized)
	default:
		http.Error(w, "session check failed", http.StatusInternalServerError)
	}
}

// persistExchange saves the user message and assistant reply to the
// transcript. Persistence failures are logged, never surfaced.
func (h *Handler) persistExchange(r *http.Request, sess *webSession, text, reply string) {
	if sess.ThreadID == "" {
		return
	}

	now := time.Now()
	pairs := []*store.Message{
		{ID: uuid.NewString(), ThreadID: sess.ThreadID, Sender: store.SenderUser, Content: text, CreatedAt: now},
		{ID: uuid.NewString(), ThreadID: sess.ThreadID, Sender: store.SenderAssistant, Content: reply, CreatedAt: now.Add(time.Millisecond)},
	}
	for _, msg := range pairs {
		if err := h.store.SaveMessage(r.Context(), msg); err != nil {
			h.logger.Error("failed to save transcript message", "error", err)
		}
	}
	if err := h.store.TouchThread(r.Context(), sess.ThreadID, now); err != nil {
		h.logger.Error("failed to touch transcript thread", "error", err)
	}
}

// ticketFor builds the gate ticket from the decoded session cookie
func ticketFor(sess *webSession) session.Ticket {
	return session.Ticket{
		Token:     sess.Token,
		ExpiresAt: sess.TokenExpiry,
		SessionID: sess.SessionID,
	}
}

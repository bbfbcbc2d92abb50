// ABOUTME: Template rendering functions for the chat UI
// ABOUTME: Loads templates from embedded filesystem and renders them

package web

import (
	"html/template"
	"net/http"

	"github.com/helmline/chatgate/internal/store"
)

// Template data types
type loginData struct {
	Title     string
	Email     string
	Error     string
	CSRFToken string
}

type messageView struct {
	Sender string
	HTML   template.HTML
}

type chatData struct {
	Title     string
	Email     string
	Connected bool
	ToolCount int
	Messages  []messageView
	Error     string
	CSRFToken string
}

// messageViews converts stored transcript entries for display. User text is
// shown verbatim (escaped); assistant replies are rendered as markdown.
func messageViews(msgs []*store.Message) []messageView {
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		v := messageView{Sender: m.Sender}
		if m.Sender == store.SenderAssistant {
			v.HTML = renderMarkdown(m.Content)
		} else {
			v.HTML = escapedText(m.Content)
		}
		views = append(views, v)
	}
	return views
}

// renderLoginPage renders the login page
func (h *Handler) renderLoginPage(w http.ResponseWriter, errorMsg, csrfToken string) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/login.html"))

	data := loginData{
		Title:     "Sign in",
		Error:     errorMsg,
		CSRFToken: csrfToken,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		h.logger.Error("failed to render login page", "error", err)
	}
}

// renderChatPage renders the main chat page
func (h *Handler) renderChatPage(w http.ResponseWriter, data chatData) {
	tmpl := template.Must(template.ParseFS(templateFS,
		"templates/base.html", "templates/chat.html", "templates/partials/message.html"))

	data.Title = "Chat"
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		h.logger.Error("failed to render chat page", "error", err)
	}
}

// renderExchange renders the message-exchange partial (htmx response)
func (h *Handler) renderExchange(w http.ResponseWriter, views []messageView) {
	tmpl := template.Must(template.ParseFS(templateFS,
		"templates/partials/exchange.html", "templates/partials/message.html"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, views); err != nil {
		h.logger.Error("failed to render exchange", "error", err)
	}
}

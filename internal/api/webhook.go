package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UpdateSink accepts decoded Bot API updates. It must not block on message
// handling. *telegram.Dispatcher implements it.
type UpdateSink interface {
	SubmitUpdate(update tgbotapi.Update) bool
}

// LivenessText is returned by GET on the webhook path.
const LivenessText = "Remodel intake bot is running"

// WebhookHandler receives Bot API updates.
type WebhookHandler struct {
	sink UpdateSink
}

// NewWebhookHandler creates a webhook receiver feeding sink.
func NewWebhookHandler(sink UpdateSink) *WebhookHandler {
	return &WebhookHandler{sink: sink}
}

// Receive decodes one update, enqueues it and acknowledges immediately.
// Unsupported updates are acknowledged too so the Bot API does not retry them.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		if err == io.EOF {
			Error(w, http.StatusBadRequest, "empty body")
			return
		}
		slog.Warn("Invalid webhook payload", "error", err)
		Error(w, http.StatusBadRequest, "invalid update")
		return
	}

	h.sink.SubmitUpdate(update)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

// Liveness answers GET on the webhook path.
func (h *WebhookHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, LivenessText)
}

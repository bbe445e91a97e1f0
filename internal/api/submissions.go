package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ashureev/remodel-intake/internal/store"
	"github.com/go-chi/chi/v5"
)

const maxListLimit = 200

// SubmissionReader is the archive dependency of the submissions API.
type SubmissionReader interface {
	GetSubmission(ctx context.Context, id string) (*store.Submission, error)
	ListSubmissions(ctx context.Context, limit int) ([]*store.Submission, error)
	ListUndelivered(ctx context.Context) ([]*store.Submission, error)
}

// SubmissionHandler serves archived submissions.
type SubmissionHandler struct {
	repo SubmissionReader
}

// NewSubmissionHandler creates a submissions handler.
func NewSubmissionHandler(repo SubmissionReader) *SubmissionHandler {
	return &SubmissionHandler{repo: repo}
}

// RegisterRoutes registers submission routes.
func (h *SubmissionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/submissions", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/undelivered", h.ListUndelivered)
		r.Get("/{id}", h.Get)
	})
}

// List returns recent submissions, newest first. ?limit= caps the count.
func (h *SubmissionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	subs, err := h.repo.ListSubmissions(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list submissions", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list submissions")
		return
	}
	writeList(w, subs)
}

// ListUndelivered returns submissions whose notification failed.
func (h *SubmissionHandler) ListUndelivered(w http.ResponseWriter, r *http.Request) {
	subs, err := h.repo.ListUndelivered(r.Context())
	if err != nil {
		slog.Error("Failed to list undelivered submissions", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list submissions")
		return
	}
	writeList(w, subs)
}

// Get returns one submission.
func (h *SubmissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.repo.GetSubmission(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "submission not found")
		return
	}
	if err != nil {
		slog.Error("Failed to get submission", "error", err)
		Error(w, http.StatusInternalServerError, "failed to get submission")
		return
	}
	JSON(w, http.StatusOK, sub)
}

func writeList(w http.ResponseWriter, subs []*store.Submission) {
	if subs == nil {
		subs = []*store.Submission{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"submissions": subs,
		"count":       len(subs),
	})
}

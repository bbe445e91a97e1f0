// Package store provides the submission archive.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/remodel-intake/internal/intake"
	"github.com/ashureev/remodel-intake/internal/session"
)

// ErrNotFound is returned when a submission does not exist.
var ErrNotFound = errors.New("submission not found")

// Submission is an archived, finalized intake record.
type Submission struct {
	ID          string         `json:"id"`
	Reference   string         `json:"reference"`
	UserID      string         `json:"user_id"`
	UserName    string         `json:"user_name,omitempty"`
	ChatID      int64          `json:"chat_id"`
	Answers     session.Record `json:"answers"`
	Summary     string         `json:"summary"`
	SubmittedAt time.Time      `json:"submitted_at"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty"`
}

// Delivered reports whether the administrator notification succeeded.
func (s *Submission) Delivered() bool {
	return s.DeliveredAt != nil
}

// Repository defines the interface for persisting submissions.
type Repository interface {
	intake.Archive

	// GetSubmission retrieves a submission by ID or returns ErrNotFound.
	GetSubmission(ctx context.Context, id string) (*Submission, error)

	// ListSubmissions returns the most recent submissions, newest first.
	ListSubmissions(ctx context.Context, limit int) ([]*Submission, error)

	// ListUndelivered returns submissions whose notification never succeeded.
	ListUndelivered(ctx context.Context) ([]*Submission, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

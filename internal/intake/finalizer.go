package intake

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashureev/remodel-intake/internal/schema"
)

// Finalizer formats completed records and hands them to the administrator.
type Finalizer struct {
	schema   *schema.Schema
	notifier Notifier
	archive  Archive
	now      func() time.Time
}

// NewFinalizer creates a finalizer. archive may be nil.
func NewFinalizer(s *schema.Schema, notifier Notifier, archive Archive) *Finalizer {
	return &Finalizer{
		schema:   s,
		notifier: notifier,
		archive:  archive,
		now:      time.Now,
	}
}

// Finalize renders sub, archives it and notifies the administrator.
//
// The returned summary is valid even when err is non-nil. A notifier
// failure is reported as *DeliveryError; archive failures are logged only.
func (f *Finalizer) Finalize(ctx context.Context, sub *Submission) (string, error) {
	summary := FormatSummary(f.schema, sub)

	if f.archive != nil {
		if err := f.archive.SaveSubmission(ctx, sub, summary); err != nil {
			slog.Error("Failed to archive submission", "submission_id", sub.ID, "error", err)
		}
	}

	if f.notifier == nil {
		return summary, &DeliveryError{SubmissionID: sub.ID, Err: errors.New("no notifier configured")}
	}
	if err := f.notifier.Notify(ctx, summary); err != nil {
		return summary, &DeliveryError{SubmissionID: sub.ID, Err: err}
	}

	if f.archive != nil {
		if err := f.archive.MarkDelivered(ctx, sub.ID, f.now()); err != nil {
			slog.Warn("Failed to mark submission delivered", "submission_id", sub.ID, "error", err)
		}
	}
	slog.Info("Submission delivered", "submission_id", sub.ID, "reference", sub.Reference, "user_id", sub.UserID)
	return summary, nil
}

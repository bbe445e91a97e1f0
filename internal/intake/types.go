// Package intake implements the remodel project intake conversation: the
// per-turn engine, the finalizer that hands completed records to the
// administrator, and the lifecycle manager that ties both to the session
// store.
package intake

import (
	"context"
	"strings"
	"time"

	"github.com/ashureev/remodel-intake/internal/schema"
	"github.com/ashureev/remodel-intake/internal/session"
)

// OutcomeKind categorizes the result of one turn.
type OutcomeKind int

const (
	// OutcomeIgnored means no session was active and the message was dropped.
	OutcomeIgnored OutcomeKind = iota
	// OutcomePrompt means the session advanced and the next question is pending.
	OutcomePrompt
	// OutcomeFinalize means every field is collected.
	OutcomeFinalize
	// OutcomeCancelled means the user aborted the session.
	OutcomeCancelled
	// OutcomeRejected means the input was not accepted and the session is unchanged.
	OutcomeRejected
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeIgnored:
		return "ignored"
	case OutcomePrompt:
		return "prompt"
	case OutcomeFinalize:
		return "finalize"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Outcome is the result of one turn.
type Outcome struct {
	Kind OutcomeKind
	// Field is the question to ask next (Prompt) or to re-ask (Rejected).
	Field schema.Field
	// Reason explains a rejection to the user.
	Reason string
	// Record is the completed snapshot (Finalize only).
	Record session.Record
	// Err carries the rejection cause (Rejected) or ErrNoActiveSession (Ignored).
	Err error
	// SubmissionID identifies the finalized record (Finalize only).
	SubmissionID string
}

// Inbound is one message from the chat transport.
type Inbound struct {
	UserID   string
	UserName string
	ChatID   int64
	Text     string
	IsStart  bool
	IsCancel bool
}

// Keyboard is a reply-markup hint for the transport.
type Keyboard int

const (
	KeyboardNone Keyboard = iota
	KeyboardSkip
	KeyboardRemove
)

// Reply is an outbound message to the user.
type Reply struct {
	UserID   string
	ChatID   int64
	Text     string
	Keyboard Keyboard
	// SkipLabel is the button text shown with KeyboardSkip.
	SkipLabel string
}

// PromptSink sends text to the user.
type PromptSink interface {
	SendPrompt(ctx context.Context, reply Reply) error
}

// Notifier delivers a formatted summary to the administrator.
type Notifier interface {
	Notify(ctx context.Context, summary string) error
}

// Submission is a finalized intake record.
type Submission struct {
	ID          string
	Reference   string
	UserID      string
	UserName    string
	ChatID      int64
	Record      session.Record
	SubmittedAt time.Time
}

// Archive persists finalized submissions.
type Archive interface {
	SaveSubmission(ctx context.Context, sub *Submission, summary string) error
	MarkDelivered(ctx context.Context, submissionID string, deliveredAt time.Time) error
}

// Recorder receives intake metrics.
type Recorder interface {
	ObserveTurn(kind OutcomeKind)
	IncSessionStarted(restart bool)
	IncSessionEnded(reason string)
	IncSubmission(delivered bool)
	SetActiveSessions(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveTurn(OutcomeKind) {}
func (nopRecorder) IncSessionStarted(bool) {}
func (nopRecorder) IncSessionEnded(string) {}
func (nopRecorder) IncSubmission(bool) {}
func (nopRecorder) SetActiveSessions(int) {}

// Event is published to operator channels.
type Event struct {
	Type         string    `json:"type"`
	UserID       string    `json:"user_id,omitempty"`
	SubmissionID string    `json:"submission_id,omitempty"`
	Reference    string    `json:"reference,omitempty"`
	Step         int       `json:"step"`
	Detail       string    `json:"detail,omitempty"`
	Time         time.Time `json:"time"`
}

// Event types.
const (
	EventSessionStarted   = "session_started"
	EventSessionRestarted = "session_restarted"
	EventSessionCancelled = "session_cancelled"
	EventSessionExpired   = "session_expired"
	EventSubmission       = "submission_delivered"
	EventDeliveryFailed   = "delivery_failed"
)

// EventSink receives operator events. Publish must not block.
type EventSink interface {
	Publish(ev Event)
}

type nopEvents struct{}

func (nopEvents) Publish(Event) {}

// Keywords are the reserved inputs recognized by the engine.
type Keywords struct {
	Start  string
	Cancel string
	// Skip lists every accepted skip token. The first one is advertised in
	// messages, the last one is used as the keyboard button label.
	Skip []string
}

// DefaultKeywords returns /start, /cancel and /skip plus the skip button label.
func DefaultKeywords() Keywords {
	return Keywords{
		Start:  "/start",
		Cancel: "/cancel",
		Skip:   []string{"/skip", "Skip this question ⏭️"},
	}
}

func matches(text, keyword string) bool {
	return keyword != "" && strings.EqualFold(strings.TrimSpace(text), keyword)
}

// SkipLabel returns the keyboard button label.
func (k Keywords) SkipLabel() string {
	if len(k.Skip) == 0 {
		return ""
	}
	return k.Skip[len(k.Skip)-1]
}

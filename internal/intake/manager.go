package intake

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/remodel-intake/internal/schema"
	"github.com/ashureev/remodel-intake/internal/session"
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Messages are the fixed texts sent around the questions.
type Messages struct {
	Greeting  string
	Cancelled string
	// Completed is a format string receiving the submission reference.
	Completed string
	Expired   string
}

// DefaultMessages returns the stock texts for keywords.
func DefaultMessages(k Keywords) Messages {
	skip := "/skip"
	if len(k.Skip) > 0 {
		skip = k.Skip[0]
	}
	return Messages{
		Greeting: fmt.Sprintf("👋 Hi! Let's record a new remodel project.\nSend %s to skip a question or %s to stop at any time.",
			skip, k.Cancel),
		Cancelled: fmt.Sprintf("❌ Survey cancelled. Send %s to start again.", k.Start),
		Completed: "✅ Thank you! The project has been submitted. Reference: %s",
		Expired:   fmt.Sprintf("⌛ Your project survey expired after a period of inactivity. Send %s to start again.", k.Start),
	}
}

// ManagerOptions carries optional Manager collaborators.
type ManagerOptions struct {
	// AutoStart starts a session for unknown users instead of ignoring them.
	AutoStart bool
	Messages  *Messages
	Recorder  Recorder
	Events    EventSink
}

// Manager owns session lifecycle: start, reentrant restart, cancel,
// finalization and expiry notices.
type Manager struct {
	engine    *Engine
	store     *session.Store
	prompts   PromptSink
	finalizer *Finalizer
	autoStart bool
	messages  Messages
	recorder  Recorder
	events    EventSink
	newID     func() string
	newRef    func() string
}

// NewManager wires the lifecycle manager.
func NewManager(engine *Engine, store *session.Store, prompts PromptSink, finalizer *Finalizer, opts ManagerOptions) *Manager {
	m := &Manager{
		engine:    engine,
		store:     store,
		prompts:   prompts,
		finalizer: finalizer,
		autoStart: opts.AutoStart,
		messages:  DefaultMessages(engine.Keywords()),
		recorder:  opts.Recorder,
		events:    opts.Events,
		newID:     uuid.NewString,
		newRef:    newReference,
	}
	if opts.Messages != nil {
		m.messages = *opts.Messages
	}
	if m.recorder == nil {
		m.recorder = nopRecorder{}
	}
	if m.events == nil {
		m.events = nopEvents{}
	}
	return m
}

func newReference() string {
	ref, err := gonanoid.Generate(referenceAlphabet, 8)
	if err != nil {
		return strings.ToUpper(uuid.NewString()[:8])
	}
	return ref
}

// Handle processes one inbound message for in.UserID.
//
// Callers must deliver messages of one user in arrival order; Handle takes
// the per-user lock so a turn never overlaps another turn for the same user.
// The only error returned is *DeliveryError.
func (m *Manager) Handle(ctx context.Context, in Inbound) (Outcome, error) {
	unlock := m.store.Lock(in.UserID)
	defer unlock()
	defer func() { m.recorder.SetActiveSessions(m.store.Len()) }()

	if in.IsStart || m.engine.IsStart(in.Text) {
		return m.start(ctx, in), nil
	}

	sess, ok := m.store.Get(in.UserID)
	if !ok {
		if m.autoStart && !in.IsCancel && !m.engine.IsCancel(in.Text) {
			return m.start(ctx, in), nil
		}
		slog.Debug("Ignoring message without active session", "user_id", in.UserID)
		out := Outcome{Kind: OutcomeIgnored, Err: ErrNoActiveSession}
		m.recorder.ObserveTurn(out.Kind)
		return out, nil
	}

	var out Outcome
	if in.IsCancel {
		out = Outcome{Kind: OutcomeCancelled}
	} else {
		out = m.engine.Advance(sess, in.Text)
	}
	m.store.Touch(in.UserID)
	m.recorder.ObserveTurn(out.Kind)

	switch out.Kind {
	case OutcomePrompt:
		m.ask(ctx, sess, out.Field, "")
	case OutcomeRejected:
		slog.Info("Answer rejected", "user_id", in.UserID, "step", sess.Step, "reason", out.Reason)
		if field, pending := m.engine.Current(sess); pending {
			m.ask(ctx, sess, field, out.Reason)
		}
	case OutcomeCancelled:
		m.cancel(ctx, sess)
	case OutcomeFinalize:
		return m.finalize(ctx, sess, out)
	}
	return out, nil
}

func (m *Manager) start(ctx context.Context, in Inbound) Outcome {
	_, restart := m.store.Get(in.UserID)
	sess := m.store.CreateOrReset(in.UserID)
	sess.UserName = in.UserName
	sess.ChatID = in.ChatID

	m.recorder.IncSessionStarted(restart)
	evType := EventSessionStarted
	if restart {
		evType = EventSessionRestarted
	}
	m.publish(evType, sess, "", "", "")
	slog.Info("Intake session started", "user_id", in.UserID, "restart", restart)

	m.send(ctx, sess, m.messages.Greeting, KeyboardNone)
	first := m.engine.Schema().Field(0)
	m.ask(ctx, sess, first, "")

	out := Outcome{Kind: OutcomePrompt, Field: first}
	m.recorder.ObserveTurn(out.Kind)
	return out
}

func (m *Manager) cancel(ctx context.Context, sess *session.Session) {
	if err := sess.Transition(ctx, session.EventCancel); err != nil {
		slog.Warn("Cancel transition failed", "user_id", sess.UserID, "phase", sess.Phase(), "error", err)
	}
	m.store.Remove(sess.UserID)
	m.recorder.IncSessionEnded(session.PhaseCancelled)
	m.publish(EventSessionCancelled, sess, "", "", "")
	slog.Info("Intake session cancelled", "user_id", sess.UserID, "step", sess.Step)

	m.send(ctx, sess, m.messages.Cancelled, KeyboardRemove)
}

func (m *Manager) finalize(ctx context.Context, sess *session.Session, out Outcome) (Outcome, error) {
	if err := sess.Transition(ctx, session.EventComplete); err != nil {
		slog.Warn("Complete transition failed", "user_id", sess.UserID, "phase", sess.Phase(), "error", err)
	}
	m.store.Remove(sess.UserID)
	m.recorder.IncSessionEnded(session.PhaseFinalized)

	sub := &Submission{
		ID:          m.newID(),
		Reference:   m.newRef(),
		UserID:      sess.UserID,
		UserName:    sess.UserName,
		ChatID:      sess.ChatID,
		Record:      out.Record,
		SubmittedAt: m.store.Now(),
	}
	out.SubmissionID = sub.ID

	_, err := m.finalizer.Finalize(ctx, sub)
	m.send(ctx, sess, fmt.Sprintf(m.messages.Completed, sub.Reference), KeyboardRemove)

	if err != nil {
		m.recorder.IncSubmission(false)
		m.publish(EventDeliveryFailed, sess, sub.ID, sub.Reference, err.Error())
		slog.Error("Submission delivery failed", "user_id", sess.UserID, "submission_id", sub.ID, "error", err)
		return out, err
	}
	m.recorder.IncSubmission(true)
	m.publish(EventSubmission, sess, sub.ID, sub.Reference, "")
	return out, nil
}

// NotifyExpired tells the user their session was removed for inactivity.
// It matches session.ExpiryCallback.
func (m *Manager) NotifyExpired(ctx context.Context, sess *session.Session) {
	m.recorder.IncSessionEnded(session.PhaseExpired)
	m.recorder.SetActiveSessions(m.store.Len())
	m.publish(EventSessionExpired, sess, "", "", "")
	m.send(ctx, sess, m.messages.Expired, KeyboardRemove)
}

func (m *Manager) ask(ctx context.Context, sess *session.Session, field schema.Field, reason string) {
	text := field.Prompt
	if reason != "" {
		text = reason + "\n\n" + text
	}
	kb := KeyboardRemove
	if field.Skippable {
		kb = KeyboardSkip
	}
	m.send(ctx, sess, text, kb)
}

func (m *Manager) send(ctx context.Context, sess *session.Session, text string, kb Keyboard) {
	if m.prompts == nil {
		return
	}
	reply := Reply{
		UserID:    sess.UserID,
		ChatID:    sess.ChatID,
		Text:      text,
		Keyboard:  kb,
		SkipLabel: m.engine.Keywords().SkipLabel(),
	}
	if err := m.prompts.SendPrompt(ctx, reply); err != nil {
		slog.Warn("Failed to send message to user", "user_id", sess.UserID, "error", err)
	}
}

func (m *Manager) publish(evType string, sess *session.Session, submissionID, reference, detail string) {
	ev := Event{
		Type:         evType,
		UserID:       sess.UserID,
		SubmissionID: submissionID,
		Reference:    reference,
		Step:         sess.Step,
		Detail:       detail,
		Time:         m.store.Now(),
	}
	m.events.Publish(ev)
}

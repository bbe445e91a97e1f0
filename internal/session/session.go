// Package session holds per-user intake conversation state.
package session

import (
	"context"
	"time"

	"github.com/looplab/fsm"
)

// Lifecycle phases of a session.
const (
	PhaseCollecting = "collecting"
	PhaseFinalized  = "finalized"
	PhaseCancelled  = "cancelled"
	PhaseExpired    = "expired"
)

// Lifecycle events.
const (
	EventComplete = "complete"
	EventCancel   = "cancel"
	EventExpire   = "expire"
)

// Record maps field keys to answers. A nil value marks a skipped field.
type Record map[string]*string

// Set stores an answer for key.
func (r Record) Set(key, value string) {
	v := value
	r[key] = &v
}

// Skip marks key as intentionally unanswered.
func (r Record) Skip(key string) {
	r[key] = nil
}

// Value returns the answer for key. ok is false when the key is skipped or absent.
func (r Record) Value(key string) (string, bool) {
	v, present := r[key]
	if !present || v == nil {
		return "", false
	}
	return *v, true
}

// Has reports whether key was answered or skipped.
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		if v == nil {
			out[k] = nil
			continue
		}
		c := *v
		out[k] = &c
	}
	return out
}

// Session is one user's in-progress intake.
type Session struct {
	UserID   string
	UserName string
	ChatID   int64
	// Step is the index of the pending field. Step == schema length means
	// every field is collected.
	Step      int
	Record    Record
	StartedAt time.Time
	// UpdatedAt is written by Store.Touch under the store mutex.
	UpdatedAt time.Time

	phase *fsm.FSM
}

func newSession(userID string, now time.Time) *Session {
	return &Session{
		UserID:    userID,
		Record:    make(Record),
		StartedAt: now,
		UpdatedAt: now,
		phase:     newPhaseMachine(),
	}
}

func newPhaseMachine() *fsm.FSM {
	return fsm.NewFSM(
		PhaseCollecting,
		fsm.Events{
			{Name: EventComplete, Src: []string{PhaseCollecting}, Dst: PhaseFinalized},
			{Name: EventCancel, Src: []string{PhaseCollecting}, Dst: PhaseCancelled},
			{Name: EventExpire, Src: []string{PhaseCollecting}, Dst: PhaseExpired},
		},
		fsm.Callbacks{},
	)
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() string {
	return s.phase.Current()
}

// Active reports whether the session still accepts answers.
func (s *Session) Active() bool {
	return s.phase.Is(PhaseCollecting)
}

// Transition fires a lifecycle event. Events from a terminal phase fail.
func (s *Session) Transition(ctx context.Context, event string) error {
	return s.phase.Event(ctx, event)
}

// IdleFor returns how long the session has been inactive.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.UpdatedAt)
}

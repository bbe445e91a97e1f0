package intake

import (
	"strings"

	"github.com/ashureev/remodel-intake/internal/schema"
	"github.com/ashureev/remodel-intake/internal/session"
)

const emptyAnswerReason = "Please send your answer as a text message."

// Engine runs one conversation turn against the field schema. It performs
// no I/O and never touches the session store.
type Engine struct {
	schema   *schema.Schema
	keywords Keywords
}

// NewEngine creates an engine for s.
func NewEngine(s *schema.Schema, keywords Keywords) *Engine {
	return &Engine{schema: s, keywords: keywords}
}

// Schema returns the field schema.
func (e *Engine) Schema() *schema.Schema {
	return e.schema
}

// Keywords returns the reserved inputs.
func (e *Engine) Keywords() Keywords {
	return e.keywords
}

// IsStart reports whether text is the start keyword.
func (e *Engine) IsStart(text string) bool {
	return matches(text, e.keywords.Start)
}

// IsCancel reports whether text is the cancel keyword.
func (e *Engine) IsCancel(text string) bool {
	return matches(text, e.keywords.Cancel)
}

// IsSkip reports whether text is one of the skip keywords.
func (e *Engine) IsSkip(text string) bool {
	for _, kw := range e.keywords.Skip {
		if matches(text, kw) {
			return true
		}
	}
	return false
}

// Current returns the pending field for sess. ok is false once every field
// is collected.
func (e *Engine) Current(sess *session.Session) (schema.Field, bool) {
	if sess.Step < 0 || sess.Step >= e.schema.Len() {
		return schema.Field{}, false
	}
	return e.schema.Field(sess.Step), true
}

// Advance applies text to the pending field of sess.
// Rejected outcomes leave sess untouched.
func (e *Engine) Advance(sess *session.Session, text string) Outcome {
	field, ok := e.Current(sess)
	if !ok || !sess.Active() {
		return Outcome{
			Kind:   OutcomeRejected,
			Reason: ErrSessionComplete.Error(),
			Err:    ErrSessionComplete,
		}
	}

	if e.IsCancel(text) {
		return Outcome{Kind: OutcomeCancelled}
	}

	answer := strings.TrimSpace(text)
	if answer == "" {
		return e.reject(field, emptyAnswerReason)
	}

	switch {
	case field.Skippable && e.IsSkip(answer):
		sess.Record.Skip(field.Key)
	default:
		if reason, valid := field.Check(answer); !valid {
			return e.reject(field, reason)
		}
		sess.Record.Set(field.Key, answer)
	}

	sess.Step++
	if sess.Step == e.schema.Len() {
		return Outcome{Kind: OutcomeFinalize, Record: sess.Record.Clone()}
	}
	return Outcome{Kind: OutcomePrompt, Field: e.schema.Field(sess.Step)}
}

func (e *Engine) reject(field schema.Field, reason string) Outcome {
	return Outcome{
		Kind:   OutcomeRejected,
		Field:  field,
		Reason: reason,
		Err: &ValidationError{
			Field:   field.Key,
			Message: reason,
			Err:     ErrValidationRejected,
		},
	}
}

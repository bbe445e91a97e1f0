package intake

import (
	"strings"

	"github.com/ashureev/remodel-intake/internal/schema"
	"github.com/ashureev/remodel-intake/internal/session"
)

// SkippedPlaceholder is rendered for skipped or missing answers.
const SkippedPlaceholder = "—"

const summaryHeader = "📢 New Project Submitted!"

// FormatRecord renders every field in schema order as "label: value".
func FormatRecord(s *schema.Schema, record session.Record) string {
	var b strings.Builder
	for i, f := range s.Fields() {
		if i > 0 {
			b.WriteByte('\n')
		}
		value, ok := record.Value(f.Key)
		if !ok {
			value = SkippedPlaceholder
		}
		b.WriteString(f.DisplayLabel())
		b.WriteString(": ")
		b.WriteString(value)
	}
	return b.String()
}

// FormatSummary renders the administrator notification for sub.
func FormatSummary(s *schema.Schema, sub *Submission) string {
	var b strings.Builder
	b.WriteString(summaryHeader)
	b.WriteByte('\n')
	b.WriteString(FormatRecord(s, sub.Record))

	var footer []string
	if sub.Reference != "" {
		footer = append(footer, "🔖 Ref: "+sub.Reference)
	}
	if by := submitter(sub); by != "" {
		footer = append(footer, "🙍 Submitted by: "+by)
	}
	if !sub.SubmittedAt.IsZero() {
		footer = append(footer, "🗓️ Date: "+sub.SubmittedAt.Format("2006-01-02 15:04 MST"))
	}
	if len(footer) > 0 {
		b.WriteString("\n\n")
		b.WriteString(strings.Join(footer, "\n"))
	}
	return b.String()
}

func submitter(sub *Submission) string {
	if sub.UserName != "" {
		return "@" + strings.TrimPrefix(sub.UserName, "@")
	}
	return sub.UserID
}

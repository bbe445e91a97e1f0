package intake

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/remodel-intake/internal/schema"
	"github.com/ashureev/remodel-intake/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatRecord_SchemaOrderWithPlaceholder(t *testing.T) {
	s := twoFieldSchema(t)
	record := session.Record{}
	record.Skip("room_type")
	record.Set("client_name", "Jane Doe")

	assert.Equal(t, "client_name: Jane Doe\nroom_type: —", FormatRecord(s, record))
}

func TestFormatRecord_MissingKeyRendersPlaceholder(t *testing.T) {
	s := twoFieldSchema(t)
	record := session.Record{}
	record.Set("room_type", "Bath")

	assert.Equal(t, "client_name: —\nroom_type: Bath", FormatRecord(s, record))
}

func TestFormatSummary_DefaultSchemaLabels(t *testing.T) {
	s := schema.Default()
	record := session.Record{}
	for _, key := range s.Keys() {
		record.Skip(key)
	}
	record.Set("client_name", "Jane")

	sub := &Submission{
		Reference:   "ABCD2345",
		UserName:    "jane_ops",
		Record:      record,
		SubmittedAt: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
	}
	out := FormatSummary(s, sub)

	lines := strings.Split(out, "\n")
	require.GreaterOrEqual(t, len(lines), s.Len()+1)
	assert.Equal(t, "📢 New Project Submitted!", lines[0])
	assert.Equal(t, s.Field(0).DisplayLabel()+": Jane", lines[1])
	for i := 1; i < s.Len(); i++ {
		assert.Equal(t, s.Field(i).DisplayLabel()+": "+SkippedPlaceholder, lines[i+1])
	}
	assert.Contains(t, out, "Ref: ABCD2345")
	assert.Contains(t, out, "Submitted by: @jane_ops")
	assert.Contains(t, out, "2024-03-01 09:30 UTC")
}

func TestFormatSummary_FallsBackToUserID(t *testing.T) {
	sub := &Submission{UserID: "12345", Record: session.Record{}}

	out := FormatSummary(twoFieldSchema(t), sub)
	assert.Contains(t, out, "Submitted by: 12345")
	assert.NotContains(t, out, "Ref:")
}

func TestFinalizer_DeliversAndMarks(t *testing.T) {
	notifier := &fakeNotifier{}
	archive := newFakeArchive()
	f := NewFinalizer(twoFieldSchema(t), notifier, archive)

	record := session.Record{}
	record.Set("client_name", "Jane")
	record.Set("room_type", "Kitchen")
	sub := &Submission{ID: "sub-1", Record: record}

	summary, err := f.Finalize(context.Background(), sub)
	require.NoError(t, err)
	require.Len(t, notifier.summaries, 1)
	assert.Equal(t, summary, notifier.summaries[0])
	require.Len(t, archive.saved, 1)
	assert.True(t, archive.delivered["sub-1"])
}

func TestFinalizer_NotifierFailure(t *testing.T) {
	sinkErr := errors.New("chat not found")
	archive := newFakeArchive()
	f := NewFinalizer(twoFieldSchema(t), &fakeNotifier{err: sinkErr}, archive)

	summary, err := f.Finalize(context.Background(), &Submission{ID: "sub-2", Record: session.Record{}})
	require.Error(t, err)
	assert.NotEmpty(t, summary)

	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "sub-2", derr.SubmissionID)
	assert.ErrorIs(t, err, sinkErr)
	assert.Len(t, archive.saved, 1, "archived even when delivery fails")
	assert.False(t, archive.delivered["sub-2"])
}

func TestFinalizer_WithoutArchiveOrNotifier(t *testing.T) {
	f := NewFinalizer(twoFieldSchema(t), nil, nil)

	_, err := f.Finalize(context.Background(), &Submission{ID: "sub-3", Record: session.Record{}})
	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)

	f = NewFinalizer(twoFieldSchema(t), &fakeNotifier{}, nil)
	_, err = f.Finalize(context.Background(), &Submission{ID: "sub-4", Record: session.Record{}})
	assert.NoError(t, err)
}

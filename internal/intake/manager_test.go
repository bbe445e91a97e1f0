package intake

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/remodel-intake/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu      sync.Mutex
	replies []Reply
}

func (f *fakeSink) SendPrompt(_ context.Context, reply Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply)
	return nil
}

func (f *fakeSink) last() Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return Reply{}
	}
	return f.replies[len(f.replies)-1]
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replies)
}

type fakeNotifier struct {
	mu        sync.Mutex
	summaries []string
	err       error
}

func (f *fakeNotifier) Notify(_ context.Context, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.summaries = append(f.summaries, summary)
	return nil
}

type fakeArchive struct {
	mu        sync.Mutex
	saved     []*Submission
	delivered map[string]bool
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{delivered: make(map[string]bool)}
}

func (f *fakeArchive) SaveSubmission(_ context.Context, sub *Submission, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, sub)
	return nil
}

func (f *fakeArchive) MarkDelivered(_ context.Context, id string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered[id] = true
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []Event
}

func (f *fakeEvents) Publish(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeEvents) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Type
	}
	return out
}

func (f *fakeEvents) find(typ string) (Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range f.events {
		if ev.Type == typ {
			return ev, true
		}
	}
	return Event{}, false
}

type managerFixture struct {
	manager  *Manager
	store    *session.Store
	sink     *fakeSink
	notifier *fakeNotifier
	archive  *fakeArchive
	events   *fakeEvents
}

func newManagerFixture(t *testing.T, autoStart bool) *managerFixture {
	t.Helper()
	s := twoFieldSchema(t)
	f := &managerFixture{
		store:    session.NewStore(),
		sink:     &fakeSink{},
		notifier: &fakeNotifier{},
		archive:  newFakeArchive(),
		events:   &fakeEvents{},
	}
	engine := NewEngine(s, DefaultKeywords())
	f.manager = NewManager(engine, f.store, f.sink, NewFinalizer(s, f.notifier, f.archive), ManagerOptions{
		AutoStart: autoStart,
		Events:    f.events,
	})
	return f
}

func msg(userID, text string) Inbound {
	return Inbound{UserID: userID, ChatID: 42, Text: text}
}

func start(userID string) Inbound {
	return Inbound{UserID: userID, ChatID: 42, Text: "/start", IsStart: true}
}

func TestManager_EndToEnd(t *testing.T) {
	f := newManagerFixture(t, false)
	ctx := context.Background()

	out, err := f.manager.Handle(ctx, start("u1"))
	require.NoError(t, err)
	require.Equal(t, OutcomePrompt, out.Kind)
	assert.Equal(t, "client_name", out.Field.Key)
	assert.Equal(t, "Client name?", f.sink.last().Text)
	assert.Equal(t, KeyboardSkip, f.sink.last().Keyboard)

	out, err = f.manager.Handle(ctx, msg("u1", "Jane Doe"))
	require.NoError(t, err)
	require.Equal(t, OutcomePrompt, out.Kind)
	assert.Equal(t, "Room type?", f.sink.last().Text)

	out, err = f.manager.Handle(ctx, msg("u1", "/skip"))
	require.NoError(t, err)
	require.Equal(t, OutcomeFinalize, out.Kind)
	assert.NotEmpty(t, out.SubmissionID)

	name, _ := out.Record.Value("client_name")
	assert.Equal(t, "Jane Doe", name)
	_, answered := out.Record.Value("room_type")
	assert.False(t, answered)

	_, active := f.store.Get("u1")
	assert.False(t, active, "session must be removed after finalization")

	require.Len(t, f.notifier.summaries, 1)
	assert.Contains(t, f.notifier.summaries[0], "client_name: Jane Doe")
	assert.Contains(t, f.notifier.summaries[0], "room_type: "+SkippedPlaceholder)

	require.Len(t, f.archive.saved, 1)
	assert.True(t, f.archive.delivered[out.SubmissionID])
	assert.True(t, strings.Contains(f.sink.last().Text, f.archive.saved[0].Reference))
	assert.Equal(t, KeyboardRemove, f.sink.last().Keyboard)

	assert.Equal(t, []string{EventSessionStarted, EventSubmission}, f.events.types())
}

func TestManager_IgnoresMessagesWithoutSession(t *testing.T) {
	f := newManagerFixture(t, false)

	out, err := f.manager.Handle(context.Background(), msg("u1", "hello"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, out.Kind)
	assert.ErrorIs(t, out.Err, ErrNoActiveSession)
	assert.Equal(t, 0, f.sink.count(), "no response without an active conversation")

	out, err = f.manager.Handle(context.Background(), Inbound{UserID: "u1", Text: "/cancel", IsCancel: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, out.Kind)
	assert.Equal(t, 0, f.sink.count())
}

func TestManager_AutoStart(t *testing.T) {
	f := newManagerFixture(t, true)

	out, err := f.manager.Handle(context.Background(), msg("u1", "hello"))
	require.NoError(t, err)
	assert.Equal(t, OutcomePrompt, out.Kind)

	sess, ok := f.store.Get("u1")
	require.True(t, ok)
	assert.Equal(t, 0, sess.Step, "the triggering text is not taken as an answer")
	assert.Empty(t, sess.Record)
}

func TestManager_CancelFromAnyStep(t *testing.T) {
	for step := 0; step < 2; step++ {
		t.Run(strconv.Itoa(step), func(t *testing.T) {
			f := newManagerFixture(t, false)
			ctx := context.Background()
			_, err := f.manager.Handle(ctx, start("u1"))
			require.NoError(t, err)
			for i := 0; i < step; i++ {
				_, err = f.manager.Handle(ctx, msg("u1", "answer"))
				require.NoError(t, err)
			}

			out, err := f.manager.Handle(ctx, msg("u1", "/cancel"))
			require.NoError(t, err)
			assert.Equal(t, OutcomeCancelled, out.Kind)

			_, ok := f.store.Get("u1")
			assert.False(t, ok)
			assert.Equal(t, DefaultMessages(DefaultKeywords()).Cancelled, f.sink.last().Text)
			assert.Empty(t, f.notifier.summaries)
		})
	}
}

func TestManager_CancelFlagWithoutKeywordText(t *testing.T) {
	f := newManagerFixture(t, false)
	ctx := context.Background()
	_, err := f.manager.Handle(ctx, start("u1"))
	require.NoError(t, err)

	out, err := f.manager.Handle(ctx, Inbound{UserID: "u1", Text: "/cancel@RemodelBot", IsCancel: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, out.Kind)
	_, ok := f.store.Get("u1")
	assert.False(t, ok)
}

func TestManager_ReentrantRestart(t *testing.T) {
	f := newManagerFixture(t, false)
	ctx := context.Background()

	_, err := f.manager.Handle(ctx, start("u1"))
	require.NoError(t, err)
	_, err = f.manager.Handle(ctx, msg("u1", "Jane"))
	require.NoError(t, err)

	out, err := f.manager.Handle(ctx, start("u1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomePrompt, out.Kind)
	assert.Equal(t, "client_name", out.Field.Key)

	sess, ok := f.store.Get("u1")
	require.True(t, ok)
	assert.Equal(t, 0, sess.Step)
	assert.Empty(t, sess.Record)
	assert.Equal(t, []string{EventSessionStarted, EventSessionRestarted}, f.events.types())
}

func TestManager_RejectedAnswerRepromptsCurrentField(t *testing.T) {
	f := newManagerFixture(t, false)
	ctx := context.Background()
	_, err := f.manager.Handle(ctx, start("u1"))
	require.NoError(t, err)

	out, err := f.manager.Handle(ctx, msg("u1", "   "))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, out.Kind)
	assert.Contains(t, f.sink.last().Text, "Client name?")
	assert.Contains(t, f.sink.last().Text, out.Reason)

	sess, _ := f.store.Get("u1")
	assert.Equal(t, 0, sess.Step)
}

func TestManager_DeliveryErrorDoesNotReopenSession(t *testing.T) {
	f := newManagerFixture(t, false)
	f.notifier.err = errors.New("admin chat unreachable")
	ctx := context.Background()

	_, err := f.manager.Handle(ctx, start("u1"))
	require.NoError(t, err)
	_, err = f.manager.Handle(ctx, msg("u1", "Jane"))
	require.NoError(t, err)

	out, err := f.manager.Handle(ctx, msg("u1", "Kitchen"))
	require.Error(t, err)
	var derr *DeliveryError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, out.SubmissionID, derr.SubmissionID)
	assert.Equal(t, OutcomeFinalize, out.Kind)

	_, ok := f.store.Get("u1")
	assert.False(t, ok, "finalized session stays removed")
	require.Len(t, f.archive.saved, 1)
	assert.False(t, f.archive.delivered[out.SubmissionID])
	assert.Contains(t, f.events.types(), EventDeliveryFailed)

	failed, ok := f.events.find(EventDeliveryFailed)
	require.True(t, ok)
	assert.Contains(t, failed.Detail, "admin chat unreachable")
	assert.Equal(t, out.SubmissionID, failed.SubmissionID)
	started, ok := f.events.find(EventSessionStarted)
	require.True(t, ok)
	assert.Empty(t, started.Detail)
}

func TestManager_ConcurrentDistinctUsers(t *testing.T) {
	f := newManagerFixture(t, false)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 20; i++ {
		userID := "user-" + strconv.Itoa(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.manager.Handle(ctx, start(userID)); err != nil {
				errs <- err
				return
			}
			if _, err := f.manager.Handle(ctx, msg(userID, "name-"+userID)); err != nil {
				errs <- err
				return
			}
			sess, ok := f.store.Get(userID)
			if !ok || sess.Step != 1 {
				errs <- errors.New("unexpected state for " + userID)
				return
			}
			if v, _ := sess.Record.Value("client_name"); v != "name-"+userID {
				errs <- errors.New("record leaked between users: " + v)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestManager_NotifyExpired(t *testing.T) {
	f := newManagerFixture(t, false)
	ctx := context.Background()
	_, err := f.manager.Handle(ctx, start("u1"))
	require.NoError(t, err)

	sess, _ := f.store.Get("u1")
	f.store.Remove("u1")
	f.manager.NotifyExpired(ctx, sess)

	assert.Equal(t, DefaultMessages(DefaultKeywords()).Expired, f.sink.last().Text)
	assert.Contains(t, f.events.types(), EventSessionExpired)
}

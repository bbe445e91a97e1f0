package telegram

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/remodel-intake/internal/intake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu       sync.Mutex
	byUser   map[string][]string
	inFlight map[string]int
	overlap  bool
	delay    time.Duration
	block    chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{byUser: make(map[string][]string), inFlight: make(map[string]int)}
}

func (h *recordingHandler) Handle(_ context.Context, in intake.Inbound) (intake.Outcome, error) {
	h.mu.Lock()
	h.inFlight[in.UserID]++
	if h.inFlight[in.UserID] > 1 {
		h.overlap = true
	}
	h.mu.Unlock()

	if h.block != nil {
		<-h.block
	}
	if h.delay > 0 {
		time.Sleep(h.delay)
	}

	h.mu.Lock()
	h.byUser[in.UserID] = append(h.byUser[in.UserID], in.Text)
	h.inFlight[in.UserID]--
	h.mu.Unlock()

	if in.Text == "fail" {
		return intake.Outcome{Kind: intake.OutcomeFinalize}, &intake.DeliveryError{SubmissionID: "x", Err: errors.New("boom")}
	}
	return intake.Outcome{Kind: intake.OutcomePrompt}, nil
}

func (h *recordingHandler) texts(userID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.byUser[userID]...)
}

func TestDispatcher_PreservesPerUserOrder(t *testing.T) {
	h := newRecordingHandler()
	h.delay = time.Millisecond
	d := NewDispatcher(h, 64, time.Minute)

	var want []string
	for i := 0; i < 20; i++ {
		text := strconv.Itoa(i)
		want = append(want, text)
		require.NoError(t, d.Submit(intake.Inbound{UserID: "u1", Text: text}))
	}
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, want, h.texts("u1"))
	assert.False(t, h.overlap, "turns of one user must not overlap")
}

func TestDispatcher_UsersRunInParallel(t *testing.T) {
	h := newRecordingHandler()
	h.block = make(chan struct{})
	d := NewDispatcher(h, 4, time.Minute)

	require.NoError(t, d.Submit(intake.Inbound{UserID: "a", Text: "1"}))
	require.NoError(t, d.Submit(intake.Inbound{UserID: "b", Text: "1"}))

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.inFlight["a"] == 1 && h.inFlight["b"] == 1
	}, time.Second, 5*time.Millisecond, "both users should be handled concurrently")

	close(h.block)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []string{"1"}, h.texts("a"))
	assert.Equal(t, []string{"1"}, h.texts("b"))
}

func TestDispatcher_QueueFull(t *testing.T) {
	h := newRecordingHandler()
	h.block = make(chan struct{})
	d := NewDispatcher(h, 1, time.Minute)

	require.NoError(t, d.Submit(intake.Inbound{UserID: "u", Text: "1"}))
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.inFlight["u"] == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, d.Submit(intake.Inbound{UserID: "u", Text: "2"}))
	assert.ErrorIs(t, d.Submit(intake.Inbound{UserID: "u", Text: "3"}), ErrQueueFull)

	close(h.block)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []string{"1", "2"}, h.texts("u"))
}

func TestDispatcher_IdleWorkerExits(t *testing.T) {
	h := newRecordingHandler()
	d := NewDispatcher(h, 4, 20*time.Millisecond)

	require.NoError(t, d.Submit(intake.Inbound{UserID: "u", Text: "1"}))
	require.Eventually(t, func() bool { return d.Active() == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, d.Submit(intake.Inbound{UserID: "u", Text: "2"}))
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []string{"1", "2"}, h.texts("u"))
}

func TestDispatcher_HandlerErrorsDoNotStopWorker(t *testing.T) {
	h := newRecordingHandler()
	d := NewDispatcher(h, 4, time.Minute)

	require.NoError(t, d.Submit(intake.Inbound{UserID: "u", Text: "fail"}))
	require.NoError(t, d.Submit(intake.Inbound{UserID: "u", Text: "next"}))
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, []string{"fail", "next"}, h.texts("u"))
}

func TestDispatcher_SubmitAfterClose(t *testing.T) {
	d := NewDispatcher(newRecordingHandler(), 4, time.Minute)
	require.NoError(t, d.Close(context.Background()))

	assert.ErrorIs(t, d.Submit(intake.Inbound{UserID: "u", Text: "1"}), ErrDispatcherClosed)
	assert.NoError(t, d.Close(context.Background()), "Close is idempotent")
}

func TestDispatcher_CloseHonoursContext(t *testing.T) {
	h := newRecordingHandler()
	h.block = make(chan struct{})
	defer close(h.block)
	d := NewDispatcher(h, 4, time.Minute)
	require.NoError(t, d.Submit(intake.Inbound{UserID: "u", Text: "1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
}

func TestDispatcher_SubmitUpdate(t *testing.T) {
	h := newRecordingHandler()
	d := NewDispatcher(h, 4, time.Minute)

	assert.True(t, d.SubmitUpdate(privateUpdate(5, "hello")))
	group := privateUpdate(6, "hello")
	group.Message.Chat.Type = "supergroup"
	assert.False(t, d.SubmitUpdate(group))

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []string{"hello"}, h.texts("5"))
	assert.Empty(t, h.texts("6"))
}

package telegram

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/remodel-intake/internal/intake"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Default dispatcher tuning.
const (
	DefaultQueueSize   = 32
	DefaultIdleTimeout = time.Minute
)

var (
	// ErrQueueFull is returned when a user's queue has no room.
	ErrQueueFull = errors.New("user queue is full")
	// ErrDispatcherClosed is returned after Close.
	ErrDispatcherClosed = errors.New("dispatcher closed")
)

// Handler processes one inbound message. *intake.Manager implements it.
type Handler interface {
	Handle(ctx context.Context, in intake.Inbound) (intake.Outcome, error)
}

// Dispatcher keeps one FIFO queue and one worker goroutine per active user.
// Messages of a user are handled in arrival order; different users proceed
// in parallel. A worker exits after idleTimeout without messages.
type Dispatcher struct {
	handler     Handler
	queueSize   int
	idleTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	workers map[string]*worker
	closed  bool
	wg      sync.WaitGroup
}

type worker struct {
	userID string
	queue  chan intake.Inbound
}

// NewDispatcher creates a dispatcher feeding handler.
func NewDispatcher(handler Handler, queueSize int, idleTimeout time.Duration) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		handler:     handler,
		queueSize:   queueSize,
		idleTimeout: idleTimeout,
		ctx:         ctx,
		cancel:      cancel,
		workers:     make(map[string]*worker),
	}
}

// Submit enqueues in on its user's queue without blocking.
func (d *Dispatcher) Submit(in intake.Inbound) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	w, ok := d.workers[in.UserID]
	if !ok {
		w = &worker{userID: in.UserID, queue: make(chan intake.Inbound, d.queueSize)}
		d.workers[in.UserID] = w
		d.wg.Add(1)
		go d.run(w)
	}

	select {
	case w.queue <- in:
		return nil
	default:
		slog.Warn("Dropping message, user queue full", "user_id", in.UserID, "queue_size", d.queueSize)
		return ErrQueueFull
	}
}

// SubmitUpdate converts update and enqueues it. Unsupported updates are
// dropped and reported as not accepted.
func (d *Dispatcher) SubmitUpdate(update tgbotapi.Update) bool {
	in, ok := ToInbound(update)
	if !ok {
		slog.Debug("Ignoring unsupported update", "update_id", update.UpdateID)
		return false
	}
	return d.Submit(in) == nil
}

// Active returns the number of running workers.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workers)
}

func (d *Dispatcher) run(w *worker) {
	defer d.wg.Done()

	timer := time.NewTimer(d.idleTimeout)
	defer timer.Stop()

	for {
		select {
		case in, ok := <-w.queue:
			if !ok {
				return
			}
			d.handle(in)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(d.idleTimeout)
		case <-timer.C:
			if d.retire(w) {
				return
			}
			timer.Reset(d.idleTimeout)
		}
	}
}

// retire removes an idle worker unless a message arrived meanwhile.
// Submit sends under d.mu, so an empty queue here stays empty.
func (d *Dispatcher) retire(w *worker) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(w.queue) > 0 {
		return false
	}
	if d.workers[w.userID] == w {
		delete(d.workers, w.userID)
	}
	return true
}

func (d *Dispatcher) handle(in intake.Inbound) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic while handling message", "user_id", in.UserID, "panic", r)
		}
	}()

	out, err := d.handler.Handle(d.ctx, in)
	if err != nil {
		var derr *intake.DeliveryError
		if errors.As(err, &derr) {
			slog.Error("Submission not delivered to admin", "user_id", in.UserID, "submission_id", derr.SubmissionID, "error", derr.Err)
			return
		}
		slog.Error("Failed to handle message", "user_id", in.UserID, "error", err)
		return
	}
	slog.Debug("Message handled", "user_id", in.UserID, "outcome", out.Kind.String())
}

// Close stops accepting messages, lets workers drain their queues and waits
// for them or for ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for id, w := range d.workers {
			close(w.queue)
			delete(d.workers, id)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}

// Package events streams intake lifecycle events to operators over WebSocket.
package events

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ashureev/remodel-intake/internal/intake"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	defaultHistory    = 50
	subscriberBuffer  = 64
	writeTimeout      = 5 * time.Second
	closeReasonFull   = "subscriber too slow"
	closeReasonNormal = "feed closed"
)

// Hub fans intake events out to WebSocket subscribers and keeps a short
// history replayed to new subscribers. It implements intake.EventSink.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	history []intake.Event
	next    int
	full    bool
	closed  bool
	origins []string
}

type subscriber struct {
	ch     chan intake.Event
	once   sync.Once
	done   chan struct{}
	reason string
}

func (s *subscriber) drop(reason string) {
	s.once.Do(func() {
		s.reason = reason
		close(s.done)
	})
}

// NewHub creates a hub keeping the last history events (50 if <= 0).
// Cross-origin browsers may connect only from allowedOrigins
// ("scheme://host" or "*"); requests without an Origin header are accepted.
func NewHub(history int, allowedOrigins []string) *Hub {
	if history <= 0 {
		history = defaultHistory
	}
	return &Hub{
		subs:    make(map[*subscriber]struct{}),
		history: make([]intake.Event, history),
		origins: originPatterns(allowedOrigins),
	}
}

// originPatterns converts origins to the host patterns websocket.Accept
// matches against.
func originPatterns(origins []string) []string {
	var out []string
	for _, origin := range origins {
		if origin == "*" {
			out = append(out, origin)
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			slog.Warn("Ignoring invalid event feed origin", "origin", origin)
			continue
		}
		out = append(out, u.Host)
	}
	return out
}

// Publish records ev and delivers it to every subscriber without blocking.
// A subscriber whose buffer is full is disconnected.
func (h *Hub) Publish(ev intake.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	h.history[h.next] = ev
	h.next = (h.next + 1) % len(h.history)
	if h.next == 0 {
		h.full = true
	}

	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			slog.Warn("Dropping slow event subscriber")
			delete(h.subs, sub)
			sub.drop(closeReasonFull)
		}
	}
}

// Recent returns the retained events, oldest first.
func (h *Hub) Recent() []intake.Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.recentLocked()
}

func (h *Hub) recentLocked() []intake.Event {
	if !h.full {
		return append([]intake.Event(nil), h.history[:h.next]...)
	}
	out := make([]intake.Event, 0, len(h.history))
	out = append(out, h.history[h.next:]...)
	return append(out, h.history[:h.next]...)
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// subscribe registers a subscriber whose buffer is pre-filled with history.
func (h *Hub) subscribe() (*subscriber, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	recent := h.recentLocked()
	sub := &subscriber{
		ch:   make(chan intake.Event, subscriberBuffer+len(recent)),
		done: make(chan struct{}),
	}
	for _, ev := range recent {
		sub.ch <- ev
	}
	h.subs[sub] = struct{}{}
	return sub, true
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub)
	sub.drop(closeReasonNormal)
}

// Close disconnects every subscriber. Later Publish calls are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		sub.drop(closeReasonNormal)
	}
}

// ServeHTTP upgrades the request and streams events as JSON text frames
// until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}
	defer func() { _ = ws.CloseNow() }()

	sub, ok := h.subscribe()
	if !ok {
		_ = ws.Close(websocket.StatusGoingAway, closeReasonNormal)
		return
	}
	defer h.unsubscribe(sub)
	slog.Info("Event subscriber connected", "ip", r.RemoteAddr)

	// The feed is write-only; CloseRead handles pings and reports disconnects.
	ctx := ws.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			slog.Info("Event subscriber disconnected", "ip", r.RemoteAddr)
			return
		case <-sub.done:
			status := websocket.StatusGoingAway
			if sub.reason == closeReasonFull {
				status = websocket.StatusPolicyViolation
			}
			_ = ws.Close(status, sub.reason)
			return
		case ev := <-sub.ch:
			if err := writeEvent(ctx, ws, ev); err != nil {
				slog.Debug("Failed to write event", "error", err)
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, ws *websocket.Conn, ev intake.Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, ev)
}

var _ intake.EventSink = (*Hub)(nil)

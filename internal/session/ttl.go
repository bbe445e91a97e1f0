package session

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is used when StartTTLWorker gets a non-positive interval.
const DefaultSweepInterval = 5 * time.Minute

// ExpiryCallback is called, outside the store mutex but under the user's
// turn lock, for every session the TTL worker removes.
type ExpiryCallback func(ctx context.Context, sess *Session)

// StartTTLWorker runs a background goroutine that periodically removes
// sessions idle longer than ttl. A non-positive ttl disables the worker.
func StartTTLWorker(ctx context.Context, store *Store, ttl, interval time.Duration, onExpire ExpiryCallback) {
	if ttl <= 0 {
		slog.Info("Session TTL worker disabled")
		return
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				SweepExpired(ctx, store, ttl, onExpire)
			case <-ctx.Done():
				slog.Info("Session TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// SweepExpired removes idle sessions once and returns how many were removed.
func SweepExpired(ctx context.Context, store *Store, ttl time.Duration, onExpire ExpiryCallback) int {
	candidates := store.Expired(ttl)
	if len(candidates) == 0 {
		return 0
	}

	slog.Info("Session TTL worker found idle sessions", "count", len(candidates))

	removed := 0
	for _, userID := range candidates {
		if ctx.Err() != nil {
			break
		}
		if expireOne(ctx, store, userID, ttl, onExpire) {
			removed++
		}
	}

	slog.Info("Session TTL sweep completed", "expired", removed)
	return removed
}

func expireOne(ctx context.Context, store *Store, userID string, ttl time.Duration, onExpire ExpiryCallback) bool {
	unlock := store.Lock(userID)
	defer unlock()

	// A turn may have run between listing and locking; TakeIfIdle re-checks.
	sess, ok := store.TakeIfIdle(userID, ttl)
	if !ok {
		return false
	}
	if err := sess.Transition(ctx, EventExpire); err != nil {
		slog.Warn("Expired session was not collecting", "user_id", userID, "phase", sess.Phase(), "error", err)
	}

	slog.Info("Session expired", "user_id", userID, "step", sess.Step, "started_at", sess.StartedAt)
	if onExpire != nil {
		onExpire(ctx, sess)
	}
	return true
}

// Package cache holds small in-process caches. The dedupe window flags
// repeated webhook callbacks; telephony vendors re-deliver status events
// under bursts and retries.
package cache

import (
	"sync"
	"time"
)

// DedupeWindow remembers recently seen keys for a bounded time. Flagging is
// advisory: duplicate callbacks are still processed, the window only feeds
// logging and metrics.
type DedupeWindow struct {
	mu      sync.Mutex
	seen    map[string]int64
	ttl     time.Duration
	maxSize int
}

// DedupeOptions configures the window.
type DedupeOptions struct {
	// TTL is how long a key counts as recently seen. Zero or negative
	// means keys never expire (bounded only by MaxSize).
	TTL time.Duration

	// MaxSize caps remembered keys; the oldest are evicted first.
	// Zero or negative disables remembering entirely.
	MaxSize int
}

// NewDedupeWindow creates an empty window.
func NewDedupeWindow(opts DedupeOptions) *DedupeWindow {
	return &DedupeWindow{
		seen:    make(map[string]int64),
		ttl:     opts.TTL,
		maxSize: opts.MaxSize,
	}
}

// Seen reports whether key was observed within the TTL, and records the
// observation either way. Empty keys are never duplicates.
func (w *DedupeWindow) Seen(key string) bool {
	return w.SeenAt(key, time.Now())
}

// SeenAt is Seen with an explicit clock, for tests.
func (w *DedupeWindow) SeenAt(key string, now time.Time) bool {
	if key == "" || w.maxSize <= 0 {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	nowMs := now.UnixMilli()
	if prev, ok := w.seen[key]; ok && (w.ttl <= 0 || nowMs-prev < w.ttl.Milliseconds()) {
		w.seen[key] = nowMs
		return true
	}

	w.seen[key] = nowMs
	w.prune(nowMs)
	return false
}

// Size returns the number of remembered keys.
func (w *DedupeWindow) Size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}

func (w *DedupeWindow) prune(nowMs int64) {
	if w.ttl > 0 {
		cutoff := nowMs - w.ttl.Milliseconds()
		for k, ts := range w.seen {
			if ts < cutoff {
				delete(w.seen, k)
			}
		}
	}

	for len(w.seen) > w.maxSize {
		var oldestKey string
		oldestTs := int64(1<<63 - 1)
		for k, ts := range w.seen {
			if ts < oldestTs {
				oldestTs = ts
				oldestKey = k
			}
		}
		delete(w.seen, oldestKey)
	}
}

// CallbackKey builds the dedupe key for an inbound callback. Two callbacks
// are considered duplicates when the call, status, and utterance all match.
func CallbackKey(providerCallID, eventType, utterance string) string {
	if providerCallID == "" {
		return ""
	}
	return providerCallID + "|" + eventType + "|" + utterance
}

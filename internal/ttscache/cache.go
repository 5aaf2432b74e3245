// Package ttscache deduplicates expensive text-to-speech work. The cache is
// content-addressed: identical (voice, text) pairs always resolve to the
// same audio asset for the lifetime of the entry.
package ttscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/sync/singleflight"

	"github.com/haasonsaas/callbridge/internal/observability"
)

// Key returns the deterministic cache key for a (voice, text) pair:
// hex(sha256(voice + ":" + text)).
func Key(voice, text string) string {
	sum := sha256.Sum256([]byte(voice + ":" + text))
	return hex.EncodeToString(sum[:])
}

// Cache fronts the index with per-key request coalescing: concurrent
// requests for the same (voice, text) share one in-flight synthesis instead
// of duplicating the work.
type Cache struct {
	index  Index
	group  singleflight.Group
	logger *observability.Logger
}

// New creates a cache over the given index.
func New(index Index, logger *observability.Logger) *Cache {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Cache{index: index, logger: logger}
}

// Lookup returns the cached entry for a (voice, text) pair. Index errors are
// treated as misses; an unreachable index must cost a re-synthesis, not a
// failed call.
func (c *Cache) Lookup(ctx context.Context, voice, text string) (Entry, bool) {
	entry, ok, err := c.index.Get(ctx, Key(voice, text))
	if err != nil {
		c.logger.Warn(ctx, "tts cache lookup failed, treating as miss", "error", err)
		return Entry{}, false
	}
	return entry, ok
}

// Store writes a cache entry. Idempotent: the key is content-derived, so
// repeated writes for the same pair are no-ops. Write failures are logged
// and swallowed for the same reason lookup errors are.
func (c *Cache) Store(ctx context.Context, voice, text, audioID, mime string) {
	if err := c.index.Set(ctx, Key(voice, text), Entry{AudioID: audioID, MIME: mime}); err != nil {
		c.logger.Warn(ctx, "tts cache store failed", "error", err)
	}
}

// GetOrSynthesize returns the cached entry or runs synthesize exactly once
// per key across concurrent callers, caching its result. The hit flag
// reports whether the entry came from cache.
func (c *Cache) GetOrSynthesize(ctx context.Context, voice, text string, synthesize func(ctx context.Context) (Entry, error)) (Entry, bool, error) {
	if entry, ok := c.Lookup(ctx, voice, text); ok {
		return entry, true, nil
	}

	key := Key(voice, text)
	result, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under the flight: another caller may have finished
		// between our miss and joining the group.
		if entry, ok := c.Lookup(ctx, voice, text); ok {
			return flightResult{entry: entry, hit: true}, nil
		}
		entry, err := synthesize(ctx)
		if err != nil {
			return flightResult{}, err
		}
		c.Store(ctx, voice, text, entry.AudioID, entry.MIME)
		return flightResult{entry: entry}, nil
	})
	if err != nil {
		return Entry{}, false, err
	}
	fr := result.(flightResult)
	return fr.entry, fr.hit, nil
}

// flightResult carries the entry out of a singleflight call together with
// whether the in-flight re-check found it already cached. Waiters share the
// winner's value, so the flag cannot live in a per-caller variable.
type flightResult struct {
	entry Entry
	hit   bool
}

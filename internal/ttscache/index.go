package ttscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	indexPrefix = "tts:"

	// defaultTTL bounds shared index entries. Audio assets outlive their
	// index entries, so expiry only costs a re-synthesis, never a broken
	// playback URL.
	defaultTTL = 24 * time.Hour
)

// Entry is the cached result of one synthesis: which asset holds the audio
// for a (voice, text) pair and its MIME type. Entries are immutable once
// written.
type Entry struct {
	AudioID string `json:"audio_id"`
	MIME    string `json:"mime"`
}

// Index is the key-value contract behind the cache. Keys are content hashes;
// values are Entry JSON.
type Index interface {
	Get(ctx context.Context, keyHash string) (Entry, bool, error)
	Set(ctx context.Context, keyHash string, entry Entry) error
}

// MemoryIndex is a process-local index for development and degraded
// operation.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]Entry)}
}

func (i *MemoryIndex) Get(_ context.Context, keyHash string) (Entry, bool, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	entry, ok := i.entries[keyHash]
	return entry, ok, nil
}

func (i *MemoryIndex) Set(_ context.Context, keyHash string, entry Entry) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.entries[keyHash]; ok {
		// Content-derived keys make overwrites a no-op.
		return nil
	}
	i.entries[keyHash] = entry
	return nil
}

// RedisIndex shares the synthesis index across gateway instances under
// "tts:<hash>" keys with a TTL.
type RedisIndex struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisIndex creates a Redis-backed index.
func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{client: client, ttl: defaultTTL}
}

func (i *RedisIndex) Get(ctx context.Context, keyHash string) (Entry, bool, error) {
	raw, err := i.client.Get(ctx, indexPrefix+keyHash).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("ttscache: redis get: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (i *RedisIndex) Set(ctx context.Context, keyHash string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("ttscache: marshal: %w", err)
	}
	// SetNX keeps entries immutable: the first write for a content hash
	// wins, later identical writes are no-ops.
	if err := i.client.SetNX(ctx, indexPrefix+keyHash, data, i.ttl).Err(); err != nil {
		return fmt.Errorf("ttscache: redis setnx: %w", err)
	}
	return nil
}

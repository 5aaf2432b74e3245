package convctx

import (
	"context"
	"sync"

	"github.com/haasonsaas/callbridge/internal/observability"
)

// lockedStore serializes writers per session. SaveTurn is a read-modify-write
// against a store with no compare-and-swap; without serialization two
// concurrent turns for the same call would race and one would be silently
// dropped by last-write-wins.
type lockedStore struct {
	inner Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// WithSessionLocks wraps a store with single-writer-per-session discipline.
func WithSessionLocks(inner Store) Store {
	return &lockedStore{inner: inner, locks: make(map[string]*sync.Mutex)}
}

func (s *lockedStore) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}

func (s *lockedStore) GetContext(ctx context.Context, sessionID string) (Context, error) {
	return s.inner.GetContext(ctx, sessionID)
}

func (s *lockedStore) SaveTurn(ctx context.Context, sessionID, userText, aiText string) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()
	return s.inner.SaveTurn(ctx, sessionID, userText, aiText)
}

func (s *lockedStore) Reset(ctx context.Context, sessionID string) (Context, error) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()
	return s.inner.Reset(ctx, sessionID)
}

func (s *lockedStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	return s.inner.Exists(ctx, sessionID)
}

func (s *lockedStore) AllSessions(ctx context.Context) ([]string, error) {
	return s.inner.AllSessions(ctx)
}

// fallbackStore delegates to a shared primary store and degrades to a local
// secondary when the primary errors. The secondary shares no state across
// processes and loses everything on restart; callers tolerate context loss
// in this mode.
type fallbackStore struct {
	primary   Store
	secondary Store
	logger    *observability.Logger
}

// WithFallback wraps a primary store with an in-memory degradation path.
func WithFallback(primary Store, logger *observability.Logger) Store {
	return &fallbackStore{
		primary:   primary,
		secondary: NewMemoryStore(),
		logger:    logger,
	}
}

func (s *fallbackStore) GetContext(ctx context.Context, sessionID string) (Context, error) {
	stored, err := s.primary.GetContext(ctx, sessionID)
	if err != nil {
		s.logger.Warn(ctx, "context store unavailable, using in-memory fallback", "error", err)
		return s.secondary.GetContext(ctx, sessionID)
	}
	return stored, nil
}

func (s *fallbackStore) SaveTurn(ctx context.Context, sessionID, userText, aiText string) error {
	if err := s.primary.SaveTurn(ctx, sessionID, userText, aiText); err != nil {
		s.logger.Warn(ctx, "context store unavailable, saving turn to in-memory fallback", "error", err)
		return s.secondary.SaveTurn(ctx, sessionID, userText, aiText)
	}
	return nil
}

func (s *fallbackStore) Reset(ctx context.Context, sessionID string) (Context, error) {
	fresh, err := s.primary.Reset(ctx, sessionID)
	if err != nil {
		s.logger.Warn(ctx, "context store unavailable, resetting in-memory fallback", "error", err)
		return s.secondary.Reset(ctx, sessionID)
	}
	// Keep the fallback consistent so a later degradation does not
	// resurrect pre-reset history.
	_, _ = s.secondary.Reset(ctx, sessionID)
	return fresh, nil
}

func (s *fallbackStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	ok, err := s.primary.Exists(ctx, sessionID)
	if err != nil {
		return s.secondary.Exists(ctx, sessionID)
	}
	return ok, nil
}

func (s *fallbackStore) AllSessions(ctx context.Context) ([]string, error) {
	ids, err := s.primary.AllSessions(ctx)
	if err != nil {
		return s.secondary.AllSessions(ctx)
	}
	return ids, nil
}

package convctx

import (
	"context"
	"sync"
)

// MemoryStore keeps conversation context in process memory. It is the
// fallback when Redis is unconfigured or unreachable: no cross-process
// sharing, nothing survives a restart. Callers tolerate that by design.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Context
}

// NewMemoryStore creates an empty in-memory context store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Context)}
}

func (s *MemoryStore) GetContext(_ context.Context, sessionID string) (Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.sessions[sessionID]
	if !ok {
		return Empty(), nil
	}
	return cloneContext(stored), nil
}

func (s *MemoryStore) SaveTurn(_ context.Context, sessionID, userText, aiText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[sessionID]
	if !ok {
		stored = Empty()
	}
	stored.History = append(stored.History, Turn{UserText: userText, AIText: aiText})
	s.sessions[sessionID] = stored
	return nil
}

func (s *MemoryStore) Reset(_ context.Context, sessionID string) (Context, error) {
	fresh := Context{History: []Turn{}, Entities: map[string]string{}}
	s.mu.Lock()
	s.sessions[sessionID] = fresh
	s.mu.Unlock()
	return cloneContext(fresh), nil
}

func (s *MemoryStore) Exists(_ context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[sessionID]
	return ok, nil
}

func (s *MemoryStore) AllSessions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

// cloneContext copies the context so callers cannot mutate stored state
// through the returned slices and maps.
func cloneContext(c Context) Context {
	out := Context{History: make([]Turn, len(c.History))}
	copy(out.History, c.History)
	if c.Entities != nil {
		out.Entities = make(map[string]string, len(c.Entities))
		for k, v := range c.Entities {
			out.Entities[k] = v
		}
	}
	return out
}

// Package convctx stores per-call conversational memory. Webhook callbacks
// are stateless and unordered; this store is what threads multi-turn context
// across them, keyed by the provider call ID.
package convctx

import "context"

// Turn is one completed exchange: what the caller said and what the system
// replied.
type Turn struct {
	UserText string `json:"user"`
	AIText   string `json:"ai"`
}

// Context is the accumulated memory for one session. History is append-only
// and in turn order. Entities holds extracted slot values; reserved for
// downstream use.
type Context struct {
	History  []Turn            `json:"history"`
	Entities map[string]string `json:"entities,omitempty"`
}

// Empty returns a fresh context. GetContext returns this shape for unknown
// sessions instead of an error.
func Empty() Context {
	return Context{History: []Turn{}}
}

// Store is the narrow contract over the backing key-value service.
//
// All operations are keyed by session ID. Individual operations are single
// requests against the backing store; there is no transactional boundary
// spanning reads and writes, so writers for the same session must be
// serialized externally (see WithSessionLocks).
type Store interface {
	// GetContext returns the context for a session, or an empty context
	// when the session is unknown. A missing key is never an error.
	GetContext(ctx context.Context, sessionID string) (Context, error)

	// SaveTurn appends exactly one turn: load existing context (or
	// empty), append, persist.
	SaveTurn(ctx context.Context, sessionID, userText, aiText string) error

	// Reset overwrites the session with a fresh empty context and
	// returns it.
	Reset(ctx context.Context, sessionID string) (Context, error)

	// Exists reports whether the session has stored context.
	Exists(ctx context.Context, sessionID string) (bool, error)

	// AllSessions lists every stored session ID. Introspection only.
	AllSessions(ctx context.Context) ([]string, error)
}

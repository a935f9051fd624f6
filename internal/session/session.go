// Package session holds per-conversation turn history keyed by session id.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/dc-codes426/newsapi-ai/internal/llm"
)

// Turn is one message within a session. Turns are append-only; once written
// they are never reordered or mutated.
type Turn struct {
	Role       llm.Role       `json:"role"`
	Content    string         `json:"content"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Message converts the turn to its conversation wire form.
func (t Turn) Message() llm.Message {
	return llm.Message{
		Role:       t.Role,
		Content:    t.Content,
		ToolCallID: t.ToolCallID,
		ToolCalls:  t.ToolCalls,
	}
}

// FromMessage wraps a conversation message as a stored turn.
func FromMessage(m llm.Message) Turn {
	return Turn{
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
		ToolCalls:  m.ToolCalls,
		CreatedAt:  time.Now().UTC(),
	}
}

// Session is a durable conversation: an id and its ordered turns.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Turns     []Turn    `json:"turns"`
}

// Messages renders the turn history in conversation order.
func (s Session) Messages() []llm.Message {
	out := make([]llm.Message, len(s.Turns))
	for i, t := range s.Turns {
		out[i] = t.Message()
	}
	return out
}

// Store persists sessions. GetOrCreate with an empty id mints a fresh
// session; with an unknown id it creates a session under that id (first
// contact). Implementations refresh the TTL on access.
type Store interface {
	GetOrCreate(ctx context.Context, id string) (Session, error)
	AppendTurns(ctx context.Context, id string, turns ...Turn) error
	Sweep(ctx context.Context) (int, error)
	Close() error
}

// Locks serializes work per session id. Two queries against the same
// session cannot interleave their turn history; different sessions proceed
// in parallel.
type Locks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewLocks creates an empty keyed-mutex set.
func NewLocks() *Locks {
	return &Locks{entries: make(map[string]*lockEntry)}
}

// Acquire blocks until the lock for id is held and returns the release
// function. Entries are reference-counted so the map does not grow with
// dead session ids.
func (l *Locks) Acquire(id string) func() {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		e = &lockEntry{}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}

func cloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	copy(out, turns)
	for i := range out {
		if len(out[i].ToolCalls) > 0 {
			tc := make([]llm.ToolCall, len(out[i].ToolCalls))
			copy(tc, out[i].ToolCalls)
			out[i].ToolCalls = tc
		}
	}
	return out
}

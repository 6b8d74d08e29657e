// Package session holds per-user conversation state for the front ends.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"cabot/internal/domain"
	"cabot/internal/history"
	"cabot/internal/metrics"
	"cabot/internal/service"
)

// Asker runs one retrieval-augmented turn against a conversation window.
type Asker interface {
	Ask(ctx context.Context, win *history.Window, query string) service.Turn
}

// Entry is one line of the displayed transcript.
type Entry struct {
	Role    domain.Role
	Content string
	IsError bool
}

// Session is the explicit per-user context: the model-facing history
// window plus the displayed transcript. Failed turns appear in the
// transcript but never in the history.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	history    *history.Window
	transcript []Entry
}

// New creates a session whose history holds at most historyCap messages.
func New(historyCap int) *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		history:   history.New(historyCap),
	}
}

// Ask runs one turn and records it. Calls on the same session are serialised.
func (s *Session) Ask(ctx context.Context, asker Asker, query string) service.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	turn := asker.Ask(ctx, s.history, query)
	s.transcript = append(s.transcript,
		Entry{Role: domain.RoleUser, Content: query},
		Entry{Role: domain.RoleAssistant, Content: turn.Reply, IsError: turn.Failed()},
	)
	return turn
}

// Clear empties history and transcript.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Reset()
	s.transcript = nil
}

// Transcript returns a copy of the displayed messages.
func (s *Session) Transcript() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Stats mirrors the sidebar counters of the browser form.
type Stats struct {
	MessagesExchanged int
	ContextHistory    int
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{MessagesExchanged: len(s.transcript), ContextHistory: s.history.Len()}
}

// Store keeps browser sessions alive for ttl after their last use.
type Store struct {
	cache      *cache.Cache
	ttl        time.Duration
	historyCap int
}

// NewStore creates a store that purges expired sessions every ttl/4.
func NewStore(ttl time.Duration, historyCap int) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := cache.New(ttl, max(ttl/4, time.Second))
	c.OnEvicted(func(string, interface{}) { metrics.ActiveSessions.Dec() })
	return &Store{cache: c, ttl: ttl, historyCap: historyCap}
}

// Get returns the live session for id and refreshes its expiry.
func (st *Store) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	x, ok := st.cache.Get(id)
	if !ok {
		return nil, false
	}
	sess := x.(*Session)
	st.cache.Set(id, sess, cache.DefaultExpiration)
	return sess, true
}

// Create starts a new session.
func (st *Store) Create() *Session {
	sess := New(st.historyCap)
	st.cache.Set(sess.ID, sess, cache.DefaultExpiration)
	metrics.ActiveSessions.Inc()
	return sess
}

// GetOrCreate returns the session for id, creating one when it is unknown or expired.
func (st *Store) GetOrCreate(id string) (*Session, bool) {
	if sess, ok := st.Get(id); ok {
		return sess, false
	}
	return st.Create(), true
}

// Delete tears a session down.
func (st *Store) Delete(id string) {
	st.cache.Delete(id)
}

// Len reports the number of stored sessions, including expired ones not yet purged.
func (st *Store) Len() int { return st.cache.ItemCount() }

// TTL is the idle lifetime of a session.
func (st *Store) TTL() time.Duration { return st.ttl }

package conversations

import (
	"context"
	"sync"
	"time"

	"github.com/feedforward/pkg/models"
)

// Source reads conversation metadata from the external conversation store.
type Source interface {
	// RecentIDs reports which of ids were created at or after since.
	// The whole set is resolved in one round trip.
	RecentIDs(ctx context.Context, ids []string, since time.Time) (map[string]bool, error)
	// Contexts returns review context for ids, in the order given. Unknown
	// ids come back with only ConversationID set.
	Contexts(ctx context.Context, ids []string) ([]models.ConversationContext, error)
}

// InMemorySource is a Source backed by maps, for tests and dry runs.
type InMemorySource struct {
	mu       sync.RWMutex
	created  map[string]time.Time
	contexts map[string]models.ConversationContext
	calls    int
}

func NewInMemorySource() *InMemorySource {
	return &InMemorySource{
		created:  make(map[string]time.Time),
		contexts: make(map[string]models.ConversationContext),
	}
}

// Add records a conversation and its context.
func (s *InMemorySource) Add(id string, createdAt time.Time, c models.ConversationContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ConversationID = id
	s.created[id] = createdAt
	s.contexts[id] = c
}

// AddTheme records a conversation from a routed theme.
func (s *InMemorySource) AddTheme(t models.Theme, createdAt time.Time) {
	s.Add(t.ConversationID, createdAt, models.ContextFromTheme(t))
}

// RecentCalls is the number of RecentIDs round trips served so far.
func (s *InMemorySource) RecentCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

func (s *InMemorySource) RecentIDs(ctx context.Context, ids []string, since time.Time) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		if at, ok := s.created[id]; ok && !at.Before(since) {
			out[id] = true
		}
	}
	return out, nil
}

func (s *InMemorySource) Contexts(ctx context.Context, ids []string) ([]models.ConversationContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ConversationContext, 0, len(ids))
	for _, id := range ids {
		c, ok := s.contexts[id]
		if !ok {
			c = models.ConversationContext{ConversationID: id}
		}
		out = append(out, c)
	}
	return out, nil
}

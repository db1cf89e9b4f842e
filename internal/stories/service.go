package stories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("story not found")
	ErrInvalidDraft = errors.New("invalid story draft")
)

// Service is the downstream story tracker. Stories are created once and
// never mutated by this engine afterwards.
type Service interface {
	CreateStory(ctx context.Context, d Draft) (string, error)
	// AppendEvidence is idempotent per (story, conversation).
	AppendEvidence(ctx context.Context, e Evidence) error
}

func validateDraft(d Draft) error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("%w: empty title", ErrInvalidDraft)
	}
	return nil
}

func validateEvidence(e Evidence) error {
	if e.StoryID == "" || e.ConversationID == "" {
		return fmt.Errorf("%w: evidence needs story and conversation ids", ErrInvalidDraft)
	}
	return nil
}

// InMemoryService keeps stories and evidence in maps.
type InMemoryService struct {
	mu       sync.Mutex
	stories  map[string]*Story
	evidence map[string][]Evidence
}

func NewInMemoryService() *InMemoryService {
	return &InMemoryService{
		stories:  make(map[string]*Story),
		evidence: make(map[string][]Evidence),
	}
}

func (s *InMemoryService) CreateStory(ctx context.Context, d Draft) (string, error) {
	if err := validateDraft(d); err != nil {
		return "", err
	}
	if d.Status == "" {
		d.Status = StatusCandidate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := d.ProposedID
	if id == "" {
		id = uuid.NewString()
	} else if _, ok := s.stories[id]; ok {
		return id, nil
	}
	st := &Story{ID: id, Draft: d, CreatedAt: time.Now().UTC()}
	s.stories[st.ID] = st
	return st.ID, nil
}

func (s *InMemoryService) AppendEvidence(ctx context.Context, e Evidence) error {
	if err := validateEvidence(e); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stories[e.StoryID]; !ok {
		return ErrNotFound
	}
	for _, existing := range s.evidence[e.StoryID] {
		if existing.ConversationID == e.ConversationID {
			return nil
		}
	}
	if e.AddedAt.IsZero() {
		e.AddedAt = time.Now().UTC()
	}
	s.evidence[e.StoryID] = append(s.evidence[e.StoryID], e)
	return nil
}

// Stories returns every story ordered by creation time.
func (s *InMemoryService) Stories() []Story {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Story, 0, len(s.stories))
	for _, st := range s.stories {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *InMemoryService) Get(id string) (Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stories[id]
	if !ok {
		return Story{}, ErrNotFound
	}
	return *st, nil
}

// Evidence lists the evidence attached to a story in append order.
func (s *InMemoryService) Evidence(storyID string) []Evidence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Evidence(nil), s.evidence[storyID]...)
}

package orphans

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("orphan not found")
	// ErrAlreadyGraduated is returned when a graduation races with another.
	ErrAlreadyGraduated = errors.New("orphan already graduated")
	// ErrInvariantViolation marks states that correct locking never produces.
	ErrInvariantViolation = errors.New("orphan invariant violation")
)

// GraduateFunc creates the story for a locked, still-active orphan and
// returns its id.
type GraduateFunc func(o *Orphan) (storyID string, err error)

type Store interface {
	// GetBySignature returns the orphan for sig whether or not it graduated.
	GetBySignature(ctx context.Context, sig string) (*Orphan, error)
	GetByID(ctx context.Context, id string) (*Orphan, error)
	// Accumulate inserts a new orphan for seed.Signature or folds the seed
	// into the existing active one, in one transaction scoped to that row.
	// A graduated orphan is returned untouched with OutcomeGraduated.
	Accumulate(ctx context.Context, seed Seed) (*Orphan, Outcome, error)
	ListActive(ctx context.Context) ([]*Orphan, error)
	// GraduateWith locks the orphan, calls fn while it is still active, and
	// stamps graduated_at/story_id exactly once.
	GraduateWith(ctx context.Context, id string, at time.Time, fn GraduateFunc) (*Orphan, error)
	MarkReviewed(ctx context.Context, id string, count int, decision string) error
	// MarkPlaced records members a split moved into a sub-group. Ids that
	// are not members are ignored; the member set itself never shrinks.
	MarkPlaced(ctx context.Context, id string, conversationIDs []string) error
}

// InMemoryStore is a threadsafe in-memory store for tests and dry runs.
// A single mutex stands in for the row lock.
type InMemoryStore struct {
	mu    sync.Mutex
	byID  map[string]*Orphan
	bySig map[string]string
	now   func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:  make(map[string]*Orphan),
		bySig: make(map[string]string),
		now:   time.Now,
	}
}

// SetClock overrides the store clock.
func (s *InMemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *InMemoryStore) GetBySignature(ctx context.Context, sig string) (*Orphan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bySig[sig]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrphan(s.byID[id]), nil
}

func (s *InMemoryStore) GetByID(ctx context.Context, id string) (*Orphan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrphan(o), nil
}

func (s *InMemoryStore) Accumulate(ctx context.Context, seed Seed) (*Orphan, Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	id, ok := s.bySig[seed.Signature]
	if !ok {
		o := newFromSeed(uuid.NewString(), seed, now)
		s.byID[o.ID] = o
		s.bySig[o.Signature] = o.ID
		return cloneOrphan(o), OutcomeCreated, nil
	}
	o := s.byID[id]
	if !o.IsActive() {
		return cloneOrphan(o), OutcomeGraduated, nil
	}
	if !fold(o, seed, now) {
		return cloneOrphan(o), OutcomeDuplicate, nil
	}
	return cloneOrphan(o), OutcomeAccumulated, nil
}

func (s *InMemoryStore) ListActive(ctx context.Context) ([]*Orphan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Orphan, 0, len(s.byID))
	for _, o := range s.byID {
		if o.IsActive() {
			out = append(out, cloneOrphan(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstSeenAt.Equal(out[j].FirstSeenAt) {
			return out[i].FirstSeenAt.Before(out[j].FirstSeenAt)
		}
		return out[i].Signature < out[j].Signature
	})
	return out, nil
}

func (s *InMemoryStore) GraduateWith(ctx context.Context, id string, at time.Time, fn GraduateFunc) (*Orphan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !o.IsActive() {
		return cloneOrphan(o), ErrAlreadyGraduated
	}
	storyID, err := fn(cloneOrphan(o))
	if err != nil {
		return nil, err
	}
	ts := at
	o.GraduatedAt = &ts
	o.StoryID = storyID
	o.LastUpdatedAt = at
	return cloneOrphan(o), nil
}

func (s *InMemoryStore) MarkReviewed(ctx context.Context, id string, count int, decision string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if count > o.ReviewedCount {
		o.ReviewedCount = count
	}
	o.LastDecision = decision
	return nil
}

func (s *InMemoryStore) MarkPlaced(ctx context.Context, id string, conversationIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	o.PlacedIDs = appendPlaced(o, conversationIDs)
	return nil
}

// appendPlaced adds the member ids from ids that are not placed yet.
func appendPlaced(o *Orphan, ids []string) []string {
	placed := append([]string(nil), o.PlacedIDs...)
	for _, id := range ids {
		if o.HasConversation(id) && !contains(placed, id) {
			placed = append(placed, id)
		}
	}
	return placed
}

func cloneOrphan(o *Orphan) *Orphan {
	if o == nil {
		return nil
	}
	cp := *o
	cp.ConversationIDs = append([]string(nil), o.ConversationIDs...)
	cp.PlacedIDs = append([]string(nil), o.PlacedIDs...)
	cp.ThemeData.Symptoms = append([]string(nil), o.ThemeData.Symptoms...)
	cp.ThemeData.Excerpts = append([]Excerpt(nil), o.ThemeData.Excerpts...)
	if o.ConfidenceScore != nil {
		v := *o.ConfidenceScore
		cp.ConfidenceScore = &v
	}
	if o.GraduatedAt != nil {
		t := *o.GraduatedAt
		cp.GraduatedAt = &t
	}
	return &cp
}

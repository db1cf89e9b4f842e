package graduation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/feedforward/internal/conversations"
	"github.com/feedforward/internal/metrics"
	"github.com/feedforward/internal/orphans"
	"github.com/feedforward/internal/pmreview"
	"github.com/feedforward/internal/stories"
	"github.com/feedforward/pkg/models"
)

const DefaultRecencyWindow = 30 * 24 * time.Hour

var (
	ErrBelowThreshold = errors.New("orphan below minimum group size")
	ErrNotRecent      = errors.New("orphan has no recent conversation")
)

// Graduation triggers, used as metric labels.
const (
	TriggerRoute = "route"
	TriggerSweep = "sweep"
	TriggerSplit = "split"
)

type Config struct {
	MinGroupSize  int
	RecencyWindow time.Duration
	TitleMaxLen   int
}

func DefaultConfig() Config {
	return Config{
		MinGroupSize:  orphans.MinGroupSize,
		RecencyWindow: DefaultRecencyWindow,
		TitleMaxLen:   DefaultTitleMaxLen,
	}
}

// Engine gates orphans on size, recency and PM review, and turns the ones
// that pass into stories.
type Engine struct {
	store   orphans.Store
	stories stories.Service
	source  conversations.Source
	gate    *pmreview.Gate
	cfg     Config
	now     func() time.Time
}

func NewEngine(store orphans.Store, svc stories.Service, source conversations.Source, gate *pmreview.Gate, cfg Config) *Engine {
	if cfg.MinGroupSize <= 0 {
		cfg.MinGroupSize = orphans.MinGroupSize
	}
	if cfg.RecencyWindow <= 0 {
		cfg.RecencyWindow = DefaultRecencyWindow
	}
	if gate == nil {
		gate = pmreview.NewGate(nil, 0)
	}
	return &Engine{store: store, stories: svc, source: source, gate: gate, cfg: cfg, now: time.Now}
}

// SetClock overrides the engine clock.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) recencyCutoff() time.Time { return e.now().Add(-e.cfg.RecencyWindow) }

// WithinWindow reports whether t falls inside the recency window.
func (e *Engine) WithinWindow(t time.Time) bool { return !t.Before(e.recencyCutoff()) }

// Eligible reports whether o is active and big enough to graduate. Members a
// split placed elsewhere do not count. Recency is checked separately.
func (e *Engine) Eligible(o *orphans.Orphan) bool {
	return o != nil && o.IsActive() && o.PendingCount() >= e.cfg.MinGroupSize
}

// IsRecent reports whether at least one pending member conversation was
// created inside the recency window.
func (e *Engine) IsRecent(ctx context.Context, o *orphans.Orphan) (bool, error) {
	recent, err := e.source.RecentIDs(ctx, o.PendingIDs(), e.recencyCutoff())
	if err != nil {
		return false, fmt.Errorf("recency check for %s: %w", o.Signature, err)
	}
	return len(recent) > 0, nil
}

// recentOrphans resolves recency for many orphans in one round trip.
func (e *Engine) recentOrphans(ctx context.Context, candidates []*orphans.Orphan) (map[string]bool, error) {
	out := make(map[string]bool, len(candidates))
	if len(candidates) == 0 {
		return out, nil
	}
	seen := make(map[string]bool)
	var ids []string
	for _, o := range candidates {
		for _, id := range o.PendingIDs() {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	recent, err := e.source.RecentIDs(ctx, ids, e.recencyCutoff())
	if err != nil {
		return nil, fmt.Errorf("batched recency check: %w", err)
	}
	for _, o := range candidates {
		for _, id := range o.PendingIDs() {
			if recent[id] {
				out[o.ID] = true
				break
			}
		}
	}
	return out, nil
}

type GraduateOptions struct {
	// RecencyChecked skips the per-orphan recency query.
	RecencyChecked bool
	// Contexts are the member conversations, when already loaded.
	Contexts []models.ConversationContext
	Trigger  string
}

// Graduate creates the story for o and stamps the orphan exactly once. Every
// member conversation is then attached to the story as evidence.
func (e *Engine) Graduate(ctx context.Context, o *orphans.Orphan, opts GraduateOptions) (string, error) {
	if !o.IsActive() {
		return o.StoryID, orphans.ErrAlreadyGraduated
	}
	if o.PendingCount() < e.cfg.MinGroupSize {
		return "", ErrBelowThreshold
	}
	if !opts.RecencyChecked {
		recent, err := e.IsRecent(ctx, o)
		if err != nil {
			return "", err
		}
		if !recent {
			return "", ErrNotRecent
		}
	}
	if opts.Trigger == "" {
		opts.Trigger = TriggerRoute
	}

	graduated, err := e.store.GraduateWith(ctx, o.ID, e.now().UTC(), func(locked *orphans.Orphan) (string, error) {
		if locked.PendingCount() < e.cfg.MinGroupSize {
			return "", ErrBelowThreshold
		}
		return e.stories.CreateStory(ctx, BuildDraft(locked, opts.Contexts, e.cfg.TitleMaxLen))
	})
	if err != nil {
		if errors.Is(err, orphans.ErrAlreadyGraduated) && graduated != nil {
			return graduated.StoryID, err
		}
		return "", fmt.Errorf("graduate %s: %w", o.Signature, err)
	}

	members := graduated.PendingIDs()
	e.attachEvidence(ctx, graduated.StoryID, members, graduated.ThemeData.Excerpts, stories.SourceOrphanGraduation)
	metrics.ObserveGraduation(opts.Trigger)
	log.Info().
		Str("orphan_id", graduated.ID).
		Str("signature", graduated.Signature).
		Str("story_id", graduated.StoryID).
		Int("conversations", len(members)).
		Str("trigger", opts.Trigger).
		Msg("orphan graduated")
	return graduated.StoryID, nil
}

// AppendEvidence attaches conversations to an existing story. Failures are
// logged per conversation and reported as one joined error.
func (e *Engine) AppendEvidence(ctx context.Context, storyID string, ids []string, excerpts []orphans.Excerpt, source string) error {
	return e.attachEvidence(ctx, storyID, ids, excerpts, source)
}

func (e *Engine) attachEvidence(ctx context.Context, storyID string, ids []string, excerpts []orphans.Excerpt, source string) error {
	text := make(map[string]string, len(excerpts))
	for _, ex := range excerpts {
		text[ex.ConversationID] = ex.Text
	}
	var errs []error
	for _, id := range ids {
		err := e.stories.AppendEvidence(ctx, stories.Evidence{
			StoryID:        storyID,
			ConversationID: id,
			Source:         source,
			Excerpt:        text[id],
			AddedAt:        e.now().UTC(),
		})
		if err != nil {
			log.Error().Err(err).
				Str("story_id", storyID).
				Str("conversation_id", id).
				Str("source", source).
				Msg("failed to append story evidence")
			errs = append(errs, fmt.Errorf("evidence %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// contexts loads review context for the pending members of o. A lookup
// failure degrades to ids only so the gate still sees the group.
func (e *Engine) contexts(ctx context.Context, o *orphans.Orphan) []models.ConversationContext {
	ids := o.PendingIDs()
	ctxs, err := e.source.Contexts(ctx, ids)
	if err == nil && len(ctxs) == len(ids) {
		return ctxs
	}
	if err != nil {
		log.Warn().Err(err).Str("signature", o.Signature).Msg("conversation contexts unavailable, reviewing ids only")
	}
	ctxs = make([]models.ConversationContext, 0, len(ids))
	for _, id := range ids {
		ctxs = append(ctxs, models.ConversationContext{ConversationID: id})
	}
	return ctxs
}

func subsetContexts(all []models.ConversationContext, ids []string) []models.ConversationContext {
	byID := make(map[string]models.ConversationContext, len(all))
	for _, c := range all {
		byID[c.ConversationID] = c
	}
	out := make([]models.ConversationContext, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			c = models.ConversationContext{ConversationID: id}
		}
		out = append(out, c)
	}
	return out
}

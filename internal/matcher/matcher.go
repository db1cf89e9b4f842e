package matcher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/feedforward/internal/graduation"
	"github.com/feedforward/internal/metrics"
	"github.com/feedforward/internal/orphans"
	"github.com/feedforward/internal/signature"
	"github.com/feedforward/internal/stories"
	"github.com/feedforward/pkg/models"
)

// Result is the routing outcome for one theme.
type Result string

const (
	ResultCreated     Result = "created"
	ResultAccumulated Result = "accumulated"
	ResultGraduated   Result = "graduated"
	ResultAppended    Result = "appended_to_existing_story"
)

var ErrInvalidTheme = errors.New("invalid theme")

// RouteResult reports where a theme ended up. Redelivered is set when the
// conversation was already a member of the orphan.
type RouteResult struct {
	Result            Result                `json:"result"`
	ConversationID    string                `json:"conversation_id"`
	Signature         string                `json:"signature"`
	OrphanID          string                `json:"orphan_id"`
	StoryID           string                `json:"story_id,omitempty"`
	ConversationCount int                   `json:"conversation_count"`
	Redelivered       bool                  `json:"redelivered,omitempty"`
	Promotion         *graduation.Promotion `json:"promotion,omitempty"`
}

// Matcher routes themes into orphans and graduates them when they qualify.
// It holds no state of its own; all coordination goes through the store.
type Matcher struct {
	store  orphans.Store
	engine *graduation.Engine
}

func New(store orphans.Store, engine *graduation.Engine) *Matcher {
	return &Matcher{store: store, engine: engine}
}

func (m *Matcher) Route(ctx context.Context, theme models.Theme) (*RouteResult, error) {
	theme.ConversationID = strings.TrimSpace(theme.ConversationID)
	if theme.ConversationID == "" {
		return nil, fmt.Errorf("%w: missing conversation id", ErrInvalidTheme)
	}

	sig := signature.Canonical(theme)
	o, outcome, err := m.store.Accumulate(ctx, orphans.Seed{
		Signature:       sig,
		ConversationIDs: []string{theme.ConversationID},
		ThemeData:       orphans.ThemeDataFromTheme(theme),
		Confidence:      theme.Confidence,
	})
	if err != nil {
		return nil, fmt.Errorf("accumulate %s: %w", sig, err)
	}

	res := &RouteResult{
		ConversationID:    theme.ConversationID,
		Signature:         sig,
		OrphanID:          o.ID,
		ConversationCount: o.ConversationCount(),
	}

	switch outcome {
	case orphans.OutcomeGraduated:
		if err := m.appendToStory(ctx, res, o.StoryID, theme); err != nil {
			return nil, err
		}
		return m.done(res), nil
	case orphans.OutcomeCreated:
		res.Result = ResultCreated
	case orphans.OutcomeDuplicate:
		res.Result = ResultAccumulated
		res.Redelivered = true
	default:
		res.Result = ResultAccumulated
	}

	if !m.engine.Eligible(o) || !o.NeedsReview() {
		return m.done(res), nil
	}

	recencyChecked := theme.ConversationCreatedAt != nil && m.engine.WithinWindow(*theme.ConversationCreatedAt)
	p, err := m.engine.Promote(ctx, o, recencyChecked)
	res.Promotion = p
	if errors.Is(err, orphans.ErrAlreadyGraduated) {
		storyID := ""
		if p != nil {
			storyID = p.StoryID
		}
		if storyID == "" {
			current, getErr := m.store.GetByID(ctx, o.ID)
			if getErr != nil {
				return nil, fmt.Errorf("reload %s after graduation race: %w", sig, getErr)
			}
			storyID = current.StoryID
		}
		if err := m.appendToStory(ctx, res, storyID, theme); err != nil {
			return nil, err
		}
		return m.done(res), nil
	}
	if err != nil {
		return nil, fmt.Errorf("promote %s: %w", sig, err)
	}

	switch {
	case p.Graduated():
		res.Result = ResultGraduated
		res.StoryID = p.StoryID
	default:
		for _, sub := range p.Subs {
			if sub.Outcome == graduation.SubGraduated && slices.Contains(sub.ConversationIDs, theme.ConversationID) {
				res.Result = ResultGraduated
				res.StoryID = sub.StoryID
			}
		}
	}
	return m.done(res), nil
}

func (m *Matcher) appendToStory(ctx context.Context, res *RouteResult, storyID string, theme models.Theme) error {
	var excerpts []orphans.Excerpt
	if theme.Excerpt != "" {
		excerpts = []orphans.Excerpt{{ConversationID: theme.ConversationID, Text: theme.Excerpt}}
	}
	if err := m.engine.AppendEvidence(ctx, storyID, []string{theme.ConversationID}, excerpts, stories.SourcePostGraduationRoute); err != nil {
		return fmt.Errorf("append %s to story %s: %w", theme.ConversationID, storyID, err)
	}
	res.Result = ResultAppended
	res.StoryID = storyID
	return nil
}

func (m *Matcher) done(res *RouteResult) *RouteResult {
	metrics.ObserveRoute(string(res.Result))
	log.Debug().
		Str("conversation_id", res.ConversationID).
		Str("signature", res.Signature).
		Str("result", string(res.Result)).
		Str("story_id", res.StoryID).
		Int("conversations", res.ConversationCount).
		Bool("redelivered", res.Redelivered).
		Msg("theme routed")
	return res
}

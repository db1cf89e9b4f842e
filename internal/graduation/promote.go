package graduation

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/feedforward/internal/orphans"
	"github.com/feedforward/internal/pmreview"
	"github.com/feedforward/internal/signature"
	"github.com/feedforward/internal/stories"
	"github.com/feedforward/pkg/models"
)

// Reasons Promote returns without consulting the gate.
const (
	SkipInactive        = "inactive"
	SkipBelowThreshold  = "below_threshold"
	SkipNotRecent       = "not_recent"
	SkipAlreadyReviewed = "already_reviewed"
)

// Sub-group outcomes after a split.
const (
	SubGraduated = "graduated"
	SubAppended  = "appended_to_existing_story"
	SubRetained  = "retained"
	SubNotRecent = "not_recent"
)

type SubResult struct {
	Label           string   `json:"label"`
	Signature       string   `json:"signature"`
	ConversationIDs []string `json:"conversation_ids"`
	OrphanID        string   `json:"orphan_id"`
	StoryID         string   `json:"story_id,omitempty"`
	Outcome         string   `json:"outcome"`
}

// Promotion describes what happened to one orphan on its way through the
// gate.
type Promotion struct {
	OrphanID  string             `json:"orphan_id"`
	Signature string             `json:"signature"`
	Skipped   string             `json:"skipped,omitempty"`
	Decision  *pmreview.Decision `json:"decision,omitempty"`
	StoryID   string             `json:"story_id,omitempty"`
	Subs      []SubResult        `json:"sub_groups,omitempty"`
}

// Graduated reports whether the orphan itself became a story.
func (p *Promotion) Graduated() bool { return p.StoryID != "" }

// Promote runs an orphan through size, recency and review gating and applies
// the decision. recencyChecked skips the recency query when the caller
// already resolved it. The gate only sees an orphan again once it has grown
// past the size it was last reviewed at.
func (e *Engine) Promote(ctx context.Context, o *orphans.Orphan, recencyChecked bool) (*Promotion, error) {
	p := &Promotion{OrphanID: o.ID, Signature: o.Signature}
	switch {
	case !o.IsActive():
		p.Skipped = SkipInactive
		return p, nil
	case !e.Eligible(o):
		p.Skipped = SkipBelowThreshold
		return p, nil
	case !o.NeedsReview():
		p.Skipped = SkipAlreadyReviewed
		return p, nil
	}
	if !recencyChecked {
		recent, err := e.IsRecent(ctx, o)
		if err != nil {
			return p, err
		}
		if !recent {
			p.Skipped = SkipNotRecent
			return p, nil
		}
	}

	ctxs := e.contexts(ctx, o)
	decision := e.gate.Evaluate(ctx, o.Signature, ctxs)
	p.Decision = &decision

	switch decision.Kind {
	case pmreview.KeepTogether:
		storyID, err := e.Graduate(ctx, o, GraduateOptions{RecencyChecked: true, Contexts: ctxs, Trigger: triggerFrom(ctx)})
		p.StoryID = storyID
		return p, err
	case pmreview.Split:
		err := e.applySplit(ctx, o, decision, ctxs, p)
		if markErr := e.store.MarkReviewed(ctx, o.ID, o.ConversationCount(), orphans.DecisionSplit); markErr != nil {
			err = errors.Join(err, fmt.Errorf("mark %s reviewed: %w", o.Signature, markErr))
		}
		return p, err
	default:
		log.Info().
			Str("orphan_id", o.ID).
			Str("signature", o.Signature).
			Int("conversations", o.ConversationCount()).
			Str("reasoning", decision.Reasoning).
			Msg("PM review rejected group, conversations stay orphaned")
		if err := e.store.MarkReviewed(ctx, o.ID, o.ConversationCount(), orphans.DecisionReject); err != nil {
			return p, fmt.Errorf("mark %s reviewed: %w", o.Signature, err)
		}
		return p, nil
	}
}

// applySplit turns each sub-group into its own orphan under a derived
// signature. Sub-groups that reach the threshold with a recent conversation
// graduate straight away; the PM already judged them coherent. The parent
// keeps every member, but those handed to a sub-group are marked placed and
// no longer count toward its own graduation.
func (e *Engine) applySplit(ctx context.Context, parent *orphans.Orphan, d pmreview.Decision, ctxs []models.ConversationContext, p *Promotion) error {
	labels := make([]string, len(d.SubGroups))
	for i, g := range d.SubGroups {
		labels[i] = g.Label
	}
	sigs := signature.SubSignatures(parent.Signature, labels)

	var errs []error
	for i, g := range d.SubGroups {
		sub := subsetContexts(ctxs, g.ConversationIDs)
		res := SubResult{Label: g.Label, Signature: sigs[i], ConversationIDs: g.ConversationIDs}
		seed := orphans.Seed{
			Signature:         res.Signature,
			OriginalSignature: parent.Signature,
			ConversationIDs:   g.ConversationIDs,
			ThemeData:         orphans.ThemeDataFromContexts(sub),
			Confidence:        parent.ConfidenceScore,
		}
		if seed.ThemeData.RootCause == "" {
			seed.ThemeData.RootCause = parent.ThemeData.RootCause
		}

		o, outcome, err := e.store.Accumulate(ctx, seed)
		if err != nil {
			errs = append(errs, fmt.Errorf("sub-group %q: %w", g.Label, err))
			continue
		}
		res.OrphanID = o.ID
		if err := e.store.MarkPlaced(ctx, parent.ID, g.ConversationIDs); err != nil {
			errs = append(errs, fmt.Errorf("place sub-group %q on %s: %w", g.Label, parent.Signature, err))
		}

		switch {
		case outcome == orphans.OutcomeGraduated:
			res.StoryID, res.Outcome = o.StoryID, SubAppended
			if err := e.attachEvidence(ctx, o.StoryID, g.ConversationIDs, excerptsOf(sub), stories.SourceSplitGraduation); err != nil {
				errs = append(errs, err)
			}
		case e.Eligible(o):
			recent, err := e.IsRecent(ctx, o)
			if err != nil {
				errs = append(errs, err)
				res.Outcome = SubRetained
				break
			}
			if !recent {
				res.Outcome = SubNotRecent
				break
			}
			storyID, err := e.Graduate(ctx, o, GraduateOptions{RecencyChecked: true, Contexts: sub, Trigger: TriggerSplit})
			switch {
			case err == nil:
				res.StoryID, res.Outcome = storyID, SubGraduated
			case errors.Is(err, orphans.ErrAlreadyGraduated):
				res.StoryID, res.Outcome = storyID, SubAppended
				if err := e.attachEvidence(ctx, storyID, g.ConversationIDs, excerptsOf(sub), stories.SourceSplitGraduation); err != nil {
					errs = append(errs, err)
				}
			default:
				res.Outcome = SubRetained
				errs = append(errs, err)
			}
		default:
			res.Outcome = SubRetained
		}
		p.Subs = append(p.Subs, res)
	}
	return errors.Join(errs...)
}

func excerptsOf(ctxs []models.ConversationContext) []orphans.Excerpt {
	out := make([]orphans.Excerpt, 0, len(ctxs))
	for _, c := range ctxs {
		if c.Excerpt != "" {
			out = append(out, orphans.Excerpt{ConversationID: c.ConversationID, Text: c.Excerpt})
		}
	}
	return out
}

type triggerKey struct{}

// WithTrigger labels graduations made under ctx.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

func triggerFrom(ctx context.Context) string {
	if t, ok := ctx.Value(triggerKey{}).(string); ok {
		return t
	}
	return TriggerRoute
}

package graduation

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/feedforward/internal/metrics"
	"github.com/feedforward/internal/orphans"
	"github.com/feedforward/internal/pmreview"
)

type GraduatedStory struct {
	OrphanID  string `json:"orphan_id"`
	Signature string `json:"signature"`
	StoryID   string `json:"story_id"`
}

type SweepFailure struct {
	OrphanID  string `json:"orphan_id"`
	Signature string `json:"signature"`
	Error     string `json:"error"`
}

// SweepReport summarises one pass over the active orphans.
type SweepReport struct {
	Scanned         int              `json:"scanned"`
	Candidates      int              `json:"candidates"`
	AlreadyReviewed int              `json:"already_reviewed"`
	NotRecent       int              `json:"not_recent"`
	Graduated       []GraduatedStory `json:"graduated"`
	Split           int              `json:"split"`
	Rejected        int              `json:"rejected"`
	Defaulted       int              `json:"defaulted"`
	Failures        []SweepFailure   `json:"failures"`
	Duration        time.Duration    `json:"duration"`
}

// Sweep re-evaluates every active orphan. Recency for all candidates is
// resolved with one query. A failure on one orphan is recorded in the report
// and the sweep carries on.
func (e *Engine) Sweep(ctx context.Context) (*SweepReport, error) {
	start := time.Now()
	report := &SweepReport{Graduated: []GraduatedStory{}, Failures: []SweepFailure{}}
	defer func() {
		report.Duration = time.Since(start)
		metrics.ObserveSweep(report.Duration, report.Scanned, len(report.Failures))
	}()

	active, err := e.store.ListActive(ctx)
	if err != nil {
		return report, fmt.Errorf("list active orphans: %w", err)
	}
	report.Scanned = len(active)

	var candidates []*orphans.Orphan
	for _, o := range active {
		if !e.Eligible(o) {
			continue
		}
		if !o.NeedsReview() {
			report.AlreadyReviewed++
			continue
		}
		candidates = append(candidates, o)
	}
	report.Candidates = len(candidates)

	recent, err := e.recentOrphans(ctx, candidates)
	if err != nil {
		return report, err
	}

	ctx = WithTrigger(ctx, TriggerSweep)
	for _, o := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !recent[o.ID] {
			report.NotRecent++
			continue
		}
		p, err := e.promoteSafely(ctx, o)
		if errors.Is(err, orphans.ErrAlreadyGraduated) {
			continue
		}
		if p != nil {
			report.record(p)
		}
		if err != nil {
			log.Error().Err(err).
				Str("orphan_id", o.ID).
				Str("signature", o.Signature).
				Msg("sweep failed to promote orphan")
			report.Failures = append(report.Failures, SweepFailure{OrphanID: o.ID, Signature: o.Signature, Error: err.Error()})
		}
	}

	log.Info().
		Int("scanned", report.Scanned).
		Int("candidates", report.Candidates).
		Int("graduated", len(report.Graduated)).
		Int("split", report.Split).
		Int("rejected", report.Rejected).
		Int("failures", len(report.Failures)).
		Msg("graduation sweep finished")
	return report, nil
}

func (e *Engine) promoteSafely(ctx context.Context, o *orphans.Orphan) (p *Promotion, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("orphan_id", o.ID).
				Str("signature", o.Signature).
				Strs("conversation_ids", o.ConversationIDs).
				Str("stack", string(debug.Stack())).
				Msgf("panic promoting orphan: %v", r)
			p, err = nil, fmt.Errorf("%w: panic promoting orphan: %v", orphans.ErrInvariantViolation, r)
		}
	}()
	return e.Promote(ctx, o, true)
}

func (r *SweepReport) record(p *Promotion) {
	if p.Decision != nil {
		if p.Decision.Defaulted {
			r.Defaulted++
		}
		switch p.Decision.Kind {
		case pmreview.Split:
			r.Split++
		case pmreview.Reject:
			r.Rejected++
		}
	}
	if p.StoryID != "" {
		r.Graduated = append(r.Graduated, GraduatedStory{OrphanID: p.OrphanID, Signature: p.Signature, StoryID: p.StoryID})
	}
	for _, s := range p.Subs {
		if s.Outcome == SubGraduated {
			r.Graduated = append(r.Graduated, GraduatedStory{OrphanID: s.OrphanID, Signature: s.Signature, StoryID: s.StoryID})
		}
	}
}

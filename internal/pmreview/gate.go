package pmreview

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/feedforward/internal/metrics"
	"github.com/feedforward/pkg/models"
)

const DefaultTimeout = 30 * time.Second

// Gate wraps a Reviewer with a deadline and the keep_together default. It
// never returns an error: reviewer failures are folded into the decision.
type Gate struct {
	reviewer Reviewer
	timeout  time.Duration
}

func NewGate(reviewer Reviewer, timeout time.Duration) *Gate {
	if reviewer == nil {
		reviewer = FallbackReviewer{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gate{reviewer: reviewer, timeout: timeout}
}

type reviewResult struct {
	decision *Decision
	err      error
}

func (g *Gate) Evaluate(ctx context.Context, signature string, contexts []models.ConversationContext) Decision {
	ids := conversationIDs(contexts)
	if len(contexts) <= 1 {
		return Decision{Kind: KeepTogether, Reasoning: "single conversation, nothing to review"}
	}

	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan reviewResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reviewResult{err: fmt.Errorf("reviewer panic: %v", r)}
			}
		}()
		d, err := g.reviewer.Review(cctx, signature, contexts)
		done <- reviewResult{decision: d, err: err}
	}()

	var res reviewResult
	select {
	case res = <-done:
	case <-cctx.Done():
		res.err = fmt.Errorf("review timed out after %s: %w", g.timeout, cctx.Err())
	}
	if res.err == nil && res.decision == nil {
		res.err = errors.New("reviewer returned no decision")
	}

	var decision Decision
	if res.err != nil {
		log.Warn().
			Err(res.err).
			Str("signature", signature).
			Int("conversations", len(ids)).
			Msg("PM review failed, defaulting to keep_together")
		decision = Decision{
			Kind:      KeepTogether,
			Reasoning: "review unavailable, defaulted to keep_together: " + res.err.Error(),
			Defaulted: true,
		}
	} else {
		decision = Validate(*res.decision, ids)
	}

	metrics.ObserveReview(string(decision.Kind), decision.Defaulted, time.Since(start))
	log.Debug().
		Str("signature", signature).
		Str("decision", string(decision.Kind)).
		Bool("defaulted", decision.Defaulted).
		Int("sub_groups", len(decision.SubGroups)).
		Int("orphans", len(decision.Orphans)).
		Msg("PM review decision")
	return decision
}

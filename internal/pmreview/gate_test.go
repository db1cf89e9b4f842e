package pmreview

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/feedforward/pkg/models"
)

type stubReviewer struct {
	calls    int32
	decision *Decision
	err      error
	block    bool
	panicMsg string
}

func (s *stubReviewer) Review(ctx context.Context, signature string, contexts []models.ConversationContext) (*Decision, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.block {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return nil, ctx.Err()
	}
	return s.decision, s.err
}

func contexts(ids ...string) []models.ConversationContext {
	out := make([]models.ConversationContext, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.ConversationContext{ConversationID: id, UserIntent: "intent " + id})
	}
	return out
}

func TestGateSingleConversationShortCircuits(t *testing.T) {
	r := &stubReviewer{err: errors.New("should not be called")}
	g := NewGate(r, time.Second)

	d := g.Evaluate(context.Background(), "sig", contexts("a"))
	assert.Equal(t, KeepTogether, d.Kind)
	assert.False(t, d.Defaulted)
	assert.Equal(t, int32(0), atomic.LoadInt32(&r.calls))

	d = g.Evaluate(context.Background(), "sig", nil)
	assert.Equal(t, KeepTogether, d.Kind)
}

func TestGateDefaultsOnError(t *testing.T) {
	g := NewGate(&stubReviewer{err: errors.New("502 bad gateway")}, time.Second)
	d := g.Evaluate(context.Background(), "sig", contexts("a", "b"))
	assert.Equal(t, KeepTogether, d.Kind)
	assert.True(t, d.Defaulted)
	assert.Contains(t, d.Reasoning, "502 bad gateway")
}

func TestGateDefaultsOnTimeout(t *testing.T) {
	g := NewGate(&stubReviewer{block: true}, 20*time.Millisecond)
	start := time.Now()
	d := g.Evaluate(context.Background(), "sig", contexts("a", "b", "c"))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, KeepTogether, d.Kind)
	assert.True(t, d.Defaulted)
	assert.Contains(t, d.Reasoning, "timed out")
}

func TestGateDefaultsOnPanicAndNil(t *testing.T) {
	d := NewGate(&stubReviewer{panicMsg: "boom"}, time.Second).Evaluate(context.Background(), "sig", contexts("a", "b"))
	assert.True(t, d.Defaulted)
	assert.Contains(t, d.Reasoning, "boom")

	d = NewGate(&stubReviewer{}, time.Second).Evaluate(context.Background(), "sig", contexts("a", "b"))
	assert.True(t, d.Defaulted)
}

func TestGateValidatesReviewerOutput(t *testing.T) {
	r := &stubReviewer{decision: &Decision{
		Kind:      Split,
		SubGroups: []SubGroup{{Label: "x", ConversationIDs: []string{"a"}}},
	}}
	d := NewGate(r, time.Second).Evaluate(context.Background(), "sig", contexts("a", "b"))
	assert.Equal(t, Reject, d.Kind)
	assert.False(t, d.Defaulted)
	assert.Equal(t, []string{"a", "b"}, d.Orphans)
}

func TestGateNilReviewerUsesFallback(t *testing.T) {
	d := NewGate(nil, 0).Evaluate(context.Background(), "sig", contexts("a", "b"))
	assert.Equal(t, KeepTogether, d.Kind)
	assert.False(t, d.Defaulted)
}

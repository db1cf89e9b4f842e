package pmreview

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/feedforward/pkg/models"
)

type fakeModel struct {
	response string
	err      error
	prompts  []string
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				m.prompts = append(m.prompts, text.Text)
			}
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.response}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

var _ llms.Model = (*fakeModel)(nil)

func TestLLMReviewerParsesSplit(t *testing.T) {
	m := &fakeModel{response: "Here is my answer:\n```json\n" + `{
  "decision": "Split",
  "reasoning": "payment failures and refunds differ",
  "sub_groups": [
    {"label": "card declined", "conversation_ids": ["a", "b"], "rationale": "same decline code"},
  ],
  "orphan_conversation_ids": ["c"]
}` + "\n```"}
	r := NewLLMReviewer(m, 0)

	d, err := r.Review(context.Background(), "failure_blocked_billing_checkout_card_declined", []models.ConversationContext{
		{ConversationID: "a", UserIntent: "card declined at checkout", Symptoms: []string{"error 402", "declined"}},
		{ConversationID: "b", ProductArea: "billing", Component: "checkout"},
		{ConversationID: "c", Excerpt: "where is my refund"},
	})
	require.NoError(t, err)
	assert.Equal(t, Split, d.Kind)
	require.Len(t, d.SubGroups, 1)
	assert.Equal(t, []string{"a", "b"}, d.SubGroups[0].ConversationIDs)
	assert.Equal(t, []string{"c"}, d.Orphans)

	require.Len(t, m.prompts, 1)
	prompt := m.prompts[0]
	assert.Contains(t, prompt, `"failure_blocked_billing_checkout_card_declined"`)
	assert.Contains(t, prompt, "Symptoms: error 402; declined")
	assert.Contains(t, prompt, "Area: billing / checkout")
	assert.Contains(t, prompt, `Excerpt: "where is my refund"`)
}

func TestLLMReviewerErrors(t *testing.T) {
	ctxs := []models.ConversationContext{{ConversationID: "a"}, {ConversationID: "b"}}

	_, err := NewLLMReviewer(&fakeModel{err: errors.New("quota")}, 0).Review(context.Background(), "s", ctxs)
	assert.ErrorContains(t, err, "quota")

	_, err = NewLLMReviewer(&fakeModel{response: "no idea"}, 0).Review(context.Background(), "s", ctxs)
	assert.Error(t, err)

	_, err = NewLLMReviewer(&fakeModel{response: `{"decision":"escalate"}`}, 0).Review(context.Background(), "s", ctxs)
	assert.ErrorContains(t, err, "unknown decision")
}

func TestLLMReviewerRateLimitHonoursContext(t *testing.T) {
	m := &fakeModel{response: `{"decision":"keep_together","reasoning":"same"}`}
	r := NewLLMReviewer(m, 1)
	ctxs := []models.ConversationContext{{ConversationID: "a"}, {ConversationID: "b"}}

	_, err := r.Review(context.Background(), "s", ctxs)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Review(ctx, "s", ctxs)
	assert.ErrorContains(t, err, "rate limit")
	assert.Len(t, m.prompts, 1)
}

func TestLLMReviewerThroughGateDefaults(t *testing.T) {
	g := NewGate(NewLLMReviewer(&fakeModel{response: "garbage"}, 0), 0)
	d := g.Evaluate(context.Background(), "s", []models.ConversationContext{{ConversationID: "a"}, {ConversationID: "b"}})
	assert.Equal(t, KeepTogether, d.Kind)
	assert.True(t, d.Defaulted)
	assert.Contains(t, d.Reasoning, "parse review response")
}

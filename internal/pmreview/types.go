package pmreview

import (
	"context"

	"github.com/feedforward/pkg/models"
)

// Kind is the gate's verdict on a candidate group.
type Kind string

const (
	KeepTogether Kind = "keep_together"
	Split        Kind = "split"
	Reject       Kind = "reject"
)

// SubGroup is one coherent slice of a split group.
type SubGroup struct {
	Label           string   `json:"label"`
	ConversationIDs []string `json:"conversation_ids"`
	Rationale       string   `json:"rationale,omitempty"`
}

// Decision is the outcome of a review. Orphans holds conversations that
// belong to no sub-group; on reject it holds every input conversation.
type Decision struct {
	Kind      Kind       `json:"decision"`
	Reasoning string     `json:"reasoning"`
	SubGroups []SubGroup `json:"sub_groups,omitempty"`
	Orphans   []string   `json:"orphan_conversation_ids,omitempty"`
	// Defaulted is set when the reviewer failed and the gate fell back to
	// keep_together.
	Defaulted bool `json:"defaulted,omitempty"`
}

// Reviewer judges whether a group of conversations describes one issue.
type Reviewer interface {
	Review(ctx context.Context, signature string, contexts []models.ConversationContext) (*Decision, error)
}

// FallbackReviewer approves every group as-is.
type FallbackReviewer struct{}

func (FallbackReviewer) Review(ctx context.Context, signature string, contexts []models.ConversationContext) (*Decision, error) {
	return &Decision{Kind: KeepTogether, Reasoning: "review disabled"}, nil
}

func conversationIDs(contexts []models.ConversationContext) []string {
	ids := make([]string, 0, len(contexts))
	for _, c := range contexts {
		ids = append(ids, c.ConversationID)
	}
	return ids
}

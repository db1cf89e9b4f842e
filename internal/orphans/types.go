package orphans

import "time"

// MinGroupSize is the conversation count an orphan needs before it may graduate.
const MinGroupSize = 3

// Outcome describes what Accumulate did with a seed.
type Outcome string

const (
	OutcomeCreated     Outcome = "created"
	OutcomeAccumulated Outcome = "accumulated"
	// OutcomeDuplicate means every seeded conversation was already a member.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeGraduated means the signature already belongs to a graduated
	// orphan; the row was left untouched.
	OutcomeGraduated Outcome = "graduated"
)

// Review decisions recorded on the orphan after a gate evaluation.
const (
	DecisionKeepTogether = "keep_together"
	DecisionSplit        = "split"
	DecisionReject       = "reject"
)

// Excerpt is a short quote kept as a sample of the group.
type Excerpt struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

// ThemeData is the aggregated view of every theme merged into an orphan.
type ThemeData struct {
	UserIntent   string    `json:"user_intent,omitempty"`
	Symptoms     []string  `json:"symptoms,omitempty"`
	ProductArea  string    `json:"product_area,omitempty"`
	Component    string    `json:"component,omitempty"`
	AffectedFlow string    `json:"affected_flow,omitempty"`
	RootCause    string    `json:"root_cause_hypothesis,omitempty"`
	Excerpts     []Excerpt `json:"excerpts,omitempty"`
}

// Orphan is a sub-threshold group of conversations sharing one canonical
// signature. Graduated orphans are kept so later conversations can be routed
// to their story.
type Orphan struct {
	ID                string     `json:"id"`
	Signature         string     `json:"signature"`
	OriginalSignature string     `json:"original_signature,omitempty"`
	ConversationIDs   []string   `json:"conversation_ids"`
	// PlacedIDs are members a split already handed to a sub-group orphan.
	// They stay in ConversationIDs but no longer count toward this group.
	PlacedIDs         []string   `json:"placed_ids,omitempty"`
	ThemeData         ThemeData  `json:"theme_data"`
	ConfidenceScore   *float64   `json:"confidence_score,omitempty"`
	ReviewedCount     int        `json:"reviewed_count"`
	LastDecision      string     `json:"last_decision,omitempty"`
	FirstSeenAt       time.Time  `json:"first_seen_at"`
	LastUpdatedAt     time.Time  `json:"last_updated_at"`
	GraduatedAt       *time.Time `json:"graduated_at,omitempty"`
	StoryID           string     `json:"story_id,omitempty"`
}

// IsActive reports whether the orphan has not graduated yet.
func (o *Orphan) IsActive() bool { return o.GraduatedAt == nil }

// ConversationCount is the number of member conversations.
func (o *Orphan) ConversationCount() int { return len(o.ConversationIDs) }

// PendingIDs are the members not yet placed elsewhere by a split, in
// arrival order.
func (o *Orphan) PendingIDs() []string {
	if len(o.PlacedIDs) == 0 {
		return append([]string(nil), o.ConversationIDs...)
	}
	placed := make(map[string]bool, len(o.PlacedIDs))
	for _, id := range o.PlacedIDs {
		placed[id] = true
	}
	out := make([]string, 0, len(o.ConversationIDs))
	for _, id := range o.ConversationIDs {
		if !placed[id] {
			out = append(out, id)
		}
	}
	return out
}

// PendingCount is the group size that graduation and review gate on.
func (o *Orphan) PendingCount() int { return len(o.PendingIDs()) }

// NeedsReview reports whether the group has grown since the gate last saw it.
func (o *Orphan) NeedsReview() bool { return len(o.ConversationIDs) > o.ReviewedCount }

// HasConversation reports whether id is already a member.
func (o *Orphan) HasConversation(id string) bool {
	for _, c := range o.ConversationIDs {
		if c == id {
			return true
		}
	}
	return false
}

// Seed is what gets folded into an orphan: one routed theme, or the
// conversations of a split sub-group.
type Seed struct {
	Signature         string
	OriginalSignature string
	ConversationIDs   []string
	ThemeData         ThemeData
	Confidence        *float64
}

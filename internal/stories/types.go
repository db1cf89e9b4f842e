package stories

import "time"

// StatusCandidate is the status every new story starts in.
const StatusCandidate = "candidate"

// Evidence source tags.
const (
	SourceOrphanGraduation    = "orphan_graduation"
	SourcePostGraduationRoute = "post_graduation_route"
	SourceSplitGraduation     = "split_graduation"
)

// Draft is what the graduation engine hands to the story service.
type Draft struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	ProductArea   string   `json:"product_area"`
	TechnicalArea string   `json:"technical_area"`
	Status        string   `json:"status"`
	Confidence    *float64 `json:"confidence_score,omitempty"`
	// Signature is the orphan signature the story was graduated from.
	Signature string `json:"signature"`
	// ProposedID, when set, becomes the story id. Creating twice with the
	// same ProposedID yields one story.
	ProposedID string `json:"-"`
}

type Story struct {
	ID string `json:"id"`
	Draft
	CreatedAt time.Time `json:"created_at"`
}

// Evidence attaches one conversation to a story.
type Evidence struct {
	StoryID        string    `json:"story_id"`
	ConversationID string    `json:"conversation_id"`
	Source         string    `json:"source"`
	Excerpt        string    `json:"excerpt,omitempty"`
	AddedAt        time.Time `json:"added_at"`
}

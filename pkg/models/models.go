package models

import (
	"time"
)

// Theme is the classifier output for a single conversation. It is consumed once
// by the matcher and never persisted as-is.
type Theme struct {
	ConversationID string   `json:"conversation_id"`
	Signature      string   `json:"issue_signature"`
	UserIntent     string   `json:"user_intent"`
	Symptoms       []string `json:"symptoms"`
	ProductArea    string   `json:"product_area"`
	Component      string   `json:"component"`
	AffectedFlow   string   `json:"affected_flow"`
	RootCause      string   `json:"root_cause_hypothesis,omitempty"`
	Excerpt        string   `json:"excerpt,omitempty"`

	// Optional facets; derived from the text when empty.
	Action    string `json:"action,omitempty"`
	Direction string `json:"direction,omitempty"`

	Confidence *float64 `json:"confidence,omitempty"`

	// ConversationCreatedAt lets the recency gate skip a lookup when the
	// upstream stage already knows when the conversation started.
	ConversationCreatedAt *time.Time `json:"conversation_created_at,omitempty"`
}

// ConversationContext is the per-conversation view handed to the PM review gate.
type ConversationContext struct {
	ConversationID string   `json:"conversation_id" db:"conversation_id"`
	UserIntent     string   `json:"user_intent" db:"user_intent"`
	Symptoms       []string `json:"symptoms" db:"symptoms"`
	AffectedFlow   string   `json:"affected_flow" db:"affected_flow"`
	Excerpt        string   `json:"excerpt,omitempty" db:"excerpt"`
	ProductArea    string   `json:"product_area" db:"product_area"`
	Component      string   `json:"component" db:"component"`
}

// ContextFromTheme projects a theme onto the review context shape.
func ContextFromTheme(t Theme) ConversationContext {
	return ConversationContext{
		ConversationID: t.ConversationID,
		UserIntent:     t.UserIntent,
		Symptoms:       append([]string(nil), t.Symptoms...),
		AffectedFlow:   t.AffectedFlow,
		Excerpt:        t.Excerpt,
		ProductArea:    t.ProductArea,
		Component:      t.Component,
	}
}

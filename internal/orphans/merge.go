package orphans

import (
	"strings"
	"time"

	"github.com/feedforward/pkg/models"
)

const (
	MaxSymptoms = 10
	MaxExcerpts = 5
)

// MergeScalar keeps existing only when incoming is empty.
func MergeScalar(existing, incoming string) string {
	if strings.TrimSpace(incoming) == "" {
		return existing
	}
	return strings.TrimSpace(incoming)
}

// MergeSymptoms unions two symptom lists, case-insensitively, keeping
// first-seen order. The result never exceeds MaxSymptoms and never drops an
// existing entry.
func MergeSymptoms(existing, incoming []string) []string {
	out := make([]string, 0, len(existing)+len(incoming))
	seen := map[string]bool{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, s)
	}
	for _, s := range existing {
		add(s)
	}
	for _, s := range incoming {
		if len(out) >= MaxSymptoms {
			break
		}
		add(s)
	}
	return out
}

// AppendExcerpts appends incoming samples and evicts the oldest once the
// list grows past MaxExcerpts.
func AppendExcerpts(existing, incoming []Excerpt) []Excerpt {
	out := append([]Excerpt(nil), existing...)
	for _, e := range incoming {
		if strings.TrimSpace(e.Text) == "" {
			continue
		}
		out = append(out, e)
	}
	if len(out) > MaxExcerpts {
		out = out[len(out)-MaxExcerpts:]
	}
	return out
}

// MergeThemeData folds incoming into existing using the per-field rules.
func MergeThemeData(existing, incoming ThemeData) ThemeData {
	return ThemeData{
		UserIntent:   MergeScalar(existing.UserIntent, incoming.UserIntent),
		Symptoms:     MergeSymptoms(existing.Symptoms, incoming.Symptoms),
		ProductArea:  MergeScalar(existing.ProductArea, incoming.ProductArea),
		Component:    MergeScalar(existing.Component, incoming.Component),
		AffectedFlow: MergeScalar(existing.AffectedFlow, incoming.AffectedFlow),
		RootCause:    MergeScalar(existing.RootCause, incoming.RootCause),
		Excerpts:     AppendExcerpts(existing.Excerpts, incoming.Excerpts),
	}
}

// ThemeDataFromTheme lifts a single theme into aggregate form.
func ThemeDataFromTheme(t models.Theme) ThemeData {
	td := ThemeData{
		UserIntent:   strings.TrimSpace(t.UserIntent),
		Symptoms:     MergeSymptoms(nil, t.Symptoms),
		ProductArea:  strings.TrimSpace(t.ProductArea),
		Component:    strings.TrimSpace(t.Component),
		AffectedFlow: strings.TrimSpace(t.AffectedFlow),
		RootCause:    strings.TrimSpace(t.RootCause),
	}
	if strings.TrimSpace(t.Excerpt) != "" {
		td.Excerpts = []Excerpt{{ConversationID: t.ConversationID, Text: strings.TrimSpace(t.Excerpt)}}
	}
	return td
}

// ThemeDataFromContexts aggregates review contexts in the order given.
func ThemeDataFromContexts(ctxs []models.ConversationContext) ThemeData {
	var td ThemeData
	for _, c := range ctxs {
		td = MergeThemeData(td, ThemeData{
			UserIntent:   c.UserIntent,
			Symptoms:     c.Symptoms,
			ProductArea:  c.ProductArea,
			Component:    c.Component,
			AffectedFlow: c.AffectedFlow,
			Excerpts:     []Excerpt{{ConversationID: c.ConversationID, Text: c.Excerpt}},
		})
	}
	return td
}

// fold applies seed to o in place and reports whether anything changed.
// Conversations that are already members are skipped entirely, theme data
// included, so redelivered work is a no-op.
func fold(o *Orphan, seed Seed, now time.Time) bool {
	var fresh []string
	for _, id := range seed.ConversationIDs {
		if id == "" || o.HasConversation(id) || contains(fresh, id) {
			continue
		}
		fresh = append(fresh, id)
	}
	if len(fresh) == 0 {
		return false
	}
	o.ConversationIDs = append(o.ConversationIDs, fresh...)
	o.ThemeData = MergeThemeData(o.ThemeData, seed.ThemeData)
	o.ConfidenceScore = maxConfidence(o.ConfidenceScore, seed.Confidence)
	o.LastUpdatedAt = now
	return true
}

func newFromSeed(id string, seed Seed, now time.Time) *Orphan {
	o := &Orphan{
		ID:                id,
		Signature:         seed.Signature,
		OriginalSignature: seed.OriginalSignature,
		FirstSeenAt:       now,
		LastUpdatedAt:     now,
	}
	fold(o, seed, now)
	return o
}

func maxConfidence(a, b *float64) *float64 {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		v := *b
		return &v
	case b == nil || *a >= *b:
		v := *a
		return &v
	default:
		v := *b
		return &v
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

package graduation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/feedforward/internal/orphans"
	"github.com/feedforward/internal/stories"
	"github.com/feedforward/pkg/models"
)

const DefaultTitleMaxLen = 80

// BuildDraft renders the story for a graduating orphan.
func BuildDraft(o *orphans.Orphan, contexts []models.ConversationContext, titleMaxLen int) stories.Draft {
	td := o.ThemeData
	return stories.Draft{
		Title:         BuildTitle(o, contexts, titleMaxLen),
		Description:   BuildDescription(o),
		ProductArea:   td.ProductArea,
		TechnicalArea: td.Component,
		Status:        stories.StatusCandidate,
		Confidence:    o.ConfidenceScore,
		Signature:     o.Signature,
	}
}

// BuildTitle picks the user intent with the most distinct words, ties going
// to the lexicographically first, and falls back to a readable signature.
func BuildTitle(o *orphans.Orphan, contexts []models.ConversationContext, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultTitleMaxLen
	}
	candidates := make([]string, 0, len(contexts)+1)
	candidates = append(candidates, o.ThemeData.UserIntent)
	for _, c := range contexts {
		candidates = append(candidates, c.UserIntent)
	}

	best, bestScore := "", 0
	for _, c := range candidates {
		c = strings.Join(strings.Fields(c), " ")
		score := distinctWords(c)
		if score == 0 {
			continue
		}
		if score > bestScore || (score == bestScore && c < best) {
			best, bestScore = c, score
		}
	}
	if best == "" {
		best = readableSignature(o.Signature)
	}
	return capitalize(truncateWords(best, maxLen))
}

func distinctWords(s string) int {
	seen := map[string]bool{}
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		seen[w] = true
	}
	return len(seen)
}

func readableSignature(sig string) string {
	s := strings.ReplaceAll(sig, "__", " - ")
	s = strings.ReplaceAll(s, "_", " ")
	if strings.TrimSpace(s) == "" {
		return "Untitled issue"
	}
	return s
}

// truncateWords cuts s to at most maxLen bytes on a word boundary and marks
// the cut with an ellipsis.
func truncateWords(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 4 {
		return s[:maxLen]
	}
	cut := s[:maxLen-3]
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	cut = strings.TrimRightFunc(cut, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || r == unicode.ReplacementChar
	})
	return cut + "..."
}

func capitalize(s string) string {
	for i, r := range s {
		return string(unicode.ToUpper(r)) + s[i+len(string(r)):]
	}
	return s
}

// BuildDescription lists the non-empty aggregated fields followed by a
// provenance footer.
func BuildDescription(o *orphans.Orphan) string {
	td := o.ThemeData
	var b strings.Builder
	section := func(title, body string) {
		if strings.TrimSpace(body) == "" {
			return
		}
		fmt.Fprintf(&b, "## %s\n%s\n\n", title, strings.TrimSpace(body))
	}

	section("User intent", td.UserIntent)
	if len(td.Symptoms) > 0 {
		section("Symptoms", "- "+strings.Join(td.Symptoms, "\n- "))
	}
	section("Product area", td.ProductArea)
	section("Component", td.Component)
	section("Affected flow", td.AffectedFlow)
	section("Root cause hypothesis", td.RootCause)
	pending := o.PendingIDs()
	lines := make([]string, 0, len(td.Excerpts))
	for _, e := range td.Excerpts {
		if containsID(pending, e.ConversationID) {
			lines = append(lines, fmt.Sprintf("> %s (%s)", strings.TrimSpace(e.Text), e.ConversationID))
		}
	}
	section("Sample excerpts", strings.Join(lines, "\n"))

	fmt.Fprintf(&b, "---\nGraduated from orphan signature `%s` with %d conversations.", o.Signature, len(pending))
	if o.OriginalSignature != "" {
		fmt.Fprintf(&b, " Split from `%s`.", o.OriginalSignature)
	}
	return b.String()
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

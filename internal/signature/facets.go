package signature

import (
	"strings"

	"github.com/feedforward/pkg/models"
)

// Coarse action facets.
const (
	ActionFailure      = "failure"
	ActionInquiry      = "inquiry"
	ActionRequest      = "request"
	ActionCancellation = "cancellation"
	ActionReport       = "report"
)

// Coarse direction facets.
const (
	DirectionMissing   = "missing"
	DirectionExcess    = "excess"
	DirectionSlow      = "slow"
	DirectionIncorrect = "incorrect"
	DirectionBlocked   = "blocked"
	DirectionNeutral   = "neutral"
)

type facetRule struct {
	facet    string
	keywords []string
}

// Rules are checked in order; the first rule with a keyword hit wins.
var actionRules = []facetRule{
	{ActionCancellation, []string{"cancel", "refund", "unsubscribe", "close my account", "delete my account", "downgrade"}},
	{ActionFailure, []string{"error", "fail", "broken", "crash", "cannot", "can't", "cant", "unable", "doesn't work", "not working", "bug", "stuck"}},
	{ActionRequest, []string{"would like", "wish", "feature", "please add", "request", "want to be able", "support for", "integrate"}},
	{ActionInquiry, []string{"how do", "how to", "how can", "where is", "where do", "what is", "is it possible", "question", "?"}},
}

var directionRules = []facetRule{
	{DirectionBlocked, []string{"locked out", "blocked", "denied", "permission", "unable to log", "cannot log", "can't log", "access"}},
	{DirectionMissing, []string{"missing", "not showing", "disappear", "lost", "gone", "empty", "not found", "never received", "didn't receive"}},
	{DirectionExcess, []string{"duplicate", "twice", "double", "extra", "too many", "repeated", "overcharg"}},
	{DirectionSlow, []string{"slow", "timeout", "timed out", "lag", "delay", "hang", "takes forever", "loading"}},
	{DirectionIncorrect, []string{"wrong", "incorrect", "mismatch", "inaccurate", "doesn't match", "invalid"}},
}

// ClassifyFacets derives the action and direction facets from a theme's
// user intent and symptoms with a fixed keyword table.
func ClassifyFacets(t models.Theme) (action, direction string) {
	text := strings.ToLower(t.UserIntent + " " + strings.Join(t.Symptoms, " ") + " " + t.AffectedFlow)
	return firstMatch(actionRules, text, ActionReport), firstMatch(directionRules, text, DirectionNeutral)
}

func firstMatch(rules []facetRule, text, fallback string) string {
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				return r.facet
			}
		}
	}
	return fallback
}

package pmreview

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Validate checks a decision against the conversations that were reviewed.
// A split must place every id in exactly one sub-group or the orphan list;
// any violation turns the decision into a reject holding every id. Reject
// always orphans every id. Empty sub-groups are dropped before the check.
func Validate(d Decision, ids []string) Decision {
	switch d.Kind {
	case KeepTogether:
		d.SubGroups = nil
		d.Orphans = nil
		return d
	case Reject:
		return Decision{Kind: Reject, Reasoning: d.Reasoning, Orphans: append([]string(nil), ids...), Defaulted: d.Defaulted}
	case Split:
	default:
		return invalid(d, ids, fmt.Sprintf("unknown decision %q", d.Kind))
	}

	input := make(map[string]bool, len(ids))
	for _, id := range ids {
		input[id] = true
	}
	placed := make(map[string]bool, len(ids))
	place := func(id string) string {
		switch {
		case !input[id]:
			return fmt.Sprintf("unknown conversation %q", id)
		case placed[id]:
			return fmt.Sprintf("conversation %q placed twice", id)
		}
		placed[id] = true
		return ""
	}

	groups := make([]SubGroup, 0, len(d.SubGroups))
	for _, g := range d.SubGroups {
		if len(g.ConversationIDs) == 0 {
			continue
		}
		for _, id := range g.ConversationIDs {
			if problem := place(id); problem != "" {
				return invalid(d, ids, problem)
			}
		}
		g.Label = strings.TrimSpace(g.Label)
		groups = append(groups, g)
	}
	for _, id := range d.Orphans {
		if problem := place(id); problem != "" {
			return invalid(d, ids, problem)
		}
	}
	if len(groups) == 0 {
		return invalid(d, ids, "split has no non-empty sub-groups")
	}
	var missing []string
	for _, id := range ids {
		if !placed[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return invalid(d, ids, fmt.Sprintf("conversations not assigned: %s", strings.Join(missing, ", ")))
	}

	d.SubGroups = groups
	return d
}

func invalid(d Decision, ids []string, problem string) Decision {
	log.Error().
		Str("decision", string(d.Kind)).
		Strs("conversation_ids", ids).
		Str("problem", problem).
		Msg("review decision failed validation, rejecting group")
	reasoning := "invalid review decision: " + problem
	if d.Reasoning != "" {
		reasoning = d.Reasoning + " (" + reasoning + ")"
	}
	return Decision{Kind: Reject, Reasoning: reasoning, Orphans: append([]string(nil), ids...), Defaulted: d.Defaulted}
}

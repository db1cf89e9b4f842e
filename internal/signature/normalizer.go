// Package signature turns classifier output into canonical issue signatures.
//
// A canonical signature has the shape
//
//	{action}_{direction}_{product_area}_{component}_{issue_fragment}
//
// and is a pure function of the theme content. It is the only thing that lets
// accumulation survive across independent processing runs, so nothing here may
// depend on call order, clocks or run-local cluster identifiers.
package signature

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/feedforward/pkg/models"
)

const (
	// MaxFragmentLen bounds the issue fragment so composed keys stay short.
	MaxFragmentLen = 48
	// MaxSymptomWords is how many symptom words make up a fallback fragment.
	MaxSymptomWords = 4
	// FallbackFragment is used when neither the raw signature nor symptoms help.
	FallbackFragment = "unspecified"
	// GeneralSlot fills an empty product area or component.
	GeneralSlot = "general"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases s and collapses every run of non-alphanumerics into "_".
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonSlug.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// Canonical returns the canonical signature for a single theme.
func Canonical(t models.Theme) string {
	action, direction := facetsOf(t)
	area := slot(t.ProductArea)
	component := slot(t.Component)
	prefix := strings.Join([]string{action, direction, area, component}, "_")

	fragment := fragmentFromRaw(t.Signature, prefix, area, component)
	if fragment == "" {
		fragment = symptomFragment(orderedSymptomWords(t.Symptoms))
	}
	return prefix + "_" + fragment
}

// CanonicalGroup returns the canonical signature for several themes that are
// meant to share one key. Every slot is resolved by majority with a
// lexicographic tie-break, so input order never matters.
func CanonicalGroup(themes []models.Theme) string {
	switch len(themes) {
	case 0:
		return strings.Join([]string{ActionReport, DirectionNeutral, GeneralSlot, GeneralSlot, FallbackFragment}, "_")
	case 1:
		return Canonical(themes[0])
	}

	var actions, directions, areas, components []string
	for _, t := range themes {
		a, d := facetsOf(t)
		actions = append(actions, a)
		directions = append(directions, d)
		areas = append(areas, slot(t.ProductArea))
		components = append(components, slot(t.Component))
	}
	action := MostFrequent(actions)
	direction := MostFrequent(directions)
	area := MostFrequent(areas)
	component := MostFrequent(components)
	prefix := strings.Join([]string{action, direction, area, component}, "_")

	var fragments []string
	for _, t := range themes {
		if f := fragmentFromRaw(t.Signature, prefix, area, component); f != "" {
			fragments = append(fragments, f)
		}
	}
	if len(fragments) > 0 {
		return prefix + "_" + MostFrequent(fragments)
	}

	counts := map[string]int{}
	for _, t := range themes {
		seen := map[string]bool{}
		for _, w := range orderedSymptomWords(t.Symptoms) {
			if !seen[w] {
				seen[w] = true
				counts[w]++
			}
		}
	}
	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	return prefix + "_" + symptomFragment(words)
}

// MostFrequent picks the most common non-empty value; exact ties go to the
// lexicographically first value. It returns "" for an empty input.
func MostFrequent(values []string) string {
	counts := map[string]int{}
	for _, v := range values {
		if v != "" {
			counts[v]++
		}
	}
	best, bestCount := "", 0
	for v, c := range counts {
		if c > bestCount || (c == bestCount && v < best) {
			best, bestCount = v, c
		}
	}
	return best
}

// SubSignature derives the key for a sub-group carved out of parent by a
// review split.
func SubSignature(parent, label string) string {
	l := Slugify(label)
	if l == "" {
		l = FallbackFragment
	}
	return parent + "__" + truncateSlug(l, MaxFragmentLen)
}

// SubSignatures derives one key per label of a single split. Labels whose
// slugs collide get a numeric suffix in order, so "CSV export" and
// "csv-export" become ..__csv_export and ..__csv_export_2.
func SubSignatures(parent string, labels []string) []string {
	out := make([]string, len(labels))
	used := make(map[string]bool, len(labels))
	for i, label := range labels {
		sig := SubSignature(parent, label)
		if used[sig] {
			base := Slugify(label)
			if base == "" {
				base = FallbackFragment
			}
			for n := 2; used[sig]; n++ {
				suffix := "_" + strconv.Itoa(n)
				sig = parent + "__" + truncateSlug(base, MaxFragmentLen-len(suffix)) + suffix
			}
		}
		used[sig] = true
		out[i] = sig
	}
	return out
}

func facetsOf(t models.Theme) (string, string) {
	action, direction := Slugify(t.Action), Slugify(t.Direction)
	if action == "" || direction == "" {
		ca, cd := ClassifyFacets(t)
		if action == "" {
			action = ca
		}
		if direction == "" {
			direction = cd
		}
	}
	return action, direction
}

func slot(v string) string {
	if s := Slugify(v); s != "" {
		return s
	}
	return GeneralSlot
}

// fragmentFromRaw turns the classifier's signature into an issue fragment, or
// returns "" when the raw value is ephemeral and must not leak into the key.
func fragmentFromRaw(raw, prefix, area, component string) string {
	if IsEphemeral(raw) {
		return ""
	}
	f := Slugify(raw)
	// Re-normalizing an already canonical key must be a no-op.
	f = strings.TrimPrefix(f, prefix+"_")
	f = strings.TrimPrefix(f, area+"_"+component+"_")
	if f == "" || f == prefix || IsEphemeral(f) {
		return ""
	}
	return truncateSlug(f, MaxFragmentLen)
}

func orderedSymptomWords(symptoms []string) []string {
	seen := map[string]bool{}
	var words []string
	for _, s := range symptoms {
		for _, w := range strings.Split(Slugify(s), "_") {
			if len(w) < 3 || stopWords[w] || seen[w] {
				continue
			}
			seen[w] = true
			words = append(words, w)
		}
	}
	return words
}

func symptomFragment(words []string) string {
	if len(words) == 0 {
		return FallbackFragment
	}
	if len(words) > MaxSymptomWords {
		words = words[:MaxSymptomWords]
	}
	return truncateSlug(strings.Join(words, "_"), MaxFragmentLen)
}

// truncateSlug cuts s to at most max bytes, preferring an underscore boundary.
func truncateSlug(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	if i := strings.LastIndex(cut, "_"); i > max/2 {
		cut = cut[:i]
	}
	return strings.Trim(cut, "_")
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "when": true, "that": true,
	"this": true, "not": true, "are": true, "was": true, "but": true, "from": true,
	"after": true, "into": true, "user": true, "users": true, "their": true, "they": true,
	"has": true, "have": true, "been": true, "does": true, "did": true, "can": true,
}

package signature

import (
	"regexp"
	"strings"
)

// Run-local cluster identifiers and placeholder labels. A raw signature that
// matches any of these carries no stable issue content.
var ephemeralPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(^|[_\-\s])(cluster|clust|cl|grp|group|bucket|hdbscan|kmeans|km|topic)[_\-\s]?\d+($|[_\-\s])`),
	regexp.MustCompile(`^(tmp|temp|run|batch|job)[_\-]?\d+($|[_\-])`),
	regexp.MustCompile(`^[0-9a-f]{8}[_\-]?[0-9a-f]{4}[_\-]?[0-9a-f]{4}[_\-]?[0-9a-f]{4}[_\-]?[0-9a-f]{12}$`),
	regexp.MustCompile(`^[0-9a-f]{10,}$`),
	regexp.MustCompile(`^[0-9_\-\s]+$`),
	regexp.MustCompile(`^c\d+$`),
}

var placeholderTokens = []string{
	"unclassified",
	"uncategorized",
	"unknown_issue",
	"placeholder",
}

var placeholderExact = map[string]bool{
	"unknown": true, "none": true, "n_a": true, "na": true, "null": true,
	"misc": true, "other": true, "general": true, "todo": true, "tbd": true,
}

// IsEphemeral reports whether raw is empty, a placeholder, or a transient
// cluster identifier (or something derived from one).
func IsEphemeral(raw string) bool {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return true
	}
	slug := Slugify(s)
	if slug == "" || placeholderExact[slug] {
		return true
	}
	for _, tok := range placeholderTokens {
		if strings.Contains(slug, tok) {
			return true
		}
	}
	for _, re := range ephemeralPatterns {
		if re.MatchString(s) || re.MatchString(slug) {
			return true
		}
	}
	return false
}

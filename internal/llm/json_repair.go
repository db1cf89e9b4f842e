package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrNoJSON is returned when a response contains no JSON object or array.
var ErrNoJSON = errors.New("no JSON found in model response")

// RepairReport records which strategies were needed to parse a response.
type RepairReport struct {
	OriginalBytes int      `json:"original_bytes"`
	RepairedBytes int      `json:"repaired_bytes"`
	Strategies    []string `json:"strategies,omitempty"`
	WasRepaired   bool     `json:"was_repaired"`
}

var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	fenceRe         = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\n?(.*?)```")
)

// RepairJSON returns raw unchanged when it already parses. Otherwise it tries
// the cheap local fixes first and falls back to jsonrepair.
func RepairJSON(raw string) (string, RepairReport, error) {
	report := RepairReport{OriginalBytes: len(raw)}
	if json.Valid([]byte(raw)) {
		report.RepairedBytes = len(raw)
		return raw, report, nil
	}
	report.WasRepaired = true
	repaired := raw

	if fixed := trailingCommaRe.ReplaceAllString(repaired, "$1"); fixed != repaired {
		repaired = fixed
		report.Strategies = append(report.Strategies, "trailing_commas")
	}
	if fixed := closeOpenStructures(repaired); fixed != repaired {
		repaired = fixed
		report.Strategies = append(report.Strategies, "completion")
	}
	if !json.Valid([]byte(repaired)) {
		fixed, err := jsonrepair.JSONRepair(repaired)
		if err == nil {
			repaired = fixed
			report.Strategies = append(report.Strategies, "jsonrepair_library")
		}
	}

	report.RepairedBytes = len(repaired)
	if !json.Valid([]byte(repaired)) {
		return repaired, report, fmt.Errorf("JSON repair failed after %d strategies", len(report.Strategies))
	}
	return repaired, report, nil
}

// closeOpenStructures appends the closers for any object, array or string
// left open at the end of s, innermost first.
func closeOpenStructures(s string) string {
	s = strings.TrimSpace(s)
	var stack []byte
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if inString {
		s += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}

// ExtractJSON pulls the first JSON object or array out of a response that
// may wrap it in prose or a fenced code block.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(raw); m != nil {
		raw = strings.TrimSpace(m[1])
	}
	start := strings.IndexAny(raw, "{[")
	if start == -1 {
		return ""
	}
	open := raw[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return raw[start:]
}

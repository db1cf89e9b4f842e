package llm

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// DecodeResponse extracts, repairs and unmarshals a model response into
// target.
func DecodeResponse(raw string, target interface{}) (RepairReport, error) {
	body := ExtractJSON(raw)
	if body == "" {
		log.Debug().Str("response", truncateForLog(raw, 200)).Msg("no JSON in model response")
		return RepairReport{OriginalBytes: len(raw)}, ErrNoJSON
	}

	repaired, report, err := RepairJSON(body)
	if report.WasRepaired {
		log.Debug().
			Strs("strategies", report.Strategies).
			Int("original_bytes", report.OriginalBytes).
			Int("repaired_bytes", report.RepairedBytes).
			Msg("repaired model JSON")
	}
	if err != nil {
		log.Debug().Err(err).Str("json", truncateForLog(body, 500)).Msg("model JSON repair failed")
		return report, err
	}
	if err := json.Unmarshal([]byte(repaired), target); err != nil {
		return report, fmt.Errorf("decode model JSON: %w", err)
	}
	return report, nil
}

func truncateForLog(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}

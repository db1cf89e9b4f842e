package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairJSONValidPassthrough(t *testing.T) {
	in := `{"decision":"keep_together"}`
	out, report, err := RepairJSON(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.False(t, report.WasRepaired)
}

func TestRepairJSONTrailingCommas(t *testing.T) {
	out, report, err := RepairJSON(`{"a":[1,2,],"b":"x",}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":[1,2],"b":"x"}`, out)
	assert.Contains(t, report.Strategies, "trailing_commas")
}

func TestRepairJSONCompletesTruncatedOutput(t *testing.T) {
	out, report, err := RepairJSON(`{"decision":"split","sub_groups":[{"label":"a}b","conversation_ids":["1","2"]`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"decision":"split","sub_groups":[{"label":"a}b","conversation_ids":["1","2"]}]}`, out)
	assert.Contains(t, report.Strategies, "completion")
}

func TestRepairJSONLibraryFallback(t *testing.T) {
	out, report, err := RepairJSON(`{decision: 'reject', reasoning: 'no overlap'}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"decision":"reject","reasoning":"no overlap"}`, out)
	assert.Contains(t, report.Strategies, "jsonrepair_library")
}

func TestExtractJSON(t *testing.T) {
	cases := map[string]string{
		"plain":  `{"a":1}`,
		"prose":  `Here you go: {"a":{"b":"}"}} thanks`,
		"fenced": "Result:\n```json\n{\"a\":1}\n```\n",
		"array":  `noise [1,2] more`,
		"none":   `nothing to see`,
	}
	want := map[string]string{
		"plain":  `{"a":1}`,
		"prose":  `{"a":{"b":"}"}}`,
		"fenced": `{"a":1}`,
		"array":  `[1,2]`,
		"none":   ``,
	}
	for name, in := range cases {
		assert.Equal(t, want[name], ExtractJSON(in), name)
	}
}

func TestDecodeResponse(t *testing.T) {
	var out struct {
		Decision string `json:"decision"`
	}
	report, err := DecodeResponse("Sure!\n```json\n{\"decision\": \"reject\",}\n```", &out)
	require.NoError(t, err)
	assert.Equal(t, "reject", out.Decision)
	assert.True(t, report.WasRepaired)

	_, err = DecodeResponse("I cannot decide.", &out)
	assert.ErrorIs(t, err, ErrNoJSON)
}

package pmreview

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestValidateSplitComplete(t *testing.T) {
	d := Decision{
		Kind:      Split,
		Reasoning: "two distinct problems",
		SubGroups: []SubGroup{
			{Label: " card declined ", ConversationIDs: []string{"a", "b"}},
			{Label: "empty", ConversationIDs: nil},
			{Label: "refund delay", ConversationIDs: []string{"c"}},
		},
		Orphans: []string{"d"},
	}
	got := Validate(d, []string{"a", "b", "c", "d"})
	want := Decision{
		Kind:      Split,
		Reasoning: "two distinct problems",
		SubGroups: []SubGroup{
			{Label: "card declined", ConversationIDs: []string{"a", "b"}},
			{Label: "refund delay", ConversationIDs: []string{"c"}},
		},
		Orphans: []string{"d"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Validate mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateSplitViolationsBecomeReject(t *testing.T) {
	ids := []string{"a", "b", "c"}
	cases := map[string]Decision{
		"missing": {Kind: Split, SubGroups: []SubGroup{{Label: "x", ConversationIDs: []string{"a", "b"}}}},
		"duplicate across groups": {Kind: Split, SubGroups: []SubGroup{
			{Label: "x", ConversationIDs: []string{"a", "b"}},
			{Label: "y", ConversationIDs: []string{"b", "c"}},
		}},
		"group and orphan": {Kind: Split,
			SubGroups: []SubGroup{{Label: "x", ConversationIDs: []string{"a", "b", "c"}}},
			Orphans:   []string{"c"}},
		"unknown id": {Kind: Split, SubGroups: []SubGroup{{Label: "x", ConversationIDs: []string{"a", "b", "c", "z"}}}},
		"no groups":  {Kind: Split, Orphans: ids},
		"bad kind":   {Kind: "merge"},
	}
	for name, d := range cases {
		got := Validate(d, ids)
		assert.Equal(t, Reject, got.Kind, name)
		assert.Equal(t, ids, got.Orphans, name)
		assert.Empty(t, got.SubGroups, name)
		assert.Contains(t, got.Reasoning, "invalid review decision", name)
	}
}

func TestValidateRejectOrphansEverything(t *testing.T) {
	got := Validate(Decision{Kind: Reject, Reasoning: "unrelated", Orphans: []string{"a"}}, []string{"a", "b"})
	assert.Equal(t, Reject, got.Kind)
	assert.Equal(t, []string{"a", "b"}, got.Orphans)
	assert.Equal(t, "unrelated", got.Reasoning)
}

func TestValidateKeepTogetherClearsGroups(t *testing.T) {
	got := Validate(Decision{Kind: KeepTogether, SubGroups: []SubGroup{{Label: "x"}}, Orphans: []string{"a"}}, []string{"a"})
	assert.Equal(t, KeepTogether, got.Kind)
	assert.Nil(t, got.SubGroups)
	assert.Nil(t, got.Orphans)
}

package graduation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/feedforward/internal/orphans"
	"github.com/feedforward/pkg/models"
)

func TestBuildTitlePicksMostInformativeIntent(t *testing.T) {
	o := &orphans.Orphan{Signature: "sig", ThemeData: orphans.ThemeData{UserIntent: "export broken"}}
	ctxs := []models.ConversationContext{
		{UserIntent: "export export export"},
		{UserIntent: "  CSV export times out for large reports  "},
		{UserIntent: ""},
	}
	assert.Equal(t, "CSV export times out for large reports", BuildTitle(o, ctxs, 80))
}

func TestBuildTitleTruncatesOnWordBoundary(t *testing.T) {
	o := &orphans.Orphan{ThemeData: orphans.ThemeData{
		UserIntent: "when I try to export the quarterly revenue report as a spreadsheet the page hangs and nothing downloads",
	}}
	title := BuildTitle(o, nil, 40)
	assert.LessOrEqual(t, len(title), 40)
	assert.True(t, strings.HasSuffix(title, "..."), title)
	assert.Equal(t, "When I try to export the quarterly...", title)
}

func TestBuildTitleFallsBackToSignature(t *testing.T) {
	o := &orphans.Orphan{Signature: "failure_slow_reports_exporter_csv_timeout__large_files"}
	assert.Equal(t, "Failure slow reports exporter csv timeout - large files", BuildTitle(o, nil, 80))
}

func TestBuildDescription(t *testing.T) {
	o := &orphans.Orphan{
		Signature:         "parent__csv",
		OriginalSignature: "parent",
		ConversationIDs:   []string{"a", "b", "c"},
		ThemeData: orphans.ThemeData{
			UserIntent: "export csv",
			Symptoms:   []string{"timeout", "blank file"},
			Component:  "exporter",
			Excerpts:   []orphans.Excerpt{{ConversationID: "a", Text: "it never finishes"}},
		},
	}
	desc := BuildDescription(o)
	assert.Contains(t, desc, "## User intent\nexport csv")
	assert.Contains(t, desc, "## Symptoms\n- timeout\n- blank file")
	assert.Contains(t, desc, "## Component\nexporter")
	assert.NotContains(t, desc, "## Product area")
	assert.NotContains(t, desc, "## Root cause")
	assert.Contains(t, desc, "> it never finishes (a)")
	assert.True(t, strings.HasSuffix(desc, "Graduated from orphan signature `parent__csv` with 3 conversations. Split from `parent`."))
}

func TestBuildDraft(t *testing.T) {
	conf := 0.8
	o := &orphans.Orphan{
		Signature:       "sig",
		ConversationIDs: []string{"a"},
		ConfidenceScore: &conf,
		ThemeData:       orphans.ThemeData{UserIntent: "x y", ProductArea: "billing", Component: "invoices"},
	}
	d := BuildDraft(o, nil, 0)
	assert.Equal(t, "billing", d.ProductArea)
	assert.Equal(t, "invoices", d.TechnicalArea)
	assert.Equal(t, "candidate", d.Status)
	assert.Equal(t, 0.8, *d.Confidence)
	assert.Equal(t, "sig", d.Signature)
}

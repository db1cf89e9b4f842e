package signature

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedforward/pkg/models"
)

func billingTheme(raw string) models.Theme {
	return models.Theme{
		ConversationID: "conv-1",
		Signature:      raw,
		UserIntent:     "I was charged twice for my subscription",
		Symptoms:       []string{"duplicate charge on invoice", "two payments on card"},
		ProductArea:    "Billing",
		Component:      "Invoice Service",
	}
}

func TestCanonicalShape(t *testing.T) {
	got := Canonical(billingTheme("Duplicate Charge"))
	assert.Equal(t, "report_excess_billing_invoice_service_duplicate_charge", got)
}

func TestCanonicalIgnoresEphemeralCluster(t *testing.T) {
	a := Canonical(billingTheme("cluster_12"))
	b := Canonical(billingTheme("cluster-7"))
	c := Canonical(billingTheme("billing_issue_cluster_3"))

	assert.Equal(t, a, b)
	assert.Equal(t, a, c)
	for _, sig := range []string{a, b, c} {
		assert.NotContains(t, sig, "cluster")
	}
	assert.True(t, strings.HasSuffix(a, "_duplicate_charge_invoice_two"), a)
}

func TestCanonicalFallsBackToUnspecified(t *testing.T) {
	th := billingTheme("unclassified")
	th.Symptoms = nil
	got := Canonical(th)
	assert.True(t, strings.HasSuffix(got, "_"+FallbackFragment), got)
	assert.NotContains(t, got, "unclassified")
}

func TestCanonicalExplicitFacetsWin(t *testing.T) {
	th := billingTheme("duplicate charge")
	th.Action = "Failure"
	th.Direction = "Excess"
	assert.Equal(t, "failure_excess_billing_invoice_service_duplicate_charge", Canonical(th))
}

func TestCanonicalIsIdempotent(t *testing.T) {
	first := Canonical(billingTheme("duplicate charge"))
	again := Canonical(billingTheme(first))
	assert.Equal(t, first, again)
}

func TestCanonicalEmptyAreaUsesGeneral(t *testing.T) {
	th := billingTheme("login loop")
	th.ProductArea = "  "
	th.Component = ""
	assert.Contains(t, Canonical(th), "_general_general_login_loop")
}

func TestCanonicalTruncatesFragment(t *testing.T) {
	raw := strings.Repeat("very long issue description ", 10)
	got := Canonical(billingTheme(raw))
	parts := strings.SplitN(got, "_", 5)
	require.Len(t, parts, 5)
	frag := strings.TrimPrefix(got, "report_excess_billing_invoice_service_")
	assert.LessOrEqual(t, len(frag), MaxFragmentLen)
	assert.False(t, strings.HasSuffix(frag, "_"))
}

func TestCanonicalGroupOrderIndependent(t *testing.T) {
	a := billingTheme("cluster_1")
	a.ProductArea = "Billing"
	b := billingTheme("cluster_2")
	b.ProductArea = "Payments"
	c := billingTheme("cluster_3")
	c.ProductArea = "billing"

	first := CanonicalGroup([]models.Theme{a, b, c})
	second := CanonicalGroup([]models.Theme{c, b, a})
	assert.Equal(t, first, second)
	assert.Contains(t, first, "_billing_")
}

func TestCanonicalGroupTieBreaksLexicographically(t *testing.T) {
	a := billingTheme("refund delay")
	a.Component = "ledger"
	b := billingTheme("refund delay")
	b.Component = "checkout"

	got := CanonicalGroup([]models.Theme{a, b})
	assert.Contains(t, got, "_billing_checkout_refund_delay")
}

func TestMostFrequent(t *testing.T) {
	assert.Equal(t, "b", MostFrequent([]string{"c", "b", "a", "b"}))
	assert.Equal(t, "a", MostFrequent([]string{"c", "a", "b"}))
	assert.Equal(t, "", MostFrequent(nil))
}

func TestIsEphemeral(t *testing.T) {
	cases := map[string]bool{
		"":                                     true,
		"unclassified":                         true,
		"Unclassified issue":                   true,
		"cluster_42":                           true,
		"kmeans-3":                             true,
		"run_20240101":                         true,
		"c17":                                  true,
		"6f1c2a0e-5b1d-4c47-9f5e-0a1b2c3d4e5f": true,
		"other":                                true,
		"duplicate charge":                     false,
		"job posting fails":                    false,
		"export_csv_timeout":                   false,
	}
	for raw, want := range cases {
		assert.Equal(t, want, IsEphemeral(raw), raw)
	}
}

func TestSubSignature(t *testing.T) {
	assert.Equal(t, "parent_sig__card_declined", SubSignature("parent_sig", "Card declined!"))
	assert.Equal(t, "parent_sig__unspecified", SubSignature("parent_sig", "  "))
}

func TestSubSignaturesStayUniqueWithinOneSplit(t *testing.T) {
	got := SubSignatures("p", []string{"CSV export", "csv-export", "", "  ", "csv export 2", "Billing"})
	assert.Equal(t, []string{
		"p__csv_export",
		"p__csv_export_2",
		"p__unspecified",
		"p__unspecified_2",
		"p__csv_export_2_2",
		"p__billing",
	}, got)

	long := strings.Repeat("word_", 20)
	pair := SubSignatures("p", []string{long, long})
	assert.NotEqual(t, pair[0], pair[1])
	assert.True(t, strings.HasSuffix(pair[1], "_2"))
	assert.LessOrEqual(t, len(strings.TrimPrefix(pair[1], "p__")), MaxFragmentLen)
}

func TestClassifyFacets(t *testing.T) {
	action, direction := ClassifyFacets(models.Theme{UserIntent: "Export fails with a timeout error"})
	assert.Equal(t, ActionFailure, action)
	assert.Equal(t, DirectionSlow, direction)

	action, direction = ClassifyFacets(models.Theme{UserIntent: "How do I change my plan"})
	assert.Equal(t, ActionInquiry, action)
	assert.Equal(t, DirectionNeutral, direction)
}

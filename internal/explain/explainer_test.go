package explain

import (
	"strings"
	"testing"
)

var probs = map[string]float64{
	"valid":       0.72,
	"invalid":     0.15,
	"duplicate":   0.08,
	"enhancement": 0.04,
	"wont_fix":    0.01,
}

func TestExplain_NamesLabelConfidenceAndTerms(t *testing.T) {
	e := New([]string{"login", "login fails", "payment", "timeout"})
	vector := []float64{0.8, 0.5, 0, 0.3}

	got := e.Explain(vector, "valid", probs, DefaultTopN)

	for _, want := range []string{
		"Classified as 'valid' (confidence: 72%)",
		"'login' (0.800)",
		"'login fails' (0.500)",
		"'timeout' (0.300)",
		"Probability breakdown: valid: 72%, invalid: 15%, duplicate: 8%.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("explanation missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "payment") {
		t.Errorf("zero-weight term should not appear:\n%s", got)
	}
}

func TestExplain_TopNLimit(t *testing.T) {
	e := New([]string{"a", "b", "c"})
	got := e.Explain([]float64{0.9, 0.5, 0.3}, "valid", probs, 2)
	if !strings.Contains(got, "'a' (0.900)") || !strings.Contains(got, "'b' (0.500)") {
		t.Errorf("top-2 terms missing:\n%s", got)
	}
	if strings.Contains(got, "'c'") {
		t.Errorf("term beyond topN should not appear:\n%s", got)
	}
}

func TestExplain_NoSignificantFeatures(t *testing.T) {
	e := New([]string{"login", "payment"})
	got := e.Explain([]float64{0, 0}, "valid", probs, DefaultTopN)
	want := "Classified as 'valid' with confidence 72%. No significant text features detected."
	if got != want {
		t.Errorf("degraded explanation = %q, want %q", got, want)
	}
}

func TestExplainDuplicate(t *testing.T) {
	e := New(nil)
	got := e.ExplainDuplicate("Login fails with valid credentials", 0.95)
	want := "Marked as DUPLICATE (similarity: 95%). Similar to: 'Login fails with valid credentials'"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExplainDuplicate_TruncatesLongSummary(t *testing.T) {
	e := New(nil)
	long := strings.Repeat("x", 100)
	got := e.ExplainDuplicate(long, 0.93)
	if !strings.Contains(got, strings.Repeat("x", 80)+"...") {
		t.Errorf("long summary not truncated with ellipsis: %q", got)
	}
	if strings.Contains(got, strings.Repeat("x", 81)) {
		t.Errorf("snippet longer than 80 chars: %q", got)
	}
}

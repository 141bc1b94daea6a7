// Package explain renders human-readable justifications for classification
// and duplicate decisions.
package explain

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultTopN is how many contributing terms an explanation names.
const DefaultTopN = 5

// summarySnippetLen caps the quoted original summary in duplicate
// explanations.
const summarySnippetLen = 80

// Explainer maps feature columns back to vocabulary terms. Build a new one
// whenever the feature extractor is refitted: the term list is positional.
type Explainer struct {
	terms []string
}

// New returns an Explainer over the extractor's term list (column order).
func New(terms []string) *Explainer {
	return &Explainer{terms: terms}
}

// Explain renders a sentence naming the predicted label, its confidence, the
// top contributing terms by weight, and the top-3 label probabilities. When
// no feature dimension is non-zero (empty or fully out-of-vocabulary text)
// it renders a degraded explanation instead.
func (e *Explainer) Explain(vector []float64, label string, probabilities map[string]float64, topN int) string {
	if topN <= 0 {
		topN = DefaultTopN
	}
	conf := probabilities[label]

	var nonzero []int
	for i, w := range vector {
		if w != 0 {
			nonzero = append(nonzero, i)
		}
	}
	if len(nonzero) == 0 {
		return fmt.Sprintf("Classified as '%s' with confidence %.0f%%. No significant text features detected.", label, conf*100)
	}

	sort.SliceStable(nonzero, func(a, b int) bool {
		return vector[nonzero[a]] > vector[nonzero[b]]
	})
	if len(nonzero) > topN {
		nonzero = nonzero[:topN]
	}
	var features []string
	for _, idx := range nonzero {
		if idx < len(e.terms) {
			features = append(features, fmt.Sprintf("'%s' (%.3f)", e.terms[idx], vector[idx]))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Classified as '%s' (confidence: %.0f%%). ", label, conf*100)
	fmt.Fprintf(&b, "Top contributing features: %s.", strings.Join(features, ", "))
	fmt.Fprintf(&b, " Probability breakdown: %s.", topProbabilities(probabilities, 3))
	return b.String()
}

// ExplainDuplicate renders the duplicate-marking sentence with the
// similarity percentage and a snippet of the original bug's summary.
func (e *Explainer) ExplainDuplicate(originalSummary string, similarity float64) string {
	snippet := originalSummary
	if len(snippet) > summarySnippetLen {
		snippet = snippet[:summarySnippetLen] + "..."
	}
	return fmt.Sprintf("Marked as DUPLICATE (similarity: %.0f%%). Similar to: '%s'", similarity*100, snippet)
}

// topProbabilities formats the n highest label probabilities, descending,
// ties broken by label for deterministic output.
func topProbabilities(probabilities map[string]float64, n int) string {
	type lp struct {
		label string
		p     float64
	}
	ranked := make([]lp, 0, len(probabilities))
	for l, p := range probabilities {
		ranked = append(ranked, lp{l, p})
	}
	sort.Slice(ranked, func(a, b int) bool {
		if ranked[a].p != ranked[b].p {
			return ranked[a].p > ranked[b].p
		}
		return ranked[a].label < ranked[b].label
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	parts := make([]string, len(ranked))
	for i, e := range ranked {
		parts[i] = fmt.Sprintf("%s: %.0f%%", e.label, e.p*100)
	}
	return strings.Join(parts, ", ")
}

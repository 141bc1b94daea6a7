// Package feature converts normalized bug text into fixed-width TF-IDF
// vectors. The fitted model (vocabulary + IDF weights) is the unit of
// persistence; reloading reproduces bit-identical transforms.
package feature

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFitted is returned by Transform when no model has been fitted.
var ErrNotFitted = errors.New("feature extractor not fitted")

// ErrEmptyCorpus is returned by Fit when there is nothing to fit on.
var ErrEmptyCorpus = errors.New("empty corpus")

// Extractor is a TF-IDF vectorizer over unigrams and bigrams. A fit replaces
// the model wholesale; between fits the model is read-only. Callers must
// serialize Fit against concurrent Transform calls.
type Extractor struct {
	MaxFeatures int
	NgramMin    int
	NgramMax    int

	model *model
}

// model is the fitted state: ordered vocabulary plus IDF weights.
type model struct {
	Terms    []string  `json:"terms"`
	IDF      []float64 `json:"idf"`
	NumDocs  int       `json:"num_docs"`
	NgramMin int       `json:"ngram_min"`
	NgramMax int       `json:"ngram_max"`

	index map[string]int
}

func (m *model) buildIndex() {
	m.index = make(map[string]int, len(m.Terms))
	for i, t := range m.Terms {
		m.index[t] = i
	}
}

// New returns an Extractor with the given vocabulary bound and n-gram range.
func New(maxFeatures, ngramMin, ngramMax int) *Extractor {
	return &Extractor{MaxFeatures: maxFeatures, NgramMin: ngramMin, NgramMax: ngramMax}
}

// Fitted reports whether a model is present.
func (e *Extractor) Fitted() bool { return e.model != nil }

// Terms returns the vocabulary in column order, or nil if unfitted.
func (e *Extractor) Terms() []string {
	if e.model == nil {
		return nil
	}
	return e.model.Terms
}

// ngrams expands a normalized text into its n-gram terms.
func ngrams(text string, nmin, nmax int) []string {
	tokens := strings.Fields(text)
	var out []string
	for n := nmin; n <= nmax; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}

// Fit builds the vocabulary from the corpus: terms ranked by document
// frequency (ties broken lexicographically), capped at MaxFeatures, columns
// in lexicographic order. Replaces any previously fitted model.
func (e *Extractor) Fit(texts []string) error {
	if len(texts) == 0 {
		return ErrEmptyCorpus
	}

	df := make(map[string]int)
	for _, text := range texts {
		seen := make(map[string]bool)
		for _, term := range ngrams(text, e.NgramMin, e.NgramMax) {
			if !seen[term] {
				seen[term] = true
				df[term]++
			}
		}
	}

	ranked := make([]string, 0, len(df))
	for term := range df {
		ranked = append(ranked, term)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if df[ranked[i]] != df[ranked[j]] {
			return df[ranked[i]] > df[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	if e.MaxFeatures > 0 && len(ranked) > e.MaxFeatures {
		ranked = ranked[:e.MaxFeatures]
	}
	sort.Strings(ranked)

	m := &model{
		Terms:    ranked,
		IDF:      make([]float64, len(ranked)),
		NumDocs:  len(texts),
		NgramMin: e.NgramMin,
		NgramMax: e.NgramMax,
	}
	for i, term := range ranked {
		m.IDF[i] = math.Log(float64(1+m.NumDocs)/float64(1+df[term])) + 1
	}
	m.buildIndex()
	e.model = m
	return nil
}

// Transform maps each text to a TF-IDF vector over the current vocabulary:
// sublinear term frequency (1 + ln count) times IDF, rows L2-normalized.
// Terms outside the vocabulary contribute zero.
func (e *Extractor) Transform(texts []string) ([][]float64, error) {
	if e.model == nil {
		return nil, ErrNotFitted
	}
	m := e.model
	vectors := make([][]float64, len(texts))
	for vi, text := range texts {
		vec := make([]float64, len(m.Terms))
		counts := make(map[int]int)
		for _, term := range ngrams(text, m.NgramMin, m.NgramMax) {
			if col, ok := m.index[term]; ok {
				counts[col]++
			}
		}
		var sumSq float64
		for col, c := range counts {
			w := (1 + math.Log(float64(c))) * m.IDF[col]
			vec[col] = w
			sumSq += w * w
		}
		if sumSq > 0 {
			norm := math.Sqrt(sumSq)
			for col := range counts {
				vec[col] /= norm
			}
		}
		vectors[vi] = vec
	}
	return vectors, nil
}

// FitTransform fits on the corpus and transforms the same corpus.
func (e *Extractor) FitTransform(texts []string) ([][]float64, error) {
	if err := e.Fit(texts); err != nil {
		return nil, err
	}
	return e.Transform(texts)
}

// Save writes the fitted model as JSON. The write goes through a temp file
// and rename so a reader never observes a half-written model.
func (e *Extractor) Save(path string) error {
	if e.model == nil {
		return ErrNotFitted
	}
	data, err := json.Marshal(e.model)
	if err != nil {
		return fmt.Errorf("marshal vectorizer model: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write vectorizer model: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("swap vectorizer model: %w", err)
	}
	return nil
}

// Load replaces the current model with one read from disk.
func (e *Extractor) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read vectorizer model: %w", err)
	}
	var m model
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parse vectorizer model: %w", err)
	}
	m.buildIndex()
	e.model = &m
	return nil
}

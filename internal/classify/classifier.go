// Package classify predicts a bug's triage label with calibrated confidence.
// Two independently fitted linear models — a margin classifier with Platt
// calibration and a multinomial logistic regression — are averaged with
// equal weight: the margin model is robust on sparse high-dimensional text
// features, the probabilistic model is smoother, and averaging damps the
// overconfidence of either alone.
package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ErrNotFitted is returned by Predict before any successful Fit.
var ErrNotFitted = errors.New("classifier not trained")

// ErrInsufficientData is returned by Fit when training is impossible
// (no samples, or fewer than two distinct labels).
var ErrInsufficientData = errors.New("insufficient training data")

// Result is the classification of a single vector. Confidence always equals
// Probabilities[Label], and the probabilities sum to 1.
type Result struct {
	Label         string
	Confidence    float64
	Probabilities map[string]float64
}

// Metrics reports cross-validated quality of the two sub-models after a fit.
type Metrics struct {
	SVMF1           float64 `json:"svm_f1"`
	LRF1            float64 `json:"lr_f1"`
	TrainingSamples int     `json:"training_samples"`
}

// AverageF1 is the single quality score recorded on a ModelVersion.
func (m Metrics) AverageF1() float64 { return (m.SVMF1 + m.LRF1) / 2 }

// ensembleModel is the fitted state: the ordered label set, the calibrated
// margin model, and the logistic model. Replaced wholesale on every fit.
type ensembleModel struct {
	Labels  []string      `json:"labels"`
	SVM     *linearSVM    `json:"svm"`
	Scalers []plattScaler `json:"scalers"`
	LR      *logreg       `json:"lr"`
}

// Classifier is the ensemble. Between fits the model is read-only; callers
// must serialize Fit against concurrent Predict calls.
type Classifier struct {
	model *ensembleModel
}

// New returns an untrained Classifier.
func New() *Classifier { return &Classifier{} }

// Trained reports whether a model is present.
func (c *Classifier) Trained() bool { return c.model != nil }

// Labels returns the fitted label set in sorted order, or nil if untrained.
func (c *Classifier) Labels() []string {
	if c.model == nil {
		return nil
	}
	return c.model.Labels
}

// Fit trains both sub-models on (x, labels) and replaces any previous model.
// It returns cross-validated weighted F1 for each sub-model; the fold count
// is min(5, smallest class count), floored at 2.
func (c *Classifier) Fit(x [][]float64, labels []string) (Metrics, error) {
	if len(x) == 0 || len(x) != len(labels) {
		return Metrics{}, fmt.Errorf("%w: %d samples", ErrInsufficientData, len(x))
	}
	classes := distinctSorted(labels)
	if len(classes) < 2 {
		return Metrics{}, fmt.Errorf("%w: %d distinct labels", ErrInsufficientData, len(classes))
	}
	index := make(map[string]int, len(classes))
	for i, l := range classes {
		index[l] = i
	}
	y := make([]int, len(labels))
	for i, l := range labels {
		y[i] = index[l]
	}
	k := len(classes)
	sw := balancedWeights(y, k)

	svm := fitSVM(x, y, k, sw)
	scalers := calibrate(x, y, k)
	lr := fitLogreg(x, y, k, sw)

	folds := foldCount(y, k)
	svmF1 := crossValF1(x, y, k, folds, func(tx [][]float64, ty []int) func([]float64) int {
		m := fitSVM(tx, ty, k, balancedWeights(ty, k))
		return m.predict
	})
	lrF1 := crossValF1(x, y, k, folds, func(tx [][]float64, ty []int) func([]float64) int {
		m := fitLogreg(tx, ty, k, balancedWeights(ty, k))
		return m.predict
	})

	c.model = &ensembleModel{Labels: classes, SVM: svm, Scalers: scalers, LR: lr}
	return Metrics{SVMF1: svmF1, LRF1: lrF1, TrainingSamples: len(x)}, nil
}

// calibrate fits one Platt scaler per class on out-of-fold decision scores,
// with min(3, number of classes) folds, floored at 2.
func calibrate(x [][]float64, y []int, numClasses int) []plattScaler {
	folds := numClasses
	if folds > 3 {
		folds = 3
	}
	if folds < 2 {
		folds = 2
	}
	assign := stratifiedFolds(y, numClasses, folds)

	// Pool held-out scores per class across folds.
	pooledScores := make([][]float64, numClasses)
	pooledPositive := make([][]bool, numClasses)
	for f := 0; f < folds; f++ {
		var trainX [][]float64
		var trainY []int
		var testX [][]float64
		var testY []int
		for i := range x {
			if assign[i] == f {
				testX = append(testX, x[i])
				testY = append(testY, y[i])
			} else {
				trainX = append(trainX, x[i])
				trainY = append(trainY, y[i])
			}
		}
		if len(trainX) == 0 || len(testX) == 0 {
			continue
		}
		m := fitSVM(trainX, trainY, numClasses, balancedWeights(trainY, numClasses))
		for i, v := range testX {
			scores := m.scores(v)
			for cIdx := 0; cIdx < numClasses; cIdx++ {
				pooledScores[cIdx] = append(pooledScores[cIdx], scores[cIdx])
				pooledPositive[cIdx] = append(pooledPositive[cIdx], testY[i] == cIdx)
			}
		}
	}

	scalers := make([]plattScaler, numClasses)
	for cIdx := 0; cIdx < numClasses; cIdx++ {
		scalers[cIdx] = fitPlatt(pooledScores[cIdx], pooledPositive[cIdx])
	}
	return scalers
}

// svmProba converts the margin model's raw scores to a normalized
// distribution via the per-class Platt scalers.
func (m *ensembleModel) svmProba(x []float64) []float64 {
	scores := m.SVM.scores(x)
	probs := make([]float64, len(scores))
	var sum float64
	for c, s := range scores {
		probs[c] = m.Scalers[c].prob(s)
		sum += probs[c]
	}
	if sum == 0 {
		for c := range probs {
			probs[c] = 1 / float64(len(probs))
		}
		return probs
	}
	for c := range probs {
		probs[c] /= sum
	}
	return probs
}

// Predict classifies each vector: the two sub-model distributions are
// averaged elementwise and the highest averaged probability wins.
func (c *Classifier) Predict(x [][]float64) ([]Result, error) {
	if c.model == nil {
		return nil, ErrNotFitted
	}
	m := c.model
	results := make([]Result, len(x))
	for i, v := range x {
		svmP := m.svmProba(v)
		lrP := m.LR.proba(v)
		best := 0
		probs := make(map[string]float64, len(m.Labels))
		avg := make([]float64, len(m.Labels))
		for cIdx := range m.Labels {
			avg[cIdx] = (svmP[cIdx] + lrP[cIdx]) / 2
			probs[m.Labels[cIdx]] = avg[cIdx]
			if avg[cIdx] > avg[best] {
				best = cIdx
			}
		}
		results[i] = Result{
			Label:         m.Labels[best],
			Confidence:    avg[best],
			Probabilities: probs,
		}
	}
	return results, nil
}

// PredictSingle classifies one vector.
func (c *Classifier) PredictSingle(x []float64) (Result, error) {
	results, err := c.Predict([][]float64{x})
	if err != nil {
		return Result{}, err
	}
	return results[0], nil
}

// Save writes the fitted model as JSON via temp file + rename, so a reader
// never observes a half-written model.
func (c *Classifier) Save(path string) error {
	if c.model == nil {
		return ErrNotFitted
	}
	data, err := json.Marshal(c.model)
	if err != nil {
		return fmt.Errorf("marshal classifier model: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write classifier model: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("swap classifier model: %w", err)
	}
	return nil
}

// Load replaces the current model with one read from disk.
func (c *Classifier) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read classifier model: %w", err)
	}
	var m ensembleModel
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parse classifier model: %w", err)
	}
	c.model = &m
	return nil
}

func distinctSorted(labels []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

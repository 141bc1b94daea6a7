package classify

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// Two well-separated classes on the first two dimensions.
var (
	trainX = [][]float64{
		{1, 0, 0, 0}, {0.9, 0.1, 0, 0}, {0.95, 0.05, 0, 0},
		{1, 0.1, 0, 0}, {0.85, 0, 0.1, 0}, {0.9, 0, 0, 0.05},
		{0, 1, 0, 0}, {0.1, 0.9, 0, 0}, {0, 0.95, 0.05, 0},
		{0.05, 1, 0, 0}, {0, 0.85, 0.1, 0}, {0, 0.9, 0, 0.1},
	}
	trainY = []string{
		"valid", "valid", "valid", "valid", "valid", "valid",
		"invalid", "invalid", "invalid", "invalid", "invalid", "invalid",
	}
)

func TestFit_InsufficientData(t *testing.T) {
	c := New()
	if _, err := c.Fit(nil, nil); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Fit(empty) err = %v, want ErrInsufficientData", err)
	}
	if _, err := c.Fit(trainX[:3], []string{"valid", "valid", "valid"}); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Fit(single label) err = %v, want ErrInsufficientData", err)
	}
	if c.Trained() {
		t.Error("Trained() = true after failed fits")
	}
}

func TestPredict_BeforeFit(t *testing.T) {
	c := New()
	if _, err := c.Predict(trainX[:1]); !errors.Is(err, ErrNotFitted) {
		t.Errorf("Predict before fit err = %v, want ErrNotFitted", err)
	}
	if _, err := c.PredictSingle(trainX[0]); !errors.Is(err, ErrNotFitted) {
		t.Errorf("PredictSingle before fit err = %v, want ErrNotFitted", err)
	}
}

func TestFitPredict_SeparableData(t *testing.T) {
	c := New()
	metrics, err := c.Fit(trainX, trainY)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if metrics.TrainingSamples != len(trainX) {
		t.Errorf("TrainingSamples = %d, want %d", metrics.TrainingSamples, len(trainX))
	}
	if metrics.SVMF1 < 0.9 || metrics.SVMF1 > 1 {
		t.Errorf("SVMF1 = %v, want near 1 on separable data", metrics.SVMF1)
	}
	if metrics.LRF1 < 0.9 || metrics.LRF1 > 1 {
		t.Errorf("LRF1 = %v, want near 1 on separable data", metrics.LRF1)
	}

	results, err := c.Predict(trainX)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	for i, r := range results {
		if r.Label != trainY[i] {
			t.Errorf("sample %d: Label = %q, want %q", i, r.Label, trainY[i])
		}
		if r.Confidence <= 0.6 {
			t.Errorf("sample %d: Confidence = %v, want > 0.6 on separable data", i, r.Confidence)
		}
	}
}

func TestPredict_ProbabilityValidity(t *testing.T) {
	c := New()
	if _, err := c.Fit(trainX, trainY); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	results, err := c.Predict(trainX)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	wantLabels := []string{"invalid", "valid"}
	for i, r := range results {
		var sum float64
		var keys []string
		for l, p := range r.Probabilities {
			sum += p
			keys = append(keys, l)
			if p < 0 || p > 1 {
				t.Errorf("sample %d: probability[%s] = %v out of [0,1]", i, l, p)
			}
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Errorf("sample %d: probabilities sum to %v, want 1", i, sum)
		}
		if r.Confidence != r.Probabilities[r.Label] {
			t.Errorf("sample %d: Confidence %v != Probabilities[%s] %v", i, r.Confidence, r.Label, r.Probabilities[r.Label])
		}
		if diff := cmp.Diff(wantLabels, sortedCopy(keys)); diff != "" {
			t.Errorf("sample %d: probability keys mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestPredictSingle_MatchesBatch(t *testing.T) {
	c := New()
	if _, err := c.Fit(trainX, trainY); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	batch, err := c.Predict(trainX[:1])
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	single, err := c.PredictSingle(trainX[0])
	if err != nil {
		t.Fatalf("PredictSingle: %v", err)
	}
	if diff := cmp.Diff(batch[0], single); diff != "" {
		t.Errorf("single vs batch mismatch (-batch +single):\n%s", diff)
	}
}

func TestSaveLoad_IdenticalPredictions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "classifier.json")
	c := New()
	if _, err := c.Fit(trainX, trainY); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	before, err := c.Predict(trainX)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if err := c.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := New()
	if err := reloaded.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	after, err := reloaded.Predict(trainX)
	if err != nil {
		t.Fatalf("Predict after reload: %v", err)
	}
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("reloaded predictions differ (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(c.Labels(), reloaded.Labels()); diff != "" {
		t.Errorf("reloaded labels differ (-before +after):\n%s", diff)
	}
}

func TestFit_ReplacesModelWholesale(t *testing.T) {
	c := New()
	if _, err := c.Fit(trainX, trainY); err != nil {
		t.Fatalf("first Fit: %v", err)
	}
	relabeled := make([]string, len(trainY))
	for i := range trainY {
		if trainY[i] == "valid" {
			relabeled[i] = "enhancement"
		} else {
			relabeled[i] = "wont_fix"
		}
	}
	if _, err := c.Fit(trainX, relabeled); err != nil {
		t.Fatalf("second Fit: %v", err)
	}
	want := []string{"enhancement", "wont_fix"}
	if diff := cmp.Diff(want, c.Labels()); diff != "" {
		t.Errorf("labels not replaced (-want +got):\n%s", diff)
	}
}

func TestWeightedF1(t *testing.T) {
	// Perfect predictions score 1.
	if got := weightedF1([]int{0, 1, 1}, []int{0, 1, 1}, 2); got != 1 {
		t.Errorf("perfect F1 = %v, want 1", got)
	}
	// All wrong scores 0.
	if got := weightedF1([]int{0, 0}, []int{1, 1}, 2); got != 0 {
		t.Errorf("all-wrong F1 = %v, want 0", got)
	}
	// Known mixed case: true [0,0,1,1], pred [0,1,1,1].
	// Class 0: tp=1 fp=0 fn=1 -> F1 = 2/3. Class 1: tp=2 fp=1 fn=0 -> F1 = 4/5.
	// Weighted: (2/3 * 2 + 4/5 * 2) / 4 = 11/15.
	got := weightedF1([]int{0, 0, 1, 1}, []int{0, 1, 1, 1}, 2)
	if math.Abs(got-11.0/15.0) > 1e-12 {
		t.Errorf("mixed F1 = %v, want %v", got, 11.0/15.0)
	}
}

func TestFoldCount(t *testing.T) {
	cases := []struct {
		y    []int
		k    int
		want int
	}{
		{[]int{0, 1}, 2, 2},                               // min count 1 -> floor 2
		{[]int{0, 0, 0, 1, 1, 1}, 2, 3},                   // min count 3
		{[]int{0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1}, 2, 5}, // min count 7 -> cap 5
	}
	for _, tc := range cases {
		if got := foldCount(tc.y, tc.k); got != tc.want {
			t.Errorf("foldCount(%v) = %d, want %d", tc.y, got, tc.want)
		}
	}
}

func TestStratifiedFolds_RoundRobinPerClass(t *testing.T) {
	y := []int{0, 0, 0, 1, 1, 1}
	got := stratifiedFolds(y, 2, 2)
	want := []int{0, 1, 0, 0, 1, 0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("fold assignment mismatch (-want +got):\n%s", diff)
	}
}

func TestBalancedWeights(t *testing.T) {
	// 3 of class 0, 1 of class 1: weights n/(k*count) = 4/(2*3) and 4/(2*1).
	got := balancedWeights([]int{0, 0, 0, 1}, 2)
	want := []float64{4.0 / 6, 4.0 / 6, 4.0 / 6, 2}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("weights mismatch (-want +got):\n%s", diff)
	}
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

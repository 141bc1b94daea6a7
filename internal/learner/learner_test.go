package learner

import (
	"fmt"
	"os"
	"testing"

	"bugtriage/internal/config"
	"bugtriage/internal/store"
	"bugtriage/internal/textnorm"
)

func testLearner(t *testing.T) (*Learner, store.Store) {
	t.Helper()
	cfg := config.Default()
	cfg.ModelDir = t.TempDir()
	st := store.NewMemStore()
	t.Cleanup(func() { st.Close() })
	return New(st, textnorm.New(cfg.Lemmatizer), cfg), st
}

// seedReviewedBugs inserts n bugs and overrides each to the label returned
// by labelFor, leaving n human audit entries behind.
func seedReviewedBugs(t *testing.T, st store.Store, n int, labelFor func(i int) string) {
	t.Helper()
	projID, err := st.CreateProject(&store.Project{Name: fmt.Sprintf("p%d", n)})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	cycID, err := st.CreateCycle(&store.Cycle{ProjectID: projID, Name: "c"})
	if err != nil {
		t.Fatalf("CreateCycle: %v", err)
	}
	bugs := make([]*store.Bug, n)
	for i := range bugs {
		summary := fmt.Sprintf("login crashes with error code %d on submit", i)
		if labelFor(i) == "enhancement" {
			summary = fmt.Sprintf("please add dark mode option number %d to settings", i)
		}
		bugs[i] = &store.Bug{CycleID: cycID, Summary: summary}
	}
	ids, err := st.BulkCreateBugs(bugs)
	if err != nil {
		t.Fatalf("BulkCreateBugs: %v", err)
	}
	for i, id := range ids {
		if _, err := st.OverrideBugClassification(id, labelFor(i), "alice", ""); err != nil {
			t.Fatalf("override bug %d: %v", id, err)
		}
	}
}

func TestShouldRetrain_OverrideCountBoundary(t *testing.T) {
	l, st := testLearner(t)

	seedReviewedBugs(t, st, 49, func(int) string { return "valid" })
	due, err := l.ShouldRetrain()
	if err != nil {
		t.Fatalf("ShouldRetrain: %v", err)
	}
	if due {
		t.Error("49 overrides should not trigger a retrain")
	}

	seedReviewedBugs(t, st, 1, func(int) string { return "valid" })
	due, err = l.ShouldRetrain()
	if err != nil {
		t.Fatalf("ShouldRetrain: %v", err)
	}
	if !due {
		t.Error("50 overrides should trigger a retrain")
	}
}

func TestShouldRetrain_CountsOnlySinceActiveModel(t *testing.T) {
	l, st := testLearner(t)
	seedReviewedBugs(t, st, 60, func(int) string { return "valid" })

	// An active model trained after all existing overrides resets the count.
	if _, err := st.CreateModelVersion(&store.ModelVersion{
		Version:   "v1",
		TrainedAt: "9999-01-01T00:00:00Z",
	}); err != nil {
		t.Fatalf("CreateModelVersion: %v", err)
	}
	due, err := l.ShouldRetrain()
	if err != nil {
		t.Fatalf("ShouldRetrain: %v", err)
	}
	if due {
		t.Error("overrides predating the active model should not count")
	}
}

func TestRetrain_SkipsSmallCorpus(t *testing.T) {
	l, st := testLearner(t)
	seedReviewedBugs(t, st, 9, func(i int) string {
		if i%2 == 0 {
			return "valid"
		}
		return "enhancement"
	})

	out, err := l.Retrain()
	if err != nil {
		t.Fatalf("Retrain: %v", err)
	}
	if out.Status != StatusSkipped {
		t.Fatalf("status = %q, want skipped", out.Status)
	}
	if out.Reason != "need at least 10 labeled samples, have 9" {
		t.Errorf("reason = %q", out.Reason)
	}
}

func TestRetrain_SkipsUniformLabels(t *testing.T) {
	l, st := testLearner(t)
	seedReviewedBugs(t, st, 12, func(int) string { return "valid" })

	out, err := l.Retrain()
	if err != nil {
		t.Fatalf("Retrain: %v", err)
	}
	if out.Status != StatusSkipped {
		t.Fatalf("status = %q, want skipped", out.Status)
	}
	if out.Reason != "need at least 2 distinct labels, have 1" {
		t.Errorf("reason = %q", out.Reason)
	}
}

func TestRetrain_FitsAndRecordsVersion(t *testing.T) {
	l, st := testLearner(t)
	seedReviewedBugs(t, st, 12, func(i int) string {
		if i < 6 {
			return "valid"
		}
		return "enhancement"
	})

	out, err := l.Retrain()
	if err != nil {
		t.Fatalf("Retrain: %v", err)
	}
	if out.Status != StatusRetrained {
		t.Fatalf("status = %q, reason = %q", out.Status, out.Reason)
	}
	if out.Version != "v1" || out.TrainingSamples != 12 {
		t.Errorf("outcome = %+v", out)
	}
	if out.Extractor == nil || !out.Extractor.Fitted() {
		t.Error("extractor not returned fitted")
	}
	if out.Classifier == nil || !out.Classifier.Trained() {
		t.Error("classifier not returned trained")
	}

	for _, path := range []string{ExtractorPath(l.cfg.ModelDir), ClassifierPath(l.cfg.ModelDir)} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("model file %s: %v", path, err)
		}
	}

	active, err := st.GetActiveModelVersion()
	if err != nil || active == nil {
		t.Fatalf("GetActiveModelVersion: %v, %v", active, err)
	}
	if active.Version != "v1" || active.TrainingSamples != 12 {
		t.Errorf("active version = %+v", active)
	}
	if active.QualityScore != out.Metrics.AverageF1() {
		t.Errorf("quality score %v != averaged F1 %v", active.QualityScore, out.Metrics.AverageF1())
	}
}

func TestRetrain_VersionAutoIncrements(t *testing.T) {
	l, st := testLearner(t)
	seedReviewedBugs(t, st, 12, func(i int) string {
		if i < 6 {
			return "valid"
		}
		return "enhancement"
	})

	if out, err := l.Retrain(); err != nil || out.Version != "v1" {
		t.Fatalf("first retrain: %+v, %v", out, err)
	}
	out, err := l.Retrain()
	if err != nil {
		t.Fatalf("second retrain: %v", err)
	}
	if out.Version != "v2" {
		t.Errorf("version = %q, want v2", out.Version)
	}
	active, _ := st.GetActiveModelVersion()
	if active.Version != "v2" {
		t.Errorf("active = %+v", active)
	}
}

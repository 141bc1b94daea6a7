package report

import (
	"bytes"
	"encoding/csv"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bugtriage/internal/store"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// ten bugs: 5 valid, 2 invalid, 2 duplicate, 1 wont_fix.
func sampleBugs() []*store.Bug {
	return []*store.Bug{
		{ID: 1, Reporter: "alice", Component: "auth", FinalLabel: "valid", MLLabel: "valid"},
		{ID: 2, Reporter: "alice", Component: "auth", FinalLabel: "valid", MLLabel: "valid"},
		{ID: 3, Reporter: "alice", Component: "payments", FinalLabel: "invalid", MLLabel: "valid", Reviewed: true},
		{ID: 4, Reporter: "bob", Component: "payments", FinalLabel: "valid", MLLabel: "valid", Reviewed: true},
		{ID: 5, Reporter: "bob", FinalLabel: "duplicate", MLLabel: "duplicate", DuplicateOfID: 1, DuplicateSimilarity: 0.95},
		{ID: 6, Reporter: "bob", FinalLabel: "invalid", MLLabel: "invalid"},
		{ID: 7, Reporter: "carol", FinalLabel: "valid", MLLabel: "valid"},
		{ID: 8, Reporter: "carol", FinalLabel: "duplicate", MLLabel: "duplicate", DuplicateOfID: 7, DuplicateSimilarity: 0.93},
		{ID: 9, Reporter: "carol", FinalLabel: "wont_fix", MLLabel: "invalid", Reviewed: true},
		{ID: 10, MLLabel: "valid"}, // no final label, no reporter
	}
}

func TestCompute_Rates(t *testing.T) {
	m := Compute(sampleBugs())

	if m.TotalBugs != 10 {
		t.Fatalf("total = %d", m.TotalBugs)
	}
	if !almostEqual(m.TestingAccuracy, 0.5) {
		t.Errorf("testing accuracy = %v, want 0.5", m.TestingAccuracy)
	}
	if !almostEqual(m.DuplicateRate, 0.2) {
		t.Errorf("duplicate rate = %v, want 0.2", m.DuplicateRate)
	}
	if !almostEqual(m.InvalidRate, 0.2) {
		t.Errorf("invalid rate = %v, want 0.2", m.InvalidRate)
	}
	// 3 reviewed bugs, 2 disagreements (bugs 3 and 9).
	if !almostEqual(m.MisclassificationRate, 2.0/3.0) {
		t.Errorf("misclassification rate = %v, want 2/3", m.MisclassificationRate)
	}
	// Non-duplicates: 5 valid, 2 invalid.
	if !almostEqual(m.DefectDetectionEffectiveness, 5.0/7.0) {
		t.Errorf("dde = %v, want 5/7", m.DefectDetectionEffectiveness)
	}

	wantDist := map[string]int{"valid": 5, "invalid": 2, "duplicate": 2, "wont_fix": 1}
	if diff := cmp.Diff(wantDist, m.Distribution); diff != "" {
		t.Errorf("distribution mismatch (-want +got):\n%s", diff)
	}
}

func TestCompute_PerReporter(t *testing.T) {
	m := Compute(sampleBugs())

	alice := m.PerReporter["alice"]
	want := ReporterStats{Total: 3, Valid: 2, Invalid: 1, Accuracy: 2.0 / 3.0}
	if diff := cmp.Diff(want, alice); diff != "" {
		t.Errorf("alice stats mismatch (-want +got):\n%s", diff)
	}
	unknown := m.PerReporter["Unknown"]
	if unknown.Total != 1 || unknown.Valid != 1 {
		t.Errorf("unknown reporter stats = %+v", unknown)
	}
}

func TestCompute_PerComponent(t *testing.T) {
	m := Compute(sampleBugs())

	auth := m.PerComponent["auth"]
	if auth.Total != 2 || auth.Valid != 2 || !almostEqual(auth.Accuracy, 1.0) {
		t.Errorf("auth stats = %+v", auth)
	}
	unassigned := m.PerComponent["Unassigned"]
	if unassigned.Total != 6 {
		t.Errorf("unassigned stats = %+v", unassigned)
	}
}

func TestCompute_Empty(t *testing.T) {
	m := Compute(nil)
	if m.TotalBugs != 0 || m.TestingAccuracy != 0 || m.DefectDetectionEffectiveness != 0 {
		t.Errorf("empty metrics = %+v", m)
	}
}

func seedCycle(t *testing.T, st store.Store) int64 {
	t.Helper()
	projID, err := st.CreateProject(&store.Project{Name: "webapp"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	cycID, err := st.CreateCycle(&store.Cycle{ProjectID: projID, Name: "sprint 14"})
	if err != nil {
		t.Fatalf("CreateCycle: %v", err)
	}
	ids, err := st.BulkCreateBugs([]*store.Bug{
		{CycleID: cycID, ExternalID: "WEB-1", Summary: "Login fails", Reporter: "alice", Priority: "High"},
		{CycleID: cycID, ExternalID: "WEB-2", Summary: "Login fails again", Reporter: "bob"},
	})
	if err != nil {
		t.Fatalf("BulkCreateBugs: %v", err)
	}
	if err := st.UpdateBugClassification(ids[0], "valid", 0.85, "looks real"); err != nil {
		t.Fatalf("classify: %v", err)
	}
	if err := st.SetBugDuplicate(ids[1], ids[0], 0.94); err != nil {
		t.Fatalf("dup: %v", err)
	}
	return cycID
}

func TestExportCycleCSV(t *testing.T) {
	st := store.NewMemStore()
	defer st.Close()
	cycID := seedCycle(t, st)

	var buf bytes.Buffer
	if err := New(st).ExportCycleCSV(&buf, cycID); err != nil {
		t.Fatalf("ExportCycleCSV: %v", err)
	}

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("parse exported csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if diff := cmp.Diff(exportHeader, rows[0]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	first := rows[1]
	if first[1] != "WEB-1" || first[8] != "valid" || first[9] != "0.85" || first[12] != "No" {
		t.Errorf("first row = %v", first)
	}
	dup := rows[2]
	if dup[10] != "duplicate" || dup[13] != "1" || dup[14] != "0.94" {
		t.Errorf("duplicate row = %v", dup)
	}
}

func TestExportCycleCSV_MissingCycle(t *testing.T) {
	st := store.NewMemStore()
	defer st.Close()
	var buf bytes.Buffer
	if err := New(st).ExportCycleCSV(&buf, 42); err == nil {
		t.Fatal("expected error for missing cycle")
	}
}

func TestProjectTrends(t *testing.T) {
	st := store.NewMemStore()
	defer st.Close()
	seedCycle(t, st)

	trends, err := New(st).ProjectTrends(1)
	if err != nil {
		t.Fatalf("ProjectTrends: %v", err)
	}
	if len(trends) != 1 || trends[0].CycleName != "sprint 14" {
		t.Fatalf("trends = %+v", trends)
	}
	if trends[0].Metrics.TotalBugs != 2 || trends[0].Metrics.DuplicateRate != 0.5 {
		t.Errorf("metrics = %+v", trends[0].Metrics)
	}
}

// Package report computes testing quality metrics over classified cycles
// and exports cycle data as CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"bugtriage/internal/store"
)

// ReporterStats breaks a reporter's submissions down by classification.
// Accuracy is the share of their reports classified valid.
type ReporterStats struct {
	Total     int
	Valid     int
	Invalid   int
	Duplicate int
	Accuracy  float64
}

// ComponentStats mirrors ReporterStats per component.
type ComponentStats struct {
	Total    int
	Valid    int
	Invalid  int
	Accuracy float64
}

// CycleMetrics aggregates a cycle's classification outcomes.
type CycleMetrics struct {
	TotalBugs int

	// TestingAccuracy is the share of reports classified valid.
	TestingAccuracy float64
	DuplicateRate   float64
	InvalidRate     float64

	// MisclassificationRate is the share of reviewed bugs where the human
	// disagreed with the ML label.
	MisclassificationRate float64

	// DefectDetectionEffectiveness is valid / (valid + invalid) among
	// non-duplicate reports.
	DefectDetectionEffectiveness float64

	Distribution map[string]int
	PerReporter  map[string]ReporterStats
	PerComponent map[string]ComponentStats
}

// CycleTrend is one cycle's metrics in a project timeline.
type CycleTrend struct {
	CycleID   int64
	CycleName string
	CreatedAt string
	Metrics   CycleMetrics
}

// Reporter computes metrics against a Store.
type Reporter struct {
	st store.Store
}

// New returns a Reporter over st.
func New(st store.Store) *Reporter {
	return &Reporter{st: st}
}

// CycleMetrics computes the full metric set for one cycle.
func (r *Reporter) CycleMetrics(cycleID int64) (*CycleMetrics, error) {
	bugs, err := r.st.ListBugsByCycle(cycleID)
	if err != nil {
		return nil, err
	}
	return Compute(bugs), nil
}

// ProjectTrends computes per-cycle metrics across a project, in cycle
// creation order.
func (r *Reporter) ProjectTrends(projectID int64) ([]CycleTrend, error) {
	cycles, err := r.st.ListCyclesByProject(projectID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(cycles, func(i, j int) bool {
		return cycles[i].CreatedAt < cycles[j].CreatedAt
	})
	trends := make([]CycleTrend, 0, len(cycles))
	for _, c := range cycles {
		m, err := r.CycleMetrics(c.ID)
		if err != nil {
			return nil, err
		}
		trends = append(trends, CycleTrend{
			CycleID:   c.ID,
			CycleName: c.Name,
			CreatedAt: c.CreatedAt,
			Metrics:   *m,
		})
	}
	return trends, nil
}

// Compute derives the metric set from a bug list.
func Compute(bugs []*store.Bug) *CycleMetrics {
	m := &CycleMetrics{
		TotalBugs:    len(bugs),
		Distribution: make(map[string]int),
		PerReporter:  make(map[string]ReporterStats),
		PerComponent: make(map[string]ComponentStats),
	}
	if len(bugs) == 0 {
		return m
	}

	var valid, invalid, duplicate int
	var reviewed, disagreed int
	for _, b := range bugs {
		label := store.EffectiveLabel(b)
		m.Distribution[label]++
		switch label {
		case "valid":
			valid++
		case "invalid":
			invalid++
		case "duplicate":
			duplicate++
		}
		if b.Reviewed && b.MLLabel != "" {
			reviewed++
			if b.MLLabel != b.FinalLabel {
				disagreed++
			}
		}
	}
	n := float64(len(bugs))
	m.TestingAccuracy = float64(valid) / n
	m.DuplicateRate = float64(duplicate) / n
	m.InvalidRate = float64(invalid) / n
	if reviewed > 0 {
		m.MisclassificationRate = float64(disagreed) / float64(reviewed)
	}
	if valid+invalid > 0 {
		m.DefectDetectionEffectiveness = float64(valid) / float64(valid+invalid)
	}

	m.PerReporter = perReporter(bugs)
	m.PerComponent = perComponent(bugs)
	return m
}

func perReporter(bugs []*store.Bug) map[string]ReporterStats {
	out := make(map[string]ReporterStats)
	for _, b := range bugs {
		name := b.Reporter
		if name == "" {
			name = "Unknown"
		}
		s := out[name]
		s.Total++
		switch store.EffectiveLabel(b) {
		case "valid":
			s.Valid++
		case "invalid":
			s.Invalid++
		case "duplicate":
			s.Duplicate++
		}
		out[name] = s
	}
	for name, s := range out {
		s.Accuracy = float64(s.Valid) / float64(s.Total)
		out[name] = s
	}
	return out
}

func perComponent(bugs []*store.Bug) map[string]ComponentStats {
	out := make(map[string]ComponentStats)
	for _, b := range bugs {
		name := b.Component
		if name == "" {
			name = "Unassigned"
		}
		s := out[name]
		s.Total++
		if store.EffectiveLabel(b) == "valid" {
			s.Valid++
		}
		out[name] = s
	}
	for name, s := range out {
		s.Invalid = s.Total - s.Valid
		s.Accuracy = float64(s.Valid) / float64(s.Total)
		out[name] = s
	}
	return out
}

var exportHeader = []string{
	"ID", "External ID", "Summary", "Status", "Priority", "Severity",
	"Component", "Reporter", "ML Classification", "ML Confidence",
	"Final Classification", "Classification Source", "Reviewed",
	"Duplicate Of", "Duplicate Similarity",
}

// ExportCycleCSV writes a cycle's bugs as CSV to w.
func (r *Reporter) ExportCycleCSV(w io.Writer, cycleID int64) error {
	cycle, err := r.st.GetCycle(cycleID)
	if err != nil {
		return err
	}
	if cycle == nil {
		return fmt.Errorf("cycle %d not found", cycleID)
	}
	bugs, err := r.st.ListBugsByCycle(cycleID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, b := range bugs {
		reviewed := "No"
		if b.Reviewed {
			reviewed = "Yes"
		}
		confidence := ""
		if b.MLConfidence != 0 {
			confidence = fmt.Sprintf("%.2f", b.MLConfidence)
		}
		dupOf := ""
		similarity := ""
		if b.DuplicateOfID != 0 {
			dupOf = fmt.Sprintf("%d", b.DuplicateOfID)
			similarity = fmt.Sprintf("%.2f", b.DuplicateSimilarity)
		}
		row := []string{
			fmt.Sprintf("%d", b.ID), b.ExternalID, b.Summary, b.Status,
			b.Priority, b.Severity, b.Component, b.Reporter,
			b.MLLabel, confidence, b.FinalLabel, b.Source, reviewed,
			dupOf, similarity,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

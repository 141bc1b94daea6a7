package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// LabeledRecord is one training example from a labeled CSV.
type LabeledRecord struct {
	Summary     string
	Description string
	Label       string
}

// ParseLabeled reads a training CSV with "summary", "label", and optionally
// "description" columns. Rows missing a summary or label are skipped.
func ParseLabeled(r io.Reader) ([]LabeledRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	summaryIdx, descIdx, labelIdx := -1, -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "summary":
			summaryIdx = i
		case "description":
			descIdx = i
		case "label":
			labelIdx = i
		}
	}
	if summaryIdx < 0 || labelIdx < 0 {
		return nil, fmt.Errorf("labeled csv needs 'summary' and 'label' columns")
	}

	var out []LabeledRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		rec := LabeledRecord{}
		if summaryIdx < len(row) {
			rec.Summary = strings.TrimSpace(row[summaryIdx])
		}
		if descIdx >= 0 && descIdx < len(row) {
			rec.Description = strings.TrimSpace(row[descIdx])
		}
		if labelIdx < len(row) {
			rec.Label = strings.TrimSpace(row[labelIdx])
		}
		if rec.Summary == "" || rec.Label == "" {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Package ingest parses uploaded CSV exports from bug trackers into
// normalized records. The source system (Jira, Azure DevOps, or a generic
// export) is detected from marker columns, then each tracker's column names
// are mapped onto one canonical field set.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"
)

// Record is one normalized bug report row.
type Record struct {
	ExternalID   string
	Summary      string
	Description  string
	Status       string
	Priority     string
	Severity     string
	Component    string
	Reporter     string
	Assignee     string
	CreatedDate  string // RFC 3339, "" when absent or unparseable
	ResolvedDate string
	Resolution   string
	Labels       string
	OriginalType string
}

// Result is a parsed upload. Dropped counts rows discarded for having no
// summary, which the classifier cannot work without.
type Result struct {
	Records      []Record
	SourceSystem string
	Dropped      int
}

// Auto lets Parse detect the source system from the header row.
const Auto = "auto"

var jiraColumns = map[string]string{
	"Issue key":   "external_id",
	"Summary":     "summary",
	"Description": "description",
	"Status":      "status",
	"Priority":    "priority",
	"Severity":    "severity",
	"Component/s": "component",
	"Reporter":    "reporter",
	"Assignee":    "assignee",
	"Created":     "created_date",
	"Resolved":    "resolved_date",
	"Resolution":  "resolution",
	"Labels":      "labels",
	"Issue Type":  "original_type",
}

var azureColumns = map[string]string{
	"ID":              "external_id",
	"Title":           "summary",
	"Repro Steps":     "description",
	"State":           "status",
	"Priority":        "priority",
	"Severity":        "severity",
	"Area Path":       "component",
	"Created By":      "reporter",
	"Assigned To":     "assignee",
	"Created Date":    "created_date",
	"Resolved Date":   "resolved_date",
	"Resolved Reason": "resolution",
	"Tags":            "labels",
	"Work Item Type":  "original_type",
}

var genericColumns = map[string]string{
	"id":            "external_id",
	"summary":       "summary",
	"description":   "description",
	"status":        "status",
	"priority":      "priority",
	"severity":      "severity",
	"component":     "component",
	"reporter":      "reporter",
	"assignee":      "assignee",
	"created_date":  "created_date",
	"resolved_date": "resolved_date",
	"resolution":    "resolution",
	"labels":        "labels",
	"type":          "original_type",
}

var columnMaps = map[string]map[string]string{
	"jira":         jiraColumns,
	"azure_devops": azureColumns,
	"generic":      genericColumns,
}

// Parse reads a CSV upload. sourceSystem is "jira", "azure_devops",
// "generic", or Auto to detect from the header. A header that yields no
// summary column after mapping is an error.
func Parse(r io.Reader, sourceSystem string) (*Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	if sourceSystem == "" || sourceSystem == Auto {
		sourceSystem = detectSourceSystem(header)
	}
	colMap, ok := columnMaps[sourceSystem]
	if !ok {
		return nil, fmt.Errorf("unknown source system %q", sourceSystem)
	}

	// fields[i] names the canonical field column i maps to, "" if unmapped.
	fields := make([]string, len(header))
	hasSummary := false
	for i, col := range header {
		if target, ok := colMap[col]; ok {
			fields[i] = target
			if target == "summary" {
				hasSummary = true
			}
		}
	}
	if !hasSummary {
		return nil, fmt.Errorf("missing required column after mapping: 'summary'")
	}

	res := &Result{SourceSystem: sourceSystem}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		rec := buildRecord(fields, row)
		if rec.Summary == "" {
			res.Dropped++
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

// detectSourceSystem picks the tracker whose marker columns all appear.
func detectSourceSystem(header []string) string {
	cols := make(map[string]bool, len(header))
	for _, c := range header {
		cols[c] = true
	}
	if cols["Issue key"] && cols["Summary"] && cols["Issue Type"] {
		return "jira"
	}
	if cols["ID"] && cols["Title"] && cols["Work Item Type"] {
		return "azure_devops"
	}
	return "generic"
}

func buildRecord(fields []string, row []string) Record {
	var rec Record
	for i, field := range fields {
		if field == "" || i >= len(row) {
			continue
		}
		value := strings.TrimSpace(row[i])
		switch field {
		case "external_id":
			rec.ExternalID = value
		case "summary":
			rec.Summary = value
		case "description":
			rec.Description = value
		case "status":
			rec.Status = value
		case "priority":
			rec.Priority = normalizePriority(value)
		case "severity":
			rec.Severity = normalizeSeverity(value)
		case "component":
			rec.Component = value
		case "reporter":
			rec.Reporter = value
		case "assignee":
			rec.Assignee = value
		case "created_date":
			rec.CreatedDate = normalizeDate(value)
		case "resolved_date":
			rec.ResolvedDate = normalizeDate(value)
		case "resolution":
			rec.Resolution = value
		case "labels":
			rec.Labels = value
		case "original_type":
			rec.OriginalType = value
		}
	}
	if rec.Priority == "" {
		rec.Priority = "Medium"
	}
	if rec.Severity == "" {
		rec.Severity = "Medium"
	}
	return rec
}

var validPriorities = map[string]bool{
	"blocker": true, "critical": true, "major": true, "minor": true,
	"trivial": true, "high": true, "medium": true, "low": true,
}

var validSeverities = map[string]bool{
	"critical": true, "major": true, "minor": true, "trivial": true,
	"high": true, "medium": true, "low": true,
	"s1": true, "s2": true, "s3": true, "s4": true,
}

// normalizePriority canonicalizes known priority names to Title case.
// Unknown non-empty values pass through untouched; empty defaults to Medium.
func normalizePriority(value string) string {
	if s := strings.ToLower(value); validPriorities[s] {
		return capitalize(s)
	}
	if value == "" {
		return "Medium"
	}
	return value
}

func normalizeSeverity(value string) string {
	if s := strings.ToLower(value); validSeverities[s] {
		return capitalize(s)
	}
	if value == "" {
		return "Medium"
	}
	return value
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

var dateLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
}

// normalizeDate parses tracker export date formats and re-renders RFC 3339.
// Unparseable values come back empty rather than failing the upload.
func normalizeDate(value string) string {
	if value == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return ""
}

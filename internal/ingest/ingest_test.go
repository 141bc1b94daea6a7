package ingest

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const jiraCSV = `Issue key,Summary,Description,Status,Priority,Severity,Reporter,Created,Issue Type
WEB-101,Login fails with valid credentials,Steps to reproduce...,Open,HIGH,critical,alice,2024-03-15T10:30:00,Bug
WEB-102,Payment gateway timeout,Checkout hangs,Open,medium,major,bob,2024-03-16,Bug
`

func TestParse_JiraDetectionAndMapping(t *testing.T) {
	res, err := Parse(strings.NewReader(jiraCSV), Auto)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.SourceSystem != "jira" {
		t.Errorf("source = %q, want jira", res.SourceSystem)
	}
	if len(res.Records) != 2 || res.Dropped != 0 {
		t.Fatalf("records = %d, dropped = %d", len(res.Records), res.Dropped)
	}

	want := Record{
		ExternalID:   "WEB-101",
		Summary:      "Login fails with valid credentials",
		Description:  "Steps to reproduce...",
		Status:       "Open",
		Priority:     "High",
		Severity:     "Critical",
		Reporter:     "alice",
		CreatedDate:  "2024-03-15T10:30:00Z",
		OriginalType: "Bug",
	}
	if diff := cmp.Diff(want, res.Records[0]); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_AzureDevOpsDetection(t *testing.T) {
	csv := `ID,Title,Repro Steps,State,Created By,Work Item Type
7001,Search returns stale results,Index not refreshed,Active,carol,Bug
`
	res, err := Parse(strings.NewReader(csv), Auto)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.SourceSystem != "azure_devops" {
		t.Errorf("source = %q, want azure_devops", res.SourceSystem)
	}
	r := res.Records[0]
	if r.ExternalID != "7001" || r.Summary != "Search returns stale results" ||
		r.Description != "Index not refreshed" || r.Status != "Active" || r.Reporter != "carol" {
		t.Errorf("record = %+v", r)
	}
}

func TestParse_GenericFallback(t *testing.T) {
	csv := `id,summary,description,reporter
1,App crashes on startup,NPE in init,dave
`
	res, err := Parse(strings.NewReader(csv), Auto)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.SourceSystem != "generic" {
		t.Errorf("source = %q, want generic", res.SourceSystem)
	}
	r := res.Records[0]
	if r.Summary != "App crashes on startup" || r.Reporter != "dave" {
		t.Errorf("record = %+v", r)
	}
	// Absent priority and severity default to Medium.
	if r.Priority != "Medium" || r.Severity != "Medium" {
		t.Errorf("priority = %q, severity = %q", r.Priority, r.Severity)
	}
}

func TestParse_ExplicitSourceSystemWins(t *testing.T) {
	// A header with jira markers still parses as generic when told to.
	csv := `Issue key,Summary,Issue Type,summary
X-1,jira summary,Bug,generic summary
`
	res, err := Parse(strings.NewReader(csv), "generic")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.SourceSystem != "generic" {
		t.Errorf("source = %q", res.SourceSystem)
	}
	if res.Records[0].Summary != "generic summary" {
		t.Errorf("summary = %q", res.Records[0].Summary)
	}
}

func TestParse_DropsEmptySummaryRows(t *testing.T) {
	csv := `summary,reporter
Login fails,alice
,bob
   ,carol
Payment timeout,dave
`
	res, err := Parse(strings.NewReader(csv), Auto)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Records) != 2 || res.Dropped != 2 {
		t.Errorf("records = %d, dropped = %d", len(res.Records), res.Dropped)
	}
}

func TestParse_MissingSummaryColumn(t *testing.T) {
	csv := `title,reporter
something,alice
`
	if _, err := Parse(strings.NewReader(csv), Auto); err == nil {
		t.Fatal("expected error for header with no mappable summary column")
	}
}

func TestParse_UnknownSourceSystem(t *testing.T) {
	if _, err := Parse(strings.NewReader("summary\nx\n"), "bugzilla"); err == nil {
		t.Fatal("expected error for unknown source system")
	}
}

func TestNormalizeDate(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"2024-03-15T10:30:00", "2024-03-15T10:30:00Z"},
		{"2024-03-15 10:30:00", "2024-03-15T10:30:00Z"},
		{"2024-03-15", "2024-03-15T00:00:00Z"},
		{"03/15/2024", "2024-03-15T00:00:00Z"},
		{"2024-03-15T10:30:00+02:00", "2024-03-15T08:30:00Z"},
		{"not a date", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := normalizeDate(tc.in); got != tc.want {
			t.Errorf("normalizeDate(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizePriorityAndSeverity(t *testing.T) {
	if got := normalizePriority("BLOCKER"); got != "Blocker" {
		t.Errorf("priority BLOCKER = %q", got)
	}
	if got := normalizePriority("P1 - Urgent"); got != "P1 - Urgent" {
		t.Errorf("unknown priority should pass through, got %q", got)
	}
	if got := normalizeSeverity("s2"); got != "S2" {
		t.Errorf("severity s2 = %q", got)
	}
}

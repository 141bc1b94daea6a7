package ingest

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseLabeled(t *testing.T) {
	csv := `summary,description,label
Login fails,Cannot sign in,valid
Add dark mode,,enhancement
,no summary here,valid
Missing label,description,
`
	got, err := ParseLabeled(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ParseLabeled: %v", err)
	}
	want := []LabeledRecord{
		{Summary: "Login fails", Description: "Cannot sign in", Label: "valid"},
		{Summary: "Add dark mode", Label: "enhancement"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestParseLabeled_HeaderCaseInsensitive(t *testing.T) {
	got, err := ParseLabeled(strings.NewReader("Summary,Label\nLogin fails,valid\n"))
	if err != nil {
		t.Fatalf("ParseLabeled: %v", err)
	}
	if len(got) != 1 || got[0].Label != "valid" {
		t.Errorf("records = %+v", got)
	}
}

func TestParseLabeled_MissingColumns(t *testing.T) {
	if _, err := ParseLabeled(strings.NewReader("summary,notes\nx,y\n")); err == nil {
		t.Fatal("expected error without a label column")
	}
}

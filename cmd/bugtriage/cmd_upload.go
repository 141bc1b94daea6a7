package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"bugtriage/internal/ingest"
	"bugtriage/internal/store"
)

var uploadFlags struct {
	file    string
	project string
	cycle   string
	source  string
}

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a bug tracker CSV export as a new testing cycle",
	Long: "Parses a Jira, Azure DevOps, or generic CSV export into a new cycle.\n" +
		"When a trained model is available the bugs are classified immediately.",
	RunE: runUpload,
}

func init() {
	f := uploadCmd.Flags()
	f.StringVar(&uploadFlags.file, "file", "", "CSV export to upload (required)")
	f.StringVar(&uploadFlags.project, "project", "", "Project name, created if missing (required)")
	f.StringVar(&uploadFlags.cycle, "cycle", "", "Name for the new cycle (required)")
	f.StringVar(&uploadFlags.source, "source", ingest.Auto, "Source system: jira, azure_devops, generic, or auto")

	_ = uploadCmd.MarkFlagRequired("file")
	_ = uploadCmd.MarkFlagRequired("project")
	_ = uploadCmd.MarkFlagRequired("cycle")
}

func runUpload(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := os.Open(uploadFlags.file)
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	res, err := ingest.Parse(f, uploadFlags.source)
	if err != nil {
		return err
	}

	proj, err := a.st.GetProjectByName(uploadFlags.project)
	if err != nil {
		return err
	}
	var projID int64
	if proj != nil {
		projID = proj.ID
	} else {
		projID, err = a.st.CreateProject(&store.Project{Name: uploadFlags.project})
		if err != nil {
			return err
		}
	}

	sum, err := a.pipe.ProcessUpload(res, projID, uploadFlags.cycle, filepath.Base(uploadFlags.file))
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Cycle:        #%d (%s)\n", sum.CycleID, uploadFlags.cycle)
	fmt.Fprintf(w, "Source:       %s\n", sum.SourceSystem)
	fmt.Fprintf(w, "Bugs stored:  %d\n", sum.TotalBugs)
	if sum.Dropped > 0 {
		fmt.Fprintf(w, "Dropped:      %d (no summary)\n", sum.Dropped)
	}
	if sum.Classify == nil {
		fmt.Fprintf(w, "No trained model; bugs stored unclassified. Run 'bugtriage train' first.\n")
		return nil
	}
	fmt.Fprintf(w, "Classified:   %d\n", sum.Classify.Classified)
	fmt.Fprintf(w, "Duplicates:   %d\n", sum.Classify.DuplicatesFound)
	if sum.Classify.LowConfidence > 0 {
		fmt.Fprintf(w, "Low confidence: %d (review recommended)\n", sum.Classify.LowConfidence)
	}
	return nil
}

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show model versions and cycle classification counts",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	w := cmd.OutOrStdout()

	versions, err := a.st.ListModelVersions()
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintf(w, "No trained model. Run 'bugtriage train' first.\n")
	} else {
		fmt.Fprintf(w, "Model versions:\n")
		for _, mv := range versions {
			marker := " "
			if mv.Active {
				marker = "*"
			}
			fmt.Fprintf(w, "  %s %-6s trained %s  samples %-4d F1 %.3f\n",
				marker, mv.Version, mv.TrainedAt, mv.TrainingSamples, mv.QualityScore)
		}
	}

	projects, err := a.st.ListProjects()
	if err != nil {
		return err
	}
	for _, p := range projects {
		cycles, err := a.st.ListCyclesByProject(p.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Project %s (%d cycles):\n", p.Name, len(cycles))
		for _, c := range cycles {
			counts, err := a.st.CycleBugCounts(c.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "  #%d %-20s %d bugs", c.ID, c.Name, counts.Total)
			labels := make([]string, 0, len(counts.Counts))
			for label := range counts.Counts {
				labels = append(labels, label)
			}
			sort.Strings(labels)
			for _, label := range labels {
				fmt.Fprintf(w, "  %s=%d", label, counts.Counts[label])
			}
			fmt.Fprintln(w)
		}
	}
	return nil
}

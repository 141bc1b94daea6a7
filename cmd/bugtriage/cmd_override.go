package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bugtriage/internal/learner"
)

var overrideFlags struct {
	bugID  int64
	label  string
	actor  string
	reason string
}

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Record a human correction of a bug's classification",
	Long: "Overrides the ML label with a human decision, marks the bug reviewed,\n" +
		"and appends an audit entry. Once enough overrides accumulate the model\n" +
		"retrains automatically in the same call.",
	RunE: runOverride,
}

func init() {
	f := overrideCmd.Flags()
	f.Int64Var(&overrideFlags.bugID, "bug-id", 0, "Bug DB ID (required)")
	f.StringVar(&overrideFlags.label, "label", "", "Corrected label (required)")
	f.StringVar(&overrideFlags.actor, "actor", "reviewer", "Who made the correction")
	f.StringVar(&overrideFlags.reason, "reason", "", "Why the ML label was wrong")

	_ = overrideCmd.MarkFlagRequired("bug-id")
	_ = overrideCmd.MarkFlagRequired("label")
}

func runOverride(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	bug, outcome, err := a.pipe.RecordOverride(
		overrideFlags.bugID, overrideFlags.label, overrideFlags.actor, overrideFlags.reason)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Bug #%d: %s (was %s)\n", bug.ID, bug.FinalLabel, bug.MLLabel)
	switch outcome.Status {
	case learner.StatusRetrained:
		fmt.Fprintf(w, "Model retrained: %s on %d samples (F1 %.3f)\n",
			outcome.Version, outcome.TrainingSamples, outcome.Metrics.AverageF1())
	case learner.StatusSkipped:
		fmt.Fprintf(w, "Retrain due but skipped: %s\n", outcome.Reason)
	}
	return nil
}

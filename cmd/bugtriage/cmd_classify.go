package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var classifyFlags struct {
	cycleID int64
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Re-run classification over an existing cycle",
	RunE:  runClassify,
}

func init() {
	f := classifyCmd.Flags()
	f.Int64Var(&classifyFlags.cycleID, "cycle-id", 0, "Cycle DB ID (required)")
	_ = classifyCmd.MarkFlagRequired("cycle-id")
}

func runClassify(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sum, err := a.pipe.ClassifyCycle(classifyFlags.cycleID)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Classified:   %d\n", sum.Classified)
	fmt.Fprintf(w, "Duplicates:   %d\n", sum.DuplicatesFound)
	if sum.LowConfidence > 0 {
		fmt.Fprintf(w, "Low confidence: %d (review recommended)\n", sum.LowConfidence)
	}
	return nil
}

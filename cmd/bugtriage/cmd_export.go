package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bugtriage/internal/report"
)

var exportFlags struct {
	cycleID int64
	out     string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a cycle's bugs as CSV",
	RunE:  runExport,
}

func init() {
	f := exportCmd.Flags()
	f.Int64Var(&exportFlags.cycleID, "cycle-id", 0, "Cycle DB ID (required)")
	f.StringVar(&exportFlags.out, "out", "", "Output file (default stdout)")
	_ = exportCmd.MarkFlagRequired("cycle-id")
}

func runExport(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	w := cmd.OutOrStdout()
	if exportFlags.out != "" {
		f, err := os.Create(exportFlags.out)
		if err != nil {
			return fmt.Errorf("create export file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return report.New(a.st).ExportCycleCSV(w, exportFlags.cycleID)
}

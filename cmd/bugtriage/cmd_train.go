package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bugtriage/internal/ingest"
	"bugtriage/internal/learner"
	"bugtriage/internal/pipeline"
)

var trainFlags struct {
	file string
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the initial model from a labeled CSV",
	Long: "Trains the first model from a CSV with summary, description, and label\n" +
		"columns. Training is skipped when there are fewer than 10 samples or\n" +
		"fewer than 2 distinct labels.",
	RunE: runTrain,
}

func init() {
	f := trainCmd.Flags()
	f.StringVar(&trainFlags.file, "file", "", "Labeled CSV file (required)")
	_ = trainCmd.MarkFlagRequired("file")
}

func runTrain(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := os.Open(trainFlags.file)
	if err != nil {
		return fmt.Errorf("open training file: %w", err)
	}
	defer f.Close()
	records, err := ingest.ParseLabeled(f)
	if err != nil {
		return err
	}

	samples := make([]pipeline.LabeledSample, len(records))
	for i, r := range records {
		samples[i] = pipeline.LabeledSample{Summary: r.Summary, Description: r.Description, Label: r.Label}
	}
	out, err := a.pipe.TrainInitialModel(samples)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if out.Status == learner.StatusSkipped {
		fmt.Fprintf(w, "Training skipped: %s\n", out.Reason)
		return nil
	}
	fmt.Fprintf(w, "Trained model %s on %d samples (F1 %.3f)\n",
		out.Version, out.TrainingSamples, out.Metrics.AverageF1())
	return nil
}

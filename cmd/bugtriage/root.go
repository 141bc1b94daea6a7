package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bugtriage/internal/config"
	"bugtriage/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	config string
	db     string
}

// cfg is loaded once in the persistent pre-run and shared by all commands.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "bugtriage",
	Short: "Automated triage for uploaded bug reports",
	Long: "Bugtriage classifies uploaded bug reports (valid, invalid, duplicate,\n" +
		"enhancement, wont_fix), detects duplicates, explains its decisions, and\n" +
		"retrains itself from human corrections.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load(rootFlags.config)
		if err != nil {
			return err
		}
		if rootFlags.db != "" {
			cfg.DBPath = rootFlags.db
		}
		logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.config, "config", "", "Path to YAML config file")
	pf.StringVar(&rootFlags.db, "db", "", "Path to SQLite database (overrides config)")

	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(overrideCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

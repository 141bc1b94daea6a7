package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("db_path: %s\nmodel_dir: %s\n",
		filepath.Join(dir, "triage.db"), filepath.Join(dir, "models"))
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("bugtriage %s: %v\n%s", strings.Join(args, " "), err, buf.String())
	}
	return buf.String()
}

func TestCLI_TrainUploadStatusExport(t *testing.T) {
	cfgPath := writeTestConfig(t)

	var train strings.Builder
	train.WriteString("summary,description,label\n")
	for i := 0; i < 6; i++ {
		fmt.Fprintf(&train, "login crashes with error code %d on submit,,valid\n", i)
		fmt.Fprintf(&train, "please add dark mode option number %d to settings,,enhancement\n", i)
	}
	trainPath := writeCSV(t, "train.csv", train.String())

	out := runCLI(t, "--config", cfgPath, "train", "--file", trainPath)
	if !strings.Contains(out, "Trained model v1 on 12 samples") {
		t.Fatalf("train output:\n%s", out)
	}

	uploadPath := writeCSV(t, "bugs.csv",
		"summary,reporter\n"+
			"login crashes with error code 3 on submit,alice\n"+
			"login crashes with error code 3 on submit,bob\n"+
			"please add dark mode option to settings,carol\n")
	out = runCLI(t, "--config", cfgPath, "upload",
		"--file", uploadPath, "--project", "webapp", "--cycle", "sprint-1")
	if !strings.Contains(out, "Bugs stored:  3") {
		t.Fatalf("upload output:\n%s", out)
	}
	if !strings.Contains(out, "Duplicates:   1") {
		t.Fatalf("upload output:\n%s", out)
	}

	out = runCLI(t, "--config", cfgPath, "status")
	if !strings.Contains(out, "v1") || !strings.Contains(out, "webapp") {
		t.Fatalf("status output:\n%s", out)
	}
	if !strings.Contains(out, "duplicate=1") {
		t.Fatalf("status output:\n%s", out)
	}

	out = runCLI(t, "--config", cfgPath, "export", "--cycle-id", "1")
	if !strings.Contains(out, "ML Classification") || !strings.Contains(out, "alice") {
		t.Fatalf("export output:\n%s", out)
	}
}

func TestCLI_UploadWithoutModel(t *testing.T) {
	cfgPath := writeTestConfig(t)
	uploadPath := writeCSV(t, "bugs.csv", "summary,reporter\nLogin fails,alice\n")

	out := runCLI(t, "--config", cfgPath, "upload",
		"--file", uploadPath, "--project", "webapp", "--cycle", "sprint-1")
	if !strings.Contains(out, "No trained model") {
		t.Fatalf("upload output:\n%s", out)
	}
}

func TestCLI_OverrideRecordsCorrection(t *testing.T) {
	cfgPath := writeTestConfig(t)
	uploadPath := writeCSV(t, "bugs.csv", "summary,reporter\nLogin fails,alice\n")
	runCLI(t, "--config", cfgPath, "upload",
		"--file", uploadPath, "--project", "webapp", "--cycle", "c")

	out := runCLI(t, "--config", cfgPath, "override",
		"--bug-id", "1", "--label", "invalid", "--actor", "alice", "--reason", "not reproducible")
	if !strings.Contains(out, "Bug #1: invalid") {
		t.Fatalf("override output:\n%s", out)
	}
}

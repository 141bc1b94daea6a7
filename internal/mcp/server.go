// Package mcp exposes the triage pipeline as MCP tools over stdio.
package mcp

import (
	"context"
	"fmt"
	"os"
	"sync"

	"bugtriage/internal/ingest"
	"bugtriage/internal/learner"
	"bugtriage/internal/pipeline"
	"bugtriage/internal/report"
	"bugtriage/internal/store"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP SDK server around one Pipeline. Tool calls are
// serialized: training swaps the model handle, and interleaving a fit with
// a predict would race.
type Server struct {
	MCPServer *sdkmcp.Server

	mu       sync.Mutex
	pipeline *pipeline.Pipeline
	st       store.Store
	reporter *report.Reporter
}

// NewServer creates an MCP server exposing the triage tools.
func NewServer(p *pipeline.Pipeline, st store.Store) *Server {
	s := &Server{pipeline: p, st: st, reporter: report.New(st)}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "bugtriage", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "upload_cycle",
		Description: "Upload a bug tracker CSV export as a new testing cycle. Classifies the bugs when a trained model is available.",
	}, s.handleUploadCycle)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "classify_cycle",
		Description: "Re-run duplicate detection and classification over an existing cycle.",
	}, s.handleClassifyCycle)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "train_initial",
		Description: "Train the initial model from a labeled CSV (summary, description, label columns).",
	}, s.handleTrainInitial)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "record_override",
		Description: "Record a human correction of a bug's classification. Retrains automatically once enough overrides accumulate.",
	}, s.handleRecordOverride)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_cycle_report",
		Description: "Get the quality metric report for a cycle: accuracy, duplicate/invalid rates, per-reporter breakdown.",
	}, s.handleGetCycleReport)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_status",
		Description: "Get engine status: model availability, model versions, projects and cycles.",
	}, s.handleGetStatus)
}

// --- Tool input/output types ---

type uploadCycleInput struct {
	ProjectName  string `json:"project_name" jsonschema:"project to file the cycle under (created if missing)"`
	CycleName    string `json:"cycle_name" jsonschema:"name for the new testing cycle"`
	CSVPath      string `json:"csv_path" jsonschema:"path to the bug tracker CSV export"`
	SourceSystem string `json:"source_system,omitempty" jsonschema:"jira, azure_devops, generic, or auto (default)"`
}

type uploadCycleOutput struct {
	CycleID         int64  `json:"cycle_id"`
	TotalBugs       int    `json:"total_bugs"`
	Dropped         int    `json:"dropped"`
	SourceSystem    string `json:"source_system"`
	Classified      int    `json:"classified"`
	DuplicatesFound int    `json:"duplicates_found"`
	LowConfidence   int    `json:"low_confidence"`
	ModelUsed       bool   `json:"model_used"`
}

type classifyCycleInput struct {
	CycleID int64 `json:"cycle_id" jsonschema:"cycle to classify"`
}

type classifyCycleOutput struct {
	Classified      int `json:"classified"`
	DuplicatesFound int `json:"duplicates_found"`
	LowConfidence   int `json:"low_confidence"`
}

type trainInitialInput struct {
	CSVPath string `json:"csv_path" jsonschema:"path to a labeled CSV with summary, description, label columns"`
}

type trainInitialOutput struct {
	Status          string  `json:"status"`
	Reason          string  `json:"reason,omitempty"`
	Version         string  `json:"version,omitempty"`
	TrainingSamples int     `json:"training_samples,omitempty"`
	F1              float64 `json:"f1,omitempty"`
}

type recordOverrideInput struct {
	BugID    int64  `json:"bug_id" jsonschema:"bug to override"`
	NewLabel string `json:"new_label" jsonschema:"corrected label (valid, invalid, duplicate, enhancement, wont_fix)"`
	Actor    string `json:"actor,omitempty" jsonschema:"who made the correction"`
	Reason   string `json:"reason,omitempty" jsonschema:"why the ML label was wrong"`
}

type recordOverrideOutput struct {
	BugID         int64  `json:"bug_id"`
	FinalLabel    string `json:"final_label"`
	RetrainStatus string `json:"retrain_status"`
	ModelVersion  string `json:"model_version,omitempty"`
}

type getCycleReportInput struct {
	CycleID int64 `json:"cycle_id" jsonschema:"cycle to report on"`
}

type getCycleReportOutput struct {
	Metrics *report.CycleMetrics `json:"metrics"`
}

type getStatusInput struct{}

type statusModelVersion struct {
	Version         string  `json:"version"`
	TrainedAt       string  `json:"trained_at"`
	TrainingSamples int     `json:"training_samples"`
	QualityScore    float64 `json:"quality_score"`
	Active          bool    `json:"active"`
}

type statusProject struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Cycles int    `json:"cycles"`
}

type getStatusOutput struct {
	HasModel      bool                 `json:"has_model"`
	ModelVersions []statusModelVersion `json:"model_versions"`
	Projects      []statusProject      `json:"projects"`
}

// --- Tool handlers ---

func (s *Server) handleUploadCycle(ctx context.Context, _ *sdkmcp.CallToolRequest, input uploadCycleInput) (*sdkmcp.CallToolResult, uploadCycleOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if input.ProjectName == "" || input.CycleName == "" || input.CSVPath == "" {
		return nil, uploadCycleOutput{}, fmt.Errorf("project_name, cycle_name, and csv_path are required")
	}

	f, err := os.Open(input.CSVPath)
	if err != nil {
		return nil, uploadCycleOutput{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	res, err := ingest.Parse(f, orAuto(input.SourceSystem))
	if err != nil {
		return nil, uploadCycleOutput{}, err
	}

	projID, err := s.ensureProject(input.ProjectName)
	if err != nil {
		return nil, uploadCycleOutput{}, err
	}

	sum, err := s.pipeline.ProcessUpload(res, projID, input.CycleName, input.CSVPath)
	if err != nil {
		return nil, uploadCycleOutput{}, err
	}

	out := uploadCycleOutput{
		CycleID:      sum.CycleID,
		TotalBugs:    sum.TotalBugs,
		Dropped:      sum.Dropped,
		SourceSystem: sum.SourceSystem,
	}
	if sum.Classify != nil {
		out.ModelUsed = true
		out.Classified = sum.Classify.Classified
		out.DuplicatesFound = sum.Classify.DuplicatesFound
		out.LowConfidence = sum.Classify.LowConfidence
	}
	return nil, out, nil
}

func (s *Server) handleClassifyCycle(ctx context.Context, _ *sdkmcp.CallToolRequest, input classifyCycleInput) (*sdkmcp.CallToolResult, classifyCycleOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum, err := s.pipeline.ClassifyCycle(input.CycleID)
	if err != nil {
		return nil, classifyCycleOutput{}, err
	}
	return nil, classifyCycleOutput{
		Classified:      sum.Classified,
		DuplicatesFound: sum.DuplicatesFound,
		LowConfidence:   sum.LowConfidence,
	}, nil
}

func (s *Server) handleTrainInitial(ctx context.Context, _ *sdkmcp.CallToolRequest, input trainInitialInput) (*sdkmcp.CallToolResult, trainInitialOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(input.CSVPath)
	if err != nil {
		return nil, trainInitialOutput{}, fmt.Errorf("open training csv: %w", err)
	}
	defer f.Close()
	records, err := ingest.ParseLabeled(f)
	if err != nil {
		return nil, trainInitialOutput{}, err
	}

	samples := make([]pipeline.LabeledSample, len(records))
	for i, r := range records {
		samples[i] = pipeline.LabeledSample{Summary: r.Summary, Description: r.Description, Label: r.Label}
	}
	out, err := s.pipeline.TrainInitialModel(samples)
	if err != nil {
		return nil, trainInitialOutput{}, err
	}

	result := trainInitialOutput{Status: out.Status, Reason: out.Reason}
	if out.Status == learner.StatusTrained {
		result.Version = out.Version
		result.TrainingSamples = out.TrainingSamples
		result.F1 = out.Metrics.AverageF1()
	}
	return nil, result, nil
}

func (s *Server) handleRecordOverride(ctx context.Context, _ *sdkmcp.CallToolRequest, input recordOverrideInput) (*sdkmcp.CallToolResult, recordOverrideOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if input.NewLabel == "" {
		return nil, recordOverrideOutput{}, fmt.Errorf("new_label is required")
	}
	actor := input.Actor
	if actor == "" {
		actor = "reviewer"
	}
	bug, outcome, err := s.pipeline.RecordOverride(input.BugID, input.NewLabel, actor, input.Reason)
	if err != nil {
		return nil, recordOverrideOutput{}, err
	}
	return nil, recordOverrideOutput{
		BugID:         bug.ID,
		FinalLabel:    bug.FinalLabel,
		RetrainStatus: outcome.Status,
		ModelVersion:  outcome.Version,
	}, nil
}

func (s *Server) handleGetCycleReport(ctx context.Context, _ *sdkmcp.CallToolRequest, input getCycleReportInput) (*sdkmcp.CallToolResult, getCycleReportOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cycle, err := s.st.GetCycle(input.CycleID)
	if err != nil {
		return nil, getCycleReportOutput{}, err
	}
	if cycle == nil {
		return nil, getCycleReportOutput{}, fmt.Errorf("cycle %d not found", input.CycleID)
	}
	metrics, err := s.reporter.CycleMetrics(input.CycleID)
	if err != nil {
		return nil, getCycleReportOutput{}, err
	}
	return nil, getCycleReportOutput{Metrics: metrics}, nil
}

func (s *Server) handleGetStatus(ctx context.Context, _ *sdkmcp.CallToolRequest, _ getStatusInput) (*sdkmcp.CallToolResult, getStatusOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := getStatusOutput{HasModel: s.pipeline.HasModel()}

	versions, err := s.st.ListModelVersions()
	if err != nil {
		return nil, getStatusOutput{}, err
	}
	for _, mv := range versions {
		out.ModelVersions = append(out.ModelVersions, statusModelVersion{
			Version:         mv.Version,
			TrainedAt:       mv.TrainedAt,
			TrainingSamples: mv.TrainingSamples,
			QualityScore:    mv.QualityScore,
			Active:          mv.Active,
		})
	}

	projects, err := s.st.ListProjects()
	if err != nil {
		return nil, getStatusOutput{}, err
	}
	for _, p := range projects {
		cycles, err := s.st.ListCyclesByProject(p.ID)
		if err != nil {
			return nil, getStatusOutput{}, err
		}
		out.Projects = append(out.Projects, statusProject{ID: p.ID, Name: p.Name, Cycles: len(cycles)})
	}
	return nil, out, nil
}

func (s *Server) ensureProject(name string) (int64, error) {
	proj, err := s.st.GetProjectByName(name)
	if err != nil {
		return 0, err
	}
	if proj != nil {
		return proj.ID, nil
	}
	return s.st.CreateProject(&store.Project{Name: name})
}

func orAuto(source string) string {
	if source == "" {
		return ingest.Auto
	}
	return source
}

// Package store is the persistence facade for the triage engine: projects,
// cycles, bug reports, the classification audit trail, and model version
// metadata. The pipeline and CLI use only the Store interface; the
// implementation is SQLite or in-memory.
package store

// DefaultDBPath is the default relative path for the SQLite DB.
// Open() creates the parent dir (e.g. .bugtriage).
const DefaultDBPath = ".bugtriage/bugtriage.db"

// Project groups testing cycles.
type Project struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   string
}

// Cycle is one batch of bug reports uploaded together (one testing round).
type Cycle struct {
	ID             int64
	ProjectID      int64
	Name           string
	SourceSystem   string
	UploadFileName string
	CreatedAt      string
}

// Bug is one bug report. ML fields are zero-valued until classification
// runs; FinalLabel carries the effective classification (machine-produced
// until a human override supersedes it).
type Bug struct {
	ID          int64
	CycleID     int64
	ExternalID  string
	Summary     string
	Description string
	Status      string
	Priority    string
	Severity    string
	Component   string
	Reporter    string
	Assignee    string

	CreatedDate  string
	ResolvedDate string
	Resolution   string
	Labels       string
	OriginalType string

	MLLabel       string
	MLConfidence  float64
	MLExplanation string

	DuplicateOfID       int64 // 0 means no duplicate link
	DuplicateSimilarity float64
	VectorJSON          string

	FinalLabel     string
	Source         string // "ml" or "human"
	Reviewed       bool
	ReviewedBy     string
	OverrideReason string
}

// AuditEntry is one append-only classification change record.
type AuditEntry struct {
	ID            int64
	BugID         int64
	PreviousLabel string
	NewLabel      string
	Source        string // "ml" or "human"
	Actor         string
	Reason        string
	Timestamp     string
}

// ModelVersion records one successful training run. Exactly one version is
// active at a time.
type ModelVersion struct {
	ID              int64
	Version         string
	TrainedAt       string
	TrainingSamples int
	QualityScore    float64
	ModelPath       string
	Active          bool
}

// CycleCounts aggregates a cycle's effective classifications.
type CycleCounts struct {
	Total  int
	Counts map[string]int
}

// Store is the persistence facade. Implementations: SqlStore, MemStore.
type Store interface {
	// Projects
	CreateProject(p *Project) (int64, error)
	GetProject(id int64) (*Project, error)
	GetProjectByName(name string) (*Project, error)
	ListProjects() ([]*Project, error)

	// Cycles
	CreateCycle(c *Cycle) (int64, error)
	GetCycle(id int64) (*Cycle, error)
	ListCyclesByProject(projectID int64) ([]*Cycle, error)

	// Bugs
	BulkCreateBugs(bugs []*Bug) ([]int64, error)
	GetBug(id int64) (*Bug, error)
	ListBugsByCycle(cycleID int64) ([]*Bug, error)
	ListReviewedBugs() ([]*Bug, error)

	// Classification writes
	UpdateBugClassification(bugID int64, label string, confidence float64, explanation string) error
	SetBugDuplicate(bugID, duplicateOfID int64, similarity float64) error
	SetBugExplanation(bugID int64, explanation string, confidence float64) error
	SetBugVector(bugID int64, vectorJSON string) error
	OverrideBugClassification(bugID int64, newLabel, actor, reason string) (*Bug, error)

	// Audit
	CountHumanOverrides(since string) (int, error)
	ListAuditForBug(bugID int64) ([]*AuditEntry, error)

	// Model versions
	CreateModelVersion(mv *ModelVersion) (int64, error)
	GetActiveModelVersion() (*ModelVersion, error)
	ListModelVersions() ([]*ModelVersion, error)

	// Reporting
	CycleBugCounts(cycleID int64) (*CycleCounts, error)

	Close() error
}

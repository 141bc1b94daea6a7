package store

import (
	"fmt"
	"sync"
)

// MemStore is an in-memory Store for tests and dry runs.
type MemStore struct {
	mu sync.Mutex

	projects      map[int64]*Project
	cycles        map[int64]*Cycle
	bugs          map[int64]*Bug
	audit         []*AuditEntry
	modelVersions []*ModelVersion

	nextProject int64
	nextCycle   int64
	nextBug     int64
	nextAudit   int64
	nextModel   int64
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		projects: make(map[int64]*Project),
		cycles:   make(map[int64]*Cycle),
		bugs:     make(map[int64]*Bug),
	}
}

func (m *MemStore) Close() error { return nil }

// --- Projects ---

func (m *MemStore) CreateProject(p *Project) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.projects {
		if existing.Name == p.Name {
			return 0, fmt.Errorf("project %q already exists", p.Name)
		}
	}
	m.nextProject++
	cp := *p
	cp.ID = m.nextProject
	if cp.CreatedAt == "" {
		cp.CreatedAt = nowUTC()
	}
	m.projects[cp.ID] = &cp
	return cp.ID, nil
}

func (m *MemStore) GetProject(id int64) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *MemStore) GetProjectByName(name string) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.projects {
		if p.Name == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemStore) ListProjects() ([]*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Project
	for id := int64(1); id <= m.nextProject; id++ {
		if p, ok := m.projects[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- Cycles ---

func (m *MemStore) CreateCycle(c *Cycle) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCycle++
	cp := *c
	cp.ID = m.nextCycle
	if cp.CreatedAt == "" {
		cp.CreatedAt = nowUTC()
	}
	if cp.SourceSystem == "" {
		cp.SourceSystem = "generic"
	}
	m.cycles[cp.ID] = &cp
	return cp.ID, nil
}

func (m *MemStore) GetCycle(id int64) (*Cycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cycles[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *MemStore) ListCyclesByProject(projectID int64) ([]*Cycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Cycle
	for id := int64(1); id <= m.nextCycle; id++ {
		if c, ok := m.cycles[id]; ok && c.ProjectID == projectID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- Bugs ---

func (m *MemStore) BulkCreateBugs(bugs []*Bug) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(bugs))
	for _, b := range bugs {
		m.nextBug++
		cp := *b
		cp.ID = m.nextBug
		if cp.OriginalType == "" {
			cp.OriginalType = "Bug"
		}
		m.bugs[cp.ID] = &cp
		ids = append(ids, cp.ID)
	}
	return ids, nil
}

func (m *MemStore) GetBug(id int64) (*Bug, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bugs[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (m *MemStore) ListBugsByCycle(cycleID int64) ([]*Bug, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Bug
	for id := int64(1); id <= m.nextBug; id++ {
		if b, ok := m.bugs[id]; ok && b.CycleID == cycleID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemStore) ListReviewedBugs() ([]*Bug, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Bug
	for id := int64(1); id <= m.nextBug; id++ {
		if b, ok := m.bugs[id]; ok && b.Reviewed {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemStore) UpdateBugClassification(bugID int64, label string, confidence float64, explanation string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bugs[bugID]
	if !ok {
		return fmt.Errorf("bug %d not found", bugID)
	}
	b.MLLabel = label
	b.MLConfidence = confidence
	b.MLExplanation = explanation
	if !b.Reviewed {
		b.FinalLabel = label
		b.Source = "ml"
	}
	return nil
}

func (m *MemStore) SetBugDuplicate(bugID, duplicateOfID int64, similarity float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bugs[bugID]
	if !ok {
		return fmt.Errorf("bug %d not found", bugID)
	}
	b.DuplicateOfID = duplicateOfID
	b.DuplicateSimilarity = similarity
	b.MLLabel = "duplicate"
	b.FinalLabel = "duplicate"
	return nil
}

func (m *MemStore) SetBugExplanation(bugID int64, explanation string, confidence float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bugs[bugID]
	if !ok {
		return fmt.Errorf("bug %d not found", bugID)
	}
	b.MLExplanation = explanation
	b.MLConfidence = confidence
	return nil
}

func (m *MemStore) SetBugVector(bugID int64, vectorJSON string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bugs[bugID]
	if !ok {
		return fmt.Errorf("bug %d not found", bugID)
	}
	b.VectorJSON = vectorJSON
	return nil
}

func (m *MemStore) OverrideBugClassification(bugID int64, newLabel, actor, reason string) (*Bug, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bugs[bugID]
	if !ok {
		return nil, fmt.Errorf("bug %d not found", bugID)
	}
	m.nextAudit++
	m.audit = append(m.audit, &AuditEntry{
		ID:            m.nextAudit,
		BugID:         bugID,
		PreviousLabel: b.FinalLabel,
		NewLabel:      newLabel,
		Source:        "human",
		Actor:         actor,
		Reason:        reason,
		Timestamp:     nowUTC(),
	})
	b.FinalLabel = newLabel
	b.Source = "human"
	b.Reviewed = true
	b.ReviewedBy = actor
	b.OverrideReason = reason
	cp := *b
	return &cp, nil
}

// --- Audit ---

func (m *MemStore) CountHumanOverrides(since string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.audit {
		if a.Source != "human" {
			continue
		}
		if since == "" || a.Timestamp > since {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) ListAuditForBug(bugID int64) ([]*AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*AuditEntry
	for _, a := range m.audit {
		if a.BugID == bugID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- Model versions ---

func (m *MemStore) CreateModelVersion(mv *ModelVersion) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.modelVersions {
		if existing.Version == mv.Version {
			return 0, fmt.Errorf("model version %q already exists", mv.Version)
		}
	}
	for _, existing := range m.modelVersions {
		existing.Active = false
	}
	m.nextModel++
	cp := *mv
	cp.ID = m.nextModel
	if cp.TrainedAt == "" {
		cp.TrainedAt = nowUTC()
	}
	cp.Active = true
	m.modelVersions = append(m.modelVersions, &cp)
	return cp.ID, nil
}

func (m *MemStore) GetActiveModelVersion() (*ModelVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mv := range m.modelVersions {
		if mv.Active {
			cp := *mv
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemStore) ListModelVersions() ([]*ModelVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ModelVersion, 0, len(m.modelVersions))
	for _, mv := range m.modelVersions {
		cp := *mv
		out = append(out, &cp)
	}
	return out, nil
}

// --- Reporting ---

func (m *MemStore) CycleBugCounts(cycleID int64) (*CycleCounts, error) {
	bugs, err := m.ListBugsByCycle(cycleID)
	if err != nil {
		return nil, err
	}
	cc := &CycleCounts{Total: len(bugs), Counts: make(map[string]int)}
	for _, b := range bugs {
		cc.Counts[EffectiveLabel(b)]++
	}
	return cc, nil
}

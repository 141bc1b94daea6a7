package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// nowUTC returns the current UTC time as an RFC 3339 string. The fixed-width
// nanosecond field keeps lexicographic order chronological and separates an
// override from a model version recorded in the same second.
func nowUTC() string { return time.Now().UTC().Format("2006-01-02T15:04:05.000000000Z07:00") }

// SqlStore implements Store with SQLite.
type SqlStore struct {
	db *sql.DB
}

// Open opens or creates a SQLite DB at path and runs migrations.
// Creates the parent directory (e.g. .bugtriage) if it does not exist.
func Open(path string) (*SqlStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer at a time. A single pooled connection makes
	// concurrent writers queue instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SqlStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqlStore) migrate() error {
	if _, err := s.db.Exec(schemaV1); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if count == 0 {
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion1); err != nil {
			return fmt.Errorf("write schema version: %w", err)
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *SqlStore) Close() error { return s.db.Close() }

// --- Projects ---

func (s *SqlStore) CreateProject(p *Project) (int64, error) {
	if p == nil {
		return 0, errors.New("project is nil")
	}
	if p.CreatedAt == "" {
		p.CreatedAt = nowUTC()
	}
	res, err := s.db.Exec(
		"INSERT INTO projects(name, description, created_at) VALUES(?, ?, ?)",
		p.Name, p.Description, p.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert project: %w", err)
	}
	return res.LastInsertId()
}

func (s *SqlStore) GetProject(id int64) (*Project, error) {
	var p Project
	err := s.db.QueryRow(
		"SELECT id, name, description, created_at FROM projects WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

func (s *SqlStore) GetProjectByName(name string) (*Project, error) {
	var p Project
	err := s.db.QueryRow(
		"SELECT id, name, description, created_at FROM projects WHERE name = ?", name,
	).Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project by name: %w", err)
	}
	return &p, nil
}

func (s *SqlStore) ListProjects() ([]*Project, error) {
	rows, err := s.db.Query("SELECT id, name, description, created_at FROM projects ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()
	var out []*Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// --- Cycles ---

func (s *SqlStore) CreateCycle(c *Cycle) (int64, error) {
	if c == nil {
		return 0, errors.New("cycle is nil")
	}
	if c.CreatedAt == "" {
		c.CreatedAt = nowUTC()
	}
	if c.SourceSystem == "" {
		c.SourceSystem = "generic"
	}
	res, err := s.db.Exec(
		`INSERT INTO cycles(project_id, name, source_system, upload_file_name, created_at)
		 VALUES(?, ?, ?, ?, ?)`,
		c.ProjectID, c.Name, c.SourceSystem, c.UploadFileName, c.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert cycle: %w", err)
	}
	return res.LastInsertId()
}

func (s *SqlStore) GetCycle(id int64) (*Cycle, error) {
	var c Cycle
	err := s.db.QueryRow(
		`SELECT id, project_id, name, source_system, upload_file_name, created_at
		 FROM cycles WHERE id = ?`, id,
	).Scan(&c.ID, &c.ProjectID, &c.Name, &c.SourceSystem, &c.UploadFileName, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cycle: %w", err)
	}
	return &c, nil
}

func (s *SqlStore) ListCyclesByProject(projectID int64) ([]*Cycle, error) {
	rows, err := s.db.Query(
		`SELECT id, project_id, name, source_system, upload_file_name, created_at
		 FROM cycles WHERE project_id = ? ORDER BY id`, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()
	var out []*Cycle
	for rows.Next() {
		var c Cycle
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &c.SourceSystem, &c.UploadFileName, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// --- Bugs ---

const bugColumns = `id, cycle_id, external_id, summary, description, status, priority,
	severity, component, reporter, assignee, created_date, resolved_date, resolution,
	labels, original_type, ml_label, ml_confidence, ml_explanation, duplicate_of_id,
	duplicate_similarity, vector_json, final_label, source, reviewed, reviewed_by,
	override_reason`

func scanBug(row interface{ Scan(...any) error }) (*Bug, error) {
	var b Bug
	var reviewed int
	err := row.Scan(
		&b.ID, &b.CycleID, &b.ExternalID, &b.Summary, &b.Description, &b.Status,
		&b.Priority, &b.Severity, &b.Component, &b.Reporter, &b.Assignee,
		&b.CreatedDate, &b.ResolvedDate, &b.Resolution, &b.Labels, &b.OriginalType,
		&b.MLLabel, &b.MLConfidence, &b.MLExplanation, &b.DuplicateOfID,
		&b.DuplicateSimilarity, &b.VectorJSON, &b.FinalLabel, &b.Source,
		&reviewed, &b.ReviewedBy, &b.OverrideReason,
	)
	if err != nil {
		return nil, err
	}
	b.Reviewed = reviewed != 0
	return &b, nil
}

func (s *SqlStore) BulkCreateBugs(bugs []*Bug) ([]int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin bulk insert: %w", err)
	}
	stmt, err := tx.Prepare(
		`INSERT INTO bugs(cycle_id, external_id, summary, description, status, priority,
			severity, component, reporter, assignee, created_date, resolved_date,
			resolution, labels, original_type)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("prepare bug insert: %w", err)
	}
	ids := make([]int64, 0, len(bugs))
	for _, b := range bugs {
		ot := b.OriginalType
		if ot == "" {
			ot = "Bug"
		}
		res, err := stmt.Exec(
			b.CycleID, b.ExternalID, b.Summary, b.Description, b.Status, b.Priority,
			b.Severity, b.Component, b.Reporter, b.Assignee, b.CreatedDate,
			b.ResolvedDate, b.Resolution, b.Labels, ot,
		)
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("insert bug: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("bug insert id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit bulk insert: %w", err)
	}
	return ids, nil
}

func (s *SqlStore) GetBug(id int64) (*Bug, error) {
	b, err := scanBug(s.db.QueryRow("SELECT "+bugColumns+" FROM bugs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bug: %w", err)
	}
	return b, nil
}

func (s *SqlStore) listBugs(query string, args ...any) ([]*Bug, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bugs: %w", err)
	}
	defer rows.Close()
	var out []*Bug
	for rows.Next() {
		b, err := scanBug(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bug: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListBugsByCycle returns a cycle's bugs in submission order (insert order).
func (s *SqlStore) ListBugsByCycle(cycleID int64) ([]*Bug, error) {
	return s.listBugs("SELECT "+bugColumns+" FROM bugs WHERE cycle_id = ? ORDER BY id", cycleID)
}

// ListReviewedBugs returns every human-reviewed bug across all cycles.
func (s *SqlStore) ListReviewedBugs() ([]*Bug, error) {
	return s.listBugs("SELECT " + bugColumns + " FROM bugs WHERE reviewed = 1 ORDER BY id")
}

// UpdateBugClassification stores a fresh ML classification. The final label
// follows only when the bug has not been human-reviewed: a reviewer's
// decision is never overwritten by a machine on this path.
func (s *SqlStore) UpdateBugClassification(bugID int64, label string, confidence float64, explanation string) error {
	res, err := s.db.Exec(
		`UPDATE bugs SET ml_label = ?, ml_confidence = ?, ml_explanation = ?,
			final_label = CASE WHEN reviewed = 0 THEN ? ELSE final_label END,
			source = CASE WHEN reviewed = 0 THEN 'ml' ELSE source END
		 WHERE id = ?`,
		label, confidence, explanation, label, bugID,
	)
	if err != nil {
		return fmt.Errorf("update classification: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("bug %d not found", bugID)
	}
	return nil
}

// SetBugDuplicate records a duplicate link and marks the bug's labels.
func (s *SqlStore) SetBugDuplicate(bugID, duplicateOfID int64, similarity float64) error {
	res, err := s.db.Exec(
		`UPDATE bugs SET duplicate_of_id = ?, duplicate_similarity = ?,
			ml_label = 'duplicate', final_label = 'duplicate'
		 WHERE id = ?`,
		duplicateOfID, similarity, bugID,
	)
	if err != nil {
		return fmt.Errorf("set duplicate: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("bug %d not found", bugID)
	}
	return nil
}

// SetBugExplanation stores the explanation text and confidence alone (used
// for duplicate explanations, where confidence is the similarity score).
func (s *SqlStore) SetBugExplanation(bugID int64, explanation string, confidence float64) error {
	res, err := s.db.Exec(
		"UPDATE bugs SET ml_explanation = ?, ml_confidence = ? WHERE id = ?",
		explanation, confidence, bugID,
	)
	if err != nil {
		return fmt.Errorf("set explanation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("bug %d not found", bugID)
	}
	return nil
}

func (s *SqlStore) SetBugVector(bugID int64, vectorJSON string) error {
	res, err := s.db.Exec("UPDATE bugs SET vector_json = ? WHERE id = ?", vectorJSON, bugID)
	if err != nil {
		return fmt.Errorf("set vector: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("bug %d not found", bugID)
	}
	return nil
}

// OverrideBugClassification applies a human correction: appends an audit
// entry and marks the bug reviewed with the new final label.
func (s *SqlStore) OverrideBugClassification(bugID int64, newLabel, actor, reason string) (*Bug, error) {
	bug, err := s.GetBug(bugID)
	if err != nil {
		return nil, err
	}
	if bug == nil {
		return nil, fmt.Errorf("bug %d not found", bugID)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin override: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO audit_log(bug_id, previous_label, new_label, source, actor, reason, timestamp)
		 VALUES(?, ?, ?, 'human', ?, ?, ?)`,
		bugID, bug.FinalLabel, newLabel, actor, reason, nowUTC(),
	); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("insert audit entry: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE bugs SET final_label = ?, source = 'human', reviewed = 1,
			reviewed_by = ?, override_reason = ?
		 WHERE id = ?`,
		newLabel, actor, reason, bugID,
	); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("apply override: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit override: %w", err)
	}
	return s.GetBug(bugID)
}

// --- Audit ---

// CountHumanOverrides counts human audit entries strictly after since
// (RFC 3339); an empty since counts all of them. The comparison is strict so
// the override that triggers a retrain is not recounted toward the next one.
func (s *SqlStore) CountHumanOverrides(since string) (int, error) {
	var n int
	var err error
	if since == "" {
		err = s.db.QueryRow("SELECT COUNT(*) FROM audit_log WHERE source = 'human'").Scan(&n)
	} else {
		err = s.db.QueryRow(
			"SELECT COUNT(*) FROM audit_log WHERE source = 'human' AND timestamp > ?", since,
		).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count overrides: %w", err)
	}
	return n, nil
}

func (s *SqlStore) ListAuditForBug(bugID int64) ([]*AuditEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, bug_id, previous_label, new_label, source, actor, reason, timestamp
		 FROM audit_log WHERE bug_id = ? ORDER BY id`, bugID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()
	var out []*AuditEntry
	for rows.Next() {
		var a AuditEntry
		if err := rows.Scan(&a.ID, &a.BugID, &a.PreviousLabel, &a.NewLabel, &a.Source, &a.Actor, &a.Reason, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// --- Model versions ---

// CreateModelVersion inserts a new active version, deactivating all others
// in the same transaction so exactly one version is ever active.
func (s *SqlStore) CreateModelVersion(mv *ModelVersion) (int64, error) {
	if mv == nil {
		return 0, errors.New("model version is nil")
	}
	if mv.TrainedAt == "" {
		mv.TrainedAt = nowUTC()
	}
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin model version insert: %w", err)
	}
	if _, err := tx.Exec("UPDATE model_versions SET active = 0"); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("deactivate model versions: %w", err)
	}
	res, err := tx.Exec(
		`INSERT INTO model_versions(version, trained_at, training_samples, quality_score, model_path, active)
		 VALUES(?, ?, ?, ?, ?, 1)`,
		mv.Version, mv.TrainedAt, mv.TrainingSamples, mv.QualityScore, mv.ModelPath,
	)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("insert model version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit model version: %w", err)
	}
	return res.LastInsertId()
}

func (s *SqlStore) GetActiveModelVersion() (*ModelVersion, error) {
	var mv ModelVersion
	var active int
	err := s.db.QueryRow(
		`SELECT id, version, trained_at, training_samples, quality_score, model_path, active
		 FROM model_versions WHERE active = 1`,
	).Scan(&mv.ID, &mv.Version, &mv.TrainedAt, &mv.TrainingSamples, &mv.QualityScore, &mv.ModelPath, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active model version: %w", err)
	}
	mv.Active = active != 0
	return &mv, nil
}

func (s *SqlStore) ListModelVersions() ([]*ModelVersion, error) {
	rows, err := s.db.Query(
		`SELECT id, version, trained_at, training_samples, quality_score, model_path, active
		 FROM model_versions ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list model versions: %w", err)
	}
	defer rows.Close()
	var out []*ModelVersion
	for rows.Next() {
		var mv ModelVersion
		var active int
		if err := rows.Scan(&mv.ID, &mv.Version, &mv.TrainedAt, &mv.TrainingSamples, &mv.QualityScore, &mv.ModelPath, &active); err != nil {
			return nil, fmt.Errorf("scan model version: %w", err)
		}
		mv.Active = active != 0
		out = append(out, &mv)
	}
	return out, rows.Err()
}

// --- Reporting ---

// CycleBugCounts tallies effective classifications for a cycle: the final
// label when set, the ML label otherwise, "valid" as the fallback.
func (s *SqlStore) CycleBugCounts(cycleID int64) (*CycleCounts, error) {
	bugs, err := s.ListBugsByCycle(cycleID)
	if err != nil {
		return nil, err
	}
	cc := &CycleCounts{Total: len(bugs), Counts: make(map[string]int)}
	for _, b := range bugs {
		cc.Counts[EffectiveLabel(b)]++
	}
	return cc, nil
}

// EffectiveLabel is the classification a report consumer should see: the
// human/ML final label, falling back to the raw ML label, then "valid".
func EffectiveLabel(b *Bug) string {
	if b.FinalLabel != "" {
		return b.FinalLabel
	}
	if b.MLLabel != "" {
		return b.MLLabel
	}
	return "valid"
}

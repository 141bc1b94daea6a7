package store

// schemaVersion1 is the current schema.
const schemaVersion1 = 1

var schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS projects (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cycles (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id       INTEGER NOT NULL REFERENCES projects(id),
	name             TEXT NOT NULL,
	source_system    TEXT NOT NULL DEFAULT 'generic',
	upload_file_name TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bugs (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_id       INTEGER NOT NULL REFERENCES cycles(id),
	external_id    TEXT NOT NULL DEFAULT '',
	summary        TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT '',
	priority       TEXT NOT NULL DEFAULT '',
	severity       TEXT NOT NULL DEFAULT '',
	component      TEXT NOT NULL DEFAULT '',
	reporter       TEXT NOT NULL DEFAULT '',
	assignee       TEXT NOT NULL DEFAULT '',
	created_date   TEXT NOT NULL DEFAULT '',
	resolved_date  TEXT NOT NULL DEFAULT '',
	resolution     TEXT NOT NULL DEFAULT '',
	labels         TEXT NOT NULL DEFAULT '',
	original_type  TEXT NOT NULL DEFAULT 'Bug',

	ml_label       TEXT NOT NULL DEFAULT '',
	ml_confidence  REAL NOT NULL DEFAULT 0,
	ml_explanation TEXT NOT NULL DEFAULT '',

	duplicate_of_id      INTEGER NOT NULL DEFAULT 0,
	duplicate_similarity REAL NOT NULL DEFAULT 0,
	vector_json          TEXT NOT NULL DEFAULT '',

	final_label     TEXT NOT NULL DEFAULT '',
	source          TEXT NOT NULL DEFAULT '',
	reviewed        INTEGER NOT NULL DEFAULT 0,
	reviewed_by     TEXT NOT NULL DEFAULT '',
	override_reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_bugs_cycle ON bugs(cycle_id);
CREATE INDEX IF NOT EXISTS idx_bugs_reviewed ON bugs(reviewed);

CREATE TABLE IF NOT EXISTS audit_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	bug_id         INTEGER NOT NULL REFERENCES bugs(id),
	previous_label TEXT NOT NULL DEFAULT '',
	new_label      TEXT NOT NULL,
	source         TEXT NOT NULL,
	actor          TEXT NOT NULL DEFAULT '',
	reason         TEXT NOT NULL DEFAULT '',
	timestamp      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_bug ON audit_log(bug_id);
CREATE INDEX IF NOT EXISTS idx_audit_source_ts ON audit_log(source, timestamp);

CREATE TABLE IF NOT EXISTS model_versions (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	version          TEXT NOT NULL UNIQUE,
	trained_at       TEXT NOT NULL,
	training_samples INTEGER NOT NULL DEFAULT 0,
	quality_score    REAL NOT NULL DEFAULT 0,
	model_path       TEXT NOT NULL DEFAULT '',
	active           INTEGER NOT NULL DEFAULT 0
);
`

package store

import (
	"context"
	"fmt"
)

// schema is the full sqlite DDL. Statements are idempotent so Migrate can run
// on every startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS organizations (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id                    TEXT PRIMARY KEY,
		org_id                TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
		email                 TEXT NOT NULL,
		role                  TEXT NOT NULL,
		active                INTEGER NOT NULL DEFAULT 1,
		password_hash         TEXT NOT NULL DEFAULT '',
		failed_login_attempts INTEGER NOT NULL DEFAULT 0,
		locked_until          TEXT,
		created_at            TEXT NOT NULL,
		UNIQUE (org_id, email)
	)`,
	`CREATE TABLE IF NOT EXISTS user_invites (
		id         TEXT PRIMARY KEY,
		org_id     TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
		email      TEXT NOT NULL,
		role       TEXT NOT NULL,
		token_hash TEXT NOT NULL UNIQUE,
		invited_by TEXT REFERENCES users(id) ON DELETE SET NULL,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		accepted_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS ai_systems (
		id                 TEXT PRIMARY KEY,
		org_id             TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
		name               TEXT NOT NULL,
		intended_purpose   TEXT NOT NULL DEFAULT '',
		hr_use_case_type   TEXT NOT NULL DEFAULT '',
		deployment_type    TEXT NOT NULL DEFAULT '',
		decision_influence TEXT NOT NULL DEFAULT '',
		owner_user_id      TEXT REFERENCES users(id) ON DELETE SET NULL,
		row_version        INTEGER NOT NULL DEFAULT 1,
		created_at         TEXT NOT NULL,
		updated_at         TEXT NOT NULL,
		UNIQUE (org_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS system_versions (
		id           TEXT PRIMARY KEY,
		ai_system_id TEXT NOT NULL REFERENCES ai_systems(id) ON DELETE CASCADE,
		label        TEXT NOT NULL,
		status       TEXT NOT NULL DEFAULT 'draft',
		notes        TEXT NOT NULL DEFAULT '',
		release_date TEXT,
		approved_by  TEXT,
		approved_at  TEXT,
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL,
		UNIQUE (ai_system_id, label)
	)`,
	`CREATE TABLE IF NOT EXISTS annex_sections (
		id                 TEXT PRIMARY KEY,
		version_id         TEXT NOT NULL REFERENCES system_versions(id) ON DELETE CASCADE,
		section_key        TEXT NOT NULL,
		content            TEXT NOT NULL DEFAULT '{}',
		evidence_refs      TEXT NOT NULL DEFAULT '[]',
		completeness_score REAL NOT NULL DEFAULT 0,
		llm_assisted       INTEGER NOT NULL DEFAULT 0,
		last_edited_by     TEXT,
		updated_at         TEXT NOT NULL,
		UNIQUE (version_id, section_key)
	)`,
	`CREATE TABLE IF NOT EXISTS evidence_items (
		id             TEXT PRIMARY KEY,
		org_id         TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
		type           TEXT NOT NULL,
		title          TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		tags           TEXT NOT NULL DEFAULT '[]',
		classification TEXT NOT NULL DEFAULT 'internal',
		type_metadata  TEXT NOT NULL DEFAULT '{}',
		created_by     TEXT,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL
	)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS evidence_fts USING fts5(
		title, description,
		content='evidence_items', content_rowid='rowid'
	)`,
	`CREATE TRIGGER IF NOT EXISTS evidence_fts_ai AFTER INSERT ON evidence_items BEGIN
		INSERT INTO evidence_fts(rowid, title, description)
		VALUES (new.rowid, new.title, new.description);
	END`,
	`CREATE TRIGGER IF NOT EXISTS evidence_fts_ad AFTER DELETE ON evidence_items BEGIN
		INSERT INTO evidence_fts(evidence_fts, rowid, title, description)
		VALUES ('delete', old.rowid, old.title, old.description);
	END`,
	`CREATE TRIGGER IF NOT EXISTS evidence_fts_au AFTER UPDATE ON evidence_items BEGIN
		INSERT INTO evidence_fts(evidence_fts, rowid, title, description)
		VALUES ('delete', old.rowid, old.title, old.description);
		INSERT INTO evidence_fts(rowid, title, description)
		VALUES (new.rowid, new.title, new.description);
	END`,
	`CREATE TABLE IF NOT EXISTS evidence_mappings (
		id          TEXT PRIMARY KEY,
		evidence_id TEXT NOT NULL REFERENCES evidence_items(id) ON DELETE CASCADE,
		version_id  TEXT NOT NULL REFERENCES system_versions(id) ON DELETE CASCADE,
		target_type TEXT NOT NULL,
		target_key  TEXT NOT NULL,
		strength    TEXT,
		notes       TEXT NOT NULL DEFAULT '',
		created_by  TEXT,
		created_at  TEXT NOT NULL,
		UNIQUE (evidence_id, version_id, target_type, target_key)
	)`,
	`CREATE TABLE IF NOT EXISTS exports (
		id                 TEXT PRIMARY KEY,
		version_id         TEXT NOT NULL REFERENCES system_versions(id) ON DELETE CASCADE,
		export_type        TEXT NOT NULL,
		snapshot_hash      TEXT NOT NULL,
		storage_uri        TEXT NOT NULL,
		file_size          INTEGER NOT NULL DEFAULT 0,
		compare_version_id TEXT,
		completeness_score REAL NOT NULL DEFAULT 0,
		created_by         TEXT,
		created_at         TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS log_api_keys (
		id            TEXT PRIMARY KEY,
		version_id    TEXT NOT NULL REFERENCES system_versions(id) ON DELETE CASCADE,
		name          TEXT NOT NULL DEFAULT '',
		key_hash      TEXT NOT NULL UNIQUE,
		allow_raw_pii INTEGER NOT NULL DEFAULT 0,
		created_by    TEXT,
		created_at    TEXT NOT NULL,
		revoked_at    TEXT,
		last_used_at  TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS decision_logs (
		id          TEXT PRIMARY KEY,
		version_id  TEXT NOT NULL REFERENCES system_versions(id) ON DELETE CASCADE,
		event_id    TEXT NOT NULL,
		event_json  TEXT NOT NULL,
		event_time  TEXT NOT NULL,
		ingested_at TEXT NOT NULL,
		UNIQUE (version_id, event_id)
	)`,
	`CREATE INDEX IF NOT EXISTS decision_logs_time_idx
		ON decision_logs (version_id, event_time)`,
	`CREATE TABLE IF NOT EXISTS high_risk_assessments (
		id           TEXT PRIMARY KEY,
		ai_system_id TEXT NOT NULL REFERENCES ai_systems(id) ON DELETE CASCADE,
		score        INTEGER NOT NULL DEFAULT 0,
		risk_level   TEXT NOT NULL,
		rationale    TEXT NOT NULL DEFAULT '[]',
		created_at   TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
		id          TEXT PRIMARY KEY,
		org_id      TEXT NOT NULL,
		user_id     TEXT REFERENCES users(id) ON DELETE SET NULL,
		action      TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id   TEXT NOT NULL,
		diff_json   TEXT,
		ip          TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS audit_events_org_idx
		ON audit_events (org_id, created_at)`,
	// Audit rows are append-only. The single permitted update is the FK
	// cascade that nulls user_id when the actor account is deleted.
	`CREATE TRIGGER IF NOT EXISTS audit_events_no_update BEFORE UPDATE ON audit_events
	WHEN NOT (
		new.user_id IS NULL
		AND new.id = old.id
		AND new.org_id = old.org_id
		AND new.action = old.action
		AND new.entity_type = old.entity_type
		AND new.entity_id = old.entity_id
		AND COALESCE(new.diff_json, '') = COALESCE(old.diff_json, '')
		AND new.ip = old.ip
		AND new.created_at = old.created_at
	)
	BEGIN
		SELECT RAISE(ABORT, 'audit events are append-only');
	END`,
	`CREATE TRIGGER IF NOT EXISTS audit_events_no_delete BEFORE DELETE ON audit_events
	BEGIN
		SELECT RAISE(ABORT, 'audit events are append-only');
	END`,
}

// Migrate creates all tables, indexes and triggers.
func Migrate(ctx context.Context, q Querier) error {
	for _, stmt := range schema {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

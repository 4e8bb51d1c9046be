package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/complia/complia/pkg/model"
)

// PostgresArchive mirrors audit events into a long-retention Postgres table,
// for deployments that keep the primary registry on sqlite but need audit
// retention beyond the host's lifetime. Archiving is asynchronous and best
// effort; the authoritative record stays in the primary store.
type PostgresArchive struct {
	db *sql.DB
}

// OpenPostgresArchive connects to Postgres and creates the archive table.
func OpenPostgresArchive(ctx context.Context, dsn string) (*PostgresArchive, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}
	a := &PostgresArchive{db: db}
	if err := a.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// NewPostgresArchive wraps an existing connection, for tests.
func NewPostgresArchive(db *sql.DB) *PostgresArchive {
	return &PostgresArchive{db: db}
}

func (a *PostgresArchive) migrate(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_archive (
			id          TEXT PRIMARY KEY,
			org_id      TEXT NOT NULL,
			user_id     TEXT,
			action      TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id   TEXT NOT NULL,
			diff_json   JSONB,
			ip          TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("archive migration failed: %w", err)
	}
	return nil
}

// Archive copies one event into the archive. Replays of an already archived
// id are ignored so the sink can be fed at-least-once.
func (a *PostgresArchive) Archive(ctx context.Context, e *model.AuditEvent) error {
	var diff any
	if e.DiffJSON != nil {
		b, err := json.Marshal(e.DiffJSON)
		if err != nil {
			return fmt.Errorf("failed to encode diff: %w", err)
		}
		diff = string(b)
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO audit_archive (id, org_id, user_id, action, entity_type, entity_id, diff_json, ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.OrgID, e.UserID, e.Action, e.EntityType, e.EntityID,
		diff, e.IP, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to archive audit event: %w", err)
	}
	return nil
}

func (a *PostgresArchive) Close() error {
	return a.db.Close()
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/model"
)

// ExportStore persists export records. Exports are never updated or deleted;
// each row is a permanent record of a generated package.
type ExportStore struct {
	q Querier
}

func NewExportStore(q Querier) *ExportStore {
	return &ExportStore{q: q}
}

const exportCols = `id, version_id, export_type, snapshot_hash, storage_uri,
	file_size, compare_version_id, completeness_score, created_by, created_at`

func (s *ExportStore) Create(ctx context.Context, e *model.Export) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO exports (`+exportCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.VersionID, string(e.ExportType), e.SnapshotHash, e.StorageURI,
		e.FileSize, ptrArg(e.CompareVersionID), e.CompletenessScore,
		ptrArg(e.CreatedBy), fmtTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create export: %w", err)
	}
	return nil
}

// Get loads an export, verifying org ownership through the version join.
func (s *ExportStore) Get(ctx context.Context, orgID, id string) (*model.Export, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT e.id, e.version_id, e.export_type, e.snapshot_hash, e.storage_uri,
			e.file_size, e.compare_version_id, e.completeness_score,
			e.created_by, e.created_at
		 FROM exports e
		 JOIN system_versions v ON v.id = e.version_id
		 JOIN ai_systems s ON s.id = v.ai_system_id
		 WHERE e.id = ? AND s.org_id = ?`, id, orgID)
	return scanExportFrom(row)
}

func (s *ExportStore) ListByVersion(ctx context.Context, versionID string) ([]*model.Export, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+exportCols+` FROM exports WHERE version_id = ?
		 ORDER BY created_at DESC, id DESC`, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list exports: %w", err)
	}
	defer rows.Close()

	var out []*model.Export
	for rows.Next() {
		e, err := scanExportFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanExportFrom(sc rowScanner) (*model.Export, error) {
	var e model.Export
	var exportType string
	var compareVersion, createdBy sql.NullString
	var createdAt string
	err := sc.Scan(&e.ID, &e.VersionID, &exportType, &e.SnapshotHash,
		&e.StorageURI, &e.FileSize, &compareVersion, &e.CompletenessScore,
		&createdBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("export not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}
	e.ExportType = model.ExportType(exportType)
	e.CompareVersionID = strPtr(compareVersion)
	e.CreatedBy = strPtr(createdBy)
	e.CreatedAt = parseTime(createdAt)
	return &e, nil
}

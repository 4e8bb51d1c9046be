package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/model"
)

// VersionStore persists documentation versions.
type VersionStore struct {
	q Querier
}

func NewVersionStore(q Querier) *VersionStore {
	return &VersionStore{q: q}
}

const versionCols = `id, ai_system_id, label, status, notes, release_date,
	approved_by, approved_at, created_at, updated_at`

func (s *VersionStore) Create(ctx context.Context, v *model.SystemVersion) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO system_versions (`+versionCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.AISystemID, v.Label, string(v.Status), v.Notes,
		ptrArg(v.ReleaseDate), ptrArg(v.ApprovedBy), ptrArg(v.ApprovedAt),
		fmtTime(v.CreatedAt), fmtTime(v.UpdatedAt))
	if IsUniqueViolation(err) {
		return apperr.Conflict("version label %q already used for this system", v.Label)
	}
	if err != nil {
		return fmt.Errorf("failed to create version: %w", err)
	}
	return nil
}

// Get loads a version, verifying through the system join that it belongs to
// orgID.
func (s *VersionStore) Get(ctx context.Context, orgID, systemID, id string) (*model.SystemVersion, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT v.id, v.ai_system_id, v.label, v.status, v.notes, v.release_date,
			v.approved_by, v.approved_at, v.created_at, v.updated_at
		 FROM system_versions v
		 JOIN ai_systems s ON s.id = v.ai_system_id
		 WHERE v.id = ? AND v.ai_system_id = ? AND s.org_id = ?`,
		id, systemID, orgID)
	return scanVersionFrom(row)
}

// GetByID loads a version by id alone, returning the owning org for callers
// that authenticate by other means, such as log API keys.
func (s *VersionStore) GetByID(ctx context.Context, id string) (*model.SystemVersion, string, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT v.id, v.ai_system_id, v.label, v.status, v.notes, v.release_date,
			v.approved_by, v.approved_at, v.created_at, v.updated_at, s.org_id
		 FROM system_versions v
		 JOIN ai_systems s ON s.id = v.ai_system_id
		 WHERE v.id = ?`, id)

	var v model.SystemVersion
	var status string
	var releaseDate, approvedBy, approvedAt sql.NullString
	var createdAt, updatedAt, orgID string
	err := row.Scan(&v.ID, &v.AISystemID, &v.Label, &status, &v.Notes,
		&releaseDate, &approvedBy, &approvedAt, &createdAt, &updatedAt, &orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", apperr.NotFound("version not found")
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read version: %w", err)
	}
	v.Status = model.VersionStatus(status)
	v.ReleaseDate = strPtr(releaseDate)
	v.ApprovedBy = strPtr(approvedBy)
	v.ApprovedAt = strPtr(approvedAt)
	v.CreatedAt = parseTime(createdAt)
	v.UpdatedAt = parseTime(updatedAt)
	return &v, orgID, nil
}

func (s *VersionStore) ListBySystem(ctx context.Context, systemID string) ([]*model.SystemVersion, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+versionCols+` FROM system_versions WHERE ai_system_id = ?
		 ORDER BY created_at DESC, id DESC`, systemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var out []*model.SystemVersion
	for rows.Next() {
		v, err := scanVersionFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *VersionStore) Update(ctx context.Context, v *model.SystemVersion) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE system_versions SET
			status = ?, notes = ?, release_date = ?,
			approved_by = ?, approved_at = ?, updated_at = ?
		 WHERE id = ?`,
		string(v.Status), v.Notes, ptrArg(v.ReleaseDate),
		ptrArg(v.ApprovedBy), ptrArg(v.ApprovedAt), fmtTime(v.UpdatedAt), v.ID)
	if err != nil {
		return fmt.Errorf("failed to update version: %w", err)
	}
	return requireRow(res, "version not found")
}

func (s *VersionStore) Delete(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM system_versions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete version: %w", err)
	}
	return requireRow(res, "version not found")
}

// HasExports reports whether at least one export exists for the version. An
// approved version with an export is frozen.
func (s *VersionStore) HasExports(ctx context.Context, versionID string) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM exports WHERE version_id = ?`, versionID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count exports: %w", err)
	}
	return n > 0, nil
}

func scanVersionFrom(sc rowScanner) (*model.SystemVersion, error) {
	var v model.SystemVersion
	var status string
	var releaseDate, approvedBy, approvedAt sql.NullString
	var createdAt, updatedAt string
	err := sc.Scan(&v.ID, &v.AISystemID, &v.Label, &status, &v.Notes,
		&releaseDate, &approvedBy, &approvedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("version not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	v.Status = model.VersionStatus(status)
	v.ReleaseDate = strPtr(releaseDate)
	v.ApprovedBy = strPtr(approvedBy)
	v.ApprovedAt = strPtr(approvedAt)
	v.CreatedAt = parseTime(createdAt)
	v.UpdatedAt = parseTime(updatedAt)
	return &v, nil
}

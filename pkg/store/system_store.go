package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/model"
)

// SystemStore persists AI systems.
type SystemStore struct {
	q Querier
}

func NewSystemStore(q Querier) *SystemStore {
	return &SystemStore{q: q}
}

const systemCols = `id, org_id, name, intended_purpose, hr_use_case_type,
	deployment_type, decision_influence, owner_user_id, row_version,
	created_at, updated_at`

func (s *SystemStore) Create(ctx context.Context, sys *model.AISystem) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO ai_systems (`+systemCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sys.ID, sys.OrgID, sys.Name, sys.IntendedPurpose, sys.HRUseCaseType,
		sys.DeploymentType, sys.DecisionInfluence, ptrArg(sys.OwnerUserID),
		sys.RowVersion, fmtTime(sys.CreatedAt), fmtTime(sys.UpdatedAt))
	if IsUniqueViolation(err) {
		return apperr.Conflict("system %q already exists in this organization", sys.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to create system: %w", err)
	}
	return nil
}

func (s *SystemStore) Get(ctx context.Context, orgID, id string) (*model.AISystem, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+systemCols+` FROM ai_systems WHERE id = ? AND org_id = ?`, id, orgID)
	return scanSystemFrom(row)
}

func (s *SystemStore) List(ctx context.Context, orgID string, limit, offset int) ([]*model.AISystem, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+systemCols+` FROM ai_systems WHERE org_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		orgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list systems: %w", err)
	}
	defer rows.Close()

	var out []*model.AISystem
	for rows.Next() {
		sys, err := scanSystemFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sys)
	}
	return out, rows.Err()
}

// Update applies an optimistic-concurrency write: the row is updated only if
// its stored row_version still equals expectedVersion, and the counter is
// bumped in the same statement. A stale expectedVersion surfaces as a
// conflict.
func (s *SystemStore) Update(ctx context.Context, sys *model.AISystem, expectedVersion int64) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE ai_systems SET
			name = ?, intended_purpose = ?, hr_use_case_type = ?,
			deployment_type = ?, decision_influence = ?, owner_user_id = ?,
			row_version = row_version + 1, updated_at = ?
		 WHERE id = ? AND org_id = ? AND row_version = ?`,
		sys.Name, sys.IntendedPurpose, sys.HRUseCaseType,
		sys.DeploymentType, sys.DecisionInfluence, ptrArg(sys.OwnerUserID),
		fmtTime(sys.UpdatedAt), sys.ID, sys.OrgID, expectedVersion)
	if IsUniqueViolation(err) {
		return apperr.Conflict("system %q already exists in this organization", sys.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to update system: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read result: %w", err)
	}
	if n == 0 {
		// Distinguish a missing row from a stale version.
		if _, gerr := s.Get(ctx, sys.OrgID, sys.ID); gerr != nil {
			return gerr
		}
		return apperr.Conflict("system was modified concurrently, reload and retry")
	}
	sys.RowVersion = expectedVersion + 1
	return nil
}

func (s *SystemStore) Delete(ctx context.Context, orgID, id string) error {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM ai_systems WHERE id = ? AND org_id = ?`, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete system: %w", err)
	}
	return requireRow(res, "system not found")
}

func scanSystemFrom(sc rowScanner) (*model.AISystem, error) {
	var sys model.AISystem
	var owner sql.NullString
	var createdAt, updatedAt string
	err := sc.Scan(&sys.ID, &sys.OrgID, &sys.Name, &sys.IntendedPurpose,
		&sys.HRUseCaseType, &sys.DeploymentType, &sys.DecisionInfluence,
		&owner, &sys.RowVersion, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("system not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read system: %w", err)
	}
	sys.OwnerUserID = strPtr(owner)
	sys.CreatedAt = parseTime(createdAt)
	sys.UpdatedAt = parseTime(updatedAt)
	return &sys, nil
}

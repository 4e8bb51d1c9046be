package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/model"
)

// OrgStore persists organizations.
type OrgStore struct {
	q Querier
}

func NewOrgStore(q Querier) *OrgStore {
	return &OrgStore{q: q}
}

func (s *OrgStore) Create(ctx context.Context, org *model.Organization) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO organizations (id, name, created_at) VALUES (?, ?, ?)`,
		org.ID, org.Name, fmtTime(org.CreatedAt))
	if IsUniqueViolation(err) {
		return apperr.Conflict("organization %q already exists", org.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

func (s *OrgStore) Get(ctx context.Context, id string) (*model.Organization, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM organizations WHERE id = ?`, id)
	return scanOrg(row)
}

func (s *OrgStore) GetByName(ctx context.Context, name string) (*model.Organization, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM organizations WHERE name = ?`, name)
	return scanOrg(row)
}

func scanOrg(row *sql.Row) (*model.Organization, error) {
	var org model.Organization
	var createdAt string
	err := row.Scan(&org.ID, &org.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("organization not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read organization: %w", err)
	}
	org.CreatedAt = parseTime(createdAt)
	return &org, nil
}

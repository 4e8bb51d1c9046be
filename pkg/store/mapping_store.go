package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/model"
)

// MappingFilter narrows a mapping listing for one version.
type MappingFilter struct {
	TargetType model.TargetType
	TargetKey  string // exact match, or prefix match when it ends in '*'
}

// MappingWithEvidence is a listing row: the mapping joined with summary
// fields of the referenced evidence item.
type MappingWithEvidence struct {
	model.EvidenceMapping
	EvidenceTitle string             `json:"evidence_title"`
	EvidenceType  model.EvidenceType `json:"evidence_type"`
}

// MappingStore persists evidence-to-version mappings.
type MappingStore struct {
	q Querier
}

func NewMappingStore(q Querier) *MappingStore {
	return &MappingStore{q: q}
}

const mappingCols = `id, evidence_id, version_id, target_type, target_key,
	strength, notes, created_by, created_at`

func (s *MappingStore) Create(ctx context.Context, m *model.EvidenceMapping) error {
	var strength any
	if m.Strength != "" {
		strength = string(m.Strength)
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO evidence_mappings (`+mappingCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.EvidenceID, m.VersionID, string(m.TargetType), m.TargetKey,
		strength, m.Notes, ptrArg(m.CreatedBy), fmtTime(m.CreatedAt))
	if IsUniqueViolation(err) {
		return apperr.Conflict("this evidence is already mapped to that target")
	}
	if err != nil {
		return fmt.Errorf("failed to create mapping: %w", err)
	}
	return nil
}

func (s *MappingStore) Get(ctx context.Context, id string) (*model.EvidenceMapping, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+mappingCols+` FROM evidence_mappings WHERE id = ?`, id)
	return scanMappingFrom(row)
}

func (s *MappingStore) ListByVersion(ctx context.Context, versionID string, f MappingFilter) ([]*MappingWithEvidence, error) {
	var sb strings.Builder
	args := []any{versionID}

	sb.WriteString(`SELECT m.id, m.evidence_id, m.version_id, m.target_type,
		m.target_key, m.strength, m.notes, m.created_by, m.created_at,
		e.title, e.type
		FROM evidence_mappings m
		JOIN evidence_items e ON e.id = m.evidence_id
		WHERE m.version_id = ?`)

	if f.TargetType != "" {
		sb.WriteString(` AND m.target_type = ?`)
		args = append(args, string(f.TargetType))
	}
	if f.TargetKey != "" {
		if strings.HasSuffix(f.TargetKey, "*") {
			sb.WriteString(` AND m.target_key LIKE ? ESCAPE '\'`)
			args = append(args, likeEscape(strings.TrimSuffix(f.TargetKey, "*"))+"%")
		} else {
			sb.WriteString(` AND m.target_key = ?`)
			args = append(args, f.TargetKey)
		}
	}
	sb.WriteString(` ORDER BY m.target_key ASC, m.created_at ASC, m.id ASC`)

	rows, err := s.q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	defer rows.Close()

	var out []*MappingWithEvidence
	for rows.Next() {
		var row MappingWithEvidence
		var targetType string
		var strength, createdBy sql.NullString
		var createdAt, evType string
		err := rows.Scan(&row.ID, &row.EvidenceID, &row.VersionID, &targetType,
			&row.TargetKey, &strength, &row.Notes, &createdBy, &createdAt,
			&row.EvidenceTitle, &evType)
		if err != nil {
			return nil, fmt.Errorf("failed to read mapping: %w", err)
		}
		row.TargetType = model.TargetType(targetType)
		if strength.Valid {
			row.Strength = model.MappingStrength(strength.String)
		}
		row.CreatedBy = strPtr(createdBy)
		row.CreatedAt = parseTime(createdAt)
		row.EvidenceType = model.EvidenceType(evType)
		out = append(out, &row)
	}
	return out, rows.Err()
}

// ListByEvidence returns all mappings of one evidence item across versions.
func (s *MappingStore) ListByEvidence(ctx context.Context, evidenceID string) ([]*model.EvidenceMapping, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+mappingCols+` FROM evidence_mappings
		 WHERE evidence_id = ? ORDER BY created_at ASC, id ASC`, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	defer rows.Close()

	var out []*model.EvidenceMapping
	for rows.Next() {
		m, err := scanMappingFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *MappingStore) Delete(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM evidence_mappings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete mapping: %w", err)
	}
	return requireRow(res, "mapping not found")
}

// DeleteByEvidence removes every mapping of an evidence item, returning the
// number removed. Used by force deletion.
func (s *MappingStore) DeleteByEvidence(ctx context.Context, evidenceID string) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM evidence_mappings WHERE evidence_id = ?`, evidenceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete mappings: %w", err)
	}
	return res.RowsAffected()
}

// CountByEvidence backs the deletion guard for referenced evidence.
func (s *MappingStore) CountByEvidence(ctx context.Context, evidenceID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM evidence_mappings WHERE evidence_id = ?`,
		evidenceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count mappings: %w", err)
	}
	return n, nil
}

func scanMappingFrom(sc rowScanner) (*model.EvidenceMapping, error) {
	var m model.EvidenceMapping
	var targetType string
	var strength, createdBy sql.NullString
	var createdAt string
	err := sc.Scan(&m.ID, &m.EvidenceID, &m.VersionID, &targetType,
		&m.TargetKey, &strength, &m.Notes, &createdBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("mapping not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping: %w", err)
	}
	m.TargetType = model.TargetType(targetType)
	if strength.Valid {
		m.Strength = model.MappingStrength(strength.String)
	}
	m.CreatedBy = strPtr(createdBy)
	m.CreatedAt = parseTime(createdAt)
	return &m, nil
}

func likeEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

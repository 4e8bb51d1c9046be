package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/model"
)

// SectionStore persists Annex IV section documents.
type SectionStore struct {
	q Querier
}

func NewSectionStore(q Querier) *SectionStore {
	return &SectionStore{q: q}
}

const sectionCols = `id, version_id, section_key, content, evidence_refs,
	completeness_score, llm_assisted, last_edited_by, updated_at`

// EnsureForVersion lazily materializes the full section set for a version.
// Already existing rows are left untouched, so concurrent initializers
// converge on one row per key.
func (s *SectionStore) EnsureForVersion(ctx context.Context, versionID string, now string) error {
	for _, key := range model.SectionKeys {
		_, err := s.q.ExecContext(ctx,
			`INSERT INTO annex_sections (id, version_id, section_key, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (version_id, section_key) DO NOTHING`,
			uuid.New().String(), versionID, key, now)
		if err != nil {
			return fmt.Errorf("failed to initialize section %s: %w", key, err)
		}
	}
	return nil
}

func (s *SectionStore) Get(ctx context.Context, versionID, sectionKey string) (*model.AnnexSection, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+sectionCols+` FROM annex_sections
		 WHERE version_id = ? AND section_key = ?`, versionID, sectionKey)
	return scanSectionFrom(row)
}

func (s *SectionStore) ListByVersion(ctx context.Context, versionID string) ([]*model.AnnexSection, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+sectionCols+` FROM annex_sections
		 WHERE version_id = ? ORDER BY section_key ASC`, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sections: %w", err)
	}
	defer rows.Close()

	var out []*model.AnnexSection
	for rows.Next() {
		sec, err := scanSectionFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sec)
	}
	return out, rows.Err()
}

// ListByEvidenceRef finds every section in the org whose evidence_refs array
// contains the given evidence id. Used by the force-delete cascade.
func (s *SectionStore) ListByEvidenceRef(ctx context.Context, orgID, evidenceID string) ([]*model.AnnexSection, error) {
	needle, err := json.Marshal(evidenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to encode evidence id: %w", err)
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT s.id, s.version_id, s.section_key, s.content, s.evidence_refs,
			s.completeness_score, s.llm_assisted, s.last_edited_by, s.updated_at
		 FROM annex_sections s
		 JOIN system_versions v ON v.id = s.version_id
		 JOIN ai_systems a ON a.id = v.ai_system_id
		 WHERE a.org_id = ? AND instr(s.evidence_refs, ?) > 0
		 ORDER BY s.section_key ASC`, orgID, string(needle))
	if err != nil {
		return nil, fmt.Errorf("failed to find referencing sections: %w", err)
	}
	defer rows.Close()

	var out []*model.AnnexSection
	for rows.Next() {
		sec, err := scanSectionFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sec)
	}
	return out, rows.Err()
}

func (s *SectionStore) Update(ctx context.Context, sec *model.AnnexSection) error {
	content, err := json.Marshal(sec.Content)
	if err != nil {
		return fmt.Errorf("failed to encode section content: %w", err)
	}
	refs, err := json.Marshal(nonNilStrings(sec.EvidenceRefs))
	if err != nil {
		return fmt.Errorf("failed to encode evidence refs: %w", err)
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE annex_sections SET
			content = ?, evidence_refs = ?, completeness_score = ?,
			llm_assisted = ?, last_edited_by = ?, updated_at = ?
		 WHERE id = ?`,
		string(content), string(refs), sec.CompletenessScore,
		boolInt(sec.LLMAssisted), ptrArg(sec.LastEditedBy), fmtTime(sec.UpdatedAt),
		sec.ID)
	if err != nil {
		return fmt.Errorf("failed to update section: %w", err)
	}
	return requireRow(res, "section not found")
}

func scanSectionFrom(sc rowScanner) (*model.AnnexSection, error) {
	var sec model.AnnexSection
	var content, refs string
	var llmAssisted int
	var lastEditedBy sql.NullString
	var updatedAt string
	err := sc.Scan(&sec.ID, &sec.VersionID, &sec.SectionKey, &content, &refs,
		&sec.CompletenessScore, &llmAssisted, &lastEditedBy, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("section not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read section: %w", err)
	}
	if err := json.Unmarshal([]byte(content), &sec.Content); err != nil {
		return nil, fmt.Errorf("corrupt section content: %w", err)
	}
	if err := json.Unmarshal([]byte(refs), &sec.EvidenceRefs); err != nil {
		return nil, fmt.Errorf("corrupt evidence refs: %w", err)
	}
	if sec.Content == nil {
		sec.Content = map[string]any{}
	}
	if sec.EvidenceRefs == nil {
		sec.EvidenceRefs = []string{}
	}
	sec.LLMAssisted = llmAssisted != 0
	sec.LastEditedBy = strPtr(lastEditedBy)
	sec.UpdatedAt = parseTime(updatedAt)
	return &sec, nil
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

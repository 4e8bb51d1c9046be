package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/model"
)

// EvidenceFilter narrows an evidence listing. Zero values mean "no filter".
// Tags are conjunctive. Search runs against the full-text index over title
// and description. Orphaned is tri-state: true selects items with no
// mappings, false items with at least one, nil everything.
type EvidenceFilter struct {
	Type           model.EvidenceType
	Classification model.Classification
	Tags           []string
	Search         string
	Orphaned       *bool
	Limit          int
	Offset         int
}

// maxEvidencePage caps the listing page size.
const maxEvidencePage = 1000

// EvidenceWithUsage is a listing row: the item plus how many mappings
// reference it.
type EvidenceWithUsage struct {
	model.EvidenceItem
	UsageCount int `json:"usage_count"`
}

// EvidenceStore persists org-scoped evidence items.
type EvidenceStore struct {
	q Querier
}

func NewEvidenceStore(q Querier) *EvidenceStore {
	return &EvidenceStore{q: q}
}

const evidenceCols = `id, org_id, type, title, description, tags,
	classification, type_metadata, created_by, created_at, updated_at`

func (s *EvidenceStore) Create(ctx context.Context, e *model.EvidenceItem) error {
	tags, err := json.Marshal(nonNilStrings(e.Tags))
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	meta, err := json.Marshal(e.TypeMetadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO evidence_items (`+evidenceCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OrgID, string(e.Type), e.Title, e.Description, string(tags),
		string(e.Classification), string(meta), ptrArg(e.CreatedBy),
		fmtTime(e.CreatedAt), fmtTime(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create evidence: %w", err)
	}
	return nil
}

func (s *EvidenceStore) Get(ctx context.Context, orgID, id string) (*model.EvidenceItem, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+evidenceCols+` FROM evidence_items WHERE id = ? AND org_id = ?`,
		id, orgID)
	return scanEvidenceFrom(row)
}

// GetMany loads a batch of evidence items by id within one org. Missing ids
// are silently absent from the result.
func (s *EvidenceStore) GetMany(ctx context.Context, orgID string, ids []string) (map[string]*model.EvidenceItem, error) {
	out := make(map[string]*model.EvidenceItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, orgID)
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+evidenceCols+` FROM evidence_items
		 WHERE org_id = ? AND id IN (`+strings.Join(placeholders, ", ")+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load evidence batch: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEvidenceFrom(rows)
		if err != nil {
			return nil, err
		}
		out[e.ID] = e
	}
	return out, rows.Err()
}

func (s *EvidenceStore) List(ctx context.Context, orgID string, f EvidenceFilter) ([]*EvidenceWithUsage, error) {
	var sb strings.Builder
	args := []any{}

	sb.WriteString(`SELECT e.id, e.org_id, e.type, e.title, e.description, e.tags,
		e.classification, e.type_metadata, e.created_by, e.created_at, e.updated_at,
		(SELECT COUNT(*) FROM evidence_mappings m WHERE m.evidence_id = e.id) AS usage_count
		FROM evidence_items e WHERE e.org_id = ?`)
	args = append(args, orgID)

	if f.Type != "" {
		sb.WriteString(` AND e.type = ?`)
		args = append(args, string(f.Type))
	}
	if f.Classification != "" {
		sb.WriteString(` AND e.classification = ?`)
		args = append(args, string(f.Classification))
	}
	for _, tag := range f.Tags {
		// Tags are stored as a JSON array; match the encoded element.
		enc, err := json.Marshal(tag)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tag filter: %w", err)
		}
		sb.WriteString(` AND instr(e.tags, ?) > 0`)
		args = append(args, string(enc))
	}
	if f.Search != "" {
		sb.WriteString(` AND e.rowid IN (SELECT rowid FROM evidence_fts WHERE evidence_fts MATCH ?)`)
		args = append(args, ftsQuery(f.Search))
	}
	if f.Orphaned != nil {
		if *f.Orphaned {
			sb.WriteString(` AND NOT EXISTS (SELECT 1 FROM evidence_mappings m WHERE m.evidence_id = e.id)`)
		} else {
			sb.WriteString(` AND EXISTS (SELECT 1 FROM evidence_mappings m WHERE m.evidence_id = e.id)`)
		}
	}

	sb.WriteString(` ORDER BY e.created_at DESC, e.id DESC`)
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > maxEvidencePage {
		limit = maxEvidencePage
	}
	sb.WriteString(` LIMIT ? OFFSET ?`)
	args = append(args, limit, f.Offset)

	rows, err := s.q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence: %w", err)
	}
	defer rows.Close()

	var out []*EvidenceWithUsage
	for rows.Next() {
		var item EvidenceWithUsage
		if err := scanEvidenceInto(rows, &item.EvidenceItem, &item.UsageCount); err != nil {
			return nil, err
		}
		out = append(out, &item)
	}
	return out, rows.Err()
}

// Update persists the mutable fields. Type and, for uploads, the binary
// metadata are immutable and enforced by the service layer.
func (s *EvidenceStore) Update(ctx context.Context, e *model.EvidenceItem) error {
	tags, err := json.Marshal(nonNilStrings(e.Tags))
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	meta, err := json.Marshal(e.TypeMetadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE evidence_items SET
			title = ?, description = ?, tags = ?, classification = ?,
			type_metadata = ?, updated_at = ?
		 WHERE id = ? AND org_id = ?`,
		e.Title, e.Description, string(tags), string(e.Classification),
		string(meta), fmtTime(e.UpdatedAt), e.ID, e.OrgID)
	if err != nil {
		return fmt.Errorf("failed to update evidence: %w", err)
	}
	return requireRow(res, "evidence not found")
}

func (s *EvidenceStore) Delete(ctx context.Context, orgID, id string) error {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM evidence_items WHERE id = ? AND org_id = ?`, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete evidence: %w", err)
	}
	return requireRow(res, "evidence not found")
}

// FindByChecksum returns the oldest upload in the org with the given content
// checksum, for duplicate detection. No match returns (nil, nil).
func (s *EvidenceStore) FindByChecksum(ctx context.Context, orgID, checksum string) (*model.EvidenceItem, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+evidenceCols+` FROM evidence_items
		 WHERE org_id = ? AND type = ?
		   AND json_extract(type_metadata, '$.checksum_sha256') = ?
		 ORDER BY created_at ASC, id ASC LIMIT 1`,
		orgID, string(model.EvidenceUpload), checksum)
	e, err := scanEvidenceFrom(row)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return nil, nil
	}
	return e, err
}

func scanEvidenceFrom(sc rowScanner) (*model.EvidenceItem, error) {
	var e model.EvidenceItem
	if err := scanEvidenceInto(sc, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func scanEvidenceInto(sc rowScanner, e *model.EvidenceItem, extra ...any) error {
	var typ, tags, class, meta string
	var createdBy sql.NullString
	var createdAt, updatedAt string
	dest := []any{&e.ID, &e.OrgID, &typ, &e.Title, &e.Description, &tags,
		&class, &meta, &createdBy, &createdAt, &updatedAt}
	dest = append(dest, extra...)
	err := sc.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("evidence not found")
	}
	if err != nil {
		return fmt.Errorf("failed to read evidence: %w", err)
	}
	e.Type = model.EvidenceType(typ)
	e.Classification = model.Classification(class)
	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		return fmt.Errorf("corrupt tags: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &e.TypeMetadata); err != nil {
		return fmt.Errorf("corrupt metadata: %w", err)
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	e.CreatedBy = strPtr(createdBy)
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return nil
}

// ftsQuery quotes each whitespace-separated term so user input cannot inject
// fts5 query syntax. Terms are NFC-normalized to match how titles are stored.
func ftsQuery(input string) string {
	terms := strings.Fields(norm.NFC.String(input))
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

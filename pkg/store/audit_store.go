package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/complia/complia/pkg/model"
)

// AuditFilter narrows an audit listing.
type AuditFilter struct {
	EntityType string
	EntityID   string
	Action     string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// AuditStore persists append-only audit events. Updates and deletes are
// rejected by database triggers, so the store exposes only Insert and List.
type AuditStore struct {
	q Querier
}

func NewAuditStore(q Querier) *AuditStore {
	return &AuditStore{q: q}
}

func (s *AuditStore) Insert(ctx context.Context, e *model.AuditEvent) error {
	var diff any
	if e.DiffJSON != nil {
		b, err := json.Marshal(e.DiffJSON)
		if err != nil {
			return fmt.Errorf("failed to encode audit diff: %w", err)
		}
		diff = string(b)
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO audit_events (id, org_id, user_id, action, entity_type, entity_id, diff_json, ip, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OrgID, ptrArg(e.UserID), e.Action, e.EntityType, e.EntityID,
		diff, e.IP, fmtTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

func (s *AuditStore) List(ctx context.Context, orgID string, f AuditFilter) ([]*model.AuditEvent, error) {
	var sb strings.Builder
	args := []any{orgID}

	sb.WriteString(`SELECT id, org_id, user_id, action, entity_type, entity_id,
		diff_json, ip, created_at
		FROM audit_events WHERE org_id = ?`)
	if f.EntityType != "" {
		sb.WriteString(` AND entity_type = ?`)
		args = append(args, f.EntityType)
	}
	if f.EntityID != "" {
		sb.WriteString(` AND entity_id = ?`)
		args = append(args, f.EntityID)
	}
	if f.Action != "" {
		sb.WriteString(` AND action = ?`)
		args = append(args, f.Action)
	}
	if !f.From.IsZero() {
		sb.WriteString(` AND created_at >= ?`)
		args = append(args, fmtTime(f.From))
	}
	if !f.To.IsZero() {
		sb.WriteString(` AND created_at <= ?`)
		args = append(args, fmtTime(f.To))
	}
	sb.WriteString(` ORDER BY created_at DESC, id DESC`)
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	sb.WriteString(` LIMIT ? OFFSET ?`)
	args = append(args, limit, f.Offset)

	rows, err := s.q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var out []*model.AuditEvent
	for rows.Next() {
		var e model.AuditEvent
		var userID, diff sql.NullString
		var createdAt string
		err := rows.Scan(&e.ID, &e.OrgID, &userID, &e.Action, &e.EntityType,
			&e.EntityID, &diff, &e.IP, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to read audit event: %w", err)
		}
		e.UserID = strPtr(userID)
		if diff.Valid && diff.String != "" {
			if err := json.Unmarshal([]byte(diff.String), &e.DiffJSON); err != nil {
				return nil, fmt.Errorf("corrupt audit diff: %w", err)
			}
		}
		e.CreatedAt = parseTime(createdAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}

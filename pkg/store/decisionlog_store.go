package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/model"
)

// DecisionLogFilter narrows a decision-log listing. Zero time bounds are
// open-ended.
type DecisionLogFilter struct {
	From       time.Time
	To         time.Time
	Descending bool // newest first, for listings; exports read in event order
	Limit      int
	Offset     int
}

// DecisionLogStore persists ingested decision events.
type DecisionLogStore struct {
	q Querier
}

func NewDecisionLogStore(q Querier) *DecisionLogStore {
	return &DecisionLogStore{q: q}
}

const decisionLogCols = `id, version_id, event_id, event_json, event_time, ingested_at`

// Insert stores one event. A repeated (version, event_id) pair is reported as
// a conflict so ingestion can stay idempotent.
func (s *DecisionLogStore) Insert(ctx context.Context, d *model.DecisionLog) error {
	payload, err := json.Marshal(d.EventJSON)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO decision_logs (`+decisionLogCols+`) VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.VersionID, d.EventID, string(payload),
		fmtTime(d.EventTime), fmtTime(d.IngestedAt))
	if IsUniqueViolation(err) {
		return apperr.Conflict("event %q was already ingested for this version", d.EventID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert decision log: %w", err)
	}
	return nil
}

// Get loads one stored event by row id, scoped to its version.
func (s *DecisionLogStore) Get(ctx context.Context, versionID, id string) (*model.DecisionLog, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+decisionLogCols+` FROM decision_logs
		 WHERE version_id = ? AND id = ?`, versionID, id)
	return scanDecisionLogFrom(row)
}

// GetByEventID loads the stored record for an (version, event_id) pair.
func (s *DecisionLogStore) GetByEventID(ctx context.Context, versionID, eventID string) (*model.DecisionLog, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+decisionLogCols+` FROM decision_logs
		 WHERE version_id = ? AND event_id = ?`, versionID, eventID)
	return scanDecisionLogFrom(row)
}

func (s *DecisionLogStore) List(ctx context.Context, versionID string, f DecisionLogFilter) ([]*model.DecisionLog, error) {
	var sb strings.Builder
	args := []any{versionID}

	sb.WriteString(`SELECT ` + decisionLogCols + ` FROM decision_logs WHERE version_id = ?`)
	if !f.From.IsZero() {
		sb.WriteString(` AND event_time >= ?`)
		args = append(args, fmtTime(f.From))
	}
	if !f.To.IsZero() {
		sb.WriteString(` AND event_time <= ?`)
		args = append(args, fmtTime(f.To))
	}
	if f.Descending {
		sb.WriteString(` ORDER BY event_time DESC, id DESC`)
	} else {
		sb.WriteString(` ORDER BY event_time ASC, id ASC`)
	}
	if f.Limit > 0 {
		sb.WriteString(` LIMIT ? OFFSET ?`)
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list decision logs: %w", err)
	}
	defer rows.Close()

	var out []*model.DecisionLog
	for rows.Next() {
		d, err := scanDecisionLogFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Count returns the number of events stored for a version.
func (s *DecisionLogStore) Count(ctx context.Context, versionID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM decision_logs WHERE version_id = ?`, versionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count decision logs: %w", err)
	}
	return n, nil
}

func scanDecisionLogFrom(sc rowScanner) (*model.DecisionLog, error) {
	var d model.DecisionLog
	var payload, eventTime, ingestedAt string
	err := sc.Scan(&d.ID, &d.VersionID, &d.EventID, &payload, &eventTime, &ingestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("decision log not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read decision log: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &d.EventJSON); err != nil {
		return nil, fmt.Errorf("corrupt event payload: %w", err)
	}
	d.EventTime = parseTime(eventTime)
	d.IngestedAt = parseTime(ingestedAt)
	return &d, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/model"
)

// AssessmentStore persists high-risk heuristic assessments.
type AssessmentStore struct {
	q Querier
}

func NewAssessmentStore(q Querier) *AssessmentStore {
	return &AssessmentStore{q: q}
}

func (s *AssessmentStore) Create(ctx context.Context, a *model.HighRiskAssessment) error {
	rationale, err := json.Marshal(nonNilStrings(a.Rationale))
	if err != nil {
		return fmt.Errorf("failed to encode rationale: %w", err)
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO high_risk_assessments (id, ai_system_id, score, risk_level, rationale, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.AISystemID, a.Score, a.RiskLevel, string(rationale), fmtTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create assessment: %w", err)
	}
	return nil
}

// Latest returns the most recent assessment for a system, newest first with
// id as the tie-breaker.
func (s *AssessmentStore) Latest(ctx context.Context, systemID string) (*model.HighRiskAssessment, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, ai_system_id, score, risk_level, rationale, created_at
		 FROM high_risk_assessments WHERE ai_system_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`, systemID)

	var a model.HighRiskAssessment
	var rationale, createdAt string
	err := row.Scan(&a.ID, &a.AISystemID, &a.Score, &a.RiskLevel, &rationale, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no assessment recorded for this system")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read assessment: %w", err)
	}
	if err := json.Unmarshal([]byte(rationale), &a.Rationale); err != nil {
		return nil, fmt.Errorf("corrupt rationale: %w", err)
	}
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

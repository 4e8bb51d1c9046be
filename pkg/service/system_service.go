package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/audit"
	"github.com/complia/complia/pkg/auth"
	"github.com/complia/complia/pkg/model"
	"github.com/complia/complia/pkg/store"
)

// SystemService manages the AI-system catalogue.
type SystemService struct {
	deps *Deps
}

// SystemInput carries the mutable fields of an AI system.
type SystemInput struct {
	Name              string  `json:"name"`
	IntendedPurpose   string  `json:"intended_purpose"`
	HRUseCaseType     string  `json:"hr_use_case_type"`
	DeploymentType    string  `json:"deployment_type"`
	DecisionInfluence string  `json:"decision_influence"`
	OwnerUserID       *string `json:"owner_user_id"`
}

func (in SystemInput) validate() error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return apperr.Validation("system name is required", map[string]string{"name": "must not be empty"})
	}
	if len(name) > 200 {
		return apperr.Validation("system name too long", map[string]string{"name": "must be at most 200 characters"})
	}
	return nil
}

func (s *SystemService) Create(ctx context.Context, p *auth.Principal, in SystemInput) (*model.AISystem, error) {
	if !p.Can(model.RoleEditor) {
		return nil, apperr.Forbidden("editor role required")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.deps.now()
	sys := &model.AISystem{
		ID:                uuid.New().String(),
		OrgID:             p.OrgID,
		Name:              strings.TrimSpace(in.Name),
		IntendedPurpose:   in.IntendedPurpose,
		HRUseCaseType:     in.HRUseCaseType,
		DeploymentType:    in.DeploymentType,
		DecisionInfluence: in.DecisionInfluence,
		OwnerUserID:       in.OwnerUserID,
		RowVersion:        1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		if err := store.NewSystemStore(q).Create(ctx, sys); err != nil {
			return err
		}
		return s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
			Action:     audit.ActionCreate,
			EntityType: "ai_system",
			EntityID:   sys.ID,
			Diff:       map[string]any{"name": sys.Name},
		})
	})
	if err != nil {
		return nil, err
	}
	return sys, nil
}

func (s *SystemService) Get(ctx context.Context, p *auth.Principal, id string) (*model.AISystem, error) {
	return store.NewSystemStore(s.deps.DB).Get(ctx, p.OrgID, id)
}

func (s *SystemService) List(ctx context.Context, p *auth.Principal, limit, offset int) ([]*model.AISystem, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	return store.NewSystemStore(s.deps.DB).List(ctx, p.OrgID, limit, offset)
}

// Update applies changes under optimistic concurrency. expectedVersion of 0
// means the caller did not supply one and the current revision is used.
func (s *SystemService) Update(ctx context.Context, p *auth.Principal, id string, in SystemInput, expectedVersion int64) (*model.AISystem, error) {
	if !p.Can(model.RoleEditor) {
		return nil, apperr.Forbidden("editor role required")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var updated *model.AISystem
	err := store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		systems := store.NewSystemStore(q)
		current, err := systems.Get(ctx, p.OrgID, id)
		if err != nil {
			return err
		}
		expected := expectedVersion
		if expected == 0 {
			expected = current.RowVersion
		}

		diff := systemDiff(current, in)
		current.Name = strings.TrimSpace(in.Name)
		current.IntendedPurpose = in.IntendedPurpose
		current.HRUseCaseType = in.HRUseCaseType
		current.DeploymentType = in.DeploymentType
		current.DecisionInfluence = in.DecisionInfluence
		current.OwnerUserID = in.OwnerUserID
		current.UpdatedAt = s.deps.now()

		if err := systems.Update(ctx, current, expected); err != nil {
			return err
		}
		updated = current
		return s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
			Action:     audit.ActionUpdate,
			EntityType: "ai_system",
			EntityID:   id,
			Diff:       diff,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *SystemService) Delete(ctx context.Context, p *auth.Principal, id string) error {
	if !p.IsAdmin() {
		return apperr.Forbidden("admin role required")
	}
	return store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		if err := store.NewSystemStore(q).Delete(ctx, p.OrgID, id); err != nil {
			return err
		}
		return s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
			Action:     audit.ActionDelete,
			EntityType: "ai_system",
			EntityID:   id,
		})
	})
}

// Assess computes and stores the heuristic high-risk score for a system.
func (s *SystemService) Assess(ctx context.Context, p *auth.Principal, id string) (*model.HighRiskAssessment, error) {
	if !p.Can(model.RoleReviewer) {
		return nil, apperr.Forbidden("reviewer role required")
	}
	sys, err := store.NewSystemStore(s.deps.DB).Get(ctx, p.OrgID, id)
	if err != nil {
		return nil, err
	}

	assessment := ScoreHighRisk(sys)
	assessment.ID = uuid.New().String()
	assessment.CreatedAt = s.deps.now()

	err = store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		if err := store.NewAssessmentStore(q).Create(ctx, assessment); err != nil {
			return err
		}
		return s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
			Action:     audit.ActionCreate,
			EntityType: "high_risk_assessment",
			EntityID:   assessment.ID,
			Diff:       map[string]any{"score": assessment.Score, "risk_level": assessment.RiskLevel},
		})
	})
	if err != nil {
		return nil, err
	}
	return assessment, nil
}

// LatestAssessment returns the most recent assessment, or a not-found error.
func (s *SystemService) LatestAssessment(ctx context.Context, p *auth.Principal, id string) (*model.HighRiskAssessment, error) {
	if _, err := store.NewSystemStore(s.deps.DB).Get(ctx, p.OrgID, id); err != nil {
		return nil, err
	}
	return store.NewAssessmentStore(s.deps.DB).Latest(ctx, id)
}

func systemDiff(old *model.AISystem, in SystemInput) map[string]any {
	diff := map[string]any{}
	record := func(field, oldV, newV string) {
		if oldV != newV {
			diff[field] = map[string]any{"old": oldV, "new": newV}
		}
	}
	record("name", old.Name, strings.TrimSpace(in.Name))
	record("intended_purpose", old.IntendedPurpose, in.IntendedPurpose)
	record("hr_use_case_type", old.HRUseCaseType, in.HRUseCaseType)
	record("deployment_type", old.DeploymentType, in.DeploymentType)
	record("decision_influence", old.DecisionInfluence, in.DecisionInfluence)
	record("owner_user_id", derefOr(old.OwnerUserID, ""), derefOr(in.OwnerUserID, ""))
	return diff
}

func derefOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

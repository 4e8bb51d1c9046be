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

// MappingService links evidence items to version sub-targets.
type MappingService struct {
	deps *Deps
}

// MappingInput carries a new evidence mapping.
type MappingInput struct {
	EvidenceID string                `json:"evidence_id"`
	TargetType model.TargetType      `json:"target_type"`
	TargetKey  string                `json:"target_key"`
	Strength   model.MappingStrength `json:"strength"`
	Notes      string                `json:"notes"`
}

func (in MappingInput) validate() error {
	details := map[string]string{}
	if in.EvidenceID == "" {
		details["evidence_id"] = "is required"
	}
	if !in.TargetType.Valid() {
		details["target_type"] = "must be one of section, field, requirement"
	}
	if in.Strength != "" && !in.Strength.Valid() {
		details["strength"] = "must be one of weak, medium, strong"
	}
	// The key itself is an opaque pointer into whatever catalogue the target
	// workflow maintains; only presence is checked here.
	if strings.TrimSpace(in.TargetKey) == "" {
		details["target_key"] = "is required"
	}
	if len(details) > 0 {
		return apperr.Validation("invalid evidence mapping", details)
	}
	return nil
}

// versionInOrg loads a version by id and verifies it belongs to the caller's
// organization.
func versionInOrg(ctx context.Context, q store.Querier, orgID, versionID string) (*model.SystemVersion, error) {
	v, vOrg, err := store.NewVersionStore(q).GetByID(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if vOrg != orgID {
		return nil, apperr.NotFound("version not found")
	}
	return v, nil
}

func (s *MappingService) Create(ctx context.Context, p *auth.Principal, versionID string, in MappingInput) (*model.EvidenceMapping, error) {
	if !p.Can(model.RoleEditor) {
		return nil, apperr.Forbidden("editor role required")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	m := &model.EvidenceMapping{
		ID:         uuid.New().String(),
		EvidenceID: in.EvidenceID,
		VersionID:  versionID,
		TargetType: in.TargetType,
		TargetKey:  in.TargetKey,
		Strength:   in.Strength,
		Notes:      in.Notes,
		CreatedBy:  &p.UserID,
		CreatedAt:  s.deps.now(),
	}

	err := store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		if _, err := versionInOrg(ctx, q, p.OrgID, versionID); err != nil {
			return err
		}
		// Cross-org evidence ids surface as not found.
		if _, err := store.NewEvidenceStore(q).Get(ctx, p.OrgID, in.EvidenceID); err != nil {
			return err
		}
		if err := store.NewMappingStore(q).Create(ctx, m); err != nil {
			return err
		}
		return s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
			Action:     audit.ActionCreate,
			EntityType: "evidence_mapping",
			EntityID:   m.ID,
			Diff: map[string]any{
				"evidence_id": m.EvidenceID,
				"target_type": m.TargetType,
				"target_key":  m.TargetKey,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *MappingService) List(ctx context.Context, p *auth.Principal, versionID string, f store.MappingFilter) ([]*store.MappingWithEvidence, error) {
	if _, err := versionInOrg(ctx, s.deps.DB, p.OrgID, versionID); err != nil {
		return nil, err
	}
	return store.NewMappingStore(s.deps.DB).ListByVersion(ctx, versionID, f)
}

func (s *MappingService) Delete(ctx context.Context, p *auth.Principal, versionID, mappingID string) error {
	if !p.Can(model.RoleEditor) {
		return apperr.Forbidden("editor role required")
	}
	return store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		if _, err := versionInOrg(ctx, q, p.OrgID, versionID); err != nil {
			return err
		}
		m, err := store.NewMappingStore(q).Get(ctx, mappingID)
		if err != nil {
			return err
		}
		if m.VersionID != versionID {
			return apperr.NotFound("mapping not found")
		}
		if err := store.NewMappingStore(q).Delete(ctx, mappingID); err != nil {
			return err
		}
		return s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
			Action:     audit.ActionDelete,
			EntityType: "evidence_mapping",
			EntityID:   mappingID,
			Diff: map[string]any{
				"evidence_id": m.EvidenceID,
				"target_key":  m.TargetKey,
			},
		})
	})
}

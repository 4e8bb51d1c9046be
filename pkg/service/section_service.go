package service

import (
	"context"
	"time"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/audit"
	"github.com/complia/complia/pkg/auth"
	"github.com/complia/complia/pkg/completeness"
	"github.com/complia/complia/pkg/llm"
	"github.com/complia/complia/pkg/model"
	"github.com/complia/complia/pkg/store"
)

// SectionService manages the twelve Annex IV sections of a version.
type SectionService struct {
	deps *Deps
}

// SectionUpdate carries a partial section edit. Nil fields are left
// untouched.
type SectionUpdate struct {
	Content      map[string]any `json:"content"`
	EvidenceRefs []string       `json:"evidence_refs"`
	LLMAssisted  *bool          `json:"llm_assisted"`
}

// ensure loads the version org-scoped and lazily materializes its section
// rows.
func (s *SectionService) ensure(ctx context.Context, q store.Querier, orgID, systemID, versionID string) (*model.SystemVersion, error) {
	v, err := store.NewVersionStore(q).Get(ctx, orgID, systemID, versionID)
	if err != nil {
		return nil, err
	}
	now := s.deps.now().Format(time.RFC3339Nano)
	if err := store.NewSectionStore(q).EnsureForVersion(ctx, versionID, now); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *SectionService) List(ctx context.Context, p *auth.Principal, systemID, versionID string) ([]*model.AnnexSection, error) {
	var sections []*model.AnnexSection
	err := store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		if _, err := s.ensure(ctx, q, p.OrgID, systemID, versionID); err != nil {
			return err
		}
		var err error
		sections, err = store.NewSectionStore(q).ListByVersion(ctx, versionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sections, nil
}

func (s *SectionService) Get(ctx context.Context, p *auth.Principal, systemID, versionID, sectionKey string) (*model.AnnexSection, error) {
	if !model.ValidSectionKey(sectionKey) {
		return nil, apperr.NotFound("unknown section key")
	}
	var section *model.AnnexSection
	err := store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		if _, err := s.ensure(ctx, q, p.OrgID, systemID, versionID); err != nil {
			return err
		}
		var err error
		section, err = store.NewSectionStore(q).Get(ctx, versionID, sectionKey)
		return err
	})
	if err != nil {
		return nil, err
	}
	return section, nil
}

// Update edits one section, revalidates referenced evidence, recomputes the
// cached score and audits a before/after diff.
func (s *SectionService) Update(ctx context.Context, p *auth.Principal, systemID, versionID, sectionKey string, in SectionUpdate) (*model.AnnexSection, error) {
	if !p.Can(model.RoleEditor) {
		return nil, apperr.Forbidden("editor role required")
	}
	if !model.ValidSectionKey(sectionKey) {
		return nil, apperr.NotFound("unknown section key")
	}

	var updated *model.AnnexSection
	err := store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		v, err := s.ensure(ctx, q, p.OrgID, systemID, versionID)
		if err != nil {
			return err
		}
		frozen, err := IsImmutable(ctx, q, v)
		if err != nil {
			return err
		}
		if frozen {
			return apperr.Conflict("version is approved and exported, sections are frozen")
		}

		sections := store.NewSectionStore(q)
		sec, err := sections.Get(ctx, versionID, sectionKey)
		if err != nil {
			return err
		}

		before := map[string]any{
			"content":       sec.Content,
			"evidence_refs": sec.EvidenceRefs,
		}

		if in.Content != nil {
			sec.Content = in.Content
		}
		if in.EvidenceRefs != nil {
			// Referenced evidence must exist in the caller's org.
			found, err := store.NewEvidenceStore(q).GetMany(ctx, p.OrgID, in.EvidenceRefs)
			if err != nil {
				return err
			}
			for _, ref := range in.EvidenceRefs {
				if _, ok := found[ref]; !ok {
					return apperr.Validation("unknown evidence reference", map[string]string{
						"evidence_refs": "evidence " + ref + " not found",
					})
				}
			}
			sec.EvidenceRefs = in.EvidenceRefs
		}
		if in.LLMAssisted != nil {
			sec.LLMAssisted = *in.LLMAssisted
		}

		sec.CompletenessScore = completeness.SectionScore(sectionKey, sec.Content, sec.EvidenceRefs)
		sec.LastEditedBy = &p.UserID
		sec.UpdatedAt = s.deps.now()
		if err := sections.Update(ctx, sec); err != nil {
			return err
		}

		updated = sec
		return s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
			Action:     audit.ActionUpdate,
			EntityType: "annex_section",
			EntityID:   sec.ID,
			Diff: map[string]any{
				"section_key": sectionKey,
				"before":      before,
				"after": map[string]any{
					"content":       sec.Content,
					"evidence_refs": sec.EvidenceRefs,
				},
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CompletenessReport materializes the scoring report for a version.
func (s *SectionService) CompletenessReport(ctx context.Context, p *auth.Principal, systemID, versionID string) (*completeness.Report, error) {
	sections, err := s.List(ctx, p, systemID, versionID)
	if err != nil {
		return nil, err
	}
	report := completeness.BuildReport(sections)
	return &report, nil
}

// Draft asks the LLM collaborator for section text grounded in the section's
// mapped evidence. Provider outages degrade to a warning, never an error.
func (s *SectionService) Draft(ctx context.Context, p *auth.Principal, systemID, versionID, sectionKey string) (*llm.DraftResult, error) {
	if !p.Can(model.RoleEditor) {
		return nil, apperr.Forbidden("editor role required")
	}
	sec, err := s.Get(ctx, p, systemID, versionID, sectionKey)
	if err != nil {
		return nil, err
	}

	evidence, err := store.NewEvidenceStore(s.deps.DB).GetMany(ctx, p.OrgID, sec.EvidenceRefs)
	if err != nil {
		return nil, err
	}
	var contexts []llm.EvidenceContext
	for _, ref := range sec.EvidenceRefs {
		if e, ok := evidence[ref]; ok {
			contexts = append(contexts, llm.EvidenceContext{
				ID: e.ID, Title: e.Title, Description: e.Description, Type: e.Type,
			})
		}
	}

	result := s.deps.Drafter.Draft(ctx, sectionKey, contexts)

	err = store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		return s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
			Action:     audit.ActionDraft,
			EntityType: "annex_section",
			EntityID:   sec.ID,
			Diff: map[string]any{
				"section_key":  sectionKey,
				"llm_assisted": result.LLMAssisted,
				"warnings":     result.Warnings,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/audit"
	"github.com/complia/complia/pkg/auth"
	"github.com/complia/complia/pkg/completeness"
	"github.com/complia/complia/pkg/export"
	"github.com/complia/complia/pkg/model"
	"github.com/complia/complia/pkg/storage"
	"github.com/complia/complia/pkg/store"
)

// ExportService generates and serves documentation export packages.
type ExportService struct {
	deps *Deps
}

// ExportInput selects what to export.
type ExportInput struct {
	ExportType       model.ExportType `json:"export_type"`
	CompareVersionID *string          `json:"compare_version_id,omitempty"`
}

// Create builds the package for a version, uploads it to object storage and
// records the export row. Identical version state always produces the same
// snapshot hash.
func (s *ExportService) Create(ctx context.Context, p *auth.Principal, systemID, versionID string, in ExportInput) (*model.Export, error) {
	if !p.Can(model.RoleReviewer) {
		return nil, apperr.Forbidden("reviewer role required")
	}
	switch in.ExportType {
	case model.ExportFull:
		if in.CompareVersionID != nil {
			return nil, apperr.Validation("compare_version_id is only valid for diff exports", nil)
		}
	case model.ExportDiff:
		if in.CompareVersionID == nil {
			return nil, apperr.Validation("diff exports require compare_version_id", nil)
		}
	default:
		return nil, apperr.Validation("export_type must be full or diff", nil)
	}

	var (
		input export.Input
		diff  *export.DiffReport
	)
	err := store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		gathered, err := s.gather(ctx, q, p.OrgID, systemID, versionID)
		if err != nil {
			return err
		}
		input = *gathered

		if in.ExportType == model.ExportDiff {
			compare, compareOrg, err := store.NewVersionStore(q).GetByID(ctx, *in.CompareVersionID)
			if err != nil {
				return err
			}
			if compareOrg != p.OrgID {
				return apperr.NotFound("version not found")
			}
			if compare.AISystemID != systemID {
				return apperr.Validation("compare version must belong to the same system", nil)
			}
			compareSections, err := store.NewSectionStore(q).ListByVersion(ctx, compare.ID)
			if err != nil {
				return err
			}
			d := export.BuildDiffReport(compare.ID, input.Sections, compareSections)
			diff = &d
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	generatedAt := s.deps.now()
	pkg, err := export.Build(input, generatedAt, diff)
	if err != nil {
		return nil, err
	}

	exportID := uuid.New().String()
	key := storage.ExportKey(p.OrgID, systemID, versionID, exportID)
	if err := s.deps.Storage.Put(ctx, key, pkg.Archive, "application/zip"); err != nil {
		return nil, err
	}

	rec := &model.Export{
		ID:                exportID,
		VersionID:         versionID,
		ExportType:        in.ExportType,
		SnapshotHash:      pkg.SnapshotHash,
		StorageURI:        key,
		FileSize:          int64(len(pkg.Archive)),
		CompareVersionID:  in.CompareVersionID,
		CompletenessScore: input.Completeness.OverallScore,
		CreatedBy:         &p.UserID,
		CreatedAt:         generatedAt,
	}
	err = store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		if err := store.NewExportStore(q).Create(ctx, rec); err != nil {
			return err
		}
		return s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
			Action:     audit.ActionExport,
			EntityType: "export",
			EntityID:   exportID,
			Diff: map[string]any{
				"version_id":    versionID,
				"export_type":   in.ExportType,
				"snapshot_hash": pkg.SnapshotHash,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// gather loads the complete export input for a version inside one snapshot.
func (s *ExportService) gather(ctx context.Context, q store.Querier, orgID, systemID, versionID string) (*export.Input, error) {
	org, err := store.NewOrgStore(q).Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	sys, err := store.NewSystemStore(q).Get(ctx, orgID, systemID)
	if err != nil {
		return nil, err
	}
	version, err := store.NewVersionStore(q).Get(ctx, orgID, systemID, versionID)
	if err != nil {
		return nil, err
	}

	assessment, err := store.NewAssessmentStore(q).Latest(ctx, systemID)
	if apperr.IsKind(err, apperr.KindNotFound) {
		assessment = nil
	} else if err != nil {
		return nil, err
	}

	sections := store.NewSectionStore(q)
	if err := sections.EnsureForVersion(ctx, versionID, s.deps.now().Format(time.RFC3339Nano)); err != nil {
		return nil, err
	}
	sectionRows, err := sections.ListByVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}

	mappingRows, err := store.NewMappingStore(q).ListByVersion(ctx, versionID, store.MappingFilter{})
	if err != nil {
		return nil, err
	}
	mappings := make([]*model.EvidenceMapping, 0, len(mappingRows))
	refSet := map[string]bool{}
	for _, sec := range sectionRows {
		for _, ref := range sec.EvidenceRefs {
			refSet[ref] = true
		}
	}
	for _, row := range mappingRows {
		m := row.EvidenceMapping
		mappings = append(mappings, &m)
		refSet[m.EvidenceID] = true
	}
	refs := make([]string, 0, len(refSet))
	for id := range refSet {
		refs = append(refs, id)
	}
	evidenceItems, err := store.NewEvidenceStore(q).GetMany(ctx, orgID, refs)
	if err != nil {
		return nil, err
	}

	report := completeness.BuildReport(sectionRows)
	return &export.Input{
		Org:          org,
		System:       sys,
		Version:      version,
		Assessment:   assessment,
		Sections:     sectionRows,
		Evidence:     evidenceItems,
		Mappings:     mappings,
		Completeness: &report,
	}, nil
}

// Manifest assembles the canonical manifest over the version's current state
// without producing an archive. The snapshot hash matches what a full export
// of the same state would record.
func (s *ExportService) Manifest(ctx context.Context, p *auth.Principal, systemID, versionID string) (map[string]any, error) {
	var input export.Input
	err := store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		gathered, err := s.gather(ctx, q, p.OrgID, systemID, versionID)
		if err != nil {
			return err
		}
		input = *gathered
		return nil
	})
	if err != nil {
		return nil, err
	}
	hash, err := export.SnapshotHash(input)
	if err != nil {
		return nil, err
	}
	return export.BuildManifest(input, s.deps.now(), hash), nil
}

func (s *ExportService) Get(ctx context.Context, p *auth.Principal, id string) (*model.Export, error) {
	return store.NewExportStore(s.deps.DB).Get(ctx, p.OrgID, id)
}

func (s *ExportService) List(ctx context.Context, p *auth.Principal, systemID, versionID string) ([]*model.Export, error) {
	if _, err := store.NewVersionStore(s.deps.DB).Get(ctx, p.OrgID, systemID, versionID); err != nil {
		return nil, err
	}
	return store.NewExportStore(s.deps.DB).ListByVersion(ctx, versionID)
}

// Download returns a time-limited URL for a stored export package.
func (s *ExportService) Download(ctx context.Context, p *auth.Principal, id string) (string, error) {
	rec, err := store.NewExportStore(s.deps.DB).Get(ctx, p.OrgID, id)
	if err != nil {
		return "", err
	}
	return s.deps.Storage.PresignDownload(ctx, rec.StorageURI, downloadURLTTL)
}

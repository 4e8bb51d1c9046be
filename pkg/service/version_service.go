package service

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/audit"
	"github.com/complia/complia/pkg/auth"
	"github.com/complia/complia/pkg/model"
	"github.com/complia/complia/pkg/store"
)

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,50}$`)

// VersionService governs the documentation-version lifecycle.
type VersionService struct {
	deps *Deps
}

// transitions is the closed lifecycle table. Approved is terminal.
var transitions = map[model.VersionStatus]map[model.VersionStatus]model.Role{
	model.StatusDraft: {
		model.StatusReview: model.RoleEditor,
	},
	model.StatusReview: {
		model.StatusDraft:    model.RoleEditor,
		model.StatusApproved: model.RoleAdmin,
	},
}

// VersionInput carries the fields of a new version.
type VersionInput struct {
	Label       string  `json:"label"`
	Notes       string  `json:"notes"`
	ReleaseDate *string `json:"release_date"` // YYYY-MM-DD
}

func validateReleaseDate(d *string) error {
	if d == nil {
		return nil
	}
	if _, err := time.Parse("2006-01-02", *d); err != nil {
		return apperr.Validation("invalid release date", map[string]string{
			"release_date": "must be formatted YYYY-MM-DD",
		})
	}
	return nil
}

func (s *VersionService) Create(ctx context.Context, p *auth.Principal, systemID string, in VersionInput) (*model.SystemVersion, error) {
	if !p.Can(model.RoleEditor) {
		return nil, apperr.Forbidden("editor role required")
	}
	if !labelPattern.MatchString(in.Label) {
		return nil, apperr.Validation("invalid version label", map[string]string{
			"label": "must match [A-Za-z0-9._-]{1,50}",
		})
	}
	if err := validateReleaseDate(in.ReleaseDate); err != nil {
		return nil, err
	}

	now := s.deps.now()
	v := &model.SystemVersion{
		ID:          uuid.New().String(),
		AISystemID:  systemID,
		Label:       in.Label,
		Status:      model.StatusDraft,
		Notes:       in.Notes,
		ReleaseDate: in.ReleaseDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		// Creating under someone else's system must read as not-found.
		if _, err := store.NewSystemStore(q).Get(ctx, p.OrgID, systemID); err != nil {
			return err
		}
		if err := store.NewVersionStore(q).Create(ctx, v); err != nil {
			return err
		}
		return s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
			Action:     audit.ActionCreate,
			EntityType: "system_version",
			EntityID:   v.ID,
			Diff:       map[string]any{"label": v.Label},
		})
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *VersionService) Get(ctx context.Context, p *auth.Principal, systemID, versionID string) (*model.SystemVersion, error) {
	return store.NewVersionStore(s.deps.DB).Get(ctx, p.OrgID, systemID, versionID)
}

func (s *VersionService) List(ctx context.Context, p *auth.Principal, systemID string) ([]*model.SystemVersion, error) {
	if _, err := store.NewSystemStore(s.deps.DB).Get(ctx, p.OrgID, systemID); err != nil {
		return nil, err
	}
	return store.NewVersionStore(s.deps.DB).ListBySystem(ctx, systemID)
}

// IsImmutable reports whether a version is frozen: approved with at least one
// export.
func IsImmutable(ctx context.Context, q store.Querier, v *model.SystemVersion) (bool, error) {
	if v.Status != model.StatusApproved {
		return false, nil
	}
	return store.NewVersionStore(q).HasExports(ctx, v.ID)
}

// VersionUpdate carries a partial edit of a version. Nil fields are left
// untouched.
type VersionUpdate struct {
	Notes       *string `json:"notes"`
	ReleaseDate *string `json:"release_date"` // YYYY-MM-DD
}

// Update changes notes and release date. Frozen versions refuse all edits.
func (s *VersionService) Update(ctx context.Context, p *auth.Principal, systemID, versionID string, in VersionUpdate) (*model.SystemVersion, error) {
	if !p.Can(model.RoleEditor) {
		return nil, apperr.Forbidden("editor role required")
	}
	if err := validateReleaseDate(in.ReleaseDate); err != nil {
		return nil, err
	}

	var updated *model.SystemVersion
	err := store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		versions := store.NewVersionStore(q)
		v, err := versions.Get(ctx, p.OrgID, systemID, versionID)
		if err != nil {
			return err
		}
		frozen, err := IsImmutable(ctx, q, v)
		if err != nil {
			return err
		}
		if frozen {
			return apperr.Conflict("version is approved and exported, no further edits are allowed")
		}

		diff := map[string]any{}
		if in.Notes != nil && v.Notes != *in.Notes {
			diff["notes"] = map[string]any{"old": v.Notes, "new": *in.Notes}
			v.Notes = *in.Notes
		}
		if in.ReleaseDate != nil && derefOr(v.ReleaseDate, "") != *in.ReleaseDate {
			diff["release_date"] = map[string]any{
				"old": derefOr(v.ReleaseDate, ""), "new": *in.ReleaseDate,
			}
			v.ReleaseDate = in.ReleaseDate
		}
		v.UpdatedAt = s.deps.now()
		if err := versions.Update(ctx, v); err != nil {
			return err
		}
		updated = v
		return s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
			Action:     audit.ActionUpdate,
			EntityType: "system_version",
			EntityID:   versionID,
			Diff:       diff,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Transition moves a version through the lifecycle table. Approval stamps
// approved_by and approved_at atomically with the status write.
func (s *VersionService) Transition(ctx context.Context, p *auth.Principal, systemID, versionID string, to model.VersionStatus) (*model.SystemVersion, error) {
	if !to.Valid() {
		return nil, apperr.Validation("unknown status", map[string]string{"status": "must be draft, review or approved"})
	}

	var updated *model.SystemVersion
	err := store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		versions := store.NewVersionStore(q)
		v, err := versions.Get(ctx, p.OrgID, systemID, versionID)
		if err != nil {
			return err
		}

		required, ok := transitions[v.Status][to]
		if !ok {
			return apperr.Conflict("cannot transition from %s to %s", v.Status, to)
		}
		if !p.Can(required) {
			return apperr.Forbidden("%s role required for this transition", required)
		}

		from := v.Status
		v.Status = to
		if to == model.StatusApproved {
			approvedAt := s.deps.now().Format("2006-01-02")
			v.ApprovedBy = &p.UserID
			v.ApprovedAt = &approvedAt
		}
		v.UpdatedAt = s.deps.now()
		if err := versions.Update(ctx, v); err != nil {
			return err
		}

		updated = v
		action := audit.ActionTransition
		if to == model.StatusApproved {
			action = audit.ActionApprove
		}
		return s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
			Action:     action,
			EntityType: "system_version",
			EntityID:   versionID,
			Diff:       map[string]any{"status": map[string]any{"old": string(from), "new": string(to)}},
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Clone creates a new draft under the same system, copying notes only.
func (s *VersionService) Clone(ctx context.Context, p *auth.Principal, systemID, versionID, newLabel string) (*model.SystemVersion, error) {
	if !p.Can(model.RoleEditor) {
		return nil, apperr.Forbidden("editor role required")
	}
	if !labelPattern.MatchString(newLabel) {
		return nil, apperr.Validation("invalid version label", map[string]string{
			"label": "must match [A-Za-z0-9._-]{1,50}",
		})
	}

	var clone *model.SystemVersion
	err := store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		versions := store.NewVersionStore(q)
		src, err := versions.Get(ctx, p.OrgID, systemID, versionID)
		if err != nil {
			return err
		}
		now := s.deps.now()
		clone = &model.SystemVersion{
			ID:         uuid.New().String(),
			AISystemID: src.AISystemID,
			Label:      newLabel,
			Status:     model.StatusDraft,
			Notes:      src.Notes,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := versions.Create(ctx, clone); err != nil {
			return err
		}
		return s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
			Action:     audit.ActionClone,
			EntityType: "system_version",
			EntityID:   clone.ID,
			Diff:       map[string]any{"cloned_from": versionID, "label": newLabel},
		})
	})
	if err != nil {
		return nil, err
	}
	return clone, nil
}

// Delete removes a version and its dependents. Admin-only; frozen versions
// refuse deletion.
func (s *VersionService) Delete(ctx context.Context, p *auth.Principal, systemID, versionID string) error {
	if !p.IsAdmin() {
		return apperr.Forbidden("admin role required")
	}
	return store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		versions := store.NewVersionStore(q)
		v, err := versions.Get(ctx, p.OrgID, systemID, versionID)
		if err != nil {
			return err
		}
		frozen, err := IsImmutable(ctx, q, v)
		if err != nil {
			return err
		}
		if frozen {
			return apperr.Conflict("version is approved and exported, it cannot be deleted")
		}
		if err := versions.Delete(ctx, versionID); err != nil {
			return err
		}
		return s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
			Action:     audit.ActionDelete,
			EntityType: "system_version",
			EntityID:   versionID,
			Diff:       map[string]any{"label": v.Label},
		})
	})
}

// FieldChange is one entry of a version comparison.
type FieldChange struct {
	Field    string  `json:"field"`
	OldValue *string `json:"old_value"`
	NewValue *string `json:"new_value"`
}

// VersionDiff is the comparison of two versions of one system.
type VersionDiff struct {
	FromVersionID string        `json:"from_version_id"`
	ToVersionID   string        `json:"to_version_id"`
	Changes       []FieldChange `json:"changes"`
	Added         int           `json:"added"`
	Removed       int           `json:"removed"`
	Modified      int           `json:"modified"`
}

// Compare diffs two versions over the fixed comparable field set. Both must
// belong to the same system.
func (s *VersionService) Compare(ctx context.Context, p *auth.Principal, systemID, fromID, toID string) (*VersionDiff, error) {
	versions := store.NewVersionStore(s.deps.DB)
	from, fromOrg, err := versions.GetByID(ctx, fromID)
	if err != nil {
		return nil, err
	}
	to, toOrg, err := versions.GetByID(ctx, toID)
	if err != nil {
		return nil, err
	}
	if fromOrg != p.OrgID || toOrg != p.OrgID {
		return nil, apperr.NotFound("version not found")
	}
	if from.AISystemID != to.AISystemID || from.AISystemID != systemID {
		return nil, apperr.Validation("versions must belong to the same system", nil)
	}

	diff := &VersionDiff{FromVersionID: fromID, ToVersionID: toID, Changes: []FieldChange{}}
	compareField := func(field string, oldV, newV *string) {
		switch {
		case oldV == nil && newV == nil:
			return
		case oldV == nil && newV != nil:
			diff.Added++
		case oldV != nil && newV == nil:
			diff.Removed++
		case *oldV == *newV:
			return
		default:
			diff.Modified++
		}
		diff.Changes = append(diff.Changes, FieldChange{Field: field, OldValue: oldV, NewValue: newV})
	}

	compareField("label", nonEmptyPtr(from.Label), nonEmptyPtr(to.Label))
	compareField("status", nonEmptyPtr(string(from.Status)), nonEmptyPtr(string(to.Status)))
	compareField("notes", nonEmptyPtr(from.Notes), nonEmptyPtr(to.Notes))
	compareField("release_date", from.ReleaseDate, to.ReleaseDate)
	return diff, nil
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

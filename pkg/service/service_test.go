package service

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/audit"
	"github.com/complia/complia/pkg/auth"
	"github.com/complia/complia/pkg/llm"
	"github.com/complia/complia/pkg/model"
	"github.com/complia/complia/pkg/storage"
	"github.com/complia/complia/pkg/store"
)

type svcFixture struct {
	t   *testing.T
	ctx context.Context
	db  *sql.DB
	reg *Registry
	now time.Time

	org    *model.Organization
	admin  *auth.Principal
	editor *auth.Principal
}

func newSvcFixture(t *testing.T) *svcFixture {
	t.Helper()
	ctx := context.Background()
	db, err := store.OpenMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	fileStore, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	f := &svcFixture{
		t:   t,
		ctx: ctx,
		db:  db,
		now: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	}
	logger := slog.New(slog.DiscardHandler)
	f.reg = NewRegistry(Deps{
		DB:       db,
		Recorder: audit.NewRecorder(logger),
		Storage:  fileStore,
		Drafter:  llm.NewDrafter(nil),
		Hasher:   auth.BcryptHasher{Cost: 4},
		Tokens:   auth.NewHMACIssuer([]byte("test-secret"), "complia-test"),
		Logger:   logger,
		Now:      func() time.Time { return f.now },
	})

	boot, err := f.reg.Accounts.Bootstrap(ctx, BootstrapInput{
		OrgName:       "Acme HR Tech",
		AdminEmail:    "admin@acme.test",
		AdminPassword: "correct-horse-battery",
	})
	require.NoError(t, err)
	f.org = boot.Org
	f.admin = &auth.Principal{
		UserID: boot.Admin.ID, OrgID: boot.Org.ID,
		Email: boot.Admin.Email, Role: model.RoleAdmin,
	}

	inv, err := f.reg.Accounts.Invite(ctx, f.admin, "editor@acme.test", model.RoleEditor)
	require.NoError(t, err)
	editor, err := f.reg.Accounts.AcceptInvite(ctx, inv.Plaintext, "another-long-password")
	require.NoError(t, err)
	f.editor = &auth.Principal{
		UserID: editor.ID, OrgID: boot.Org.ID,
		Email: editor.Email, Role: model.RoleEditor,
	}
	return f
}

func (f *svcFixture) system(name string) *model.AISystem {
	f.t.Helper()
	sys, err := f.reg.Systems.Create(f.ctx, f.editor, SystemInput{
		Name:              name,
		IntendedPurpose:   "CV screening for engineering roles",
		HRUseCaseType:     "recruitment",
		DeploymentType:    "production",
		DecisionInfluence: "advisory",
	})
	require.NoError(f.t, err)
	return sys
}

func (f *svcFixture) version(systemID, label string) *model.SystemVersion {
	f.t.Helper()
	v, err := f.reg.Versions.Create(f.ctx, f.editor, systemID, VersionInput{Label: label})
	require.NoError(f.t, err)
	return v
}

func (f *svcFixture) noteEvidence(title string) *model.EvidenceItem {
	f.t.Helper()
	created, err := f.reg.Evidence.Create(f.ctx, f.editor, EvidenceInput{
		Type:         model.EvidenceNote,
		Title:        title,
		TypeMetadata: map[string]any{"content": "reviewed and signed off"},
	})
	require.NoError(f.t, err)
	return created.Item
}

func TestLoginLockoutAndRecovery(t *testing.T) {
	f := newSvcFixture(t)

	for i := 0; i < auth.MaxFailedLogins; i++ {
		_, err := f.reg.Accounts.Login(f.ctx, "admin@acme.test", "wrong-password")
		require.Error(t, err)
		assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))
	}

	// Correct credentials are refused while the lock holds.
	_, err := f.reg.Accounts.Login(f.ctx, "admin@acme.test", "correct-horse-battery")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindLocked))

	f.now = f.now.Add(auth.LockoutMinutes*time.Minute + time.Second)
	pair, err := f.reg.Accounts.Login(f.ctx, "admin@acme.test", "correct-horse-battery")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	refreshed, err := f.reg.Accounts.Refresh(f.ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	// An access token is not a refresh token.
	_, err = f.reg.Accounts.Refresh(f.ctx, pair.AccessToken)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))
}

func TestLastAdminGuard(t *testing.T) {
	f := newSvcFixture(t)

	_, err := f.reg.Accounts.UpdateUserRole(f.ctx, f.admin, f.admin.UserID, model.RoleEditor)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	err = f.reg.Accounts.DeactivateUser(f.ctx, f.admin, f.admin.UserID)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	// A second admin releases the guard.
	inv, err := f.reg.Accounts.Invite(f.ctx, f.admin, "admin2@acme.test", model.RoleAdmin)
	require.NoError(t, err)
	_, err = f.reg.Accounts.AcceptInvite(f.ctx, inv.Plaintext, "yet-another-password")
	require.NoError(t, err)

	_, err = f.reg.Accounts.UpdateUserRole(f.ctx, f.admin, f.admin.UserID, model.RoleEditor)
	require.NoError(t, err)
}

func TestInviteTokenSingleUse(t *testing.T) {
	f := newSvcFixture(t)

	inv, err := f.reg.Accounts.Invite(f.ctx, f.admin, "new@acme.test", model.RoleViewer)
	require.NoError(t, err)
	_, err = f.reg.Accounts.AcceptInvite(f.ctx, inv.Plaintext, "a-viewer-password")
	require.NoError(t, err)

	_, err = f.reg.Accounts.AcceptInvite(f.ctx, inv.Plaintext, "a-viewer-password")
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))
}

func TestHighRiskAssessment(t *testing.T) {
	f := newSvcFixture(t)
	sys := f.system("cv-screener")

	reviewer := &auth.Principal{UserID: f.editor.UserID, OrgID: f.org.ID, Role: model.RoleReviewer}
	a, err := f.reg.Systems.Assess(f.ctx, reviewer, sys.ID)
	require.NoError(t, err)

	// recruitment (40) + advisory (10) + production (20).
	assert.Equal(t, 70, a.Score)
	assert.Equal(t, "high", a.RiskLevel)
	assert.NotEmpty(t, a.Rationale)

	latest, err := f.reg.Systems.LatestAssessment(f.ctx, f.editor, sys.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, latest.ID)
}

func TestSectionLifecycleAndScoring(t *testing.T) {
	f := newSvcFixture(t)
	sys := f.system("cv-screener")
	v := f.version(sys.ID, "v1.0")

	sections, err := f.reg.Sections.List(f.ctx, f.editor, sys.ID, v.ID)
	require.NoError(t, err)
	require.Len(t, sections, len(model.SectionKeys))

	ev := f.noteEvidence("signoff memo")
	sec, err := f.reg.Sections.Update(f.ctx, f.editor, sys.ID, v.ID, model.SectionGeneral, SectionUpdate{
		Content: map[string]any{
			"system_name":      "cv-screener",
			"provider":         "Acme HR Tech",
			"intended_purpose": "CV screening",
		},
		EvidenceRefs: []string{ev.ID},
	})
	require.NoError(t, err)
	// 3 of 5 required fields (30) plus 1 of 3 evidence items (16.67).
	assert.InDelta(t, 46.67, sec.CompletenessScore, 0.001)
	require.NotNil(t, sec.LastEditedBy)
	assert.Equal(t, f.editor.UserID, *sec.LastEditedBy)

	_, err = f.reg.Sections.Update(f.ctx, f.editor, sys.ID, v.ID, model.SectionGeneral, SectionUpdate{
		EvidenceRefs: []string{"00000000-0000-0000-0000-000000000000"},
	})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	report, err := f.reg.Sections.CompletenessReport(f.ctx, f.editor, sys.ID, v.ID)
	require.NoError(t, err)
	assert.Greater(t, report.OverallScore, 0.0)
	assert.Len(t, report.Sections, len(model.SectionKeys))
}

func TestVersionApprovalFreezesAfterExport(t *testing.T) {
	f := newSvcFixture(t)
	sys := f.system("cv-screener")
	v := f.version(sys.ID, "v1.0")

	// Editors cannot approve.
	_, err := f.reg.Versions.Transition(f.ctx, f.editor, sys.ID, v.ID, model.StatusReview)
	require.NoError(t, err)
	_, err = f.reg.Versions.Transition(f.ctx, f.editor, sys.ID, v.ID, model.StatusApproved)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	approved, err := f.reg.Versions.Transition(f.ctx, f.admin, sys.ID, v.ID, model.StatusApproved)
	require.NoError(t, err)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, f.admin.UserID, *approved.ApprovedBy)

	// Approved but unexported versions stay editable.
	_, err = f.reg.Sections.Update(f.ctx, f.editor, sys.ID, v.ID, model.SectionGeneral, SectionUpdate{
		Content: map[string]any{"system_name": "cv-screener"},
	})
	require.NoError(t, err)

	_, err = f.reg.Exports.Create(f.ctx, f.admin, sys.ID, v.ID, ExportInput{ExportType: model.ExportFull})
	require.NoError(t, err)

	_, err = f.reg.Sections.Update(f.ctx, f.editor, sys.ID, v.ID, model.SectionGeneral, SectionUpdate{
		Content: map[string]any{"system_name": "renamed"},
	})
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	err = f.reg.Versions.Delete(f.ctx, f.admin, sys.ID, v.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestExportSnapshotHashStableAcrossRuns(t *testing.T) {
	f := newSvcFixture(t)
	sys := f.system("cv-screener")
	v := f.version(sys.ID, "v1.0")

	_, err := f.reg.Sections.Update(f.ctx, f.editor, sys.ID, v.ID, model.SectionGeneral, SectionUpdate{
		Content: map[string]any{"system_name": "cv-screener", "provider": "Acme"},
	})
	require.NoError(t, err)

	first, err := f.reg.Exports.Create(f.ctx, f.admin, sys.ID, v.ID, ExportInput{ExportType: model.ExportFull})
	require.NoError(t, err)
	f.now = f.now.Add(time.Hour)
	second, err := f.reg.Exports.Create(f.ctx, f.admin, sys.ID, v.ID, ExportInput{ExportType: model.ExportFull})
	require.NoError(t, err)

	assert.Equal(t, first.SnapshotHash, second.SnapshotHash)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Positive(t, first.FileSize)

	url, err := f.reg.Exports.Download(f.ctx, f.admin, first.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "file://"))

	listed, err := f.reg.Exports.List(f.ctx, f.admin, sys.ID, v.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestDiffExportRequiresSameSystem(t *testing.T) {
	f := newSvcFixture(t)
	sys := f.system("cv-screener")
	other := f.system("chat-triage")
	v1 := f.version(sys.ID, "v1.0")
	foreign := f.version(other.ID, "v1.0")

	_, err := f.reg.Exports.Create(f.ctx, f.admin, sys.ID, v1.ID, ExportInput{
		ExportType:       model.ExportDiff,
		CompareVersionID: &foreign.ID,
	})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	v2 := f.version(sys.ID, "v2.0")
	rec, err := f.reg.Exports.Create(f.ctx, f.admin, sys.ID, v2.ID, ExportInput{
		ExportType:       model.ExportDiff,
		CompareVersionID: &v1.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ExportDiff, rec.ExportType)
}

func TestEvidenceForceDeleteCascades(t *testing.T) {
	f := newSvcFixture(t)
	sys := f.system("cv-screener")
	v := f.version(sys.ID, "v1.0")
	ev := f.noteEvidence("bias audit")

	_, err := f.reg.Sections.Update(f.ctx, f.editor, sys.ID, v.ID, model.SectionDataGovernance, SectionUpdate{
		EvidenceRefs: []string{ev.ID},
	})
	require.NoError(t, err)
	_, err = f.reg.Mappings.Create(f.ctx, f.editor, v.ID, MappingInput{
		EvidenceID: ev.ID,
		TargetType: model.TargetSection,
		TargetKey:  model.SectionDataGovernance,
		Strength:   model.StrengthStrong,
	})
	require.NoError(t, err)

	err = f.reg.Evidence.Delete(f.ctx, f.editor, ev.ID, false)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	// Force delete is admin-only.
	err = f.reg.Evidence.Delete(f.ctx, f.editor, ev.ID, true)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	err = f.reg.Evidence.Delete(f.ctx, f.admin, ev.ID, true)
	require.NoError(t, err)

	sec, err := f.reg.Sections.Get(f.ctx, f.editor, sys.ID, v.ID, model.SectionDataGovernance)
	require.NoError(t, err)
	assert.Empty(t, sec.EvidenceRefs)
	mappings, err := f.reg.Mappings.List(f.ctx, f.editor, v.ID, store.MappingFilter{})
	require.NoError(t, err)
	assert.Empty(t, mappings)

	// The cascade leaves a mapping-scoped audit row naming the reason.
	events, err := f.reg.Audits.List(f.ctx, f.admin, store.AuditFilter{
		EntityType: "evidence_mapping", Action: audit.ActionDelete,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionForceDelete, events[0].DiffJSON["reason"])
}

func TestMappingTargetKeyIsOpaque(t *testing.T) {
	f := newSvcFixture(t)
	sys := f.system("cv-screener")
	v := f.version(sys.ID, "v1.0")
	ev := f.noteEvidence("dpia")

	// Keys outside the Annex IV section catalogue are valid targets.
	m, err := f.reg.Mappings.Create(f.ctx, f.editor, v.ID, MappingInput{
		EvidenceID: ev.ID,
		TargetType: model.TargetSection,
		TargetKey:  "CUSTOM.WORKFLOW_KEY",
	})
	require.NoError(t, err)
	assert.Equal(t, "CUSTOM.WORKFLOW_KEY", m.TargetKey)

	_, err = f.reg.Mappings.Create(f.ctx, f.editor, v.ID, MappingInput{
		EvidenceID: ev.ID,
		TargetType: model.TargetField,
		TargetKey:  "  ",
	})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestEvidenceDuplicateChecksumAdvisory(t *testing.T) {
	f := newSvcFixture(t)

	uri1, err := storage.NewEvidenceURI(f.org.ID, "pdf", f.now)
	require.NoError(t, err)
	uri2, err := storage.NewEvidenceURI(f.org.ID, "pdf", f.now)
	require.NoError(t, err)
	sum := strings.Repeat("ab", 32)

	upload := func(uri string) map[string]any {
		return map[string]any{
			"storage_uri":       uri,
			"checksum_sha256":   sum,
			"file_size":         1024,
			"mime_type":         "application/pdf",
			"original_filename": "audit.pdf",
		}
	}

	first, err := f.reg.Evidence.Create(f.ctx, f.editor, EvidenceInput{
		Type: model.EvidenceUpload, Title: "audit report", TypeMetadata: upload(uri1),
	})
	require.NoError(t, err)
	assert.Nil(t, first.DuplicateOf)

	second, err := f.reg.Evidence.Create(f.ctx, f.editor, EvidenceInput{
		Type: model.EvidenceUpload, Title: "audit report again", TypeMetadata: upload(uri2),
	})
	require.NoError(t, err)
	require.NotNil(t, second.DuplicateOf)
	assert.Equal(t, first.Item.ID, *second.DuplicateOf)
}

func TestEvidenceUploadFieldsImmutable(t *testing.T) {
	f := newSvcFixture(t)

	uri, err := storage.NewEvidenceURI(f.org.ID, "pdf", f.now)
	require.NoError(t, err)
	meta := map[string]any{
		"storage_uri":       uri,
		"checksum_sha256":   strings.Repeat("cd", 32),
		"file_size":         2048,
		"mime_type":         "application/pdf",
		"original_filename": "policy.pdf",
	}
	created, err := f.reg.Evidence.Create(f.ctx, f.editor, EvidenceInput{
		Type: model.EvidenceUpload, Title: "policy", TypeMetadata: meta,
	})
	require.NoError(t, err)

	tamper := func(field string, value any) map[string]any {
		out := map[string]any{}
		for k, v := range meta {
			out[k] = v
		}
		out[field] = value
		return out
	}
	_, err = f.reg.Evidence.Update(f.ctx, f.editor, created.Item.ID, EvidenceInput{
		Title: "policy", TypeMetadata: tamper("checksum_sha256", strings.Repeat("ef", 32)),
	})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = f.reg.Evidence.Update(f.ctx, f.editor, created.Item.ID, EvidenceInput{
		Title: "policy", TypeMetadata: tamper("mime_type", "image/png"),
	})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	// Descriptive fields stay editable.
	updated, err := f.reg.Evidence.Update(f.ctx, f.editor, created.Item.ID, EvidenceInput{
		Title: "policy v2", Tags: []string{"hr", "policy"},
	})
	require.NoError(t, err)
	assert.Equal(t, "policy v2", updated.Title)
}

func TestPresignUploadRejectsUnknownMIME(t *testing.T) {
	f := newSvcFixture(t)

	_, err := f.reg.Evidence.PresignUpload(f.ctx, f.editor, "tool.exe", "application/x-msdownload")
	assert.True(t, apperr.IsKind(err, apperr.KindUnsupportedMedia))

	res, err := f.reg.Evidence.PresignUpload(f.ctx, f.editor, "report.pdf", "application/pdf")
	require.NoError(t, err)
	assert.NoError(t, storage.ValidateEvidenceURI(f.org.ID, res.StorageURI))
	assert.NotEmpty(t, res.UploadURL)
}

func TestDecisionLogIngestFlow(t *testing.T) {
	f := newSvcFixture(t)
	sys := f.system("cv-screener")
	v := f.version(sys.ID, "v1.0")

	key, err := f.reg.Logging.EnableLogging(f.ctx, f.editor, sys.ID, v.ID, "prod ingester", false)
	require.NoError(t, err)
	require.NotEmpty(t, key.Plaintext)

	event := func(id string) map[string]any {
		return map[string]any{
			"event_id":   id,
			"event_time": "2026-03-14T10:00:00Z",
			"actor":      "ranker-service",
			"subject":    map[string]any{"subject_type": "candidate", "subject_id": "candidate-42"},
			"model":      map[string]any{"model_id": "ranker", "model_version": "3"},
			"input":      map[string]any{"input_hash": "sha256:aabb"},
			"output":     map[string]any{"decision": "shortlist", "score": 0.87, "output_hash": "sha256:ccdd"},
		}
	}

	res, err := f.reg.Logging.Ingest(f.ctx, key.Plaintext, event("evt-1"))
	require.NoError(t, err)
	assert.Equal(t, "evt-1", res.EventID)

	// Replays of the same event id are rejected.
	_, err = f.reg.Logging.Ingest(f.ctx, key.Plaintext, event("evt-1"))
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	// Subject ids are hashed on the stored event.
	logs, err := f.reg.Logging.List(f.ctx, f.editor, sys.ID, v.ID, store.DecisionLogFilter{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "shortlist", logs[0].Decision)

	data, contentType, err := f.reg.Logging.ExportLogs(f.ctx, f.admin, sys.ID, v.ID, LogExportJSON, store.DecisionLogFilter{})
	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)
	assert.Contains(t, string(data), "subject_id_hash")
	assert.NotContains(t, string(data), "candidate-42")

	csvData, contentType, err := f.reg.Logging.ExportLogs(f.ctx, f.admin, sys.ID, v.ID, LogExportCSV, store.DecisionLogFilter{})
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.Contains(t, string(csvData), "evt-1")

	err = f.reg.Logging.RevokeKey(f.ctx, f.editor, sys.ID, v.ID, key.Key.ID)
	require.NoError(t, err)
	_, err = f.reg.Logging.Ingest(f.ctx, key.Plaintext, event("evt-2"))
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))
}

func TestIngestRejectsInvalidEvent(t *testing.T) {
	f := newSvcFixture(t)
	sys := f.system("cv-screener")
	v := f.version(sys.ID, "v1.0")

	key, err := f.reg.Logging.EnableLogging(f.ctx, f.editor, sys.ID, v.ID, "ingester", false)
	require.NoError(t, err)

	_, err = f.reg.Logging.Ingest(f.ctx, key.Plaintext, map[string]any{"event_id": "evt-1"})
	assert.True(t, apperr.IsKind(err, apperr.KindBadRequest))

	_, err = f.reg.Logging.Ingest(f.ctx, "not-a-key", map[string]any{})
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))
}

func TestDraftWithoutEvidenceReturnsPlaceholder(t *testing.T) {
	f := newSvcFixture(t)
	sys := f.system("cv-screener")
	v := f.version(sys.ID, "v1.0")

	res, err := f.reg.Sections.Draft(f.ctx, f.editor, sys.ID, v.ID, model.SectionRiskManagement)
	require.NoError(t, err)
	assert.Equal(t, llm.NeedsEvidencePlaceholder, res.Text)
	assert.False(t, res.LLMAssisted)
}

func TestVersionPartialUpdate(t *testing.T) {
	f := newSvcFixture(t)
	sys := f.system("cv-screener")
	v := f.version(sys.ID, "v1.0")

	release := "2026-03-01"
	_, err := f.reg.Versions.Update(f.ctx, f.editor, sys.ID, v.ID, VersionUpdate{
		Notes:       nonEmptyPtr("pilot rollout"),
		ReleaseDate: &release,
	})
	require.NoError(t, err)

	// Updating only the notes leaves the release date alone.
	updated, err := f.reg.Versions.Update(f.ctx, f.editor, sys.ID, v.ID, VersionUpdate{
		Notes: nonEmptyPtr("ga rollout"),
	})
	require.NoError(t, err)
	assert.Equal(t, "ga rollout", updated.Notes)
	require.NotNil(t, updated.ReleaseDate)
	assert.Equal(t, release, *updated.ReleaseDate)

	// And the other way around.
	newRelease := "2026-04-01"
	updated, err = f.reg.Versions.Update(f.ctx, f.editor, sys.ID, v.ID, VersionUpdate{
		ReleaseDate: &newRelease,
	})
	require.NoError(t, err)
	assert.Equal(t, "ga rollout", updated.Notes)
	assert.Equal(t, newRelease, *updated.ReleaseDate)

	_, err = f.reg.Versions.Update(f.ctx, f.editor, sys.ID, v.ID, VersionUpdate{
		ReleaseDate: nonEmptyPtr("04/01/2026"),
	})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestCloneCopiesNotesOnly(t *testing.T) {
	f := newSvcFixture(t)
	sys := f.system("cv-screener")
	v := f.version(sys.ID, "v1.0")

	release := "2026-03-01"
	_, err := f.reg.Versions.Update(f.ctx, f.editor, sys.ID, v.ID, VersionUpdate{
		Notes:       nonEmptyPtr("pilot rollout"),
		ReleaseDate: &release,
	})
	require.NoError(t, err)
	_, err = f.reg.Versions.Transition(f.ctx, f.editor, sys.ID, v.ID, model.StatusReview)
	require.NoError(t, err)

	clone, err := f.reg.Versions.Clone(f.ctx, f.editor, sys.ID, v.ID, "v1.1")
	require.NoError(t, err)

	assert.NotEqual(t, v.ID, clone.ID)
	assert.Equal(t, "v1.1", clone.Label)
	assert.Equal(t, model.StatusDraft, clone.Status)
	assert.Equal(t, "pilot rollout", clone.Notes)
	assert.Nil(t, clone.ReleaseDate)
	assert.Nil(t, clone.ApprovedBy)

	// Sections start over on the clone.
	sections, err := f.reg.Sections.List(f.ctx, f.editor, sys.ID, clone.ID)
	require.NoError(t, err)
	require.Len(t, sections, len(model.SectionKeys))
	for _, sec := range sections {
		assert.Zero(t, sec.CompletenessScore)
	}

	_, err = f.reg.Versions.Clone(f.ctx, f.editor, sys.ID, v.ID, "not a label!")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestCompareVersions(t *testing.T) {
	f := newSvcFixture(t)
	sys := f.system("cv-screener")
	v1 := f.version(sys.ID, "v1.0")
	v2 := f.version(sys.ID, "v2.0")

	_, err := f.reg.Versions.Update(f.ctx, f.editor, sys.ID, v2.ID, VersionUpdate{Notes: nonEmptyPtr("tightened thresholds")})
	require.NoError(t, err)

	diff, err := f.reg.Versions.Compare(f.ctx, f.editor, sys.ID, v1.ID, v2.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.ID, diff.FromVersionID)
	assert.Equal(t, v2.ID, diff.ToVersionID)
	// label modified, notes added.
	assert.Equal(t, 1, diff.Modified)
	assert.Equal(t, 1, diff.Added)
	assert.Equal(t, 0, diff.Removed)
	require.Len(t, diff.Changes, 2)
	assert.Equal(t, "label", diff.Changes[0].Field)
	assert.Equal(t, "notes", diff.Changes[1].Field)

	other := f.system("chat-triage")
	foreign := f.version(other.ID, "v1.0")
	_, err = f.reg.Versions.Compare(f.ctx, f.editor, sys.ID, v1.ID, foreign.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestManifestMatchesExportHash(t *testing.T) {
	f := newSvcFixture(t)
	sys := f.system("cv-screener")
	v := f.version(sys.ID, "v1.0")

	_, err := f.reg.Sections.Update(f.ctx, f.editor, sys.ID, v.ID, model.SectionGeneral, SectionUpdate{
		Content: map[string]any{"system_name": "cv-screener", "provider": "Acme"},
	})
	require.NoError(t, err)

	rec, err := f.reg.Exports.Create(f.ctx, f.admin, sys.ID, v.ID, ExportInput{ExportType: model.ExportFull})
	require.NoError(t, err)

	manifest, err := f.reg.Exports.Manifest(f.ctx, f.admin, sys.ID, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.0", manifest["manifest_version"])
	assert.Equal(t, rec.SnapshotHash, manifest["snapshot_hash"])
	assert.Contains(t, manifest, "annex_sections")
	assert.Contains(t, manifest, "evidence_index")
	assert.Contains(t, manifest, "generated_at")
}

func TestCrossOrgIsolation(t *testing.T) {
	f := newSvcFixture(t)
	sys := f.system("cv-screener")
	v := f.version(sys.ID, "v1.0")
	ev := f.noteEvidence("memo")

	stranger, err := f.reg.Accounts.Bootstrap(f.ctx, BootstrapInput{
		OrgName:       "Other Corp",
		AdminEmail:    "admin@other.test",
		AdminPassword: "a-password-long-enough",
	})
	require.NoError(t, err)
	outsider := &auth.Principal{
		UserID: stranger.Admin.ID, OrgID: stranger.Org.ID, Role: model.RoleAdmin,
	}

	_, err = f.reg.Systems.Get(f.ctx, outsider, sys.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	_, err = f.reg.Evidence.Get(f.ctx, outsider, ev.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	_, err = f.reg.Mappings.List(f.ctx, outsider, v.ID, store.MappingFilter{})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	_, err = f.reg.Sections.List(f.ctx, outsider, sys.ID, v.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/model"
)

func newTestDB(t *testing.T) *Fixture {
	t.Helper()
	ctx := context.Background()
	db, err := OpenMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &Fixture{ctx: ctx, t: t, db: db}
	f.Orgs = NewOrgStore(db)
	f.Users = NewUserStore(db)
	f.Systems = NewSystemStore(db)
	f.Versions = NewVersionStore(db)
	f.Sections = NewSectionStore(db)
	f.Evidence = NewEvidenceStore(db)
	f.Mappings = NewMappingStore(db)
	f.Exports = NewExportStore(db)
	f.LogKeys = NewLogKeyStore(db)
	f.Decisions = NewDecisionLogStore(db)
	f.Audit = NewAuditStore(db)
	f.Assessments = NewAssessmentStore(db)
	return f
}

// Fixture bundles all stores over one in-memory database.
type Fixture struct {
	ctx context.Context
	t   *testing.T
	db  *sql.DB

	Orgs        *OrgStore
	Users       *UserStore
	Systems     *SystemStore
	Versions    *VersionStore
	Sections    *SectionStore
	Evidence    *EvidenceStore
	Mappings    *MappingStore
	Exports     *ExportStore
	LogKeys     *LogKeyStore
	Decisions   *DecisionLogStore
	Audit       *AuditStore
	Assessments *AssessmentStore
}

func (f *Fixture) org(name string) *model.Organization {
	org := &model.Organization{ID: uuid.New().String(), Name: name, CreatedAt: time.Now()}
	require.NoError(f.t, f.Orgs.Create(f.ctx, org))
	return org
}

func (f *Fixture) system(orgID, name string) *model.AISystem {
	now := time.Now()
	sys := &model.AISystem{
		ID: uuid.New().String(), OrgID: orgID, Name: name,
		IntendedPurpose: "cv screening", RowVersion: 1,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(f.t, f.Systems.Create(f.ctx, sys))
	return sys
}

func (f *Fixture) version(systemID, label string) *model.SystemVersion {
	now := time.Now()
	v := &model.SystemVersion{
		ID: uuid.New().String(), AISystemID: systemID, Label: label,
		Status: model.StatusDraft, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(f.t, f.Versions.Create(f.ctx, v))
	return v
}

func (f *Fixture) evidence(orgID, title string) *model.EvidenceItem {
	now := time.Now()
	e := &model.EvidenceItem{
		ID: uuid.New().String(), OrgID: orgID,
		Type: model.EvidenceNote, Title: title,
		Tags: []string{}, Classification: model.ClassInternal,
		TypeMetadata: map[string]any{"body": "text"},
		CreatedAt:    now, UpdatedAt: now,
	}
	require.NoError(f.t, f.Evidence.Create(f.ctx, e))
	return e
}

func TestOrgNameUnique(t *testing.T) {
	f := newTestDB(t)
	f.org("acme")
	err := f.Orgs.Create(f.ctx, &model.Organization{
		ID: uuid.New().String(), Name: "acme", CreatedAt: time.Now(),
	})
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestUserEmailUniquePerOrg(t *testing.T) {
	f := newTestDB(t)
	org1 := f.org("acme")
	org2 := f.org("globex")

	mk := func(orgID string) error {
		return f.Users.Create(f.ctx, &model.User{
			ID: uuid.New().String(), OrgID: orgID, Email: "a@example.com",
			Role: model.RoleAdmin, Active: true, CreatedAt: time.Now(),
		})
	}
	require.NoError(t, mk(org1.ID))
	assert.True(t, apperr.IsKind(mk(org1.ID), apperr.KindConflict))
	// Same email in another org is fine.
	require.NoError(t, mk(org2.ID))
}

func TestSystemOptimisticConcurrency(t *testing.T) {
	f := newTestDB(t)
	org := f.org("acme")
	sys := f.system(org.ID, "screener")

	sys.IntendedPurpose = "updated purpose"
	sys.UpdatedAt = time.Now()
	require.NoError(t, f.Systems.Update(f.ctx, sys, 1))
	assert.Equal(t, int64(2), sys.RowVersion)

	// Writing with the stale counter conflicts.
	err := f.Systems.Update(f.ctx, sys, 1)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	got, err := f.Systems.Get(f.ctx, org.ID, sys.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.RowVersion)
	assert.Equal(t, "updated purpose", got.IntendedPurpose)
}

func TestVersionLabelNeverReused(t *testing.T) {
	f := newTestDB(t)
	org := f.org("acme")
	sys := f.system(org.ID, "screener")
	v := f.version(sys.ID, "v1")

	err := f.Versions.Create(f.ctx, &model.SystemVersion{
		ID: uuid.New().String(), AISystemID: sys.ID, Label: "v1",
		Status: model.StatusDraft, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	// Deleting the version frees the label; this mirrors hard deletion of a
	// draft, the only deletable state.
	require.NoError(t, f.Versions.Delete(f.ctx, v.ID))
	require.NoError(t, f.Versions.Create(f.ctx, &model.SystemVersion{
		ID: uuid.New().String(), AISystemID: sys.ID, Label: "v1",
		Status: model.StatusDraft, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))
}

func TestSectionEnsureIdempotent(t *testing.T) {
	f := newTestDB(t)
	org := f.org("acme")
	sys := f.system(org.ID, "screener")
	v := f.version(sys.ID, "v1")

	now := time.Now().UTC().Format(time.RFC3339Nano)
	require.NoError(t, f.Sections.EnsureForVersion(f.ctx, v.ID, now))
	require.NoError(t, f.Sections.EnsureForVersion(f.ctx, v.ID, now))

	secs, err := f.Sections.ListByVersion(f.ctx, v.ID)
	require.NoError(t, err)
	assert.Len(t, secs, len(model.SectionKeys))

	sec, err := f.Sections.Get(f.ctx, v.ID, model.SectionGeneral)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, sec.Content)
	assert.Equal(t, []string{}, sec.EvidenceRefs)
}

func TestSectionRoundTrip(t *testing.T) {
	f := newTestDB(t)
	org := f.org("acme")
	sys := f.system(org.ID, "screener")
	v := f.version(sys.ID, "v1")
	require.NoError(t, f.Sections.EnsureForVersion(f.ctx, v.ID, fmtTime(time.Now())))

	sec, err := f.Sections.Get(f.ctx, v.ID, model.SectionGeneral)
	require.NoError(t, err)
	sec.Content = map[string]any{"system_name": "screener", "provider": "acme"}
	sec.EvidenceRefs = []string{"ref-1"}
	sec.CompletenessScore = 46.67
	sec.LLMAssisted = true
	sec.UpdatedAt = time.Now()
	require.NoError(t, f.Sections.Update(f.ctx, sec))

	got, err := f.Sections.Get(f.ctx, v.ID, model.SectionGeneral)
	require.NoError(t, err)
	assert.Equal(t, "screener", got.Content["system_name"])
	assert.Equal(t, []string{"ref-1"}, got.EvidenceRefs)
	assert.InDelta(t, 46.67, got.CompletenessScore, 1e-9)
	assert.True(t, got.LLMAssisted)
}

func TestEvidenceSearchAndFilters(t *testing.T) {
	f := newTestDB(t)
	org := f.org("acme")

	bias := f.evidence(org.ID, "Bias audit report 2025")
	f.evidence(org.ID, "Deployment runbook")

	bias.Tags = []string{"fairness", "audit"}
	bias.UpdatedAt = time.Now()
	require.NoError(t, f.Evidence.Update(f.ctx, bias))

	found, err := f.Evidence.List(f.ctx, org.ID, EvidenceFilter{Search: "bias audit"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, bias.ID, found[0].ID)

	found, err = f.Evidence.List(f.ctx, org.ID, EvidenceFilter{Tags: []string{"fairness", "audit"}})
	require.NoError(t, err)
	require.Len(t, found, 1)

	found, err = f.Evidence.List(f.ctx, org.ID, EvidenceFilter{Tags: []string{"fairness", "missing"}})
	require.NoError(t, err)
	assert.Empty(t, found)

	// Other orgs never see the items.
	other := f.org("globex")
	found, err = f.Evidence.List(f.ctx, other.ID, EvidenceFilter{})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestEvidenceOrphanedFilter(t *testing.T) {
	f := newTestDB(t)
	org := f.org("acme")
	sys := f.system(org.ID, "screener")
	v := f.version(sys.ID, "v1")

	mapped := f.evidence(org.ID, "bias audit")
	orphan := f.evidence(org.ID, "old runbook")
	require.NoError(t, f.Mappings.Create(f.ctx, &model.EvidenceMapping{
		ID: uuid.New().String(), EvidenceID: mapped.ID, VersionID: v.ID,
		TargetType: model.TargetSection, TargetKey: "ANNEX4.GENERAL",
		CreatedAt: time.Now(),
	}))

	orphaned := true
	found, err := f.Evidence.List(f.ctx, org.ID, EvidenceFilter{Orphaned: &orphaned})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, orphan.ID, found[0].ID)

	orphaned = false
	found, err = f.Evidence.List(f.ctx, org.ID, EvidenceFilter{Orphaned: &orphaned})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, mapped.ID, found[0].ID)
	assert.Equal(t, 1, found[0].UsageCount)

	// Unset means both, and oversize limits are accepted (clamped server-side).
	found, err = f.Evidence.List(f.ctx, org.ID, EvidenceFilter{Limit: 100000})
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestEvidenceDuplicateChecksum(t *testing.T) {
	f := newTestDB(t)
	org := f.org("acme")
	sum := "a3f5" + strings.Repeat("0", 60)

	now := time.Now()
	first := &model.EvidenceItem{
		ID: uuid.New().String(), OrgID: org.ID, Type: model.EvidenceUpload,
		Title: "report.pdf", Tags: []string{}, Classification: model.ClassInternal,
		TypeMetadata: map[string]any{"checksum_sha256": sum, "file_size": 100},
		CreatedAt:    now, UpdatedAt: now,
	}
	require.NoError(t, f.Evidence.Create(f.ctx, first))

	dup, err := f.Evidence.FindByChecksum(f.ctx, org.ID, sum)
	require.NoError(t, err)
	require.NotNil(t, dup)
	assert.Equal(t, first.ID, dup.ID)

	none, err := f.Evidence.FindByChecksum(f.ctx, org.ID, "ffff"+sum[4:])
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMappingUniqueAndPrefixFilter(t *testing.T) {
	f := newTestDB(t)
	org := f.org("acme")
	sys := f.system(org.ID, "screener")
	v := f.version(sys.ID, "v1")
	ev := f.evidence(org.ID, "policy doc")

	mk := func(targetKey string) error {
		return f.Mappings.Create(f.ctx, &model.EvidenceMapping{
			ID: uuid.New().String(), EvidenceID: ev.ID, VersionID: v.ID,
			TargetType: model.TargetSection, TargetKey: targetKey,
			CreatedAt: time.Now(),
		})
	}
	require.NoError(t, mk("ANNEX4.GENERAL"))
	require.NoError(t, mk("ANNEX4.RISK_MANAGEMENT"))
	assert.True(t, apperr.IsKind(mk("ANNEX4.GENERAL"), apperr.KindConflict))

	rows, err := f.Mappings.ListByVersion(f.ctx, v.ID, MappingFilter{TargetKey: "ANNEX4*"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = f.Mappings.ListByVersion(f.ctx, v.ID, MappingFilter{TargetKey: "ANNEX4.GENERAL"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "policy doc", rows[0].EvidenceTitle)

	n, err := f.Mappings.DeleteByEvidence(f.ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestDecisionLogIdempotency(t *testing.T) {
	f := newTestDB(t)
	org := f.org("acme")
	sys := f.system(org.ID, "screener")
	v := f.version(sys.ID, "v1")

	now := time.Now()
	d := &model.DecisionLog{
		ID: uuid.New().String(), VersionID: v.ID, EventID: "evt-1",
		EventJSON: map[string]any{"decision": "rejected"},
		EventTime: now, IngestedAt: now,
	}
	require.NoError(t, f.Decisions.Insert(f.ctx, d))

	dup := &model.DecisionLog{
		ID: uuid.New().String(), VersionID: v.ID, EventID: "evt-1",
		EventJSON: map[string]any{"decision": "accepted"},
		EventTime: now, IngestedAt: now,
	}
	err := f.Decisions.Insert(f.ctx, dup)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	got, err := f.Decisions.GetByEventID(f.ctx, v.ID, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "rejected", got.EventJSON["decision"])
}

func TestDecisionLogTimeRange(t *testing.T) {
	f := newTestDB(t)
	org := f.org("acme")
	sys := f.system(org.ID, "screener")
	v := f.version(sys.ID, "v1")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, f.Decisions.Insert(f.ctx, &model.DecisionLog{
			ID: uuid.New().String(), VersionID: v.ID,
			EventID:   uuid.New().String(),
			EventJSON: map[string]any{"i": i},
			EventTime: base.Add(time.Duration(i) * time.Hour),
			IngestedAt: base,
		}))
	}

	logs, err := f.Decisions.List(f.ctx, v.ID, DecisionLogFilter{
		From: base.Add(1 * time.Hour),
		To:   base.Add(3 * time.Hour),
	})
	require.NoError(t, err)
	assert.Len(t, logs, 3)
	// Chronological order.
	assert.True(t, logs[0].EventTime.Before(logs[1].EventTime))
}

func TestAuditAppendOnly(t *testing.T) {
	f := newTestDB(t)
	org := f.org("acme")

	ev := &model.AuditEvent{
		ID: uuid.New().String(), OrgID: org.ID,
		Action: "create_system", EntityType: "ai_system", EntityID: "sys-1",
		DiffJSON: map[string]any{"name": "screener"},
		IP:       "10.0.0.1", CreatedAt: time.Now(),
	}
	require.NoError(t, f.Audit.Insert(f.ctx, ev))

	_, err := f.db.ExecContext(f.ctx,
		`UPDATE audit_events SET action = 'tampered' WHERE id = ?`, ev.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	_, err = f.db.ExecContext(f.ctx, `DELETE FROM audit_events WHERE id = ?`, ev.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	events, err := f.Audit.List(f.ctx, org.ID, AuditFilter{EntityType: "ai_system"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "create_system", events[0].Action)
}

func TestAuditSurvivesActorDeletion(t *testing.T) {
	f := newTestDB(t)
	org := f.org("acme")
	u := &model.User{
		ID: uuid.New().String(), OrgID: org.ID, Email: "a@example.com",
		Role: model.RoleAdmin, Active: true, CreatedAt: time.Now(),
	}
	require.NoError(t, f.Users.Create(f.ctx, u))

	require.NoError(t, f.Audit.Insert(f.ctx, &model.AuditEvent{
		ID: uuid.New().String(), OrgID: org.ID, UserID: &u.ID,
		Action: "login", EntityType: "user", EntityID: u.ID,
		CreatedAt: time.Now(),
	}))

	// Deleting the actor nulls user_id via the FK, the one permitted update.
	require.NoError(t, f.Users.Delete(f.ctx, org.ID, u.ID))

	events, err := f.Audit.List(f.ctx, org.ID, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Nil(t, events[0].UserID)
	assert.Equal(t, "login", events[0].Action)
}

func TestLogKeyLifecycle(t *testing.T) {
	f := newTestDB(t)
	org := f.org("acme")
	sys := f.system(org.ID, "screener")
	v := f.version(sys.ID, "v1")

	k := &model.LogAPIKey{
		ID: uuid.New().String(), VersionID: v.ID, Name: "prod ingest",
		KeyHash: "deadbeef", CreatedAt: time.Now(),
	}
	require.NoError(t, f.LogKeys.Create(f.ctx, k))

	got, err := f.LogKeys.FindActiveByHash(f.ctx, "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, k.ID, got.ID)

	require.NoError(t, f.LogKeys.Revoke(f.ctx, v.ID, k.ID, time.Now()))
	_, err = f.LogKeys.FindActiveByHash(f.ctx, "deadbeef")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	// Revocation is not repeatable.
	err = f.LogKeys.Revoke(f.ctx, v.ID, k.ID, time.Now())
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestAssessmentLatestTieBreak(t *testing.T) {
	f := newTestDB(t)
	org := f.org("acme")
	sys := f.system(org.ID, "screener")

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	older := &model.HighRiskAssessment{
		ID: "aaaa", AISystemID: sys.ID, Score: 40, RiskLevel: "medium",
		Rationale: []string{"deployment"}, CreatedAt: at,
	}
	newer := &model.HighRiskAssessment{
		ID: "bbbb", AISystemID: sys.ID, Score: 80, RiskLevel: "high",
		Rationale: []string{"employment context"}, CreatedAt: at,
	}
	require.NoError(t, f.Assessments.Create(f.ctx, older))
	require.NoError(t, f.Assessments.Create(f.ctx, newer))

	got, err := f.Assessments.Latest(f.ctx, sys.ID)
	require.NoError(t, err)
	assert.Equal(t, "bbbb", got.ID)
	assert.Equal(t, 80, got.Score)
}

package export

import (
	"archive/zip"
	"bytes"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complia/complia/pkg/completeness"
	"github.com/complia/complia/pkg/model"
)

func testInput() Input {
	release := "2026-04-01"
	sections := []*model.AnnexSection{
		{
			SectionKey:   model.SectionGeneral,
			Content:      map[string]any{"system_name": "screener", "provider": "acme"},
			EvidenceRefs: []string{"ev-b", "ev-a"},
		},
		{
			SectionKey:   model.SectionRiskManagement,
			Content:      map[string]any{},
			EvidenceRefs: []string{},
		},
	}
	evidence := map[string]*model.EvidenceItem{
		"ev-a": {
			ID: "ev-a", Type: model.EvidenceUpload, Title: "Bias audit",
			Classification: model.ClassInternal,
			TypeMetadata:   map[string]any{"checksum_sha256": "ab12"},
		},
		"ev-b": {
			ID: "ev-b", Type: model.EvidenceNote, Title: "Design note",
			Classification: model.ClassPublic,
			TypeMetadata:   map[string]any{"content": "x"},
		},
	}
	mappings := []*model.EvidenceMapping{
		{EvidenceID: "ev-b", VersionID: "v-1", TargetType: model.TargetSection, TargetKey: "ANNEX4.GENERAL", Strength: model.StrengthStrong},
		{EvidenceID: "ev-a", VersionID: "v-1", TargetType: model.TargetSection, TargetKey: "ANNEX4.GENERAL"},
	}
	report := completeness.BuildReport(sections)
	return Input{
		Org:     &model.Organization{ID: "org-1", Name: "acme"},
		System:  &model.AISystem{ID: "sys-1", Name: "screener", IntendedPurpose: "cv screening"},
		Version: &model.SystemVersion{ID: "v-1", Label: "v1", Status: model.StatusApproved, ReleaseDate: &release},
		Assessment: &model.HighRiskAssessment{
			Score: 80, RiskLevel: "high", Rationale: []string{"employment context"},
		},
		Sections:     sections,
		Evidence:     evidence,
		Mappings:     mappings,
		Completeness: &report,
	}
}

func TestSnapshotHashStable(t *testing.T) {
	in := testInput()
	h1, err := SnapshotHash(in)
	require.NoError(t, err)
	h2, err := SnapshotHash(in)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), h1)
}

func TestSnapshotHashIgnoresGeneratedAt(t *testing.T) {
	in := testInput()
	h, err := SnapshotHash(in)
	require.NoError(t, err)

	m1 := BuildManifest(in, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), h)
	m2 := BuildManifest(in, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), h)
	assert.NotEqual(t, m1["generated_at"], m2["generated_at"])
	assert.Equal(t, m1["snapshot_hash"], m2["snapshot_hash"])
}

func TestSnapshotHashChangesWithContent(t *testing.T) {
	in := testInput()
	h1, err := SnapshotHash(in)
	require.NoError(t, err)

	in.Sections[0].Content["provider"] = "globex"
	h2, err := SnapshotHash(in)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestSnapshotHashIndependentOfInputOrder(t *testing.T) {
	in := testInput()
	h1, err := SnapshotHash(in)
	require.NoError(t, err)

	// Reversing mapping and section slices must not matter.
	in.Mappings[0], in.Mappings[1] = in.Mappings[1], in.Mappings[0]
	in.Sections[0], in.Sections[1] = in.Sections[1], in.Sections[0]
	h2, err := SnapshotHash(in)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestBuildArchiveDeterministic(t *testing.T) {
	entries := map[string][]byte{
		"b.json": []byte(`{"b":1}`),
		"a.json": []byte(`{"a":1}`),
	}
	z1, err := BuildArchive(entries)
	require.NoError(t, err)
	z2, err := BuildArchive(entries)
	require.NoError(t, err)
	assert.Equal(t, z1, z2, "archive bytes must be reproducible")

	r, err := zip.NewReader(bytes.NewReader(z1), int64(len(z1)))
	require.NoError(t, err)
	require.Len(t, r.File, 2)
	assert.Equal(t, "a.json", r.File[0].Name)
	assert.Equal(t, "b.json", r.File[1].Name)
}

func TestBuildPackage(t *testing.T) {
	in := testInput()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	p1, err := Build(in, now, nil)
	require.NoError(t, err)
	p2, err := Build(in, now, nil)
	require.NoError(t, err)
	assert.Equal(t, p1.Archive, p2.Archive)
	assert.Equal(t, p1.SnapshotHash, p2.SnapshotHash)

	r, err := zip.NewReader(bytes.NewReader(p1.Archive), int64(len(p1.Archive)))
	require.NoError(t, err)
	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		"AnnexIV.docx",
		"CompletenessReport.json",
		"EvidenceIndex.csv",
		"EvidenceIndex.json",
		"SystemManifest.json",
	}, names)

	// The embedded manifest carries the snapshot hash.
	mf, err := r.Open("SystemManifest.json")
	require.NoError(t, err)
	raw, err := io.ReadAll(mf)
	require.NoError(t, err)
	assert.Contains(t, string(raw), p1.SnapshotHash)
}

func TestBuildPackageWithDiff(t *testing.T) {
	in := testInput()
	diff := BuildDiffReport("v-0", in.Sections, nil)

	p, err := Build(in, time.Now(), &diff)
	require.NoError(t, err)

	r, err := zip.NewReader(bytes.NewReader(p.Archive), int64(len(p.Archive)))
	require.NoError(t, err)
	found := false
	for _, f := range r.File {
		if f.Name == "DiffReport.json" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestBuildDiffReport(t *testing.T) {
	current := []*model.AnnexSection{
		{SectionKey: model.SectionGeneral, Content: map[string]any{"a": "1"}, EvidenceRefs: []string{"ev-1", "ev-2"}},
		{SectionKey: model.SectionRiskManagement, Content: map[string]any{}, EvidenceRefs: []string{}},
	}
	compare := []*model.AnnexSection{
		{SectionKey: model.SectionGeneral, Content: map[string]any{"a": "0"}, EvidenceRefs: []string{"ev-2", "ev-3"}},
		{SectionKey: model.SectionRiskManagement, Content: map[string]any{}, EvidenceRefs: []string{}},
	}

	report := BuildDiffReport("v-0", current, compare)

	require.Len(t, report.SectionChanges, 1)
	assert.Equal(t, model.SectionGeneral, report.SectionChanges[0].SectionKey)
	assert.Equal(t, []string{"ev-1"}, report.EvidenceAdded)
	assert.Equal(t, []string{"ev-3"}, report.EvidenceRemoved)
}

func TestDocxContainsSections(t *testing.T) {
	in := testInput()
	docx, err := BuildDocx(in)
	require.NoError(t, err)

	r, err := zip.NewReader(bytes.NewReader(docx), int64(len(docx)))
	require.NoError(t, err)
	doc, err := r.Open("word/document.xml")
	require.NoError(t, err)
	raw, err := io.ReadAll(doc)
	require.NoError(t, err)

	assert.Contains(t, string(raw), model.SectionGeneral)
	assert.Contains(t, string(raw), "screener")
	assert.Contains(t, string(raw), "Bias audit")
}

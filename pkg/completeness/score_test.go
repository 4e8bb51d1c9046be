package completeness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complia/complia/pkg/model"
)

func TestSectionScoreGeneralThreeOfFiveOneRef(t *testing.T) {
	// ANNEX4.GENERAL has 5 required fields; 3 filled plus 1 evidence ref
	// gives 3/5*50 + 1/3*50 = 30 + 16.67 = 46.67.
	content := map[string]any{
		"system_name":      "credit-scorer",
		"provider":         "Acme GmbH",
		"intended_purpose": "pre-screening of loan applications",
	}
	rep := Section(model.SectionGeneral, content, []string{"ev-1"})

	assert.Equal(t, 30.0, rep.FieldScore)
	assert.Equal(t, 16.67, rep.EvidenceScore)
	assert.Equal(t, 46.67, rep.Score)
	assert.Equal(t, 3, rep.FilledFields)
	assert.Equal(t, 5, rep.RequiredFields)
}

func TestSectionScoreEmptyValuesDoNotCount(t *testing.T) {
	content := map[string]any{
		"system_name":      "",
		"provider":         nil,
		"intended_purpose": []any{},
		"target_users":     []any{"hr staff"},
	}
	rep := Section(model.SectionGeneral, content, nil)
	assert.Equal(t, 1, rep.FilledFields)
	assert.Equal(t, 10.0, rep.Score) // 1/5*50
}

func TestSectionScoreEvidenceCap(t *testing.T) {
	refs := []string{"a", "b", "c", "d", "e"}
	rep := Section(model.SectionGeneral, nil, refs)
	// Capped at three refs: full evidence portion.
	assert.Equal(t, 50.0, rep.EvidenceScore)
	assert.Equal(t, 50.0, rep.Score)
}

func TestSectionScoreFull(t *testing.T) {
	content := map[string]any{}
	for _, f := range model.RequiredFields(model.SectionGeneral) {
		content[f] = "documented"
	}
	rep := Section(model.SectionGeneral, content, []string{"a", "b", "c"})
	assert.Equal(t, 100.0, rep.Score)
	assert.Empty(t, rep.Gaps)
}

func TestSectionGaps(t *testing.T) {
	rep := Section(model.SectionChangesLifecycle, map[string]any{"change_management": "yes"}, nil)

	var fields []string
	hasNoEvidence := false
	for _, g := range rep.Gaps {
		switch g.Type {
		case "required_field":
			fields = append(fields, g.Field)
		case "no_evidence":
			hasNoEvidence = true
		}
	}
	assert.Equal(t, []string{"version_history"}, fields)
	assert.True(t, hasNoEvidence)
}

func TestOverallWeightedMean(t *testing.T) {
	// All sections perfect scores 100.
	scores := map[string]float64{}
	for _, key := range model.SectionKeys {
		scores[key] = 100
	}
	assert.Equal(t, 100.0, Overall(scores))

	// Missing sections pull the mean down through the denominator.
	partial := map[string]float64{model.SectionGeneral: 100}
	var total float64
	for _, key := range model.SectionKeys {
		total += model.SectionWeights[key]
	}
	want := 100 * model.SectionWeights[model.SectionGeneral] / total
	got := Overall(partial)
	assert.InDelta(t, want, got, 0.01)

	assert.Equal(t, 0.0, Overall(nil))
}

func TestBuildReport(t *testing.T) {
	sections := []*model.AnnexSection{
		{
			SectionKey: model.SectionGeneral,
			Content: map[string]any{
				"system_name": "screener", "provider": "acme",
				"intended_purpose": "cv screening",
			},
			EvidenceRefs: []string{"ev-1"},
		},
		{SectionKey: model.SectionRiskManagement, Content: map[string]any{}, EvidenceRefs: []string{}},
	}

	report := BuildReport(sections)

	require.Len(t, report.Sections, 2)
	assert.Equal(t, model.SectionGeneral, report.Sections[0].SectionKey)
	assert.InDelta(t, 46.67, report.Sections[0].Score, 1e-9)
	assert.Equal(t, 0.0, report.Sections[1].Score)
	// Ten of twelve sections are absent; their weight stays in the denominator.
	assert.Greater(t, report.OverallScore, 0.0)
	assert.Less(t, report.OverallScore, 10.0)
}

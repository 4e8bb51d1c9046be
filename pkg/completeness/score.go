// Package completeness computes the weighted documentation-completeness score
// for Annex IV sections and versions. The report is materialized on read; only
// the per-section score is cached on the section row.
package completeness

import (
	"math"

	"github.com/complia/complia/pkg/model"
)

// Gap flags a missing piece of documentation in a section.
type Gap struct {
	Type  string `json:"type"`            // "required_field" or "no_evidence"
	Field string `json:"field,omitempty"` // set for required_field gaps
}

// SectionReport is the completeness breakdown for one section.
type SectionReport struct {
	SectionKey     string  `json:"section_key"`
	Score          float64 `json:"score"`
	FieldScore     float64 `json:"field_score"`
	EvidenceScore  float64 `json:"evidence_score"`
	RequiredFields int     `json:"required_fields"`
	FilledFields   int     `json:"filled_fields"`
	EvidenceCount  int     `json:"evidence_count"`
	Gaps           []Gap   `json:"gaps"`
}

// Report is the completeness report for a whole version.
type Report struct {
	OverallScore float64         `json:"overall_score"`
	Sections     []SectionReport `json:"sections"`
}

// filled reports whether a content value counts as filled. Null, empty string
// and empty array do not.
func filled(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	default:
		return true
	}
}

// SectionScore computes the cached score for one section: up to 50 points for
// required-field coverage and up to 50 for evidence count (capped at three
// items). When a section has no required fields the evidence portion carries
// the full 100.
func SectionScore(sectionKey string, content map[string]any, evidenceRefs []string) float64 {
	return Section(sectionKey, content, evidenceRefs).Score
}

// Section computes the full per-section breakdown.
func Section(sectionKey string, content map[string]any, evidenceRefs []string) SectionReport {
	required := model.RequiredFields(sectionKey)

	rep := SectionReport{
		SectionKey:     sectionKey,
		RequiredFields: len(required),
		EvidenceCount:  len(evidenceRefs),
		Gaps:           []Gap{},
	}

	for _, f := range required {
		if filled(content[f]) {
			rep.FilledFields++
		} else {
			rep.Gaps = append(rep.Gaps, Gap{Type: "required_field", Field: f})
		}
	}

	evidencePortion := 50.0
	if len(required) == 0 {
		evidencePortion = 100.0
	} else {
		rep.FieldScore = float64(rep.FilledFields) / float64(len(required)) * 50.0
	}

	capped := len(evidenceRefs)
	if capped > 3 {
		capped = 3
	}
	rep.EvidenceScore = float64(capped) / 3.0 * evidencePortion

	if len(evidenceRefs) == 0 {
		rep.Gaps = append(rep.Gaps, Gap{Type: "no_evidence"})
	}

	rep.Score = round2(rep.FieldScore + rep.EvidenceScore)
	rep.FieldScore = round2(rep.FieldScore)
	rep.EvidenceScore = round2(rep.EvidenceScore)
	return rep
}

// Overall computes the weighted mean over the fixed per-section weights
// table. Sections absent from scores contribute 0 to the numerator while
// their full weight stays in the denominator.
func Overall(scores map[string]float64) float64 {
	var num, den float64
	for _, key := range model.SectionKeys {
		w := model.SectionWeights[key]
		den += w
		num += w * scores[key]
	}
	if den == 0 {
		return 0
	}
	return round2(num / den)
}

// BuildReport materializes the full report for a version from its section
// rows, in section-key order.
func BuildReport(sections []*model.AnnexSection) Report {
	byKey := make(map[string]*model.AnnexSection, len(sections))
	for _, sec := range sections {
		byKey[sec.SectionKey] = sec
	}

	report := Report{Sections: make([]SectionReport, 0, len(model.SectionKeys))}
	scores := make(map[string]float64, len(model.SectionKeys))
	for _, key := range model.SectionKeys {
		sec, ok := byKey[key]
		if !ok {
			continue
		}
		sr := Section(key, sec.Content, sec.EvidenceRefs)
		report.Sections = append(report.Sections, sr)
		scores[key] = sr.Score
	}
	report.OverallScore = Overall(scores)
	return report
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

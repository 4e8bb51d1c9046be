package export

import (
	"reflect"
	"sort"

	"github.com/complia/complia/pkg/model"
)

// DiffReport compares the exported version against another version of the
// same system: per-section content changes plus evidence-set differences.
type DiffReport struct {
	CompareVersionID string          `json:"compare_version_id"`
	SectionChanges   []SectionChange `json:"section_changes"`
	EvidenceAdded    []string        `json:"evidence_added"`
	EvidenceRemoved  []string        `json:"evidence_removed"`
}

// SectionChange records that a section's content differs between the two
// versions.
type SectionChange struct {
	SectionKey string         `json:"section_key"`
	Current    map[string]any `json:"current"`
	Compare    map[string]any `json:"compare"`
}

// BuildDiffReport computes the differences. Current is the exported version's
// state, compare the baseline.
func BuildDiffReport(compareVersionID string, current, compare []*model.AnnexSection) DiffReport {
	report := DiffReport{
		CompareVersionID: compareVersionID,
		SectionChanges:   []SectionChange{},
		EvidenceAdded:    []string{},
		EvidenceRemoved:  []string{},
	}

	compareByKey := make(map[string]*model.AnnexSection, len(compare))
	for _, sec := range compare {
		compareByKey[sec.SectionKey] = sec
	}

	currentRefs := map[string]bool{}
	compareRefs := map[string]bool{}
	for _, sec := range compare {
		for _, ref := range sec.EvidenceRefs {
			compareRefs[ref] = true
		}
	}

	sorted := append([]*model.AnnexSection{}, current...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SectionKey < sorted[j].SectionKey })

	for _, sec := range sorted {
		for _, ref := range sec.EvidenceRefs {
			currentRefs[ref] = true
		}
		baseline := map[string]any{}
		if other, ok := compareByKey[sec.SectionKey]; ok && other.Content != nil {
			baseline = other.Content
		}
		content := sec.Content
		if content == nil {
			content = map[string]any{}
		}
		if !reflect.DeepEqual(content, baseline) {
			report.SectionChanges = append(report.SectionChanges, SectionChange{
				SectionKey: sec.SectionKey,
				Current:    content,
				Compare:    baseline,
			})
		}
	}

	for ref := range currentRefs {
		if !compareRefs[ref] {
			report.EvidenceAdded = append(report.EvidenceAdded, ref)
		}
	}
	for ref := range compareRefs {
		if !currentRefs[ref] {
			report.EvidenceRemoved = append(report.EvidenceRemoved, ref)
		}
	}
	sort.Strings(report.EvidenceAdded)
	sort.Strings(report.EvidenceRemoved)
	return report
}

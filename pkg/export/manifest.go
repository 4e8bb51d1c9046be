// Package export builds the deliverable for one documentation version: a
// canonical manifest with a stable snapshot hash, and a byte-deterministic
// ZIP package containing the rendered documents.
package export

import (
	"fmt"
	"sort"
	"time"

	"github.com/complia/complia/pkg/canonicalize"
	"github.com/complia/complia/pkg/completeness"
	"github.com/complia/complia/pkg/model"
)

// ManifestVersion identifies the manifest schema emitted by this build.
const ManifestVersion = "1.0"

// Input is the full state of a version at export time.
type Input struct {
	Org          *model.Organization
	System       *model.AISystem
	Version      *model.SystemVersion
	Assessment   *model.HighRiskAssessment // nil when never assessed
	Sections     []*model.AnnexSection
	Evidence     map[string]*model.EvidenceItem // keyed by id, referenced set
	Mappings     []*model.EvidenceMapping
	Completeness *completeness.Report
}

// BuildManifest assembles the manifest object. The returned map is ready for
// canonical serialization; generated_at and snapshot_hash are assigned by the
// caller after hashing.
func BuildManifest(in Input, generatedAt time.Time, snapshotHash string) map[string]any {
	m := manifestBody(in)
	m["generated_at"] = generatedAt.UTC().Format(time.RFC3339)
	m["snapshot_hash"] = snapshotHash
	return m
}

// SnapshotHash computes the stable content hash of the version state. The
// volatile fields generated_at and snapshot_hash are not part of the input,
// so two exports of identical state hash identically.
func SnapshotHash(in Input) (string, error) {
	hash, err := canonicalize.Hash(manifestBody(in))
	if err != nil {
		return "", fmt.Errorf("failed to hash manifest: %w", err)
	}
	return hash, nil
}

func manifestBody(in Input) map[string]any {
	m := map[string]any{
		"manifest_version": ManifestVersion,
		"org": map[string]any{
			"id":   in.Org.ID,
			"name": in.Org.Name,
		},
		"ai_system": map[string]any{
			"id":                 in.System.ID,
			"name":               in.System.Name,
			"hr_use_case_type":   in.System.HRUseCaseType,
			"intended_purpose":   in.System.IntendedPurpose,
			"deployment_type":    in.System.DeploymentType,
			"decision_influence": in.System.DecisionInfluence,
		},
		"system_version": map[string]any{
			"id":           in.Version.ID,
			"label":        in.Version.Label,
			"status":       string(in.Version.Status),
			"release_date": nullableString(in.Version.ReleaseDate),
		},
		"high_risk_assessment": assessmentObject(in.Assessment),
		"annex_sections":       sectionsObject(in.Sections),
		"evidence_index":       evidenceIndexObject(in.Evidence),
		"mappings":             mappingsArray(in.Mappings),
	}
	return m
}

func assessmentObject(a *model.HighRiskAssessment) any {
	if a == nil {
		return nil
	}
	rationale := append([]string{}, a.Rationale...)
	sort.Strings(rationale)
	return map[string]any{
		"score":      a.Score,
		"risk_level": a.RiskLevel,
		"rationale":  rationale,
	}
}

func sectionsObject(sections []*model.AnnexSection) map[string]any {
	out := make(map[string]any, len(sections))
	for _, sec := range sections {
		refs := append([]string{}, sec.EvidenceRefs...)
		sort.Strings(refs)
		content := sec.Content
		if content == nil {
			content = map[string]any{}
		}
		out[sec.SectionKey] = map[string]any{
			"content":       content,
			"evidence_refs": refs,
		}
	}
	return out
}

func evidenceIndexObject(evidence map[string]*model.EvidenceItem) map[string]any {
	out := make(map[string]any, len(evidence))
	for id, e := range evidence {
		entry := map[string]any{
			"title":          e.Title,
			"type":           string(e.Type),
			"classification": string(e.Classification),
		}
		if sum := UploadChecksum(e); sum != "" {
			entry["checksum"] = sum
		}
		out[id] = entry
	}
	return out
}

func mappingsArray(mappings []*model.EvidenceMapping) []any {
	sorted := append([]*model.EvidenceMapping{}, mappings...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.EvidenceID != b.EvidenceID {
			return a.EvidenceID < b.EvidenceID
		}
		if a.TargetType != b.TargetType {
			return a.TargetType < b.TargetType
		}
		return a.TargetKey < b.TargetKey
	})
	out := make([]any, 0, len(sorted))
	for _, m := range sorted {
		entry := map[string]any{
			"evidence_id": m.EvidenceID,
			"target_type": string(m.TargetType),
			"target_key":  m.TargetKey,
		}
		if m.Strength != "" {
			entry["strength"] = string(m.Strength)
		}
		out = append(out, entry)
	}
	return out
}

// UploadChecksum extracts the content checksum of an upload item, or "" for
// other evidence types.
func UploadChecksum(e *model.EvidenceItem) string {
	if e.Type != model.EvidenceUpload {
		return ""
	}
	sum, _ := e.TypeMetadata["checksum_sha256"].(string)
	return sum
}

func nullableString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

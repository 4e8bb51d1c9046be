package export

import (
	"fmt"
	"time"

	"github.com/complia/complia/pkg/canonicalize"
)

// Package is a fully built export: the archive bytes plus the hash that the
// Export row records.
type Package struct {
	Archive      []byte
	SnapshotHash string
	Manifest     map[string]any
}

// Build produces the deterministic export package. diff is nil for full
// exports; for diff exports it is included as DiffReport.json and does not
// influence the snapshot hash.
func Build(in Input, generatedAt time.Time, diff *DiffReport) (*Package, error) {
	hash, err := SnapshotHash(in)
	if err != nil {
		return nil, err
	}
	manifest := BuildManifest(in, generatedAt, hash)

	manifestJSON, err := canonicalize.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize manifest: %w", err)
	}
	evidenceJSON, err := canonicalize.Marshal(evidenceIndexObject(in.Evidence))
	if err != nil {
		return nil, fmt.Errorf("failed to serialize evidence index: %w", err)
	}
	evidenceCSV, err := EvidenceIndexCSV(in.Evidence)
	if err != nil {
		return nil, err
	}
	completenessJSON, err := canonicalize.Marshal(in.Completeness)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize completeness report: %w", err)
	}
	docx, err := BuildDocx(in)
	if err != nil {
		return nil, fmt.Errorf("failed to render document: %w", err)
	}

	entries := map[string][]byte{
		"AnnexIV.docx":            docx,
		"SystemManifest.json":     manifestJSON,
		"EvidenceIndex.json":      evidenceJSON,
		"EvidenceIndex.csv":       evidenceCSV,
		"CompletenessReport.json": completenessJSON,
	}
	if diff != nil {
		diffJSON, err := canonicalize.Marshal(diff)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize diff report: %w", err)
		}
		entries["DiffReport.json"] = diffJSON
	}

	archive, err := BuildArchive(entries)
	if err != nil {
		return nil, err
	}
	return &Package{Archive: archive, SnapshotHash: hash, Manifest: manifest}, nil
}

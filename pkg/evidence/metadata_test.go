package evidence

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/model"
)

const orgID = "11111111-2222-3333-4444-555555555555"

func uploadRaw() map[string]any {
	return map[string]any{
		"storage_uri":       "evidence/" + orgID + "/2026/08/" + uuid.New().String() + ".pdf",
		"checksum_sha256":   strings.Repeat("ab", 32),
		"file_size":         float64(1024),
		"mime_type":         "application/pdf",
		"original_filename": "risk-report.pdf",
	}
}

func TestParseUploadMetadata(t *testing.T) {
	md, err := ParseMetadata(model.EvidenceUpload, orgID, uploadRaw())
	require.NoError(t, err)
	up := md.(UploadMetadata)
	assert.Equal(t, int64(1024), up.FileSize)
	assert.Equal(t, "application/pdf", up.MimeType)

	t.Run("checksum uppercased input is normalized", func(t *testing.T) {
		raw := uploadRaw()
		raw["checksum_sha256"] = strings.ToUpper(strings.Repeat("ab", 32))
		md, err := ParseMetadata(model.EvidenceUpload, orgID, raw)
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("ab", 32), md.(UploadMetadata).ChecksumSHA256)
	})

	bad := []struct {
		name  string
		field string
		value any
	}{
		{"short checksum", "checksum_sha256", "abcd"},
		{"non-hex checksum", "checksum_sha256", strings.Repeat("zz", 32)},
		{"zero size", "file_size", float64(0)},
		{"oversize", "file_size", float64(MaxUploadBytes + 1)},
		{"disallowed mime", "mime_type", "application/zip"},
		{"missing filename", "original_filename", ""},
		{"foreign org uri", "storage_uri", "evidence/other/2026/08/" + uuid.New().String() + ".pdf"},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			raw := uploadRaw()
			raw[tt.field] = tt.value
			_, err := ParseMetadata(model.EvidenceUpload, orgID, raw)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestParseURLMetadata(t *testing.T) {
	_, err := ParseMetadata(model.EvidenceURL, orgID, map[string]any{"url": "https://example.com/doc"})
	require.NoError(t, err)

	_, err = ParseMetadata(model.EvidenceURL, orgID, map[string]any{"url": "not-a-url"})
	assert.Error(t, err)

	_, err = ParseMetadata(model.EvidenceURL, orgID, map[string]any{})
	assert.Error(t, err)
}

func TestParseGitMetadata(t *testing.T) {
	raw := map[string]any{
		"repo_url":    "https://github.com/acme/model-train",
		"commit_hash": strings.ToUpper(strings.Repeat("a1", 20)),
		"branch":      "main",
	}
	md, err := ParseMetadata(model.EvidenceGit, orgID, raw)
	require.NoError(t, err)
	// Commit hashes are stored lowercase.
	assert.Equal(t, strings.Repeat("a1", 20), md.(GitMetadata).CommitHash)

	raw["commit_hash"] = "abc"
	_, err = ParseMetadata(model.EvidenceGit, orgID, raw)
	assert.Error(t, err)
}

func TestParseTicketMetadata(t *testing.T) {
	_, err := ParseMetadata(model.EvidenceTicket, orgID, map[string]any{
		"ticket_id": "COMP-42", "ticket_system": "jira",
	})
	require.NoError(t, err)

	_, err = ParseMetadata(model.EvidenceTicket, orgID, map[string]any{"ticket_id": "COMP-42"})
	assert.Error(t, err)
}

func TestParseNoteMetadata(t *testing.T) {
	_, err := ParseMetadata(model.EvidenceNote, orgID, map[string]any{"content": "reviewed by DPO"})
	require.NoError(t, err)

	_, err = ParseMetadata(model.EvidenceNote, orgID, map[string]any{"content": "   "})
	assert.Error(t, err)
}

func TestValidateTags(t *testing.T) {
	require.NoError(t, ValidateTags([]string{"gdpr", "risk"}))
	require.NoError(t, ValidateTags(nil))

	tooMany := make([]string, MaxTags+1)
	for i := range tooMany {
		tooMany[i] = "t"
	}
	assert.Error(t, ValidateTags(tooMany))
	assert.Error(t, ValidateTags([]string{""}))
	assert.Error(t, ValidateTags([]string{strings.Repeat("x", MaxTagLen+1)}))
}

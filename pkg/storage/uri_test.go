package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOrg = "8b5c9d1e-1111-2222-3333-444455556666"

func validURI() string {
	return "evidence/" + testOrg + "/2026/08/" + uuid.New().String() + ".pdf"
}

func TestValidateEvidenceURI(t *testing.T) {
	require.NoError(t, ValidateEvidenceURI(testOrg, validURI()))

	tests := []struct {
		name string
		uri  string
	}{
		{"empty", ""},
		{"leading slash", "/" + validURI()},
		{"backslash", strings.Replace(validURI(), "/2026/", "\\2026\\", 1)},
		{"wrong root", strings.Replace(validURI(), "evidence/", "uploads/", 1)},
		{"wrong org", "evidence/other-org/2026/08/" + uuid.New().String() + ".pdf"},
		{"bad year", "evidence/" + testOrg + "/26/08/" + uuid.New().String() + ".pdf"},
		{"month zero", "evidence/" + testOrg + "/2026/00/" + uuid.New().String() + ".pdf"},
		{"month thirteen", "evidence/" + testOrg + "/2026/13/" + uuid.New().String() + ".pdf"},
		{"not a uuid", "evidence/" + testOrg + "/2026/08/not-a-uuid.pdf"},
		{"no extension", "evidence/" + testOrg + "/2026/08/" + uuid.New().String()},
		{"dotted extension", "evidence/" + testOrg + "/2026/08/" + uuid.New().String() + ".tar.gz!"},
		{"extension too long", "evidence/" + testOrg + "/2026/08/" + uuid.New().String() + "." + strings.Repeat("a", 17)},
		{"too long", "evidence/" + testOrg + "/2026/08/" + uuid.New().String() + "." + strings.Repeat("a", 500)},
		{"extra segment", "evidence/" + testOrg + "/2026/08/extra/" + uuid.New().String() + ".pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, ValidateEvidenceURI(testOrg, tt.uri))
		})
	}
}

func TestNewEvidenceURI(t *testing.T) {
	now := time.Date(2026, time.March, 5, 10, 0, 0, 0, time.UTC)
	uri, err := NewEvidenceURI(testOrg, "pdf", now)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "evidence/"+testOrg+"/2026/03/"))
	require.NoError(t, ValidateEvidenceURI(testOrg, uri))

	_, err = NewEvidenceURI(testOrg, "tar.gz", now)
	assert.Error(t, err)
}

func TestExportKey(t *testing.T) {
	key := ExportKey("o1", "s1", "v1", "e1")
	assert.Equal(t, "exports/o1/s1/v1/e1.zip", key)
}

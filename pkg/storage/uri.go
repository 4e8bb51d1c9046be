package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Evidence uploads live under a fixed key shape:
//
//	evidence/{org_id}/{yyyy}/{mm}/{uuid}.{ext}
//
// The shape is a hard external contract: clients request presigned upload
// URLs for keys of this form and later reference them from evidence metadata.
const maxEvidenceURILen = 500

const maxExtensionLen = 16

// ValidateEvidenceURI checks that uri matches the evidence key shape and
// belongs to the given organization.
func ValidateEvidenceURI(orgID, uri string) error {
	if uri == "" {
		return fmt.Errorf("storage_uri is required")
	}
	if len(uri) > maxEvidenceURILen {
		return fmt.Errorf("storage_uri exceeds %d characters", maxEvidenceURILen)
	}
	if strings.ContainsRune(uri, '\\') {
		return fmt.Errorf("storage_uri must not contain backslashes")
	}
	if strings.HasPrefix(uri, "/") {
		return fmt.Errorf("storage_uri must not have a leading slash")
	}

	parts := strings.Split(uri, "/")
	if len(parts) != 5 {
		return fmt.Errorf("storage_uri must match evidence/{org_id}/{yyyy}/{mm}/{uuid}.{ext}")
	}
	if parts[0] != "evidence" {
		return fmt.Errorf("storage_uri must start with \"evidence/\"")
	}
	if parts[1] != orgID {
		return fmt.Errorf("storage_uri organization segment does not match the caller's organization")
	}
	if !isDigits(parts[2]) || len(parts[2]) != 4 {
		return fmt.Errorf("storage_uri year segment must be 4 digits")
	}
	if !validMonth(parts[3]) {
		return fmt.Errorf("storage_uri month segment must be 01-12")
	}

	base := parts[4]
	dot := strings.LastIndexByte(base, '.')
	if dot <= 0 || dot == len(base)-1 {
		return fmt.Errorf("storage_uri object segment must be {uuid}.{ext}")
	}
	if _, err := uuid.Parse(base[:dot]); err != nil {
		return fmt.Errorf("storage_uri object segment is not a UUID: %w", err)
	}
	ext := base[dot+1:]
	if len(ext) > maxExtensionLen || !isAlnum(ext) {
		return fmt.Errorf("storage_uri extension must be alphanumeric and at most %d characters", maxExtensionLen)
	}
	return nil
}

// NewEvidenceURI builds a fresh evidence key for an upload.
func NewEvidenceURI(orgID, ext string, now time.Time) (string, error) {
	if ext == "" || len(ext) > maxExtensionLen || !isAlnum(ext) {
		return "", fmt.Errorf("extension must be alphanumeric and at most %d characters", maxExtensionLen)
	}
	now = now.UTC()
	return fmt.Sprintf("evidence/%s/%04d/%02d/%s.%s", orgID, now.Year(), int(now.Month()), uuid.New().String(), ext), nil
}

// ExportKey builds the storage key for an export package.
func ExportKey(orgID, systemID, versionID, exportID string) string {
	return fmt.Sprintf("exports/%s/%s/%s/%s.zip", orgID, systemID, versionID, exportID)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func validMonth(s string) bool {
	if len(s) != 2 || !isDigits(s) {
		return false
	}
	return s >= "01" && s <= "12"
}

func isAlnum(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

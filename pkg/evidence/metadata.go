// Package evidence validates evidence items: the type-dispatched metadata
// shapes, tag constraints and the upload MIME allow-list. Missing or malformed
// metadata produces a fail-closed validation error.
package evidence

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/model"
	"github.com/complia/complia/pkg/storage"
)

const (
	MaxTags        = 20
	MaxTagLen      = 50
	MaxUploadBytes = 50 * 1024 * 1024 // 50 MiB
)

// AllowedMIMETypes is the closed allow-list for upload evidence.
var AllowedMIMETypes = map[string]bool{
	"application/pdf": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       true,
	"image/png":       true,
	"image/jpeg":      true,
	"text/plain":      true,
	"text/markdown":   true,
	"application/json": true,
}

// Metadata is the tagged variant behind EvidenceItem.TypeMetadata.
type Metadata interface {
	// Type returns the evidence type this metadata belongs to.
	Type() model.EvidenceType
	// Map renders the metadata back to the JSON object that is persisted.
	Map() map[string]any
}

// UploadMetadata describes a file stored in object storage.
type UploadMetadata struct {
	StorageURI       string `json:"storage_uri"`
	ChecksumSHA256   string `json:"checksum_sha256"`
	FileSize         int64  `json:"file_size"`
	MimeType         string `json:"mime_type"`
	OriginalFilename string `json:"original_filename"`
}

func (m UploadMetadata) Type() model.EvidenceType { return model.EvidenceUpload }

func (m UploadMetadata) Map() map[string]any {
	return map[string]any{
		"storage_uri":       m.StorageURI,
		"checksum_sha256":   m.ChecksumSHA256,
		"file_size":         m.FileSize,
		"mime_type":         m.MimeType,
		"original_filename": m.OriginalFilename,
	}
}

// URLMetadata references an external web resource.
type URLMetadata struct {
	URL        string `json:"url"`
	AccessedAt string `json:"accessed_at,omitempty"`
}

func (m URLMetadata) Type() model.EvidenceType { return model.EvidenceURL }

func (m URLMetadata) Map() map[string]any {
	out := map[string]any{"url": m.URL}
	if m.AccessedAt != "" {
		out["accessed_at"] = m.AccessedAt
	}
	return out
}

// GitMetadata pins a commit in a repository.
type GitMetadata struct {
	RepoURL    string `json:"repo_url"`
	CommitHash string `json:"commit_hash"`
	Branch     string `json:"branch,omitempty"`
	FilePath   string `json:"file_path,omitempty"`
}

func (m GitMetadata) Type() model.EvidenceType { return model.EvidenceGit }

func (m GitMetadata) Map() map[string]any {
	out := map[string]any{"repo_url": m.RepoURL, "commit_hash": m.CommitHash}
	if m.Branch != "" {
		out["branch"] = m.Branch
	}
	if m.FilePath != "" {
		out["file_path"] = m.FilePath
	}
	return out
}

// TicketMetadata references an issue in a tracking system.
type TicketMetadata struct {
	TicketID     string `json:"ticket_id"`
	TicketSystem string `json:"ticket_system"`
	TicketURL    string `json:"ticket_url,omitempty"`
}

func (m TicketMetadata) Type() model.EvidenceType { return model.EvidenceTicket }

func (m TicketMetadata) Map() map[string]any {
	out := map[string]any{"ticket_id": m.TicketID, "ticket_system": m.TicketSystem}
	if m.TicketURL != "" {
		out["ticket_url"] = m.TicketURL
	}
	return out
}

// NoteMetadata is free-form text evidence.
type NoteMetadata struct {
	Content string `json:"content"`
}

func (m NoteMetadata) Type() model.EvidenceType { return model.EvidenceNote }

func (m NoteMetadata) Map() map[string]any { return map[string]any{"content": m.Content} }

// ParseMetadata validates raw against the schema for the given type and
// returns the typed variant. orgID is needed for the upload storage-URI
// ownership check.
func ParseMetadata(t model.EvidenceType, orgID string, raw map[string]any) (Metadata, error) {
	if raw == nil {
		return nil, apperr.Validation("type_metadata is required", nil)
	}
	switch t {
	case model.EvidenceUpload:
		return parseUpload(orgID, raw)
	case model.EvidenceURL:
		return parseURL(raw)
	case model.EvidenceGit:
		return parseGit(raw)
	case model.EvidenceTicket:
		return parseTicket(raw)
	case model.EvidenceNote:
		return parseNote(raw)
	default:
		return nil, apperr.Validation(fmt.Sprintf("unknown evidence type %q", t), nil)
	}
}

func parseUpload(orgID string, raw map[string]any) (Metadata, error) {
	details := map[string]string{}
	m := UploadMetadata{
		StorageURI:       stringField(raw, "storage_uri"),
		ChecksumSHA256:   strings.ToLower(stringField(raw, "checksum_sha256")),
		FileSize:         intField(raw, "file_size"),
		MimeType:         stringField(raw, "mime_type"),
		OriginalFilename: stringField(raw, "original_filename"),
	}

	if err := storage.ValidateEvidenceURI(orgID, m.StorageURI); err != nil {
		details["storage_uri"] = err.Error()
	}
	if !isHex(m.ChecksumSHA256) || len(m.ChecksumSHA256) != 64 {
		details["checksum_sha256"] = "must be 64 hexadecimal characters"
	}
	if m.FileSize <= 0 {
		details["file_size"] = "must be greater than zero"
	} else if m.FileSize > MaxUploadBytes {
		details["file_size"] = fmt.Sprintf("must not exceed %d bytes", MaxUploadBytes)
	}
	if !AllowedMIMETypes[m.MimeType] {
		details["mime_type"] = fmt.Sprintf("%q is not in the allow-list", m.MimeType)
	}
	if m.OriginalFilename == "" {
		details["original_filename"] = "is required"
	}

	if len(details) > 0 {
		return nil, apperr.Validation("invalid upload metadata", details)
	}
	return m, nil
}

func parseURL(raw map[string]any) (Metadata, error) {
	details := map[string]string{}
	m := URLMetadata{
		URL:        stringField(raw, "url"),
		AccessedAt: stringField(raw, "accessed_at"),
	}
	if !validAbsoluteURL(m.URL) {
		details["url"] = "must be a valid absolute URL"
	}
	if len(details) > 0 {
		return nil, apperr.Validation("invalid url metadata", details)
	}
	return m, nil
}

func parseGit(raw map[string]any) (Metadata, error) {
	details := map[string]string{}
	m := GitMetadata{
		RepoURL:    stringField(raw, "repo_url"),
		CommitHash: strings.ToLower(stringField(raw, "commit_hash")),
		Branch:     stringField(raw, "branch"),
		FilePath:   stringField(raw, "file_path"),
	}
	if !validAbsoluteURL(m.RepoURL) {
		details["repo_url"] = "must be a valid absolute URL"
	}
	if len(m.CommitHash) != 40 || !isHex(m.CommitHash) {
		details["commit_hash"] = "must be exactly 40 hexadecimal characters"
	}
	if len(details) > 0 {
		return nil, apperr.Validation("invalid git metadata", details)
	}
	return m, nil
}

func parseTicket(raw map[string]any) (Metadata, error) {
	details := map[string]string{}
	m := TicketMetadata{
		TicketID:     stringField(raw, "ticket_id"),
		TicketSystem: stringField(raw, "ticket_system"),
		TicketURL:    stringField(raw, "ticket_url"),
	}
	if m.TicketID == "" {
		details["ticket_id"] = "is required"
	}
	if m.TicketSystem == "" {
		details["ticket_system"] = "is required"
	}
	if len(details) > 0 {
		return nil, apperr.Validation("invalid ticket metadata", details)
	}
	return m, nil
}

func parseNote(raw map[string]any) (Metadata, error) {
	m := NoteMetadata{Content: stringField(raw, "content")}
	if strings.TrimSpace(m.Content) == "" {
		return nil, apperr.Validation("invalid note metadata", map[string]string{"content": "is required"})
	}
	return m, nil
}

// NormalizeText trims and NFC-normalizes user-entered text. Titles and tags
// that render identically then compare equal, which keeps checksum dedup
// hints and tag filters from splitting on encoding differences.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// ValidateTags enforces the tag set constraints: at most MaxTags tags, each
// 1-50 characters after trimming.
func ValidateTags(tags []string) error {
	if len(tags) > MaxTags {
		return apperr.Validation(fmt.Sprintf("at most %d tags allowed", MaxTags), nil)
	}
	for _, tag := range tags {
		if l := len(strings.TrimSpace(tag)); l < 1 || l > MaxTagLen {
			return apperr.Validation(fmt.Sprintf("tag %q must be 1-%d characters", tag, MaxTagLen), nil)
		}
	}
	return nil
}

func stringField(raw map[string]any, key string) string {
	if v, ok := raw[key].(string); ok {
		return v
	}
	return ""
}

func intField(raw map[string]any, key string) int64 {
	switch v := raw[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func validAbsoluteURL(s string) bool {
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.IsAbs() && u.Host != ""
}

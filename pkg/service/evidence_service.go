package service

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/audit"
	"github.com/complia/complia/pkg/auth"
	"github.com/complia/complia/pkg/completeness"
	"github.com/complia/complia/pkg/evidence"
	"github.com/complia/complia/pkg/model"
	"github.com/complia/complia/pkg/storage"
	"github.com/complia/complia/pkg/store"
)

// Presigned URL lifetimes.
const (
	uploadURLTTL   = 15 * time.Minute
	downloadURLTTL = time.Hour
)

// EvidenceService manages the org-scoped evidence library.
type EvidenceService struct {
	deps *Deps
}

// EvidenceInput carries the fields of a new or updated evidence item.
type EvidenceInput struct {
	Type           model.EvidenceType   `json:"type"`
	Title          string               `json:"title"`
	Description    string               `json:"description"`
	Tags           []string             `json:"tags"`
	Classification model.Classification `json:"classification"`
	TypeMetadata   map[string]any       `json:"type_metadata"`
}

// EvidenceCreated is the creation result. DuplicateOf is an advisory pointer
// to the oldest item with the same upload checksum; it never blocks creation.
type EvidenceCreated struct {
	Item        *model.EvidenceItem `json:"item"`
	DuplicateOf *string             `json:"duplicate_of,omitempty"`
}

func (in EvidenceInput) validate() error {
	details := map[string]string{}
	if !in.Type.Valid() {
		details["type"] = "must be one of upload, url, git, ticket, note"
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		details["title"] = "must not be empty"
	} else if len(title) > 300 {
		details["title"] = "must be at most 300 characters"
	}
	if in.Classification != "" && !in.Classification.Valid() {
		details["classification"] = "must be one of public, internal, confidential"
	}
	if len(details) > 0 {
		return apperr.Validation("invalid evidence item", details)
	}
	return evidence.ValidateTags(in.Tags)
}

func (s *EvidenceService) Create(ctx context.Context, p *auth.Principal, in EvidenceInput) (*EvidenceCreated, error) {
	if !p.Can(model.RoleEditor) {
		return nil, apperr.Forbidden("editor role required")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	meta, err := evidence.ParseMetadata(in.Type, p.OrgID, in.TypeMetadata)
	if err != nil {
		return nil, err
	}

	classification := in.Classification
	if classification == "" {
		classification = model.ClassInternal
	}
	now := s.deps.now()
	item := &model.EvidenceItem{
		ID:             uuid.New().String(),
		OrgID:          p.OrgID,
		Type:           in.Type,
		Title:          evidence.NormalizeText(in.Title),
		Description:    in.Description,
		Tags:           in.Tags,
		Classification: classification,
		TypeMetadata:   meta.Map(),
		CreatedBy:      &p.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	out := &EvidenceCreated{Item: item}
	err = store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		items := store.NewEvidenceStore(q)
		if up, ok := meta.(evidence.UploadMetadata); ok {
			dup, err := items.FindByChecksum(ctx, p.OrgID, up.ChecksumSHA256)
			if err != nil {
				return err
			}
			if dup != nil {
				out.DuplicateOf = &dup.ID
			}
		}
		if err := items.Create(ctx, item); err != nil {
			return err
		}
		return s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
			Action:     audit.ActionCreate,
			EntityType: "evidence_item",
			EntityID:   item.ID,
			Diff:       map[string]any{"type": item.Type, "title": item.Title},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *EvidenceService) Get(ctx context.Context, p *auth.Principal, id string) (*model.EvidenceItem, error) {
	return store.NewEvidenceStore(s.deps.DB).Get(ctx, p.OrgID, id)
}

func (s *EvidenceService) List(ctx context.Context, p *auth.Principal, f store.EvidenceFilter) ([]*store.EvidenceWithUsage, error) {
	return store.NewEvidenceStore(s.deps.DB).List(ctx, p.OrgID, f)
}

// Update edits the descriptive fields. The evidence type and the binding
// upload fields (storage_uri, checksum_sha256, file_size, mime_type) never
// change; a new file means a new evidence item.
func (s *EvidenceService) Update(ctx context.Context, p *auth.Principal, id string, in EvidenceInput) (*model.EvidenceItem, error) {
	if !p.Can(model.RoleEditor) {
		return nil, apperr.Forbidden("editor role required")
	}

	var updated *model.EvidenceItem
	err := store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		items := store.NewEvidenceStore(q)
		current, err := items.Get(ctx, p.OrgID, id)
		if err != nil {
			return err
		}
		if in.Type != "" && in.Type != current.Type {
			return apperr.Validation("evidence type is immutable", map[string]string{
				"type": "cannot change after creation",
			})
		}
		in.Type = current.Type
		if err := in.validate(); err != nil {
			return err
		}

		if in.TypeMetadata != nil {
			meta, err := evidence.ParseMetadata(current.Type, p.OrgID, in.TypeMetadata)
			if err != nil {
				return err
			}
			if up, ok := meta.(evidence.UploadMetadata); ok {
				if err := checkUploadImmutable(current.TypeMetadata, up); err != nil {
					return err
				}
			}
			current.TypeMetadata = meta.Map()
		}

		diff := evidenceDiff(current, in)
		current.Title = evidence.NormalizeText(in.Title)
		current.Description = in.Description
		if in.Tags != nil {
			current.Tags = in.Tags
		}
		if in.Classification != "" {
			current.Classification = in.Classification
		}
		current.UpdatedAt = s.deps.now()

		if err := items.Update(ctx, current); err != nil {
			return err
		}
		updated = current
		return s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
			Action:     audit.ActionUpdate,
			EntityType: "evidence_item",
			EntityID:   id,
			Diff:       diff,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes an evidence item. Referenced items are refused unless force
// is set, in which case mappings and section references are cascaded away and
// the stored file is removed best effort.
func (s *EvidenceService) Delete(ctx context.Context, p *auth.Principal, id string, force bool) error {
	if !p.Can(model.RoleEditor) {
		return apperr.Forbidden("editor role required")
	}
	if force && !p.IsAdmin() {
		return apperr.Forbidden("admin role required for force delete")
	}

	var storageURI string
	err := store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		items := store.NewEvidenceStore(q)
		item, err := items.Get(ctx, p.OrgID, id)
		if err != nil {
			return err
		}

		mappings := store.NewMappingStore(q)
		sections := store.NewSectionStore(q)
		mappingCount, err := mappings.CountByEvidence(ctx, id)
		if err != nil {
			return err
		}
		referencing, err := sections.ListByEvidenceRef(ctx, p.OrgID, id)
		if err != nil {
			return err
		}
		if mappingCount > 0 || len(referencing) > 0 {
			if !force {
				return apperr.Conflict("evidence is referenced by %d mappings and %d sections, use force to cascade",
					mappingCount, len(referencing))
			}
			// Each cascaded mapping gets its own audit row so the trail shows
			// what the force delete took with it.
			cascaded, err := mappings.ListByEvidence(ctx, id)
			if err != nil {
				return err
			}
			for _, m := range cascaded {
				err := s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
					Action:     audit.ActionDelete,
					EntityType: "evidence_mapping",
					EntityID:   m.ID,
					Diff: map[string]any{
						"evidence_id": id,
						"target_type": m.TargetType,
						"target_key":  m.TargetKey,
						"reason":      audit.ActionForceDelete,
					},
				})
				if err != nil {
					return err
				}
			}
			if _, err := mappings.DeleteByEvidence(ctx, id); err != nil {
				return err
			}
			for _, sec := range referencing {
				sec.EvidenceRefs = removeString(sec.EvidenceRefs, id)
				sec.CompletenessScore = completeness.SectionScore(sec.SectionKey, sec.Content, sec.EvidenceRefs)
				sec.UpdatedAt = s.deps.now()
				if err := sections.Update(ctx, sec); err != nil {
					return err
				}
			}
		}

		if item.Type == model.EvidenceUpload {
			if uri, ok := item.TypeMetadata["storage_uri"].(string); ok {
				storageURI = uri
			}
		}
		if err := items.Delete(ctx, p.OrgID, id); err != nil {
			return err
		}

		action := audit.ActionDelete
		if force {
			action = audit.ActionForceDelete
		}
		return s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
			Action:     action,
			EntityType: "evidence_item",
			EntityID:   id,
			Diff: map[string]any{
				"removed_mappings": mappingCount,
				"removed_refs":     len(referencing),
			},
		})
	})
	if err != nil {
		return err
	}

	// The database row is gone; a failed object delete only orphans storage.
	if storageURI != "" && s.deps.Storage != nil {
		if err := s.deps.Storage.Delete(ctx, storageURI); err != nil {
			s.deps.logger().WarnContext(ctx, "evidence object delete failed",
				slog.String("storage_uri", storageURI), slog.Any("error", err))
		}
	}
	return nil
}

// PresignedUpload is the response of the upload handshake.
type PresignedUpload struct {
	UploadURL  string `json:"upload_url"`
	StorageURI string `json:"storage_uri"`
	ExpiresIn  int64  `json:"expires_in_seconds"`
}

// PresignUpload reserves a storage key for a new file and returns a URL the
// client PUTs the bytes to. The evidence item is created in a second call
// carrying the returned storage_uri.
func (s *EvidenceService) PresignUpload(ctx context.Context, p *auth.Principal, filename, contentType string) (*PresignedUpload, error) {
	if !p.Can(model.RoleEditor) {
		return nil, apperr.Forbidden("editor role required")
	}
	if !evidence.AllowedMIMETypes[contentType] {
		return nil, &apperr.Error{
			Kind:    apperr.KindUnsupportedMedia,
			Message: "content type is not in the upload allow-list",
		}
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	if ext == "" {
		ext = "bin"
	}
	key, err := storage.NewEvidenceURI(p.OrgID, ext, s.deps.now())
	if err != nil {
		return nil, apperr.Validation(err.Error(), map[string]string{"filename": "unusable extension"})
	}
	url, err := s.deps.Storage.PresignUpload(ctx, key, contentType, uploadURLTTL)
	if err != nil {
		return nil, err
	}
	return &PresignedUpload{
		UploadURL:  url,
		StorageURI: key,
		ExpiresIn:  int64(uploadURLTTL.Seconds()),
	}, nil
}

// PresignDownload returns a time-limited URL for an upload evidence file.
func (s *EvidenceService) PresignDownload(ctx context.Context, p *auth.Principal, id string) (string, error) {
	item, err := store.NewEvidenceStore(s.deps.DB).Get(ctx, p.OrgID, id)
	if err != nil {
		return "", err
	}
	if item.Type != model.EvidenceUpload {
		return "", apperr.Validation("only upload evidence has a downloadable file", nil)
	}
	uri, _ := item.TypeMetadata["storage_uri"].(string)
	if uri == "" {
		return "", apperr.Conflict("evidence item has no storage object")
	}
	return s.deps.Storage.PresignDownload(ctx, uri, downloadURLTTL)
}

// checkUploadImmutable rejects changes to the fields that bind an upload item
// to its stored file.
func checkUploadImmutable(current map[string]any, next evidence.UploadMetadata) error {
	details := map[string]string{}
	if v, _ := current["storage_uri"].(string); v != next.StorageURI {
		details["storage_uri"] = "cannot change after creation"
	}
	if v, _ := current["checksum_sha256"].(string); v != next.ChecksumSHA256 {
		details["checksum_sha256"] = "cannot change after creation"
	}
	if v, ok := current["file_size"]; ok && asInt64(v) != next.FileSize {
		details["file_size"] = "cannot change after creation"
	}
	if v, _ := current["mime_type"].(string); v != next.MimeType {
		details["mime_type"] = "cannot change after creation"
	}
	if len(details) > 0 {
		return apperr.Validation("upload file fields are immutable", details)
	}
	return nil
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	}
	return 0
}

func evidenceDiff(old *model.EvidenceItem, in EvidenceInput) map[string]any {
	diff := map[string]any{}
	if title := evidence.NormalizeText(in.Title); old.Title != title {
		diff["title"] = map[string]any{"old": old.Title, "new": title}
	}
	if old.Description != in.Description {
		diff["description"] = map[string]any{"old": old.Description, "new": in.Description}
	}
	if in.Classification != "" && old.Classification != in.Classification {
		diff["classification"] = map[string]any{"old": old.Classification, "new": in.Classification}
	}
	if in.Tags != nil {
		diff["tags"] = map[string]any{"old": old.Tags, "new": in.Tags}
	}
	return diff
}

func removeString(in []string, drop string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != drop {
			out = append(out, s)
		}
	}
	return out
}

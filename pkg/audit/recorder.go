// Package audit records every mutation of registry state. Events are written
// in the same transaction as the mutation they describe, so a committed change
// always has its audit row and a rolled-back change leaves none.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/complia/complia/pkg/auth"
	"github.com/complia/complia/pkg/model"
	"github.com/complia/complia/pkg/store"
)

// Canonical action names. Handlers never invent ad-hoc strings.
const (
	ActionCreate      = "create"
	ActionUpdate      = "update"
	ActionDelete      = "delete"
	ActionForceDelete = "force_delete_evidence"
	ActionTransition  = "status_transition"
	ActionApprove     = "approve"
	ActionClone       = "clone"
	ActionExport      = "export"
	ActionEnableLogs  = "enable_logging"
	ActionRevokeKey   = "revoke_log_key"
	ActionIngest      = "ingest_decision_event"
	ActionLogin       = "login"
	ActionLogout      = "logout"
	ActionInvite      = "invite"
	ActionDraft       = "llm_draft"
)

// Archiver mirrors events into long-retention storage.
type Archiver interface {
	Archive(ctx context.Context, e *model.AuditEvent) error
}

// Recorder writes audit events through whichever Querier the caller is
// using, typically the surrounding transaction.
type Recorder struct {
	logger  *slog.Logger
	archive Archiver
}

func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{logger: logger}
}

// WithArchive mirrors every recorded event into a. Archive failures are
// logged, never propagated; the primary row is the source of truth.
func (r *Recorder) WithArchive(a Archiver) *Recorder {
	r.archive = a
	return r
}

// Entry describes one auditable mutation.
type Entry struct {
	Action     string
	EntityType string
	EntityID   string
	Diff       map[string]any
	IP         string
}

// Record writes the event using q. The actor is taken from the request
// principal when present; ingestion and system paths record without one.
func (r *Recorder) Record(ctx context.Context, q store.Querier, orgID string, e Entry) error {
	var userID *string
	if p, err := auth.GetPrincipal(ctx); err == nil {
		id := p.UserID
		userID = &id
	}

	ev := &model.AuditEvent{
		ID:         uuid.New().String(),
		OrgID:      orgID,
		UserID:     userID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		DiffJSON:   e.Diff,
		IP:         e.IP,
		CreatedAt:  time.Now().UTC(),
	}
	if err := store.NewAuditStore(q).Insert(ctx, ev); err != nil {
		return err
	}
	if r.archive != nil {
		if err := r.archive.Archive(ctx, ev); err != nil {
			r.logger.WarnContext(ctx, "audit archive write failed",
				slog.String("event_id", ev.ID), slog.Any("error", err))
		}
	}
	r.logger.InfoContext(ctx, "audit event recorded",
		slog.String("org_id", orgID),
		slog.String("action", e.Action),
		slog.String("entity_type", e.EntityType),
		slog.String("entity_id", e.EntityID),
	)
	return nil
}

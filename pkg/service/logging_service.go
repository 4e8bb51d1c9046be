package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/audit"
	"github.com/complia/complia/pkg/auth"
	"github.com/complia/complia/pkg/canonicalize"
	"github.com/complia/complia/pkg/ingest"
	"github.com/complia/complia/pkg/model"
	"github.com/complia/complia/pkg/store"
)

// LoggingService handles decision-log ingestion: key issuance, the machine
// ingestion endpoint and the operator-facing listing and export.
type LoggingService struct {
	deps *Deps
}

// LogKeyCreated carries the one-time plaintext key next to the stored record.
type LogKeyCreated struct {
	Key       *model.LogAPIKey `json:"key"`
	Plaintext string           `json:"plaintext"`
}

// EnableLogging issues an ingestion key for a version. The plaintext is
// returned exactly once; only its hash is stored.
func (s *LoggingService) EnableLogging(ctx context.Context, p *auth.Principal, systemID, versionID, name string, allowRawPII bool) (*LogKeyCreated, error) {
	if !p.Can(model.RoleEditor) {
		return nil, apperr.Forbidden("editor role required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, apperr.Validation("key name is required", map[string]string{"name": "must not be empty"})
	}

	plaintext, hash, err := auth.NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	key := &model.LogAPIKey{
		ID:          uuid.New().String(),
		VersionID:   versionID,
		Name:        strings.TrimSpace(name),
		KeyHash:     hash,
		AllowRawPII: allowRawPII,
		CreatedAt:   s.deps.now(),
	}

	err = store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		if _, err := store.NewVersionStore(q).Get(ctx, p.OrgID, systemID, versionID); err != nil {
			return err
		}
		if err := store.NewLogKeyStore(q).Create(ctx, key); err != nil {
			return err
		}
		return s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
			Action:     audit.ActionEnableLogs,
			EntityType: "log_api_key",
			EntityID:   key.ID,
			Diff:       map[string]any{"version_id": versionID, "name": key.Name, "allow_raw_pii": allowRawPII},
		})
	})
	if err != nil {
		return nil, err
	}
	return &LogKeyCreated{Key: key, Plaintext: plaintext}, nil
}

func (s *LoggingService) ListKeys(ctx context.Context, p *auth.Principal, systemID, versionID string) ([]*model.LogAPIKey, error) {
	if _, err := store.NewVersionStore(s.deps.DB).Get(ctx, p.OrgID, systemID, versionID); err != nil {
		return nil, err
	}
	return store.NewLogKeyStore(s.deps.DB).ListByVersion(ctx, versionID)
}

func (s *LoggingService) RevokeKey(ctx context.Context, p *auth.Principal, systemID, versionID, keyID string) error {
	if !p.Can(model.RoleEditor) {
		return apperr.Forbidden("editor role required")
	}
	return store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		if _, err := store.NewVersionStore(q).Get(ctx, p.OrgID, systemID, versionID); err != nil {
			return err
		}
		if err := store.NewLogKeyStore(q).Revoke(ctx, versionID, keyID, s.deps.now()); err != nil {
			return err
		}
		return s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
			Action:     audit.ActionRevokeKey,
			EntityType: "log_api_key",
			EntityID:   keyID,
			Diff:       map[string]any{"version_id": versionID},
		})
	})
}

// IngestResult reports the outcome of one event submission.
type IngestResult struct {
	ID         string    `json:"id"`
	EventID    string    `json:"event_id"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Ingest authenticates the machine caller by its key, validates the event
// against the decision-event schema, minimizes PII and stores it. A replayed
// event id for the same version is a conflict.
func (s *LoggingService) Ingest(ctx context.Context, plaintextKey string, event map[string]any) (*IngestResult, error) {
	if plaintextKey == "" {
		return nil, apperr.Unauthenticated("missing ingestion key")
	}

	var result *IngestResult
	err := store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		key, err := store.NewLogKeyStore(q).FindActiveByHash(ctx, auth.HashToken(plaintextKey))
		if apperr.IsKind(err, apperr.KindNotFound) {
			return apperr.Unauthenticated("unknown or revoked ingestion key")
		}
		if err != nil {
			return err
		}
		version, orgID, err := store.NewVersionStore(q).GetByID(ctx, key.VersionID)
		if err != nil {
			return err
		}

		if err := ingest.ValidateEvent(event); err != nil {
			return err
		}
		ingest.MinimizePII(event, key.AllowRawPII)
		eventTime, err := ingest.ParseEventTime(event)
		if err != nil {
			return apperr.BadRequest("event_time is not a valid timestamp", nil)
		}

		now := s.deps.now()
		log := &model.DecisionLog{
			ID:         uuid.New().String(),
			VersionID:  version.ID,
			EventID:    ingest.EventID(event),
			EventJSON:  event,
			EventTime:  eventTime,
			IngestedAt: now,
		}
		if err := store.NewDecisionLogStore(q).Insert(ctx, log); err != nil {
			return err
		}
		if err := store.NewLogKeyStore(q).TouchLastUsed(ctx, key.ID, now); err != nil {
			return err
		}
		result = &IngestResult{ID: log.ID, EventID: log.EventID, IngestedAt: now}
		return s.deps.Recorder.Record(ctx, q, orgID, audit.Entry{
			Action:     audit.ActionIngest,
			EntityType: "decision_log",
			EntityID:   log.ID,
			Diff:       map[string]any{"version_id": version.ID, "event_id": log.EventID},
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// LogSummary is one row of the operator-facing listing. Raw event payloads
// stay behind the export endpoint.
type LogSummary struct {
	ID         string    `json:"id"`
	EventID    string    `json:"event_id"`
	EventTime  time.Time `json:"event_time"`
	Actor      string    `json:"actor,omitempty"`
	Decision   string    `json:"decision,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}

func (s *LoggingService) List(ctx context.Context, p *auth.Principal, systemID, versionID string, f store.DecisionLogFilter) ([]*LogSummary, error) {
	if _, err := store.NewVersionStore(s.deps.DB).Get(ctx, p.OrgID, systemID, versionID); err != nil {
		return nil, err
	}
	f.Descending = true
	logs, err := store.NewDecisionLogStore(s.deps.DB).List(ctx, versionID, f)
	if err != nil {
		return nil, err
	}
	out := make([]*LogSummary, 0, len(logs))
	for _, l := range logs {
		out = append(out, &LogSummary{
			ID:         l.ID,
			EventID:    l.EventID,
			EventTime:  l.EventTime,
			Actor:      stringValue(l.EventJSON, "actor"),
			Decision:   nestedString(l.EventJSON, "output", "decision"),
			IngestedAt: l.IngestedAt,
		})
	}
	return out, nil
}

// Get returns one stored event in full, including the minimized payload.
func (s *LoggingService) Get(ctx context.Context, p *auth.Principal, systemID, versionID, logID string) (*model.DecisionLog, error) {
	if _, err := store.NewVersionStore(s.deps.DB).Get(ctx, p.OrgID, systemID, versionID); err != nil {
		return nil, err
	}
	return store.NewDecisionLogStore(s.deps.DB).Get(ctx, versionID, logID)
}

// LogExportFormat selects the decision-log export rendering.
type LogExportFormat string

const (
	LogExportJSON LogExportFormat = "json"
	LogExportCSV  LogExportFormat = "csv"
)

// ExportLogs renders the full decision log of a version in event order.
func (s *LoggingService) ExportLogs(ctx context.Context, p *auth.Principal, systemID, versionID string, format LogExportFormat, f store.DecisionLogFilter) ([]byte, string, error) {
	if !p.Can(model.RoleReviewer) {
		return nil, "", apperr.Forbidden("reviewer role required")
	}
	if _, err := store.NewVersionStore(s.deps.DB).Get(ctx, p.OrgID, systemID, versionID); err != nil {
		return nil, "", err
	}
	f.Descending = false
	if f.Limit <= 0 {
		f.Limit = 100000
	}
	logs, err := store.NewDecisionLogStore(s.deps.DB).List(ctx, versionID, f)
	if err != nil {
		return nil, "", err
	}

	switch format {
	case LogExportJSON, "":
		events := make([]map[string]any, 0, len(logs))
		for _, l := range logs {
			events = append(events, map[string]any{
				"event":       l.EventJSON,
				"ingested_at": l.IngestedAt.UTC().Format(time.RFC3339Nano),
			})
		}
		data, err := canonicalize.Marshal(map[string]any{
			"version_id": versionID,
			"count":      len(events),
			"events":     events,
		})
		if err != nil {
			return nil, "", err
		}
		return data, "application/json", nil
	case LogExportCSV:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		_ = w.Write([]string{"event_id", "event_time", "actor", "decision", "score", "reviewer_id", "override", "ingested_at"})
		for _, l := range logs {
			_ = w.Write([]string{
				l.EventID,
				l.EventTime.UTC().Format(time.RFC3339),
				stringValue(l.EventJSON, "actor"),
				nestedString(l.EventJSON, "output", "decision"),
				nestedNumber(l.EventJSON, "output", "score"),
				nestedString(l.EventJSON, "human", "reviewer_id"),
				nestedBool(l.EventJSON, "human", "override"),
				l.IngestedAt.UTC().Format(time.RFC3339),
			})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, "", fmt.Errorf("failed to render csv: %w", err)
		}
		return buf.Bytes(), "text/csv", nil
	default:
		return nil, "", apperr.Validation("format must be json or csv", nil)
	}
}

func stringValue(event map[string]any, key string) string {
	if v, ok := event[key].(string); ok {
		return v
	}
	return ""
}

func nestedString(event map[string]any, outer, inner string) string {
	if obj, ok := event[outer].(map[string]any); ok {
		if v, ok := obj[inner].(string); ok {
			return v
		}
	}
	return ""
}

func nestedNumber(event map[string]any, outer, inner string) string {
	obj, ok := event[outer].(map[string]any)
	if !ok {
		return ""
	}
	switch v := obj[inner].(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	}
	return ""
}

func nestedBool(event map[string]any, outer, inner string) string {
	if obj, ok := event[outer].(map[string]any); ok {
		if v, ok := obj[inner].(bool); ok {
			return strconv.FormatBool(v)
		}
	}
	return ""
}

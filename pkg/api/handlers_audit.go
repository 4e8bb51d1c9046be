package api

import (
	"net/http"
	"time"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/store"
)

func (s *Server) handleListAuditEvents(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := store.AuditFilter{
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Action:     q.Get("action"),
		Limit:      queryInt(r, "limit", 50),
		Offset:     queryInt(r, "offset", 0),
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			WriteAppError(w, r, apperr.Validation("invalid time range", map[string]string{"from": "must be RFC 3339"}))
			return
		}
		f.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			WriteAppError(w, r, apperr.Validation("invalid time range", map[string]string{"to": "must be RFC 3339"}))
			return
		}
		f.To = t
	}
	events, err := s.reg.Audits.List(r.Context(), p, f)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

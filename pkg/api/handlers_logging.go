package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/service"
	"github.com/complia/complia/pkg/store"
)

func (s *Server) handleEnableLogging(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in struct {
		Name        string `json:"name"`
		AllowRawPII bool   `json:"allow_raw_pii"`
	}
	if err := decodeJSON(r, &in); err != nil {
		WriteAppError(w, r, err)
		return
	}
	out, err := s.reg.Logging.EnableLogging(r.Context(), p,
		r.PathValue("systemID"), r.PathValue("versionID"), in.Name, in.AllowRawPII)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleListLogKeys(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	keys, err := s.reg.Logging.ListKeys(r.Context(), p, r.PathValue("systemID"), r.PathValue("versionID"))
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (s *Server) handleRevokeLogKey(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	err := s.reg.Logging.RevokeKey(r.Context(), p,
		r.PathValue("systemID"), r.PathValue("versionID"), r.PathValue("keyID"))
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	f, err := logFilter(r)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	logs, err := s.reg.Logging.List(r.Context(), p, r.PathValue("systemID"), r.PathValue("versionID"), f)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	log, err := s.reg.Logging.Get(r.Context(), p,
		r.PathValue("systemID"), r.PathValue("versionID"), r.PathValue("logID"))
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (s *Server) handleExportLogs(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	format := service.LogExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = service.LogExportJSON
	}
	f, err := logFilter(r)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	versionID := r.PathValue("versionID")
	data, contentType, err := s.reg.Logging.ExportLogs(r.Context(), p,
		r.PathValue("systemID"), versionID, format, f)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("decision-logs-%s.%s", versionID, format)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleIngest is the machine endpoint. It authenticates with the X-API-Key
// header instead of a bearer token.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("X-API-Key")
	var event map[string]any
	if err := decodeJSON(r, &event); err != nil {
		WriteAppError(w, r, err)
		return
	}
	res, err := s.reg.Logging.Ingest(r.Context(), key, event)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func logFilter(r *http.Request) (store.DecisionLogFilter, error) {
	f := store.DecisionLogFilter{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, apperr.Validation("invalid time range", map[string]string{"from": "must be RFC 3339"})
		}
		f.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, apperr.Validation("invalid time range", map[string]string{"to": "must be RFC 3339"})
		}
		f.To = t
	}
	return f, nil
}

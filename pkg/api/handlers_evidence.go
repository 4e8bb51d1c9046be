package api

import (
	"net/http"
	"strings"

	"github.com/complia/complia/pkg/model"
	"github.com/complia/complia/pkg/service"
	"github.com/complia/complia/pkg/store"
)

func (s *Server) handleCreateEvidence(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in service.EvidenceInput
	if err := decodeJSON(r, &in); err != nil {
		WriteAppError(w, r, err)
		return
	}
	out, err := s.reg.Evidence.Create(r.Context(), p, in)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleListEvidence(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := store.EvidenceFilter{
		Type:           model.EvidenceType(q.Get("type")),
		Classification: model.Classification(q.Get("classification")),
		Search:         q.Get("search"),
		Orphaned:       queryBoolPtr(r, "orphaned"),
		Limit:          queryInt(r, "limit", 50),
		Offset:         queryInt(r, "offset", 0),
	}
	for _, raw := range q["tags"] {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				f.Tags = append(f.Tags, tag)
			}
		}
	}
	items, err := s.reg.Evidence.List(r.Context(), p, f)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"evidence": items})
}

func (s *Server) handleGetEvidence(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	item, err := s.reg.Evidence.Get(r.Context(), p, r.PathValue("evidenceID"))
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleUpdateEvidence(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in service.EvidenceInput
	if err := decodeJSON(r, &in); err != nil {
		WriteAppError(w, r, err)
		return
	}
	item, err := s.reg.Evidence.Update(r.Context(), p, r.PathValue("evidenceID"), in)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteEvidence(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	force := queryBool(r, "force")
	if err := s.reg.Evidence.Delete(r.Context(), p, r.PathValue("evidenceID"), force); err != nil {
		WriteAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePresignUpload(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in struct {
		Filename    string `json:"filename"`
		ContentType string `json:"content_type"`
	}
	if err := decodeJSON(r, &in); err != nil {
		WriteAppError(w, r, err)
		return
	}
	out, err := s.reg.Evidence.PresignUpload(r.Context(), p, in.Filename, in.ContentType)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleDownloadEvidence(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	url, err := s.reg.Evidence.PresignDownload(r.Context(), p, r.PathValue("evidenceID"))
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"download_url": url})
}

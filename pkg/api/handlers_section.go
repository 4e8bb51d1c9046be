package api

import (
	"net/http"

	"github.com/complia/complia/pkg/service"
)

func (s *Server) handleListSections(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	sections, err := s.reg.Sections.List(r.Context(), p, r.PathValue("systemID"), r.PathValue("versionID"))
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sections": sections})
}

func (s *Server) handleGetSection(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	sec, err := s.reg.Sections.Get(r.Context(), p,
		r.PathValue("systemID"), r.PathValue("versionID"), r.PathValue("sectionKey"))
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sec)
}

func (s *Server) handleUpdateSection(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in service.SectionUpdate
	if err := decodeJSON(r, &in); err != nil {
		WriteAppError(w, r, err)
		return
	}
	sec, err := s.reg.Sections.Update(r.Context(), p,
		r.PathValue("systemID"), r.PathValue("versionID"), r.PathValue("sectionKey"), in)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sec)
}

func (s *Server) handleDraftSection(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	res, err := s.reg.Sections.Draft(r.Context(), p,
		r.PathValue("systemID"), r.PathValue("versionID"), r.PathValue("sectionKey"))
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCompleteness(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	report, err := s.reg.Sections.CompletenessReport(r.Context(), p,
		r.PathValue("systemID"), r.PathValue("versionID"))
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

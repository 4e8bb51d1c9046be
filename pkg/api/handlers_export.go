package api

import (
	"net/http"

	"github.com/complia/complia/pkg/service"
)

func (s *Server) handleCreateExport(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in service.ExportInput
	if err := decodeJSON(r, &in); err != nil {
		WriteAppError(w, r, err)
		return
	}
	exp, err := s.reg.Exports.Create(r.Context(), p, r.PathValue("systemID"), r.PathValue("versionID"), in)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, exp)
}

func (s *Server) handleListExports(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	exports, err := s.reg.Exports.List(r.Context(), p, r.PathValue("systemID"), r.PathValue("versionID"))
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exports": exports})
}

func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	exp, err := s.reg.Exports.Get(r.Context(), p, r.PathValue("exportID"))
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleDownloadExport(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	url, err := s.reg.Exports.Download(r.Context(), p, r.PathValue("exportID"))
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	manifest, err := s.reg.Exports.Manifest(r.Context(), p,
		r.PathValue("systemID"), r.PathValue("versionID"))
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, manifest)
}

package api

import (
	"net/http"

	"github.com/complia/complia/pkg/model"
	"github.com/complia/complia/pkg/service"
	"github.com/complia/complia/pkg/store"
)

func (s *Server) handleCreateMapping(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in service.MappingInput
	if err := decodeJSON(r, &in); err != nil {
		WriteAppError(w, r, err)
		return
	}
	m, err := s.reg.Mappings.Create(r.Context(), p, r.PathValue("versionID"), in)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := store.MappingFilter{
		TargetType: model.TargetType(q.Get("target_type")),
		TargetKey:  q.Get("target_key"),
	}
	mappings, err := s.reg.Mappings.List(r.Context(), p, r.PathValue("versionID"), f)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mappings": mappings})
}

func (s *Server) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := s.reg.Mappings.Delete(r.Context(), p, r.PathValue("versionID"), r.PathValue("mappingID")); err != nil {
		WriteAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

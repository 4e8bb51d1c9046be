package api

import (
	"net/http"

	"github.com/complia/complia/pkg/model"
	"github.com/complia/complia/pkg/service"
)

func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	var in service.BootstrapInput
	if err := decodeJSON(r, &in); err != nil {
		WriteAppError(w, r, err)
		return
	}
	out, err := s.reg.Accounts.Bootstrap(r.Context(), in)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		WriteAppError(w, r, err)
		return
	}
	pair, err := s.reg.Accounts.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &in); err != nil {
		WriteAppError(w, r, err)
		return
	}
	pair, err := s.reg.Accounts.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := s.reg.Accounts.Logout(r.Context(), p); err != nil {
		WriteAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in struct {
		Email string     `json:"email"`
		Role  model.Role `json:"role"`
	}
	if err := decodeJSON(r, &in); err != nil {
		WriteAppError(w, r, err)
		return
	}
	out, err := s.reg.Accounts.Invite(r.Context(), p, in.Email, in.Role)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		WriteAppError(w, r, err)
		return
	}
	user, err := s.reg.Accounts.AcceptInvite(r.Context(), in.Token, in.Password)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	users, err := s.reg.Accounts.ListUsers(r.Context(), p)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleUpdateUserRole(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in struct {
		Role model.Role `json:"role"`
	}
	if err := decodeJSON(r, &in); err != nil {
		WriteAppError(w, r, err)
		return
	}
	user, err := s.reg.Accounts.UpdateUserRole(r.Context(), p, r.PathValue("userID"), in.Role)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := s.reg.Accounts.DeactivateUser(r.Context(), p, r.PathValue("userID")); err != nil {
		WriteAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := s.reg.Accounts.DeleteUser(r.Context(), p, r.PathValue("userID")); err != nil {
		WriteAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

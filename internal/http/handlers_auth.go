package http

import (
	"net/http"

	"taxledger/internal/core"
	applog "taxledger/internal/log"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, applog.OpRegister)
		return
	}
	token, err := s.deps.Auth.Register(r.Context(), req.Email, req.Password, core.Role(req.Role))
	if err != nil {
		writeError(w, r, err, applog.OpRegister)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, applog.OpLogin)
		return
	}
	token, err := s.deps.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err, applog.OpLogin)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

package http

import (
	"net/http"

	applog "taxledger/internal/log"
)

func (s *Server) handleListTaxpayers(w http.ResponseWriter, r *http.Request) {
	taxpayers, err := s.deps.Taxpayers.List(r.Context())
	if err != nil {
		writeError(w, r, err, applog.OpList)
		return
	}
	out := make([]taxpayerResponse, 0, len(taxpayers))
	for _, t := range taxpayers {
		out = append(out, newTaxpayerResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTaxpayer(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err, applog.OpRead)
		return
	}
	detail, err := s.deps.Taxpayers.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err, applog.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, newTaxpayerDetailResponse(detail))
}

func (s *Server) handleCreateTaxpayer(w http.ResponseWriter, r *http.Request) {
	var req taxpayerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, applog.OpCreate)
		return
	}
	t, err := s.deps.Taxpayers.Create(r.Context(), req.toDomain())
	if err != nil {
		writeError(w, r, err, applog.OpCreate)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Location("/api/taxpayers/" + t.ID.String()).
		Body(newTaxpayerResponse(t)).
		Write(w)
}

func (s *Server) handleUpdateTaxpayer(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err, applog.OpUpdate)
		return
	}
	var req taxpayerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, applog.OpUpdate)
		return
	}
	t := req.toDomain()
	t.ID = id
	if err := s.deps.Taxpayers.Update(r.Context(), t); err != nil {
		writeError(w, r, err, applog.OpUpdate)
		return
	}
	writeNoContent(w)
}

func (s *Server) handleDeleteTaxpayer(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err, applog.OpDelete)
		return
	}
	if err := s.deps.Taxpayers.Delete(r.Context(), id); err != nil {
		writeError(w, r, err, applog.OpDelete)
		return
	}
	writeNoContent(w)
}

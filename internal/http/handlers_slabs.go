package http

import (
	"net/http"
	"strconv"

	"taxledger/internal/core"
	applog "taxledger/internal/log"
)

func (s *Server) handleListSlabs(w http.ResponseWriter, r *http.Request) {
	slabs, err := s.deps.Slabs.List(r.Context())
	if err != nil {
		writeError(w, r, err, applog.OpList)
		return
	}
	out := make([]slabResponse, 0, len(slabs))
	for _, slab := range slabs {
		out = append(out, newSlabResponse(slab))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSlab(w http.ResponseWriter, r *http.Request) {
	var req slabRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, applog.OpCreate)
		return
	}
	slab, err := s.deps.Slabs.Create(r.Context(), req.toBracket())
	if err != nil {
		writeError(w, r, err, applog.OpCreate)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Location("/api/taxslabs/" + strconv.FormatInt(slab.ID, 10)).
		Body(newSlabResponse(slab)).
		Write(w)
}

func (s *Server) handleUpdateSlab(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, r, err, applog.OpUpdate)
		return
	}
	var req slabRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, applog.OpUpdate)
		return
	}
	if err := s.deps.Slabs.Update(r.Context(), core.TaxSlab{ID: id, Bracket: req.toBracket()}); err != nil {
		writeError(w, r, err, applog.OpUpdate)
		return
	}
	writeNoContent(w)
}

func (s *Server) handleDeleteSlab(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, r, err, applog.OpDelete)
		return
	}
	if err := s.deps.Slabs.Delete(r.Context(), id); err != nil {
		writeError(w, r, err, applog.OpDelete)
		return
	}
	writeNoContent(w)
}

package http

import (
	"net/http"

	applog "taxledger/internal/log"
)

func (s *Server) handleListIncomes(w http.ResponseWriter, r *http.Request) {
	taxpayerID, err := pathUUID(r, "taxpayerId")
	if err != nil {
		writeError(w, r, err, applog.OpList)
		return
	}
	entries, err := s.deps.Incomes.List(r.Context(), taxpayerID)
	if err != nil {
		writeError(w, r, err, applog.OpList)
		return
	}
	writeJSON(w, http.StatusOK, newIncomeResponses(entries))
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	taxpayerID, err := pathUUID(r, "taxpayerId")
	if err != nil {
		writeError(w, r, err, applog.OpCreate)
		return
	}
	var req incomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, applog.OpCreate)
		return
	}
	e, err := s.deps.Incomes.Create(r.Context(), req.toDomain(taxpayerID))
	if err != nil {
		writeError(w, r, err, applog.OpCreate)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Location("/api/taxpayers/" + taxpayerID.String() + "/incomes").
		Body(newIncomeResponse(e)).
		Write(w)
}

func (s *Server) handleUpdateIncome(w http.ResponseWriter, r *http.Request) {
	taxpayerID, err := pathUUID(r, "taxpayerId")
	if err != nil {
		writeError(w, r, err, applog.OpUpdate)
		return
	}
	incomeID, err := pathUUID(r, "incomeId")
	if err != nil {
		writeError(w, r, err, applog.OpUpdate)
		return
	}
	var req incomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, applog.OpUpdate)
		return
	}
	e := req.toDomain(taxpayerID)
	e.ID = incomeID
	if err := s.deps.Incomes.Update(r.Context(), e); err != nil {
		writeError(w, r, err, applog.OpUpdate)
		return
	}
	writeNoContent(w)
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	taxpayerID, err := pathUUID(r, "taxpayerId")
	if err != nil {
		writeError(w, r, err, applog.OpDelete)
		return
	}
	incomeID, err := pathUUID(r, "incomeId")
	if err != nil {
		writeError(w, r, err, applog.OpDelete)
		return
	}
	if err := s.deps.Incomes.Delete(r.Context(), taxpayerID, incomeID); err != nil {
		writeError(w, r, err, applog.OpDelete)
		return
	}
	writeNoContent(w)
}

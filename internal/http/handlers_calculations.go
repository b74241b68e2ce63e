package http

import (
	"net/http"
	"strconv"

	applog "taxledger/internal/log"
	"taxledger/internal/report"
)

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	taxpayerID, err := pathUUID(r, "taxpayerId")
	if err != nil {
		writeError(w, r, err, applog.OpCalculate)
		return
	}
	calc, err := s.deps.Calculations.Calculate(r.Context(), taxpayerID)
	if err != nil {
		writeError(w, r, err, applog.OpCalculate)
		return
	}
	writeJSON(w, http.StatusOK, newCalculationResponse(calc))
}

func (s *Server) handleListCalculations(w http.ResponseWriter, r *http.Request) {
	taxpayerID, err := pathUUID(r, "taxpayerId")
	if err != nil {
		writeError(w, r, err, applog.OpList)
		return
	}
	calcs, err := s.deps.Calculations.History(r.Context(), taxpayerID)
	if err != nil {
		writeError(w, r, err, applog.OpList)
		return
	}
	out := make([]calculationResponse, 0, len(calcs))
	for _, c := range calcs {
		out = append(out, newCalculationResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleReport renders the latest calculation as a PDF, calculating first
// when the taxpayer has none.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	taxpayerID, err := pathUUID(r, "taxpayerId")
	if err != nil {
		writeError(w, r, err, applog.OpRender)
		return
	}
	detail, err := s.deps.Taxpayers.Get(r.Context(), taxpayerID)
	if err != nil {
		writeError(w, r, err, applog.OpRender)
		return
	}
	calc, err := s.deps.Calculations.Latest(r.Context(), taxpayerID)
	if err != nil {
		writeError(w, r, err, applog.OpRender)
		return
	}
	pdf, err := s.deps.Reports.Render(detail.Taxpayer, calc)
	if err != nil {
		writeError(w, r, err, applog.OpRender)
		return
	}

	filename := report.Filename(detail.Name, s.now())
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

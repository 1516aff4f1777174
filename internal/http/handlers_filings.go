package http

import (
	"fmt"
	"net/http"
	"strings"

	"dobkap/internal/log"
	"dobkap/internal/statement"
)

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.store.ListReports(r.Context())
	if err != nil {
		fail(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(reports, toReportDTO))
}

// handleCreateManualReport stores a native JSON report. The body is
// validated up front so a malformed report never reaches the pipeline.
func (s *Server) handleCreateManualReport(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		fail(w, r, log.OpCreate, err)
		return
	}
	extraction, err := statement.NativeJSON{}.Extract(body)
	if err != nil {
		fail(w, r, log.OpCreate, err)
		return
	}
	report, err := s.store.CreateManualReport(r.Context(), body)
	if err != nil {
		fail(w, r, log.OpCreate, err)
		return
	}
	log.FromContext(r.Context()).Info("Manual report stored", log.FieldReportID, report.ID, "events", len(extraction.Events))
	writeJSON(w, http.StatusCreated, toReportDTO(report))
}

func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, log.OpDelete, err)
		return
	}
	if err := s.store.DeleteReport(r.Context(), id); err != nil {
		fail(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFilings(w http.ResponseWriter, r *http.Request) {
	filings, err := s.store.ListFilings(r.Context())
	if err != nil {
		fail(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(filings, toFilingDTO))
}

func (s *Server) handleUpdateFiling(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	var patch filingPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	current, err := s.store.GetFiling(r.Context(), id)
	if err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	status, reference := current.Status, current.PaymentReference
	if patch.Status != nil {
		status = *patch.Status
	}
	if patch.PaymentReference != nil {
		reference = strings.TrimSpace(*patch.PaymentReference)
	}
	updated, err := s.store.UpdateFiling(r.Context(), id, status, reference)
	if err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, toFilingDTO(updated))
}

func (s *Server) handleDeleteFiling(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, log.OpDelete, err)
		return
	}
	if err := s.store.DeleteFiling(r.Context(), id); err != nil {
		fail(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetFilingForm serves the rendered OPO declaration as a download.
func (s *Server) handleGetFilingForm(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	content, err := s.store.GetFilingContent(r.Context(), id)
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="opo-%d.xml"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

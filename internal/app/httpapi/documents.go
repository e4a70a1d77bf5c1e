package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/invoice"
	"github.com/splito-labs/settlement_gateway/internal/httputil"
)

func (s *Server) listInvoices(w http.ResponseWriter, r *http.Request) {
	docs, err := s.app.Invoices.ListInvoices(r.Context(), r.URL.Query().Get("organizationId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeDocuments(w, docs)
}

func (s *Server) createInvoice(w http.ResponseWriter, r *http.Request) {
	var doc invoice.Document
	if err := httputil.DecodeJSON(w, r, &doc); err != nil {
		httputil.WriteError(w, err)
		return
	}
	created, err := s.app.Invoices.CreateInvoice(r.Context(), doc)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (s *Server) updateInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status string `json:"status"`
	}
	if err := httputil.DecodeJSON(w, r, &payload); err != nil {
		httputil.WriteError(w, err)
		return
	}
	status := invoice.Status(strings.ToUpper(strings.TrimSpace(payload.Status)))
	updated, err := s.app.Invoices.UpdateInvoiceStatus(r.Context(), mux.Vars(r)["id"], status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (s *Server) listContracts(w http.ResponseWriter, r *http.Request) {
	docs, err := s.app.Invoices.ListContracts(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeDocuments(w, docs)
}

func (s *Server) createContract(w http.ResponseWriter, r *http.Request) {
	var doc invoice.Document
	if err := httputil.DecodeJSON(w, r, &doc); err != nil {
		httputil.WriteError(w, err)
		return
	}
	doc.OrganizationID = mux.Vars(r)["id"]
	created, err := s.app.Invoices.CreateContract(r.Context(), doc)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (s *Server) listStreams(w http.ResponseWriter, r *http.Request) {
	streams, err := s.app.Invoices.ListStreams(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if streams == nil {
		streams = []invoice.IncomeStream{}
	}
	httputil.WriteJSON(w, http.StatusOK, streams)
}

func (s *Server) createStream(w http.ResponseWriter, r *http.Request) {
	var stream invoice.IncomeStream
	if err := httputil.DecodeJSON(w, r, &stream); err != nil {
		httputil.WriteError(w, err)
		return
	}
	stream.GroupID = mux.Vars(r)["id"]
	created, err := s.app.Invoices.CreateStream(r.Context(), stream)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func writeDocuments(w http.ResponseWriter, docs []invoice.Document) {
	if docs == nil {
		docs = []invoice.Document{}
	}
	httputil.WriteJSON(w, http.StatusOK, docs)
}

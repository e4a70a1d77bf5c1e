// Package invoices proxies organization invoices, contracts and income
// streams to the backend. It rejects invalid status changes before the
// backend sees them; the backend stays authoritative.
package invoices

import (
	"context"
	"strings"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/invoice"
	"github.com/splito-labs/settlement_gateway/internal/apperr"
	"github.com/splito-labs/settlement_gateway/pkg/logger"
)

// Backend is the document part of the Splito client.
type Backend interface {
	ListInvoices(ctx context.Context, organizationID string) ([]invoice.Document, error)
	CreateInvoice(ctx context.Context, doc invoice.Document) (invoice.Document, error)
	GetInvoice(ctx context.Context, id string) (invoice.Document, error)
	UpdateInvoiceStatus(ctx context.Context, id string, status invoice.Status) (invoice.Document, error)
	ListContracts(ctx context.Context, organizationID string) ([]invoice.Document, error)
	CreateContract(ctx context.Context, doc invoice.Document) (invoice.Document, error)
	ListStreams(ctx context.Context, groupID string) ([]invoice.IncomeStream, error)
	CreateStream(ctx context.Context, stream invoice.IncomeStream) (invoice.IncomeStream, error)
}

// Service validates document requests.
type Service struct {
	backend Backend
	log     *logger.Logger
}

// New creates an invoice service.
func New(backend Backend, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("invoices")
	}
	return &Service{backend: backend, log: log}
}

func (s *Service) ListInvoices(ctx context.Context, organizationID string) ([]invoice.Document, error) {
	return s.backend.ListInvoices(ctx, strings.TrimSpace(organizationID))
}

// CreateInvoice validates doc and creates it as a draft.
func (s *Service) CreateInvoice(ctx context.Context, doc invoice.Document) (invoice.Document, error) {
	doc.Kind = invoice.KindInvoice
	if err := normalizeDocument(&doc); err != nil {
		return invoice.Document{}, err
	}
	return s.backend.CreateInvoice(ctx, doc)
}

// UpdateInvoiceStatus moves an invoice along its lifecycle.
func (s *Service) UpdateInvoiceStatus(ctx context.Context, id string, to invoice.Status) (invoice.Document, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return invoice.Document{}, apperr.New(apperr.CodeInvalidRequest, "invoice id is required")
	}
	to = invoice.Status(strings.ToUpper(strings.TrimSpace(string(to))))

	current, err := s.backend.GetInvoice(ctx, id)
	if err != nil {
		return invoice.Document{}, err
	}
	if !invoice.CanTransition(current.Status, to) {
		return invoice.Document{}, apperr.New(apperr.CodeInvalidTransition, "invoice %s cannot move from %s to %s", id, current.Status, to)
	}

	updated, err := s.backend.UpdateInvoiceStatus(ctx, id, to)
	if err != nil {
		return invoice.Document{}, err
	}
	s.log.WithField("invoice", id).WithField("status", to).Info("invoice status changed")
	return updated, nil
}

func (s *Service) ListContracts(ctx context.Context, organizationID string) ([]invoice.Document, error) {
	if strings.TrimSpace(organizationID) == "" {
		return nil, apperr.New(apperr.CodeInvalidRequest, "organization id is required")
	}
	return s.backend.ListContracts(ctx, organizationID)
}

// CreateContract validates doc and creates it as a draft contract.
func (s *Service) CreateContract(ctx context.Context, doc invoice.Document) (invoice.Document, error) {
	doc.Kind = invoice.KindContract
	if err := normalizeDocument(&doc); err != nil {
		return invoice.Document{}, err
	}
	if doc.OrganizationID == "" {
		return invoice.Document{}, apperr.New(apperr.CodeInvalidRequest, "organization id is required")
	}
	return s.backend.CreateContract(ctx, doc)
}

func (s *Service) ListStreams(ctx context.Context, groupID string) ([]invoice.IncomeStream, error) {
	if strings.TrimSpace(groupID) == "" {
		return nil, apperr.New(apperr.CodeInvalidRequest, "group id is required")
	}
	return s.backend.ListStreams(ctx, groupID)
}

// CreateStream validates and creates an active income stream.
func (s *Service) CreateStream(ctx context.Context, stream invoice.IncomeStream) (invoice.IncomeStream, error) {
	stream.Name = strings.TrimSpace(stream.Name)
	stream.Currency = strings.ToUpper(strings.TrimSpace(stream.Currency))
	switch {
	case strings.TrimSpace(stream.GroupID) == "":
		return invoice.IncomeStream{}, apperr.New(apperr.CodeInvalidRequest, "group id is required")
	case stream.Name == "":
		return invoice.IncomeStream{}, apperr.New(apperr.CodeInvalidRequest, "stream name is required")
	case !stream.Amount.IsPositive():
		return invoice.IncomeStream{}, apperr.New(apperr.CodeInvalidRequest, "stream amount must be positive")
	case stream.Currency == "":
		return invoice.IncomeStream{}, apperr.New(apperr.CodeInvalidRequest, "currency is required")
	}
	if stream.Status == "" {
		stream.Status = invoice.StreamActive
	}
	return s.backend.CreateStream(ctx, stream)
}

func normalizeDocument(doc *invoice.Document) error {
	doc.Title = strings.TrimSpace(doc.Title)
	doc.Currency = strings.ToUpper(strings.TrimSpace(doc.Currency))
	doc.OrganizationID = strings.TrimSpace(doc.OrganizationID)
	switch {
	case doc.Title == "":
		return apperr.New(apperr.CodeInvalidRequest, "title is required")
	case !doc.Amount.IsPositive():
		return apperr.New(apperr.CodeInvalidRequest, "amount must be positive")
	case doc.Currency == "":
		return apperr.New(apperr.CodeInvalidRequest, "currency is required")
	}
	if doc.Status != "" && doc.Status != invoice.StatusDraft {
		return apperr.New(apperr.CodeInvalidTransition, "new documents start as %s", invoice.StatusDraft)
	}
	doc.Status = invoice.StatusDraft
	return nil
}

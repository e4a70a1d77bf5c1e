package splito

import (
	"context"
	"net/url"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/invoice"
)

// ListInvoices returns invoices of an organization.
func (c *Client) ListInvoices(ctx context.Context, organizationID string) ([]invoice.Document, error) {
	q := url.Values{}
	if organizationID != "" {
		q.Set("organizationId", organizationID)
	}
	var docs []invoice.Document
	if err := c.get(ctx, "/invoices", q, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// CreateInvoice creates a draft invoice.
func (c *Client) CreateInvoice(ctx context.Context, doc invoice.Document) (invoice.Document, error) {
	var created invoice.Document
	if err := c.post(ctx, "/invoices", doc, &created); err != nil {
		return invoice.Document{}, err
	}
	return created, nil
}

// GetInvoice fetches one invoice.
func (c *Client) GetInvoice(ctx context.Context, id string) (invoice.Document, error) {
	var doc invoice.Document
	if err := c.get(ctx, "/invoices/"+url.PathEscape(id), nil, &doc); err != nil {
		return invoice.Document{}, err
	}
	return doc, nil
}

// UpdateInvoiceStatus moves an invoice to a new status.
func (c *Client) UpdateInvoiceStatus(ctx context.Context, id string, status invoice.Status) (invoice.Document, error) {
	var doc invoice.Document
	body := map[string]invoice.Status{"status": status}
	if err := c.patch(ctx, "/invoices/"+url.PathEscape(id)+"/status", body, &doc); err != nil {
		return invoice.Document{}, err
	}
	return doc, nil
}

// ListContracts returns contracts of an organization.
func (c *Client) ListContracts(ctx context.Context, organizationID string) ([]invoice.Document, error) {
	var docs []invoice.Document
	if err := c.get(ctx, "/organizations/"+url.PathEscape(organizationID)+"/contracts", nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// CreateContract creates a draft contract.
func (c *Client) CreateContract(ctx context.Context, doc invoice.Document) (invoice.Document, error) {
	var created invoice.Document
	if err := c.post(ctx, "/organizations/"+url.PathEscape(doc.OrganizationID)+"/contracts", doc, &created); err != nil {
		return invoice.Document{}, err
	}
	return created, nil
}

// ListStreams returns income streams of a group.
func (c *Client) ListStreams(ctx context.Context, groupID string) ([]invoice.IncomeStream, error) {
	var streams []invoice.IncomeStream
	if err := c.get(ctx, "/groups/"+url.PathEscape(groupID)+"/streams", nil, &streams); err != nil {
		return nil, err
	}
	return streams, nil
}

// CreateStream creates an income stream.
func (c *Client) CreateStream(ctx context.Context, stream invoice.IncomeStream) (invoice.IncomeStream, error) {
	var created invoice.IncomeStream
	if err := c.post(ctx, "/groups/"+url.PathEscape(stream.GroupID)+"/streams", stream, &created); err != nil {
		return invoice.IncomeStream{}, err
	}
	return created, nil
}

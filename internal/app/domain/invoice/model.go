package invoice

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind separates invoices from contracts; both share one lifecycle.
type Kind string

const (
	KindInvoice  Kind = "invoice"
	KindContract Kind = "contract"
)

// Status is a document lifecycle state. The backend enforces transitions; the
// gateway rejects obviously invalid ones before calling it.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusSent     Status = "SENT"
	StatusApproved Status = "APPROVED"
	StatusDeclined Status = "DECLINED"
	StatusCleared  Status = "CLEARED"
)

var documentTransitions = map[Status][]Status{
	StatusDraft:    {StatusSent},
	StatusSent:     {StatusApproved, StatusDeclined},
	StatusApproved: {StatusCleared},
	StatusDeclined: {StatusDraft},
}

// CanTransition reports whether a document may move from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range documentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Document is an organization-scoped invoice or contract.
type Document struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organizationId"`
	Kind           Kind            `json:"kind"`
	Number         string          `json:"number,omitempty"`
	Title          string          `json:"title"`
	Recipient      string          `json:"recipient,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Status         Status          `json:"status"`
	DueDate        *time.Time      `json:"dueDate,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// StreamStatus is the state of a recurring income stream.
type StreamStatus string

const (
	StreamActive StreamStatus = "ACTIVE"
	StreamPaused StreamStatus = "PAUSED"
	StreamEnded  StreamStatus = "ENDED"
)

// IncomeStream is a recurring payment attached to a group or organization.
type IncomeStream struct {
	ID        string          `json:"id"`
	GroupID   string          `json:"groupId"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Interval  string          `json:"interval"`
	Status    StreamStatus    `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
}

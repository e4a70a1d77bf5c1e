package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind distinguishes the two settlement entry points.
type Kind string

const (
	KindAll Kind = "all"
	KindOne Kind = "one"
)

// Status tracks a settlement through signing and chain confirmation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSigning   Status = "signing"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusSigning, StatusSubmitted, StatusFailed},
	StatusSigning:   {StatusSubmitted, StatusFailed},
	StatusSubmitted: {StatusConfirmed, StatusFailed},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// QuoteSource records where a conversion price came from.
type QuoteSource string

const (
	SourcePricing      QuoteSource = "pricing"
	SourceExchangeRate QuoteSource = "exchange-rate"
	SourceFallback     QuoteSource = "fallback"
)

// Line is one currency's contribution to a conversion.
type Line struct {
	Currency    string          `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
	TokenAmount decimal.Decimal `json:"tokenAmount"`
	Price       decimal.Decimal `json:"price"`
	Source      QuoteSource     `json:"source"`
}

// Conversion is the advisory token amount for a set of debts.
type Conversion struct {
	TokenID string          `json:"tokenId"`
	ChainID string          `json:"chainId"`
	Symbol  string          `json:"symbol"`
	Lines   []Line          `json:"lines"`
	Total   decimal.Decimal `json:"total"`
}

// Settlement is the gateway's record of one settlement attempt.
type Settlement struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"userId" db:"user_id"`
	GroupID   string          `json:"groupId,omitempty" db:"group_id"`
	FriendID  string          `json:"friendId,omitempty" db:"friend_id"`
	Kind      Kind            `json:"kind" db:"kind"`
	TokenID   string          `json:"tokenId" db:"token_id"`
	ChainID   string          `json:"chainId" db:"chain_id"`
	Address   string          `json:"address" db:"address"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Breakdown []Line          `json:"breakdown" db:"-"`
	// Counterparties are the friends paid by the settlement.
	Counterparties []string  `json:"counterparties,omitempty" db:"-"`
	Status         Status    `json:"status" db:"status"`
	RemoteID       string    `json:"remoteId,omitempty" db:"remote_id"`
	UnsignedTx     string    `json:"unsignedTx,omitempty" db:"unsigned_tx"`
	TxHash         string    `json:"txHash,omitempty" db:"tx_hash"`
	ErrorCode      string    `json:"errorCode,omitempty" db:"error_code"`
	Message        string    `json:"message,omitempty" db:"message"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

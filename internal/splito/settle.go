package splito

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/shopspring/decimal"
)

// CreateSettleRequest asks the backend for an unsigned settlement transaction.
type CreateSettleRequest struct {
	GroupID         string          `json:"groupId,omitempty"`
	Address         string          `json:"address"`
	SettleWithID    string          `json:"settleWithId,omitempty"`
	SelectedTokenID string          `json:"selectedTokenId"`
	SelectedChainID string          `json:"selectedChainId"`
	Amount          decimal.Decimal `json:"amount"`
}

// MarshalJSON sends the amount as a JSON number, which is what the backend
// reads.
func (r CreateSettleRequest) MarshalJSON() ([]byte, error) {
	type plain CreateSettleRequest
	return json.Marshal(struct {
		plain
		Amount json.Number `json:"amount"`
	}{plain(r), json.Number(r.Amount.String())})
}

// CreateSettleResponse carries the unsigned transaction: base64 XDR on
// Stellar, hex BCS on Aptos.
type CreateSettleResponse struct {
	ID           string          `json:"id"`
	SerializedTx string          `json:"serializedTx"`
	Amount       decimal.Decimal `json:"amount"`
}

// SubmitSettleRequest hands the signed transaction back.
type SubmitSettleRequest struct {
	ID              string `json:"id"`
	GroupID         string `json:"groupId,omitempty"`
	Address         string `json:"address"`
	SettleWithID    string `json:"settleWithId,omitempty"`
	SelectedChainID string `json:"selectedChainId"`
	SignedTx        string `json:"signedTx"`
}

// SettleStatus is the backend view of a submitted settlement.
type SettleStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"` // pending, confirmed, failed
	TxHash string `json:"txHash,omitempty"`
	Error  string `json:"error,omitempty"`
}

// CreateSettleTransaction requests an unsigned transaction.
func (c *Client) CreateSettleTransaction(ctx context.Context, req CreateSettleRequest) (CreateSettleResponse, error) {
	var resp CreateSettleResponse
	if err := c.post(ctx, "/groups/settle-transaction/create", req, &resp); err != nil {
		return CreateSettleResponse{}, err
	}
	return resp, nil
}

// SubmitSettleTransaction submits a signed transaction.
func (c *Client) SubmitSettleTransaction(ctx context.Context, req SubmitSettleRequest) (SettleStatus, error) {
	var resp SettleStatus
	if err := c.post(ctx, "/groups/settle-transaction/submit", req, &resp); err != nil {
		return SettleStatus{}, err
	}
	return resp, nil
}

// SettleTransactionStatus polls a submitted settlement.
func (c *Client) SettleTransactionStatus(ctx context.Context, id string) (SettleStatus, error) {
	var resp SettleStatus
	if err := c.get(ctx, "/groups/settle-transaction/"+url.PathEscape(id)+"/status", nil, &resp); err != nil {
		return SettleStatus{}, err
	}
	return resp, nil
}

package splito

import (
	"context"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/splito-labs/settlement_gateway/internal/apperr"
)

// Price returns the price of one token in baseCurrency.
func (c *Client) Price(ctx context.Context, tokenID, baseCurrency string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("id", tokenID)
	q.Set("baseCurrency", baseCurrency)

	var payload struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := c.get(ctx, "/api/pricing/price", q, &payload); err != nil {
		return decimal.Zero, err
	}
	if !payload.Price.IsPositive() {
		return decimal.Zero, apperr.New(apperr.CodeUpstream, "non-positive price for %s/%s", tokenID, baseCurrency)
	}
	return payload.Price, nil
}

// ExchangeRate returns how many units of to one unit of from buys.
func (c *Client) ExchangeRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)

	var payload struct {
		Rate decimal.Decimal `json:"rate"`
	}
	if err := c.get(ctx, "/api/exchange-rate", q, &payload); err != nil {
		return decimal.Zero, err
	}
	if !payload.Rate.IsPositive() {
		return decimal.Zero, apperr.New(apperr.CodeUpstream, "non-positive exchange rate for %s/%s", from, to)
	}
	return payload.Rate, nil
}

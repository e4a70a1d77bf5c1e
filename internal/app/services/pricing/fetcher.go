package pricing

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/splito-labs/settlement_gateway/internal/apperr"
)

// Fetcher returns the price of one token in currency: units of currency per
// whole token.
type Fetcher interface {
	Fetch(ctx context.Context, tokenID, currency string) (decimal.Decimal, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, tokenID, currency string) (decimal.Decimal, error)

func (f FetcherFunc) Fetch(ctx context.Context, tokenID, currency string) (decimal.Decimal, error) {
	if f == nil {
		return decimal.Zero, apperr.New(apperr.CodeInternal, "nil fetcher")
	}
	return f(ctx, tokenID, currency)
}

// PriceSource is the backend pricing endpoint.
type PriceSource interface {
	Price(ctx context.Context, tokenID, baseCurrency string) (decimal.Decimal, error)
}

// RateSource is the backend generic exchange-rate endpoint.
type RateSource interface {
	ExchangeRate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// NewPricingFetcher queries the pricing endpoint.
func NewPricingFetcher(src PriceSource) Fetcher {
	return FetcherFunc(func(ctx context.Context, tokenID, currency string) (decimal.Decimal, error) {
		return src.Price(ctx, tokenID, currency)
	})
}

// NewExchangeRateFetcher queries the exchange-rate endpoint and inverts the
// rate: the endpoint answers tokens per unit of currency.
func NewExchangeRateFetcher(src RateSource) Fetcher {
	return FetcherFunc(func(ctx context.Context, tokenID, currency string) (decimal.Decimal, error) {
		rate, err := src.ExchangeRate(ctx, currency, tokenID)
		if err != nil {
			return decimal.Zero, err
		}
		if !rate.IsPositive() {
			return decimal.Zero, apperr.New(apperr.CodeUpstream, "exchange rate %s->%s is not positive", currency, tokenID)
		}
		return decimal.NewFromInt(1).Div(rate), nil
	})
}

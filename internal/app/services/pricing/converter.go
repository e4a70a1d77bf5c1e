// Package pricing converts fiat or crypto debts into an amount of the chosen
// settlement token. Results are advisory; the backend recomputes the amount
// when it builds the transaction.
package pricing

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/balance"
	"github.com/splito-labs/settlement_gateway/internal/app/domain/settlement"
	"github.com/splito-labs/settlement_gateway/internal/app/metrics"
	"github.com/splito-labs/settlement_gateway/internal/app/services/tokens"
	"github.com/splito-labs/settlement_gateway/internal/apperr"
	"github.com/splito-labs/settlement_gateway/internal/cache"
	"github.com/splito-labs/settlement_gateway/pkg/logger"
)

// Quote is the price of one token in one currency.
type Quote struct {
	TokenID   string                 `json:"tokenId"`
	Currency  string                 `json:"currency"`
	Price     decimal.Decimal        `json:"price"`
	Source    settlement.QuoteSource `json:"source"`
	FetchedAt time.Time              `json:"fetchedAt"`
}

// QuoteKey is the cache key of a quote.
func QuoteKey(tokenID, currency string) string {
	return cache.Key("quotes", strings.ToLower(tokenID), strings.ToUpper(currency))
}

// Options configures a Converter.
type Options struct {
	// Fallback is consulted when Primary fails.
	Primary     Fetcher
	Fallback    Fetcher
	Cache       cache.Cache
	TTL         time.Duration
	MaxParallel int
	Logger      *logger.Logger
}

// Converter turns debts into token amounts.
type Converter struct {
	primary     Fetcher
	fallback    Fetcher
	cache       cache.Cache
	ttl         time.Duration
	maxParallel int
	log         *logger.Logger
}

// NewConverter builds a converter.
func NewConverter(opts Options) *Converter {
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("pricing")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	parallel := opts.MaxParallel
	if parallel <= 0 {
		parallel = 8
	}
	return &Converter{
		primary:     opts.Primary,
		fallback:    opts.Fallback,
		cache:       opts.Cache,
		ttl:         ttl,
		maxParallel: parallel,
		log:         log,
	}
}

// Convert prices every distinct currency in debts concurrently. A failed
// lookup falls back to the exchange-rate endpoint, then to 1:1; it never fails
// the conversion. Only a cancelled context or invalid input returns an error.
func (c *Converter) Convert(ctx context.Context, sel tokens.Selection, debts []balance.Debt) (settlement.Conversion, error) {
	merged, err := mergeDebts(debts)
	if err != nil {
		return settlement.Conversion{}, err
	}

	conv := settlement.Conversion{
		TokenID: sel.Token.ID,
		ChainID: sel.Chain.ID,
		Symbol:  sel.Token.Symbol,
		Lines:   make([]settlement.Line, len(merged)),
		Total:   decimal.Zero,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxParallel)
	for i, debt := range merged {
		i, debt := i, debt
		g.Go(func() error {
			q := c.Quote(gctx, sel.Token.ID, debt.Currency)
			conv.Lines[i] = settlement.Line{
				Currency:    debt.Currency,
				Amount:      debt.Amount,
				Price:       q.Price,
				Source:      q.Source,
				TokenAmount: debt.Amount.Div(q.Price).Round(sel.Decimals()),
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return settlement.Conversion{}, apperr.Wrap(apperr.CodeNetwork, err, "price lookup cancelled")
	}

	for _, line := range conv.Lines {
		conv.Total = conv.Total.Add(line.TokenAmount)
	}
	return conv, nil
}

// Quote returns the price of tokenID in currency, serving from cache when
// possible. It always returns a usable positive price.
func (c *Converter) Quote(ctx context.Context, tokenID, currency string) Quote {
	key := QuoteKey(tokenID, currency)
	if c.cache != nil {
		var cached Quote
		if ok, err := c.cache.Get(ctx, key, &cached); err == nil && ok && cached.Price.IsPositive() {
			metrics.RecordQuoteCacheHit(string(cached.Source))
			return cached
		}
	}

	q := c.Refresh(ctx, tokenID, currency)
	if q.Source != settlement.SourceFallback && c.cache != nil {
		if err := c.cache.Set(ctx, key, q, c.ttl); err != nil {
			c.log.WithError(err).WithField("key", key).Debug("cache quote")
		}
	}
	return q
}

// Refresh fetches a quote, bypassing the cache.
func (c *Converter) Refresh(ctx context.Context, tokenID, currency string) Quote {
	q := Quote{TokenID: tokenID, Currency: currency, FetchedAt: time.Now().UTC()}
	entry := c.log.WithField("token", tokenID).WithField("currency", currency)

	if price, err := fetch(ctx, c.primary, tokenID, currency); err == nil {
		q.Price, q.Source = price, settlement.SourcePricing
	} else {
		entry.WithError(err).Warn("pricing lookup failed, trying exchange rate")
		if price, err := fetch(ctx, c.fallback, tokenID, currency); err == nil {
			q.Price, q.Source = price, settlement.SourceExchangeRate
		} else {
			entry.WithError(err).Warn("exchange rate lookup failed, converting 1:1; amount may be inaccurate")
			q.Price, q.Source = decimal.NewFromInt(1), settlement.SourceFallback
		}
	}
	metrics.RecordQuote(string(q.Source))
	return q
}

func fetch(ctx context.Context, f Fetcher, tokenID, currency string) (decimal.Decimal, error) {
	if f == nil {
		return decimal.Zero, apperr.New(apperr.CodeInternal, "no fetcher configured")
	}
	price, err := f.Fetch(ctx, tokenID, currency)
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, apperr.New(apperr.CodeUpstream, "price %s is not positive", price)
	}
	return price, nil
}

// mergeDebts sums debts per currency and rejects negative amounts.
func mergeDebts(debts []balance.Debt) ([]balance.Debt, error) {
	sums := make(map[string]decimal.Decimal)
	for _, d := range debts {
		currency := strings.ToUpper(strings.TrimSpace(d.Currency))
		if currency == "" {
			return nil, apperr.New(apperr.CodeInvalidRequest, "debt currency is required")
		}
		if d.Amount.IsNegative() {
			return nil, apperr.New(apperr.CodeInvalidRequest, "debt amount for %s is negative", currency)
		}
		if d.Amount.IsZero() {
			continue
		}
		sums[currency] = sums[currency].Add(d.Amount)
	}
	out := make([]balance.Debt, 0, len(sums))
	for currency, amount := range sums {
		out = append(out, balance.Debt{Currency: currency, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

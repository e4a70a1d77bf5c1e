// Package tokens answers which settlement options exist on which chain.
package tokens

import (
	"strings"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/token"
	"github.com/splito-labs/settlement_gateway/internal/apperr"
)

var defaultDecimals = map[token.ChainKind]int32{
	token.KindStellar: 7,
	token.KindAptos:   8,
}

// Selection is a resolved (token, chain) choice.
type Selection struct {
	Token token.Option `json:"token"`
	Chain token.Chain  `json:"chain"`
}

// Decimals is the precision token amounts are rounded to.
func (s Selection) Decimals() int32 {
	if s.Token.Decimals > 0 {
		return s.Token.Decimals
	}
	return defaultDecimals[s.Chain.Kind]
}

// Resolver indexes a catalog. It is immutable after construction.
type Resolver struct {
	catalog token.Catalog
	chains  map[string]token.Chain
}

// NewResolver indexes cat.
func NewResolver(cat token.Catalog) *Resolver {
	chains := make(map[string]token.Chain, len(cat.Chains))
	for _, c := range cat.Chains {
		chains[c.ID] = c
	}
	return &Resolver{catalog: cat, chains: chains}
}

// Chains lists the configured chains.
func (r *Resolver) Chains() []token.Chain {
	out := make([]token.Chain, len(r.catalog.Chains))
	copy(out, r.catalog.Chains)
	return out
}

// Chain looks up a chain by id.
func (r *Resolver) Chain(id string) (token.Chain, bool) {
	c, ok := r.chains[strings.TrimSpace(id)]
	return c, ok
}

// Options returns the fiat currencies plus the tokens available on chainID.
// An empty chainID returns every token.
func (r *Resolver) Options(chainID string) ([]token.Option, error) {
	chainID = strings.TrimSpace(chainID)
	if chainID != "" {
		if _, ok := r.chains[chainID]; !ok {
			return nil, apperr.New(apperr.CodeInvalidRequest, "unknown chain %q", chainID)
		}
	}
	out := make([]token.Option, 0, len(r.catalog.Fiat)+len(r.catalog.Tokens))
	out = append(out, r.catalog.Fiat...)
	for _, opt := range r.catalog.Tokens {
		if chainID == "" || opt.ChainID == chainID {
			out = append(out, opt)
		}
	}
	return out, nil
}

// Resolve validates that tokenID is offered on chainID.
func (r *Resolver) Resolve(tokenID, chainID string) (Selection, error) {
	tokenID = strings.TrimSpace(tokenID)
	chainID = strings.TrimSpace(chainID)
	if tokenID == "" || chainID == "" {
		return Selection{}, apperr.New(apperr.CodeInvalidRequest, "tokenId and chainId are required")
	}
	chain, ok := r.chains[chainID]
	if !ok {
		return Selection{}, apperr.New(apperr.CodeInvalidToken, "unknown chain %q", chainID)
	}
	for _, opt := range r.catalog.Tokens {
		if opt.ChainID == chainID && strings.EqualFold(opt.ID, tokenID) {
			return Selection{Token: opt, Chain: chain}, nil
		}
	}
	return Selection{}, apperr.New(apperr.CodeInvalidToken, "token %q is not available on %s", tokenID, chainID)
}

// IsFiat reports whether code is a configured fiat currency.
func (r *Resolver) IsFiat(code string) bool {
	for _, f := range r.catalog.Fiat {
		if strings.EqualFold(f.ID, code) {
			return true
		}
	}
	return false
}

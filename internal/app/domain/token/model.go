package token

import "strings"

// ChainKind identifies the signing family of a chain.
type ChainKind string

const (
	KindStellar ChainKind = "stellar"
	KindAptos   ChainKind = "aptos"
)

// Chain describes a network settlements can be sent on.
type Chain struct {
	ID                string    `json:"id" yaml:"id"`
	Name              string    `json:"name" yaml:"name"`
	Kind              ChainKind `json:"kind" yaml:"kind"`
	NetworkPassphrase string    `json:"networkPassphrase,omitempty" yaml:"network_passphrase"`
	AptosChainID      uint8     `json:"aptosChainId,omitempty" yaml:"aptos_chain_id"`
}

// Option is a selectable settlement medium: a fiat currency when ChainID is
// empty, otherwise an on-chain token.
type Option struct {
	ID       string `json:"id" yaml:"id"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Name     string `json:"name" yaml:"name"`
	ChainID  string `json:"chainId,omitempty" yaml:"chain_id"`
	Type     string `json:"type,omitempty" yaml:"type"`
	Decimals int32  `json:"decimals,omitempty" yaml:"decimals"`
}

// IsToken reports whether the option lives on a chain.
func (o Option) IsToken() bool { return strings.TrimSpace(o.ChainID) != "" }

// Catalog is the full set of chains and options the gateway offers.
type Catalog struct {
	Chains []Chain  `json:"chains" yaml:"chains"`
	Fiat   []Option `json:"fiat" yaml:"fiat"`
	Tokens []Option `json:"tokens" yaml:"tokens"`
}

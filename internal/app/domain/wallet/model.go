package wallet

import (
	"fmt"
	"strings"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/token"
)

// Kind tags a connected wallet. It is fixed when the wallet connects.
type Kind = token.ChainKind

const (
	KindStellar = token.KindStellar
	KindAptos   = token.KindAptos
)

// Custody says who holds the signing key.
type Custody string

const (
	// CustodyExternal wallets sign on the client; the gateway hands out the
	// unsigned payload and waits for the signed one.
	CustodyExternal Custody = "external"
	// CustodyGateway wallets are signed by keys loaded into the gateway.
	CustodyGateway Custody = "gateway"
)

// Wallet is a connected wallet.
type Wallet struct {
	Kind      Kind    `json:"kind"`
	Address   string  `json:"address"`
	PublicKey string  `json:"publicKey,omitempty"`
	Custody   Custody `json:"custody,omitempty"`
	Connected bool    `json:"connected"`
}

// Validate checks the tag and address are set.
func (w Wallet) Validate() error {
	switch w.Kind {
	case KindStellar, KindAptos:
	case "":
		return fmt.Errorf("wallet kind is required")
	default:
		return fmt.Errorf("unsupported wallet kind %q", w.Kind)
	}
	if strings.TrimSpace(w.Address) == "" {
		return fmt.Errorf("wallet address is required")
	}
	return nil
}

// State is a step of the signing flow.
type State string

const (
	StateNoWallet       State = "no_wallet"
	StateWalletDetected State = "wallet_detected"
	StateTypeResolved   State = "type_resolved"
	StateSigning        State = "signing"
	StateSubmitted      State = "submitted"
	StateFailed         State = "failed"
)

package wallets

import (
	"strings"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/wallet"
	"github.com/splito-labs/settlement_gateway/internal/apperr"
)

// Descriptor is the shape older clients post to describe the wallet object
// their wallet adapter exposes. Only field presence matters.
type Descriptor struct {
	Connected       *bool              `json:"connected,omitempty"`
	Account         *DescriptorAccount `json:"account,omitempty"`
	SignTransaction bool               `json:"signTransaction"`
	Address         string             `json:"address,omitempty"`
	PublicKey       string             `json:"publicKey,omitempty"`
}

// DescriptorAccount is the account object Aptos adapters expose.
type DescriptorAccount struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey,omitempty"`
}

// Detect turns a legacy descriptor into a tagged wallet. Adapters exposing
// connected and account are Aptos; adapters exposing only signTransaction are
// Stellar.
func Detect(d Descriptor) (wallet.Wallet, error) {
	switch {
	case d.Connected != nil && d.Account != nil:
		if !*d.Connected {
			return wallet.Wallet{}, apperr.New(apperr.CodeWalletNotConnected, "aptos wallet is not connected")
		}
		w := wallet.Wallet{
			Kind:      wallet.KindAptos,
			Address:   strings.TrimSpace(d.Account.Address),
			PublicKey: d.Account.PublicKey,
			Custody:   wallet.CustodyExternal,
			Connected: true,
		}
		if w.Address == "" {
			return wallet.Wallet{}, apperr.New(apperr.CodeWalletNotConnected, "aptos wallet has no account")
		}
		return w, nil

	case d.SignTransaction && d.Connected == nil:
		w := wallet.Wallet{
			Kind:      wallet.KindStellar,
			Address:   strings.TrimSpace(d.Address),
			PublicKey: d.PublicKey,
			Custody:   wallet.CustodyExternal,
			Connected: true,
		}
		if w.Address == "" {
			return wallet.Wallet{}, apperr.New(apperr.CodeWalletNotConnected, "stellar wallet has no address")
		}
		return w, nil
	}
	return wallet.Wallet{}, apperr.New(apperr.CodeWalletNotConnected, "unrecognized wallet")
}

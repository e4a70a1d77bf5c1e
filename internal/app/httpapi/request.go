package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/wallet"
	"github.com/splito-labs/settlement_gateway/internal/app/services/wallets"
	"github.com/splito-labs/settlement_gateway/internal/apperr"
)

// walletPayload accepts either a tagged wallet ({kind, address}) or the
// legacy adapter descriptor, which is classified by field presence.
type walletPayload struct {
	Kind            string                     `json:"kind"`
	Address         string                     `json:"address"`
	PublicKey       string                     `json:"publicKey"`
	Connected       *bool                      `json:"connected"`
	Account         *wallets.DescriptorAccount `json:"account"`
	SignTransaction bool                       `json:"signTransaction"`
}

// wallet resolves the payload. Wallets connected through the API always
// sign on the client.
func (p *walletPayload) wallet() (wallet.Wallet, error) {
	if p == nil {
		return wallet.Wallet{}, apperr.New(apperr.CodeWalletNotConnected, apperr.Message(apperr.CodeWalletNotConnected))
	}
	if kind := strings.ToLower(strings.TrimSpace(p.Kind)); kind != "" {
		return wallet.Wallet{
			Kind:      wallet.Kind(kind),
			Address:   strings.TrimSpace(p.Address),
			PublicKey: p.PublicKey,
			Custody:   wallet.CustodyExternal,
			Connected: p.Connected == nil || *p.Connected,
		}, nil
	}
	w, err := wallets.Detect(wallets.Descriptor{
		Connected:       p.Connected,
		Account:         p.Account,
		SignTransaction: p.SignTransaction,
		Address:         p.Address,
		PublicKey:       p.PublicKey,
	})
	if err != nil {
		return wallet.Wallet{}, err
	}
	w.Custody = wallet.CustodyExternal
	return w, nil
}

func intQuery(r *http.Request, key string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// listQuery reads a repeated or comma separated query parameter.
func listQuery(r *http.Request, key string) []string {
	var out []string
	for _, raw := range r.URL.Query()[key] {
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

package wallets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/token"
	"github.com/splito-labs/settlement_gateway/internal/app/domain/wallet"
	"github.com/splito-labs/settlement_gateway/internal/apperr"
	"github.com/splito-labs/settlement_gateway/internal/chain/aptos"
	"github.com/splito-labs/settlement_gateway/internal/chain/stellar"
)

// Signer signs the unsigned payload the backend returns for one chain
// family: base64 XDR on Stellar, hex BCS on Aptos.
type Signer interface {
	Kind() wallet.Kind
	Address() string
	Sign(ctx context.Context, unsigned string, chain token.Chain) (string, error)
}

// StellarSigner signs envelopes with a gateway-held seed.
type StellarSigner struct {
	kp *stellar.KeypairSigner
}

// NewStellarSigner parses an S... seed.
func NewStellarSigner(seed string) (*StellarSigner, error) {
	kp, err := stellar.NewKeypairSigner(seed)
	if err != nil {
		return nil, err
	}
	return &StellarSigner{kp: kp}, nil
}

func (s *StellarSigner) Kind() wallet.Kind { return wallet.KindStellar }
func (s *StellarSigner) Address() string   { return s.kp.Address() }

func (s *StellarSigner) Sign(ctx context.Context, unsigned string, chain token.Chain) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperr.Wrap(apperr.CodeNetwork, err, "sign cancelled")
	}
	if chain.NetworkPassphrase == "" {
		return "", apperr.New(apperr.CodeInternal, "chain %s has no network passphrase", chain.ID)
	}
	signed, err := s.kp.SignEnvelope(unsigned, chain.NetworkPassphrase)
	if errors.Is(err, stellar.ErrMalformed) {
		return "", apperr.Wrap(apperr.CodeMalformedTx, err, "decode stellar transaction")
	}
	return signed, err
}

// AptosSigner signs raw transactions with a gateway-held Ed25519 key.
type AptosSigner struct {
	key *aptos.Ed25519Signer
}

// NewAptosSigner parses a hex Ed25519 seed.
func NewAptosSigner(encoded string) (*AptosSigner, error) {
	key, err := aptos.NewEd25519Signer(encoded)
	if err != nil {
		return nil, err
	}
	return &AptosSigner{key: key}, nil
}

func (s *AptosSigner) Kind() wallet.Kind { return wallet.KindAptos }
func (s *AptosSigner) Address() string   { return aptos.FormatAddress(s.key.Address()) }

func (s *AptosSigner) Sign(ctx context.Context, unsigned string, chain token.Chain) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperr.Wrap(apperr.CodeNetwork, err, "sign cancelled")
	}
	raw, err := aptos.DecodeRawTransactionHex(unsigned)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeMalformedTx, err, "decode aptos transaction")
	}
	if chain.AptosChainID != 0 && raw.ChainId != chain.AptosChainID {
		return "", apperr.New(apperr.CodeMalformedTx, "transaction targets chain %d, expected %d", raw.ChainId, chain.AptosChainID)
	}
	signed, err := s.key.Sign(raw)
	if err != nil {
		return "", err
	}
	return aptos.EncodeHex(signed)
}

// Keyring holds the signers for gateway-custody wallets.
type Keyring struct {
	mu      sync.RWMutex
	signers map[string]Signer
}

// NewKeyring loads Stellar seeds and Aptos keys.
func NewKeyring(stellarSeeds, aptosKeys []string) (*Keyring, error) {
	k := &Keyring{signers: make(map[string]Signer)}
	for i, seed := range stellarSeeds {
		s, err := NewStellarSigner(seed)
		if err != nil {
			return nil, fmt.Errorf("stellar signer %d: %w", i, err)
		}
		k.Add(s)
	}
	for i, key := range aptosKeys {
		s, err := NewAptosSigner(key)
		if err != nil {
			return nil, fmt.Errorf("aptos signer %d: %w", i, err)
		}
		k.Add(s)
	}
	return k, nil
}

// Add registers a signer under its address.
func (k *Keyring) Add(s Signer) {
	k.mu.Lock()
	k.signers[keyringKey(s.Kind(), s.Address())] = s
	k.mu.Unlock()
}

// Lookup finds the signer for a wallet.
func (k *Keyring) Lookup(w wallet.Wallet) (Signer, bool) {
	if k == nil {
		return nil, false
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	s, ok := k.signers[keyringKey(w.Kind, w.Address)]
	return s, ok
}

// Wallets lists the gateway-custody wallets.
func (k *Keyring) Wallets() []wallet.Wallet {
	if k == nil {
		return nil
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]wallet.Wallet, 0, len(k.signers))
	for _, s := range k.signers {
		out = append(out, wallet.Wallet{Kind: s.Kind(), Address: s.Address(), Custody: wallet.CustodyGateway, Connected: true})
	}
	return out
}

func keyringKey(kind wallet.Kind, address string) string {
	address = strings.TrimSpace(address)
	if kind == wallet.KindAptos {
		if addr, err := aptos.ParseAddress(address); err == nil {
			address = aptos.FormatAddress(addr)
		}
	}
	return string(kind) + "|" + address
}

package aptos

import (
	"errors"
	"fmt"
	"strings"

	aptossdk "github.com/aptos-labs/aptos-go-sdk"
	"github.com/aptos-labs/aptos-go-sdk/bcs"
	"github.com/aptos-labs/aptos-go-sdk/crypto"
)

// Ed25519Signer signs raw transactions with a local key.
type Ed25519Signer struct {
	key     *crypto.Ed25519PrivateKey
	account *aptossdk.Account
}

// NewEd25519Signer parses a 32-byte seed in hex. The AIP-80 "ed25519-priv-"
// prefix and a 0x prefix are accepted.
func NewEd25519Signer(encoded string) (*Ed25519Signer, error) {
	raw := strings.TrimSpace(encoded)
	raw = strings.TrimPrefix(raw, crypto.AIP80Prefixes[crypto.PrivateKeyVariantEd25519])
	seed, err := crypto.ParsePrivateKey(raw, crypto.PrivateKeyVariantEd25519, false)
	if err != nil {
		return nil, fmt.Errorf("decode aptos key: %w", err)
	}
	key := &crypto.Ed25519PrivateKey{}
	if err := key.FromBytes(seed); err != nil {
		return nil, fmt.Errorf("decode aptos key: %w", err)
	}
	account, err := aptossdk.NewAccountFromSigner(key)
	if err != nil {
		return nil, err
	}
	return &Ed25519Signer{key: key, account: account}, nil
}

// Address is the account the key controls.
func (s *Ed25519Signer) Address() aptossdk.AccountAddress {
	return s.account.Address
}

// Sign produces a signed transaction. The sender must be the signer's own
// account.
func (s *Ed25519Signer) Sign(raw *aptossdk.RawTransaction) (*aptossdk.SignedTransaction, error) {
	if raw.Sender != s.Address() {
		return nil, fmt.Errorf("transaction sender %s does not match signer %s", FormatAddress(raw.Sender), FormatAddress(s.Address()))
	}
	return raw.SignedTransaction(s.account)
}

// DecodeSignedTransactionHex decodes a hex BCS signed transaction.
func DecodeSignedTransactionHex(s string) (*aptossdk.SignedTransaction, error) {
	b, err := decodeHex(s)
	if err != nil {
		return nil, err
	}
	tx := &aptossdk.SignedTransaction{}
	if err := bcs.Deserialize(tx, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return tx, nil
}

// VerifySigned checks the signature and that the signing key controls the
// transaction sender.
func VerifySigned(tx *aptossdk.SignedTransaction) error {
	if tx.Transaction == nil || tx.Authenticator == nil {
		return fmt.Errorf("%w: incomplete signed transaction", ErrMalformed)
	}
	sender, err := senderAuthenticator(tx.Authenticator)
	if err != nil {
		return err
	}
	if err := tx.Verify(); err != nil {
		return err
	}
	var signer aptossdk.AccountAddress
	signer.FromAuthKey(sender.PubKey().AuthKey())
	if signer != tx.Transaction.Sender {
		return fmt.Errorf("public key does not control sender %s", FormatAddress(tx.Transaction.Sender))
	}
	return nil
}

func senderAuthenticator(auth *aptossdk.TransactionAuthenticator) (*crypto.AccountAuthenticator, error) {
	var sender *crypto.AccountAuthenticator
	switch a := auth.Auth.(type) {
	case *aptossdk.Ed25519TransactionAuthenticator:
		sender = a.Sender
	case *aptossdk.SingleSenderTransactionAuthenticator:
		sender = a.Sender
	default:
		return nil, fmt.Errorf("%w: unsupported authenticator variant %d", ErrMalformed, auth.Variant)
	}
	if sender == nil || sender.Auth == nil {
		return nil, errors.New("signed transaction has no sender authenticator")
	}
	return sender, nil
}

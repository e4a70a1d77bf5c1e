// Package stellar signs and checks the base64 XDR transaction envelopes the
// backend produces for Stellar settlements. Plain v1, legacy v0 and fee bump
// envelopes are supported.
package stellar

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"
)

var (
	// ErrMalformed is wrapped by every envelope parsing failure.
	ErrMalformed = errors.New("malformed stellar envelope")
	// ErrNotSigner means the account is neither the transaction source nor
	// the fee bump source.
	ErrNotSigner = errors.New("account is not a signer of the transaction")
)

// XDR caps each signature list at 20 entries.
const maxSignatures = 20

// ValidAccountID reports whether s is a well-formed G... address.
func ValidAccountID(s string) bool {
	return strkey.IsValidEd25519PublicKey(s)
}

// Envelope is a decoded transaction envelope.
type Envelope struct {
	xdr.TransactionEnvelope
}

// ParseEnvelope decodes a base64 XDR TransactionEnvelope.
func ParseEnvelope(b64 string) (*Envelope, error) {
	var env xdr.TransactionEnvelope
	if err := xdr.SafeUnmarshalBase64(strings.TrimSpace(b64), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch env.Type {
	case xdr.EnvelopeTypeEnvelopeTypeTx:
		if env.V1 == nil {
			return nil, fmt.Errorf("%w: missing v1 body", ErrMalformed)
		}
	case xdr.EnvelopeTypeEnvelopeTypeTxV0:
		if env.V0 == nil {
			return nil, fmt.Errorf("%w: missing v0 body", ErrMalformed)
		}
	case xdr.EnvelopeTypeEnvelopeTypeTxFeeBump:
		if env.FeeBump == nil || env.FeeBump.Tx.InnerTx.V1 == nil {
			return nil, fmt.Errorf("%w: missing fee bump inner transaction", ErrMalformed)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported envelope type %s", ErrMalformed, env.Type)
	}
	return &Envelope{TransactionEnvelope: env}, nil
}

// Base64 is the form the backend accepts.
func (e *Envelope) Base64() (string, error) {
	return xdr.MarshalBase64(e.TransactionEnvelope)
}

// SourceAccount returns the G... address of the transaction source. For a
// fee bump this is the inner transaction's source. Muxed sources resolve to
// their underlying account.
func (e *Envelope) SourceAccount() (string, error) {
	return accountAddress(e.TransactionEnvelope.SourceAccount())
}

// FeeSource returns the account paying a fee bump, or false for plain
// envelopes.
func (e *Envelope) FeeSource() (string, bool, error) {
	if !e.IsFeeBump() {
		return "", false, nil
	}
	addr, err := accountAddress(e.FeeBumpAccount())
	return addr, true, err
}

// Hash is the hash signers of the outermost transaction sign on the given
// network.
func (e *Envelope) Hash(passphrase string) ([32]byte, error) {
	return network.HashTransactionInEnvelope(e.TransactionEnvelope, passphrase)
}

func accountAddress(m xdr.MuxedAccount) (string, error) {
	id := m.ToAccountId()
	addr, err := id.GetAddress()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return addr, nil
}

// signatureSlot is one signature list together with the account expected to
// fill it and the hash it signs.
type signatureSlot struct {
	account string
	hash    func() ([32]byte, error)
	sigs    *[]xdr.DecoratedSignature
}

// slots lists the signature lists of the envelope. For a fee bump the inner
// transaction comes first: its signatures are part of the outer hash.
func (e *Envelope) slots(passphrase string) ([]signatureSlot, error) {
	source, err := e.SourceAccount()
	if err != nil {
		return nil, err
	}
	switch e.Type {
	case xdr.EnvelopeTypeEnvelopeTypeTx:
		return []signatureSlot{{account: source, hash: func() ([32]byte, error) { return e.Hash(passphrase) }, sigs: &e.V1.Signatures}}, nil
	case xdr.EnvelopeTypeEnvelopeTypeTxV0:
		return []signatureSlot{{account: source, hash: func() ([32]byte, error) { return e.Hash(passphrase) }, sigs: &e.V0.Signatures}}, nil
	}

	inner := e.FeeBump.Tx.InnerTx.V1
	feeSource, _, err := e.FeeSource()
	if err != nil {
		return nil, err
	}
	return []signatureSlot{
		{account: source, hash: func() ([32]byte, error) { return network.HashTransaction(inner.Tx, passphrase) }, sigs: &inner.Signatures},
		{account: feeSource, hash: func() ([32]byte, error) { return e.Hash(passphrase) }, sigs: &e.FeeBump.Signatures},
	}, nil
}

// Sign adds kp's signature to every list kp is responsible for: the source
// account's, the fee source's, or both.
func (e *Envelope) Sign(kp *keypair.Full, passphrase string) error {
	slots, err := e.slots(passphrase)
	if err != nil {
		return err
	}
	signed := false
	for _, slot := range slots {
		if slot.account != kp.Address() {
			continue
		}
		if len(*slot.sigs) >= maxSignatures {
			return fmt.Errorf("envelope already carries %d signatures", len(*slot.sigs))
		}
		hash, err := slot.hash()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		sig, err := kp.SignDecorated(hash[:])
		if err != nil {
			return err
		}
		*slot.sigs = append(*slot.sigs, sig)
		signed = true
	}
	if !signed {
		return fmt.Errorf("%w: %s", ErrNotSigner, kp.Address())
	}
	return nil
}

// VerifySigner checks that every signature list address is responsible for
// carries a valid signature from it.
func (e *Envelope) VerifySigner(address, passphrase string) error {
	kp, err := keypair.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("parse signer address: %w", err)
	}
	slots, err := e.slots(passphrase)
	if err != nil {
		return err
	}
	matched := false
	for _, slot := range slots {
		if slot.account != address {
			continue
		}
		matched = true
		hash, err := slot.hash()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if !hasSignature(kp, hash, *slot.sigs) {
			return fmt.Errorf("no valid signature from %s", address)
		}
	}
	if !matched {
		return fmt.Errorf("%w: %s", ErrNotSigner, address)
	}
	return nil
}

// VerifySource checks the transaction source's signature.
func (e *Envelope) VerifySource(passphrase string) error {
	source, err := e.SourceAccount()
	if err != nil {
		return err
	}
	return e.VerifySigner(source, passphrase)
}

func hasSignature(kp *keypair.FromAddress, hash [32]byte, sigs []xdr.DecoratedSignature) bool {
	hint := kp.Hint()
	for _, sig := range sigs {
		if sig.Hint != xdr.SignatureHint(hint) {
			continue
		}
		if kp.Verify(hash[:], sig.Signature) == nil {
			return true
		}
	}
	return false
}

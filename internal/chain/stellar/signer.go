package stellar

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stellar/go/keypair"
)

// KeypairSigner signs envelopes with a seed held by the gateway.
type KeypairSigner struct {
	kp *keypair.Full
}

// NewKeypairSigner parses an S... seed.
func NewKeypairSigner(seed string) (*KeypairSigner, error) {
	kp, err := keypair.ParseFull(strings.TrimSpace(seed))
	if err != nil {
		return nil, fmt.Errorf("decode stellar seed: %w", err)
	}
	return &KeypairSigner{kp: kp}, nil
}

// Address is the signer's G... account.
func (s *KeypairSigner) Address() string { return s.kp.Address() }

// Seed returns the secret seed.
func (s *KeypairSigner) Seed() string { return s.kp.Seed() }

// SignEnvelope signs a base64 envelope for the given network and returns the
// signed base64 envelope. The signer must be the transaction source or, for a
// fee bump, the fee source.
func (s *KeypairSigner) SignEnvelope(b64, passphrase string) (string, error) {
	if passphrase == "" {
		return "", fmt.Errorf("network passphrase is required")
	}
	env, err := ParseEnvelope(b64)
	if err != nil {
		return "", err
	}
	if err := env.Sign(s.kp, passphrase); err != nil {
		if errors.Is(err, ErrNotSigner) {
			source, _ := env.SourceAccount()
			return "", fmt.Errorf("transaction source %s does not match signer %s: %w", source, s.Address(), err)
		}
		return "", err
	}
	return env.Base64()
}

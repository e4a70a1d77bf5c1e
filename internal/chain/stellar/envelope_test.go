package stellar

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"

	"github.com/splito-labs/settlement_gateway/internal/chain/chaintest"
)

const testPassphrase = chaintest.StellarPassphrase

func testSigner(t *testing.T, fill byte) *KeypairSigner {
	t.Helper()
	signer, err := NewKeypairSigner(chaintest.StellarSeed(t, fill))
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return signer
}

func TestSignEnvelope(t *testing.T) {
	signer := testSigner(t, 7)
	unsigned := chaintest.StellarPayment(t, signer.Address(), 250_000_000)

	signed, err := signer.SignEnvelope(unsigned, testPassphrase)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	env, err := ParseEnvelope(signed)
	if err != nil {
		t.Fatalf("parse signed: %v", err)
	}
	sigs := env.Signatures()
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signature, got %d", len(sigs))
	}
	kp := keypair.MustParseAddress(signer.Address())
	if [4]byte(sigs[0].Hint) != kp.Hint() {
		t.Fatalf("hint should be the last four key bytes")
	}
	if err := env.VerifySource(testPassphrase); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := env.VerifySource(network.PublicNetworkPassphrase); err == nil {
		t.Fatalf("signature must be bound to the network passphrase")
	}

	hash, err := env.Hash(testPassphrase)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := kp.Verify(hash[:], sigs[0].Signature); err != nil {
		t.Fatalf("signature does not cover the transaction hash: %v", err)
	}

	original, _ := ParseEnvelope(unsigned)
	if original.Operations()[0].Body.PaymentOp.Amount != env.Operations()[0].Body.PaymentOp.Amount {
		t.Fatalf("transaction body changed during signing")
	}
}

func TestSignEnvelopeTwiceAppends(t *testing.T) {
	signer := testSigner(t, 9)
	once, err := signer.SignEnvelope(chaintest.StellarPayment(t, signer.Address(), 1), testPassphrase)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	twice, err := signer.SignEnvelope(once, testPassphrase)
	if err != nil {
		t.Fatalf("sign again: %v", err)
	}
	env, err := ParseEnvelope(twice)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n := len(env.Signatures()); n != 2 {
		t.Fatalf("expected 2 signatures, got %d", n)
	}
}

func TestSignV0Envelope(t *testing.T) {
	signer := testSigner(t, 4)
	signed, err := signer.SignEnvelope(chaintest.StellarPaymentV0(t, signer.Address(), 10), testPassphrase)
	if err != nil {
		t.Fatalf("sign v0: %v", err)
	}
	env, err := ParseEnvelope(signed)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.V0 == nil || len(env.V0.Signatures) != 1 {
		t.Fatalf("expected a signed v0 envelope")
	}
	if err := env.VerifySource(testPassphrase); err != nil {
		t.Fatalf("verify v0: %v", err)
	}
}

func TestSignFeeBumpEnvelope(t *testing.T) {
	payer := testSigner(t, 5)
	sponsor := testSigner(t, 6)
	unsigned := chaintest.StellarFeeBump(t, payer.Address(), sponsor.Address(), 10)

	// The payer signs the inner transaction, then the sponsor the fee bump.
	inner, err := payer.SignEnvelope(unsigned, testPassphrase)
	if err != nil {
		t.Fatalf("sign inner: %v", err)
	}
	env, err := ParseEnvelope(inner)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(env.FeeBump.Tx.InnerTx.V1.Signatures) != 1 || len(env.FeeBump.Signatures) != 0 {
		t.Fatalf("payer must only sign the inner transaction")
	}
	if err := env.VerifySigner(payer.Address(), testPassphrase); err != nil {
		t.Fatalf("verify payer: %v", err)
	}
	if err := env.VerifySigner(sponsor.Address(), testPassphrase); err == nil {
		t.Fatalf("sponsor has not signed yet")
	}

	both, err := sponsor.SignEnvelope(inner, testPassphrase)
	if err != nil {
		t.Fatalf("sign fee bump: %v", err)
	}
	env, err = ParseEnvelope(both)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	feeSource, ok, err := env.FeeSource()
	if err != nil || !ok || feeSource != sponsor.Address() {
		t.Fatalf("fee source = %q %v %v", feeSource, ok, err)
	}
	for _, addr := range []string{payer.Address(), sponsor.Address()} {
		if err := env.VerifySigner(addr, testPassphrase); err != nil {
			t.Fatalf("verify %s: %v", addr, err)
		}
	}
	source, err := env.SourceAccount()
	if err != nil || source != payer.Address() {
		t.Fatalf("source should be the inner transaction's, got %q %v", source, err)
	}
}

func TestSignEnvelopeRejectsForeignSource(t *testing.T) {
	signer := testSigner(t, 1)
	other := chaintest.StellarAddress(t, 2)
	_, err := signer.SignEnvelope(chaintest.StellarPayment(t, other, 5), testPassphrase)
	if err == nil || !strings.Contains(err.Error(), "does not match") || !errors.Is(err, ErrNotSigner) {
		t.Fatalf("expected source mismatch, got %v", err)
	}
	if _, err := signer.SignEnvelope(chaintest.StellarPayment(t, signer.Address(), 5), ""); err == nil {
		t.Fatalf("expected missing passphrase error")
	}

	env, err := ParseEnvelope(chaintest.StellarPayment(t, other, 5))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := env.VerifySigner(signer.Address(), testPassphrase); !errors.Is(err, ErrNotSigner) {
		t.Fatalf("expected ErrNotSigner, got %v", err)
	}
}

func TestParseEnvelopeErrors(t *testing.T) {
	valid := chaintest.StellarPayment(t, chaintest.StellarAddress(t, 3), 1)
	raw, _ := base64.StdEncoding.DecodeString(valid)

	cases := map[string]string{
		"not base64":    "%%%",
		"too short":     base64.StdEncoding.EncodeToString([]byte{0, 0, 0, 2}),
		"unknown type":  base64.StdEncoding.EncodeToString(append([]byte{0, 0, 0, 9}, raw[4:]...)),
		"trailing data": base64.StdEncoding.EncodeToString(append(append([]byte{}, raw...), 0, 0, 0, 0)),
		"truncated":     base64.StdEncoding.EncodeToString(raw[:len(raw)-6]),
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseEnvelope(input); !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestValidAccountID(t *testing.T) {
	if !ValidAccountID("GAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAWHF") {
		t.Fatalf("zero account should be valid")
	}
	if ValidAccountID(chaintest.StellarSeed(t, 1)) {
		t.Fatalf("a seed is not an account id")
	}
	if ValidAccountID("GABC") {
		t.Fatalf("short address should be invalid")
	}
}

func TestSignerSeedRoundTrip(t *testing.T) {
	seed := chaintest.StellarSeed(t, 0xab)
	signer := testSigner(t, 0xab)
	if signer.Seed() != seed || !strings.HasPrefix(seed, "S") || !strings.HasPrefix(signer.Address(), "G") {
		t.Fatalf("unexpected keys %s %s", signer.Seed(), signer.Address())
	}
	if _, err := NewKeypairSigner(signer.Address()); err == nil {
		t.Fatalf("an address is not a seed")
	}
}

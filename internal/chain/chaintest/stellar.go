// Package chaintest builds unsigned Stellar and Aptos transactions for tests.
package chaintest

import (
	"bytes"
	"testing"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/xdr"
)

// StellarPassphrase is the test network passphrase.
const StellarPassphrase = "Test SDF Network ; September 2015"

// StellarSeed returns a deterministic S... seed built from fill.
func StellarSeed(t testing.TB, fill byte) string {
	t.Helper()
	var raw [32]byte
	copy(raw[:], bytes.Repeat([]byte{fill}, 32))
	kp, err := keypair.FromRawSeed(raw)
	if err != nil {
		t.Fatalf("stellar seed: %v", err)
	}
	return kp.Seed()
}

// StellarAddress is the G... account of StellarSeed(t, fill).
func StellarAddress(t testing.TB, fill byte) string {
	t.Helper()
	return keypair.MustParseFull(StellarSeed(t, fill)).Address()
}

// stellarSink is the all-zero account every test payment goes to.
const stellarSink = "GAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAWHF"

func payment(source string, stroops int64) xdr.Transaction {
	return xdr.Transaction{
		SourceAccount: xdr.MustMuxedAddress(source),
		Fee:           100,
		SeqNum:        1234567,
		Memo:          xdr.Memo{Type: xdr.MemoTypeMemoNone},
		Operations: []xdr.Operation{{
			Body: xdr.OperationBody{
				Type: xdr.OperationTypePayment,
				PaymentOp: &xdr.PaymentOp{
					Destination: xdr.MustMuxedAddress(stellarSink),
					Asset:       xdr.Asset{Type: xdr.AssetTypeAssetTypeNative},
					Amount:      xdr.Int64(stroops),
				},
			},
		}},
	}
}

func encode(t testing.TB, env xdr.TransactionEnvelope) string {
	t.Helper()
	b64, err := xdr.MarshalBase64(env)
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	return b64
}

// StellarPayment is an unsigned v1 envelope paying stroops from source.
func StellarPayment(t testing.TB, source string, stroops int64) string {
	t.Helper()
	return encode(t, xdr.TransactionEnvelope{
		Type: xdr.EnvelopeTypeEnvelopeTypeTx,
		V1:   &xdr.TransactionV1Envelope{Tx: payment(source, stroops)},
	})
}

// StellarPaymentV0 is the same payment as a legacy v0 envelope.
func StellarPaymentV0(t testing.TB, source string, stroops int64) string {
	t.Helper()
	tx := payment(source, stroops)
	return encode(t, xdr.TransactionEnvelope{
		Type: xdr.EnvelopeTypeEnvelopeTypeTxV0,
		V0: &xdr.TransactionV0Envelope{Tx: xdr.TransactionV0{
			SourceAccountEd25519: tx.SourceAccount.MustEd25519(),
			Fee:                  tx.Fee,
			SeqNum:               tx.SeqNum,
			Memo:                 tx.Memo,
			Operations:           tx.Operations,
		}},
	})
}

// StellarFeeBump wraps a payment from source in a fee bump paid by
// feeSource. Neither transaction is signed.
func StellarFeeBump(t testing.TB, source, feeSource string, stroops int64) string {
	t.Helper()
	return encode(t, xdr.TransactionEnvelope{
		Type: xdr.EnvelopeTypeEnvelopeTypeTxFeeBump,
		FeeBump: &xdr.FeeBumpTransactionEnvelope{Tx: xdr.FeeBumpTransaction{
			FeeSource: xdr.MustMuxedAddress(feeSource),
			Fee:       400,
			InnerTx: xdr.FeeBumpTransactionInnerTx{
				Type: xdr.EnvelopeTypeEnvelopeTypeTx,
				V1:   &xdr.TransactionV1Envelope{Tx: payment(source, stroops)},
			},
		}},
	})
}

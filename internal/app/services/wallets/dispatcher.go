// Package wallets drives the signing flow for a connected wallet. Wallets are
// tagged by chain family when they connect; signing dispatches on that tag.
package wallets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/token"
	"github.com/splito-labs/settlement_gateway/internal/app/domain/wallet"
	"github.com/splito-labs/settlement_gateway/internal/app/metrics"
	"github.com/splito-labs/settlement_gateway/internal/apperr"
	"github.com/splito-labs/settlement_gateway/internal/chain/aptos"
	"github.com/splito-labs/settlement_gateway/internal/chain/stellar"
	"github.com/splito-labs/settlement_gateway/pkg/logger"
)

var flowTransitions = map[wallet.State][]wallet.State{
	wallet.StateNoWallet:       {wallet.StateWalletDetected, wallet.StateFailed},
	wallet.StateWalletDetected: {wallet.StateTypeResolved, wallet.StateFailed},
	wallet.StateTypeResolved:   {wallet.StateSigning, wallet.StateFailed},
	wallet.StateSigning:        {wallet.StateSubmitted, wallet.StateFailed},
}

// Dispatcher opens signing flows.
type Dispatcher struct {
	keyring *Keyring
	log     *logger.Logger
}

// NewDispatcher creates a dispatcher. keyring may be nil when the gateway
// holds no keys.
func NewDispatcher(keyring *Keyring, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("wallets")
	}
	return &Dispatcher{keyring: keyring, log: log}
}

// Keyring returns the gateway-custody signers.
func (d *Dispatcher) Keyring() *Keyring { return d.keyring }

// Flow is one wallet's walk through the signing states.
type Flow struct {
	mu     sync.Mutex
	state  wallet.State
	wallet wallet.Wallet
	chain  token.Chain
	signer Signer
	code   apperr.Code
	log    *logger.Logger
}

// Open starts a flow for w on chain. It fails with wallet_not_connected when
// there is no usable wallet and invalid_request when the wallet's family does
// not match the chain.
func (d *Dispatcher) Open(w wallet.Wallet, chain token.Chain) (*Flow, error) {
	f := &Flow{state: wallet.StateNoWallet, chain: chain, log: d.log}

	if !w.Connected || strings.TrimSpace(w.Address) == "" {
		return f, f.fail(apperr.New(apperr.CodeWalletNotConnected, apperr.Message(apperr.CodeWalletNotConnected)))
	}
	f.advance(wallet.StateWalletDetected)
	f.wallet = w

	if err := w.Validate(); err != nil {
		return f, f.fail(apperr.Wrap(apperr.CodeInvalidRequest, err, "wallet"))
	}
	if w.Kind != chain.Kind {
		return f, f.fail(apperr.New(apperr.CodeInvalidRequest, "%s wallet cannot settle on %s", w.Kind, chain.ID))
	}
	if err := validateAddress(w); err != nil {
		return f, f.fail(err)
	}

	if w.Custody == wallet.CustodyGateway {
		signer, ok := d.keyring.Lookup(w)
		if !ok {
			return f, f.fail(apperr.New(apperr.CodeWalletNotConnected, "no gateway key for %s", w.Address))
		}
		f.signer = signer
	}
	f.advance(wallet.StateTypeResolved)
	return f, nil
}

// State reports the current state.
func (f *Flow) State() wallet.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Code is the failure code once the flow has failed.
func (f *Flow) Code() apperr.Code {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.code
}

// Wallet is the wallet the flow signs with.
func (f *Flow) Wallet() wallet.Wallet { return f.wallet }

// External reports whether the client signs the payload itself.
func (f *Flow) External() bool { return f.signer == nil }

// Sign signs unsigned with the gateway key. External wallets cannot be signed
// here; their payload comes back through AcceptSigned.
func (f *Flow) Sign(ctx context.Context, unsigned string) (string, error) {
	if f.External() {
		return "", apperr.New(apperr.CodeInvalidRequest, "wallet %s signs externally", f.wallet.Address)
	}
	if err := f.enterSigning(); err != nil {
		return "", err
	}

	start := time.Now()
	signed, err := f.signer.Sign(ctx, unsigned, f.chain)
	metrics.RecordSigning(string(f.chain.Kind), time.Since(start), err == nil)
	if err != nil {
		return "", f.fail(err)
	}
	return signed, nil
}

// AwaitExternal moves an external flow into signing while the client signs.
func (f *Flow) AwaitExternal() error {
	if !f.External() {
		return apperr.New(apperr.CodeInvalidRequest, "wallet %s is signed by the gateway", f.wallet.Address)
	}
	return f.enterSigning()
}

// AcceptSigned checks an externally signed payload: it must decode, carry a
// valid signature and come from the flow's wallet.
func (f *Flow) AcceptSigned(signed string) error {
	start := time.Now()
	err := verifySigned(f.wallet, f.chain, signed)
	metrics.RecordSigning(string(f.chain.Kind), time.Since(start), err == nil)
	if err != nil {
		return f.fail(err)
	}
	return nil
}

// Reject records a failure reported by the client's wallet.
func (f *Flow) Reject(message string) error {
	code := ClassifyMessage(message)
	if code == apperr.CodeUnknown && strings.TrimSpace(message) == "" {
		code = apperr.CodeUserRejected
	}
	return f.fail(apperr.New(code, "%s", message))
}

// Submitted marks the signed transaction as handed to the backend.
func (f *Flow) Submitted() {
	f.advance(wallet.StateSubmitted)
}

// Fail records err and moves the flow to failed.
func (f *Flow) Fail(err error) error { return f.fail(err) }

func (f *Flow) enterSigning() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != wallet.StateTypeResolved {
		return apperr.New(apperr.CodeInvalidTransition, "cannot sign from state %s", f.state)
	}
	f.state = wallet.StateSigning
	return nil
}

func (f *Flow) advance(to wallet.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !canAdvance(f.state, to) {
		f.log.Warnf("ignoring wallet flow transition %s -> %s", f.state, to)
		return
	}
	f.state = to
}

func (f *Flow) fail(err error) error {
	code := Classify(err)
	f.mu.Lock()
	f.state = wallet.StateFailed
	f.code = code
	f.mu.Unlock()

	if apperr.CodeOf(err) == code {
		return err
	}
	msg := apperr.Message(code)
	if code == apperr.CodeUnknown {
		msg = "signing failed"
	}
	return apperr.Wrap(code, err, "%s", msg)
}

func canAdvance(from, to wallet.State) bool {
	for _, next := range flowTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func validateAddress(w wallet.Wallet) error {
	switch w.Kind {
	case wallet.KindStellar:
		if !stellar.ValidAccountID(w.Address) {
			return apperr.New(apperr.CodeInvalidRequest, "invalid stellar address %q", w.Address)
		}
	case wallet.KindAptos:
		if _, err := aptos.ParseAddress(w.Address); err != nil {
			return apperr.Wrap(apperr.CodeInvalidRequest, err, "invalid aptos address")
		}
	}
	return nil
}

func verifySigned(w wallet.Wallet, chain token.Chain, signed string) error {
	switch w.Kind {
	case wallet.KindStellar:
		env, err := stellar.ParseEnvelope(signed)
		if err != nil {
			return apperr.Wrap(apperr.CodeMalformedTx, err, "decode signed stellar transaction")
		}
		err = env.VerifySigner(w.Address, chain.NetworkPassphrase)
		if errors.Is(err, stellar.ErrNotSigner) {
			source, _ := env.SourceAccount()
			return apperr.New(apperr.CodeInvalidRequest, "transaction source %s is not the connected wallet", source)
		}
		if err != nil {
			return apperr.Wrap(apperr.CodeMalformedTx, err, "verify stellar signature")
		}
	case wallet.KindAptos:
		tx, err := aptos.DecodeSignedTransactionHex(signed)
		if err != nil {
			return apperr.Wrap(apperr.CodeMalformedTx, err, "decode signed aptos transaction")
		}
		addr, err := aptos.ParseAddress(w.Address)
		if err != nil {
			return apperr.Wrap(apperr.CodeInvalidRequest, err, "wallet address")
		}
		if tx.Transaction.Sender != addr {
			return apperr.New(apperr.CodeInvalidRequest, "transaction sender %s is not the connected wallet", aptos.FormatAddress(tx.Transaction.Sender))
		}
		if err := aptos.VerifySigned(tx); err != nil {
			return apperr.Wrap(apperr.CodeMalformedTx, err, "verify aptos signature")
		}
	default:
		return fmt.Errorf("unsupported wallet kind %q", w.Kind)
	}
	return nil
}

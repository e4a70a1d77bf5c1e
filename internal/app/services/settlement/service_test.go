package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/balance"
	domain "github.com/splito-labs/settlement_gateway/internal/app/domain/settlement"
	"github.com/splito-labs/settlement_gateway/internal/app/domain/wallet"
	"github.com/splito-labs/settlement_gateway/internal/app/events"
	"github.com/splito-labs/settlement_gateway/internal/app/services/balances"
	"github.com/splito-labs/settlement_gateway/internal/app/services/pricing"
	"github.com/splito-labs/settlement_gateway/internal/app/services/tokens"
	"github.com/splito-labs/settlement_gateway/internal/app/services/wallets"
	"github.com/splito-labs/settlement_gateway/internal/app/storage/memory"
	"github.com/splito-labs/settlement_gateway/internal/apperr"
	"github.com/splito-labs/settlement_gateway/internal/chain/aptos"
	"github.com/splito-labs/settlement_gateway/internal/chain/chaintest"
	"github.com/splito-labs/settlement_gateway/internal/chain/stellar"
	"github.com/splito-labs/settlement_gateway/internal/config"
	"github.com/splito-labs/settlement_gateway/internal/splito"
	"github.com/splito-labs/settlement_gateway/pkg/logger"
)

const aptosKey = "0x9bf49a6a0755f953811fce125f2683d50429c3bb49e074147e0089a52eae155f"

type fakeBackend struct {
	mu        sync.Mutex
	unsigned  string
	createErr error
	submitted []splito.SubmitSettleRequest
	created   []splito.CreateSettleRequest
	submitRes splito.SettleStatus
	status    splito.SettleStatus
	statusErr error
}

func (b *fakeBackend) CreateSettleTransaction(_ context.Context, req splito.CreateSettleRequest) (splito.CreateSettleResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.created = append(b.created, req)
	if b.createErr != nil {
		return splito.CreateSettleResponse{}, b.createErr
	}
	return splito.CreateSettleResponse{ID: "remote-1", SerializedTx: b.unsigned}, nil
}

func (b *fakeBackend) SubmitSettleTransaction(_ context.Context, req splito.SubmitSettleRequest) (splito.SettleStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitted = append(b.submitted, req)
	res := b.submitRes
	if res.Status == "" {
		res = splito.SettleStatus{ID: req.ID, Status: "pending", TxHash: "0xhash"}
	}
	return res, nil
}

func (b *fakeBackend) SettleTransactionStatus(_ context.Context, _ string) (splito.SettleStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status, b.statusErr
}

type fakeBalances struct {
	friends     []balance.Friend
	invalidated [][]string
}

func (f *fakeBalances) Plan(_ context.Context, _ string, exclude []string) (balances.Plan, error) {
	return balances.SettleAllPlan(f.friends, exclude), nil
}

func (f *fakeBalances) Friend(_ context.Context, _ string, friendID string) (balance.Friend, bool, error) {
	for _, fr := range f.friends {
		if fr.ID == friendID {
			return fr, true, nil
		}
	}
	return balance.Friend{}, false, nil
}

func (f *fakeBalances) Invalidate(_ context.Context, userIDs, groupIDs []string) {
	f.invalidated = append(f.invalidated, append(append([]string{}, userIDs...), groupIDs...))
}

type fixture struct {
	svc      *Service
	backend  *fakeBackend
	balances *fakeBalances
	store    *memory.Store
	hub      *events.Hub
	wallet   wallet.Wallet
	signer   *wallets.AptosSigner
}

func usd(v string) balance.CurrencyAmount {
	return balance.CurrencyAmount{Currency: "USD", Amount: decimal.RequireFromString(v)}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := config.LoadCatalog("")
	require.NoError(t, err)

	keyring, err := wallets.NewKeyring(nil, []string{aptosKey})
	require.NoError(t, err)
	signer, err := wallets.NewAptosSigner(aptosKey)
	require.NoError(t, err)
	sender, err := aptos.ParseAddress(signer.Address())
	require.NoError(t, err)

	backend := &fakeBackend{unsigned: chaintest.AptosTransfer(t, sender, 2)}
	bal := &fakeBalances{friends: []balance.Friend{
		{ID: "f1", Balances: []balance.CurrencyAmount{usd("50")}},
		{ID: "f2", Balances: []balance.CurrencyAmount{usd("10"), {Currency: "EUR", Amount: decimal.NewFromInt(-4)}}},
	}}
	conv := pricing.NewConverter(pricing.Options{
		Primary: pricing.FetcherFunc(func(context.Context, string, string) (decimal.Decimal, error) {
			return decimal.NewFromInt(2), nil
		}),
		Logger: logger.Discard(),
	})
	store := memory.New()
	hub := events.NewHub(logger.Discard())

	svc := New(backend, bal, conv, tokens.NewResolver(cat), wallets.NewDispatcher(keyring, logger.Discard()), store, hub, logger.Discard())
	return &fixture{
		svc:      svc,
		backend:  backend,
		balances: bal,
		store:    store,
		hub:      hub,
		signer:   signer,
		wallet: wallet.Wallet{
			Kind:      wallet.KindAptos,
			Address:   signer.Address(),
			Custody:   wallet.CustodyGateway,
			Connected: true,
		},
	}
}

func TestSettleAllGatewaySigned(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.svc.SettleAll(ctx, AllRequest{
		UserID:  "me",
		TokenID: "aptos",
		ChainID: "aptos-testnet",
		Wallet:  fx.wallet,
		Exclude: []string{"f2"},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusSubmitted, res.Settlement.Status)
	assert.Equal(t, "0xhash", res.Settlement.TxHash)
	assert.True(t, res.Settlement.Amount.Equal(decimal.NewFromInt(25)), "50 USD at 2 USD/token")
	require.NotNil(t, res.Plan)
	assert.Equal(t, []string{"f2"}, res.Plan.Excluded)

	require.Len(t, fx.backend.created, 1)
	assert.Equal(t, "aptos", fx.backend.created[0].SelectedTokenID)
	assert.Empty(t, fx.backend.created[0].SettleWithID)
	require.Len(t, fx.backend.submitted, 1)

	signed, err := aptos.DecodeSignedTransactionHex(fx.backend.submitted[0].SignedTx)
	require.NoError(t, err)
	require.NoError(t, aptos.VerifySigned(signed))

	pending, err := fx.store.ListSubmittedSettlements(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestSettleOneFiltersCurrencies(t *testing.T) {
	fx := newFixture(t)

	res, err := fx.svc.SettleOne(context.Background(), OneRequest{
		UserID:     "me",
		FriendID:   "f2",
		TokenID:    "aptos",
		ChainID:    "aptos-testnet",
		Wallet:     fx.wallet,
		Currencies: []string{"usd"},
	})
	require.NoError(t, err)
	assert.Equal(t, "f2", fx.backend.created[0].SettleWithID)
	require.Len(t, res.Conversion.Lines, 1, "credits are never paid")
	assert.True(t, res.Settlement.Amount.Equal(decimal.NewFromInt(5)))
}

func TestSettleNothingOwed(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.SettleOne(context.Background(), OneRequest{
		UserID: "me", FriendID: "f2", TokenID: "aptos", ChainID: "aptos-testnet",
		Wallet: fx.wallet, Currencies: []string{"EUR"},
	})
	assert.Equal(t, apperr.CodeNothingToSettle, apperr.CodeOf(err))

	_, err = fx.svc.SettleAll(context.Background(), AllRequest{
		UserID: "me", TokenID: "aptos", ChainID: "aptos-testnet",
		Wallet: fx.wallet, Exclude: []string{"f1", "f2"},
	})
	assert.Equal(t, apperr.CodeNothingToSettle, apperr.CodeOf(err))
	assert.Empty(t, fx.backend.created)
}

func TestSettleRejectsBadSelection(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.SettleAll(ctx, AllRequest{UserID: "me", TokenID: "usd-coin", ChainID: "aptos-testnet", Wallet: fx.wallet})
	assert.Equal(t, apperr.CodeInvalidToken, apperr.CodeOf(err))

	_, err = fx.svc.SettleAll(ctx, AllRequest{UserID: "me", TokenID: "aptos", ChainID: "aptos-testnet"})
	assert.Equal(t, apperr.CodeWalletNotConnected, apperr.CodeOf(err))
}

func TestSettleBackendCreateFailureIsRecorded(t *testing.T) {
	fx := newFixture(t)
	fx.backend.createErr = apperr.New(apperr.CodeInsufficientFunds, "balance too low")

	res, err := fx.svc.SettleAll(context.Background(), AllRequest{
		UserID: "me", TokenID: "aptos", ChainID: "aptos-testnet", Wallet: fx.wallet,
	})
	require.Error(t, err)
	assert.Equal(t, domain.StatusFailed, res.Settlement.Status)
	assert.Equal(t, string(apperr.CodeInsufficientFunds), res.Settlement.ErrorCode)
	assert.Empty(t, fx.backend.submitted)
}

func TestImmediateConfirmationInvalidates(t *testing.T) {
	fx := newFixture(t)
	fx.backend.submitRes = splito.SettleStatus{ID: "remote-1", Status: "confirmed", TxHash: "0xdone"}
	ch, stop := fx.hub.Subscribe("me")
	defer stop()

	res, err := fx.svc.SettleOne(context.Background(), OneRequest{
		UserID: "me", GroupID: "g1", FriendID: "f1", TokenID: "aptos", ChainID: "aptos-testnet", Wallet: fx.wallet,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, res.Settlement.Status)
	assert.Equal(t, [][]string{{"me", "f1", "g1"}}, fx.balances.invalidated)

	select {
	case e := <-ch:
		assert.Equal(t, events.TypeSettlementConfirmed, e.Type)
		assert.Equal(t, res.Settlement.ID, e.SettlementID)
	case <-time.After(time.Second):
		t.Fatal("no invalidation event")
	}
}

func TestSettleAllInvalidatesPaidFriends(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	ch, stop := fx.hub.Subscribe("f2")
	defer stop()

	res, err := fx.svc.SettleAll(ctx, AllRequest{
		UserID: "me", TokenID: "aptos", ChainID: "aptos-testnet", Wallet: fx.wallet,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"f1", "f2"}, res.Settlement.Counterparties)
	assert.Empty(t, fx.balances.invalidated)

	stored, err := fx.store.GetSettlement(ctx, res.Settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"f1", "f2"}, stored.Counterparties)

	resolved, err := fx.svc.Resolve(ctx, res.Settlement.ID, true, "0xdone", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, resolved.Status)
	assert.Equal(t, [][]string{{"me", "f1", "f2"}}, fx.balances.invalidated)

	select {
	case e := <-ch:
		assert.Equal(t, events.TypeSettlementConfirmed, e.Type)
		assert.Contains(t, e.UserIDs, "f2")
	case <-time.After(time.Second):
		t.Fatal("paid friend was not notified")
	}
}

func TestExternalStellarSigning(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	client, err := stellar.NewKeypairSigner(chaintest.StellarSeed(t, 9))
	require.NoError(t, err)
	fx.backend.unsigned = chaintest.StellarPayment(t, client.Address(), 10_000_000)

	res, err := fx.svc.SettleOne(ctx, OneRequest{
		UserID: "me", FriendID: "f1", TokenID: "stellar", ChainID: "stellar-testnet",
		Wallet: wallet.Wallet{Kind: wallet.KindStellar, Address: client.Address(), Connected: true},
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusSigning, res.Settlement.Status)
	require.Equal(t, fx.backend.unsigned, res.Settlement.UnsignedTx)
	assert.Empty(t, fx.backend.submitted)

	_, err = fx.svc.SubmitSigned(ctx, "someone-else", res.Settlement.ID, "", "")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	signed, err := client.SignEnvelope(res.Settlement.UnsignedTx, "Test SDF Network ; September 2015")
	require.NoError(t, err)
	rec, err := fx.svc.SubmitSigned(ctx, "me", res.Settlement.ID, signed, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmitted, rec.Status)
	assert.Empty(t, rec.UnsignedTx)
	require.Len(t, fx.backend.submitted, 1)
	assert.Equal(t, signed, fx.backend.submitted[0].SignedTx)

	_, err = fx.svc.SubmitSigned(ctx, "me", res.Settlement.ID, signed, "")
	assert.Equal(t, apperr.CodeInvalidTransition, apperr.CodeOf(err))
}

func TestExternalRejection(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	client := chaintest.StellarAddress(t, 4)
	fx.backend.unsigned = chaintest.StellarPayment(t, client, 10_000_000)

	res, err := fx.svc.SettleAll(ctx, AllRequest{
		UserID: "me", TokenID: "stellar", ChainID: "stellar-testnet",
		Wallet: wallet.Wallet{Kind: wallet.KindStellar, Address: client, Connected: true},
	})
	require.NoError(t, err)

	rec, err := fx.svc.SubmitSigned(ctx, "me", res.Settlement.ID, "", "User declined the request")
	assert.Equal(t, apperr.CodeUserRejected, apperr.CodeOf(err))
	assert.Equal(t, domain.StatusFailed, rec.Status)
	assert.Equal(t, string(apperr.CodeUserRejected), rec.ErrorCode)
}

func TestResolveIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	res, err := fx.svc.SettleAll(ctx, AllRequest{UserID: "me", TokenID: "aptos", ChainID: "aptos-testnet", Wallet: fx.wallet})
	require.NoError(t, err)

	first, err := fx.svc.Resolve(ctx, res.Settlement.ID, false, "", "tx_insufficient_balance: insufficient funds")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, first.Status)
	assert.Equal(t, string(apperr.CodeInsufficientFunds), first.ErrorCode)

	second, err := fx.svc.Resolve(ctx, res.Settlement.ID, true, "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, second.Status)
	assert.Len(t, fx.balances.invalidated, 1)
}

func TestPollerResolvesSubmitted(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	res, err := fx.svc.SettleAll(ctx, AllRequest{UserID: "me", TokenID: "aptos", ChainID: "aptos-testnet", Wallet: fx.wallet})
	require.NoError(t, err)

	poller := NewPoller(fx.svc, nil, time.Millisecond, logger.Discard())

	fx.backend.status = splito.SettleStatus{Status: "pending"}
	assert.Equal(t, 0, poller.Tick(ctx))
	assert.Equal(t, 1, poller.Pending())

	time.Sleep(5 * time.Millisecond)
	fx.backend.status = splito.SettleStatus{Status: "confirmed", TxHash: "0xfinal"}
	assert.Equal(t, 1, poller.Tick(ctx))
	assert.Equal(t, 0, poller.Pending())

	rec, err := fx.svc.Get(ctx, "me", res.Settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, rec.Status)
	assert.Equal(t, "0xfinal", rec.TxHash)
}

func TestPollerBacksOffOnErrors(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, err := fx.svc.SettleAll(ctx, AllRequest{UserID: "me", TokenID: "aptos", ChainID: "aptos-testnet", Wallet: fx.wallet})
	require.NoError(t, err)

	fx.backend.statusErr = errors.New("connection reset")
	poller := NewPoller(fx.svc, nil, time.Hour, logger.Discard())
	assert.Equal(t, 0, poller.Tick(ctx))
	assert.Equal(t, 0, poller.Tick(ctx), "second tick is inside the backoff window")
	assert.Equal(t, 1, poller.Pending())
}

func TestBackendResolverTimeout(t *testing.T) {
	fx := newFixture(t)
	r := NewBackendResolver(fx.svc, time.Minute)
	r.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	out, err := r.Resolve(context.Background(), domain.Settlement{ID: "x", RemoteID: "remote-1", UpdatedAt: time.Now()})
	require.NoError(t, err)
	assert.True(t, out.Done)
	assert.False(t, out.Success)
}

func TestPollerLifecycle(t *testing.T) {
	fx := newFixture(t)
	poller := NewPoller(fx.svc, nil, 10*time.Millisecond, logger.Discard())
	require.Equal(t, "settlement-poller", poller.Name())
	require.NoError(t, poller.Start(context.Background()))
	require.NoError(t, poller.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, poller.Stop(ctx))
	require.NoError(t, poller.Stop(ctx))
}

// Package settlement drives a settlement from debt selection to chain
// confirmation: convert, create on the backend, sign, submit, then poll
// until the backend reports a final status.
package settlement

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/balance"
	domain "github.com/splito-labs/settlement_gateway/internal/app/domain/settlement"
	"github.com/splito-labs/settlement_gateway/internal/app/domain/wallet"
	"github.com/splito-labs/settlement_gateway/internal/app/events"
	"github.com/splito-labs/settlement_gateway/internal/app/metrics"
	"github.com/splito-labs/settlement_gateway/internal/app/services/balances"
	"github.com/splito-labs/settlement_gateway/internal/app/services/tokens"
	"github.com/splito-labs/settlement_gateway/internal/app/services/wallets"
	"github.com/splito-labs/settlement_gateway/internal/app/storage"
	"github.com/splito-labs/settlement_gateway/internal/apperr"
	"github.com/splito-labs/settlement_gateway/internal/splito"
	"github.com/splito-labs/settlement_gateway/pkg/logger"
)

// Backend is the settle-transaction part of the Splito client.
type Backend interface {
	CreateSettleTransaction(ctx context.Context, req splito.CreateSettleRequest) (splito.CreateSettleResponse, error)
	SubmitSettleTransaction(ctx context.Context, req splito.SubmitSettleRequest) (splito.SettleStatus, error)
	SettleTransactionStatus(ctx context.Context, id string) (splito.SettleStatus, error)
}

// Balances supplies debts and drops cached views once a settlement lands.
type Balances interface {
	Plan(ctx context.Context, userID string, exclude []string) (balances.Plan, error)
	Friend(ctx context.Context, userID, friendID string) (balance.Friend, bool, error)
	Invalidate(ctx context.Context, userIDs, groupIDs []string)
}

// Converter turns debts into an advisory token amount.
type Converter interface {
	Convert(ctx context.Context, sel tokens.Selection, debts []balance.Debt) (domain.Conversion, error)
}

// AllRequest starts a settle-all run.
type AllRequest struct {
	UserID  string
	GroupID string
	TokenID string
	ChainID string
	Wallet  wallet.Wallet
	Exclude []string
}

// OneRequest settles with one friend. Currencies narrows the debts paid;
// empty means every currency owed to the friend.
type OneRequest struct {
	UserID     string
	GroupID    string
	FriendID   string
	TokenID    string
	ChainID    string
	Wallet     wallet.Wallet
	Currencies []string
}

// Result is what a settlement call hands back. When the wallet signs
// externally, Settlement.Status is signing and Settlement.UnsignedTx holds
// the payload for the client.
type Result struct {
	Settlement domain.Settlement `json:"settlement"`
	Conversion domain.Conversion `json:"conversion"`
	Plan       *balances.Plan    `json:"plan,omitempty"`
}

// Service orchestrates settlements.
type Service struct {
	backend    Backend
	balances   Balances
	converter  Converter
	resolver   *tokens.Resolver
	dispatcher *wallets.Dispatcher
	store      storage.SettlementStore
	publisher  events.Publisher
	log        *logger.Logger
}

// New creates a settlement service. publisher may be nil.
func New(backend Backend, bal Balances, conv Converter, resolver *tokens.Resolver, dispatcher *wallets.Dispatcher,
	store storage.SettlementStore, publisher events.Publisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("settlement")
	}
	if dispatcher == nil {
		dispatcher = wallets.NewDispatcher(nil, log)
	}
	return &Service{
		backend:    backend,
		balances:   bal,
		converter:  conv,
		resolver:   resolver,
		dispatcher: dispatcher,
		store:      store,
		publisher:  publisher,
		log:        log,
	}
}

// SettleAll pays every positive balance the caller has across friends not in
// Exclude, as one transaction.
func (s *Service) SettleAll(ctx context.Context, req AllRequest) (Result, error) {
	sel, flow, err := s.prepare(req.UserID, req.TokenID, req.ChainID, req.Wallet)
	if err != nil {
		return Result{}, err
	}
	plan, err := s.balances.Plan(ctx, req.UserID, req.Exclude)
	if err != nil {
		return Result{}, err
	}
	if plan.Empty() {
		return Result{}, apperr.New(apperr.CodeNothingToSettle, apperr.Message(apperr.CodeNothingToSettle))
	}

	paid := make([]string, 0, len(plan.Friends))
	for _, f := range plan.Friends {
		paid = append(paid, f.FriendID)
	}
	res, err := s.run(ctx, flow, sel, domain.Settlement{
		UserID:         req.UserID,
		GroupID:        req.GroupID,
		Kind:           domain.KindAll,
		Counterparties: paid,
	}, plan.Remaining)
	res.Plan = &plan
	return res, err
}

// SettleOne pays what the caller owes one friend.
func (s *Service) SettleOne(ctx context.Context, req OneRequest) (Result, error) {
	if strings.TrimSpace(req.FriendID) == "" {
		return Result{}, apperr.New(apperr.CodeInvalidRequest, "friend id is required")
	}
	sel, flow, err := s.prepare(req.UserID, req.TokenID, req.ChainID, req.Wallet)
	if err != nil {
		return Result{}, err
	}
	friend, ok, err := s.balances.Friend(ctx, req.UserID, req.FriendID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, apperr.New(apperr.CodeNotFound, "friend %s not found", req.FriendID)
	}

	debts := filterCurrencies(balances.FriendDebts(friend), req.Currencies)
	if len(debts) == 0 {
		return Result{}, apperr.New(apperr.CodeNothingToSettle, apperr.Message(apperr.CodeNothingToSettle))
	}

	return s.run(ctx, flow, sel, domain.Settlement{
		UserID:         req.UserID,
		GroupID:        req.GroupID,
		FriendID:       req.FriendID,
		Kind:           domain.KindOne,
		Counterparties: []string{req.FriendID},
	}, debts)
}

// SubmitSigned completes an externally signed settlement. A non-empty
// rejection records the wallet's refusal instead.
func (s *Service) SubmitSigned(ctx context.Context, userID, id, signed, rejection string) (domain.Settlement, error) {
	rec, err := s.Get(ctx, userID, id)
	if err != nil {
		return domain.Settlement{}, err
	}
	if rec.Status != domain.StatusSigning {
		return domain.Settlement{}, apperr.New(apperr.CodeInvalidTransition, "settlement %s is %s, not awaiting a signature", rec.ID, rec.Status)
	}
	chain, ok := s.resolver.Chain(rec.ChainID)
	if !ok {
		return domain.Settlement{}, apperr.New(apperr.CodeInvalidToken, "chain %s is no longer configured", rec.ChainID)
	}

	flow, err := s.dispatcher.Open(wallet.Wallet{
		Kind:      chain.Kind,
		Address:   rec.Address,
		Custody:   wallet.CustodyExternal,
		Connected: true,
	}, chain)
	if err != nil {
		return domain.Settlement{}, err
	}
	if err := flow.AwaitExternal(); err != nil {
		return domain.Settlement{}, err
	}

	if strings.TrimSpace(rejection) != "" || strings.TrimSpace(signed) == "" {
		if rejection == "" {
			rejection = "signing was cancelled without a signed transaction"
		}
		cause := flow.Reject(rejection)
		return s.markFailed(ctx, rec, domain.StatusSigning, cause), cause
	}
	if err := flow.AcceptSigned(signed); err != nil {
		return s.markFailed(ctx, rec, domain.StatusSigning, err), err
	}
	return s.submit(ctx, flow, rec, signed)
}

// Get returns one of the caller's settlements. Other users' records are
// reported as not found.
func (s *Service) Get(ctx context.Context, userID, id string) (domain.Settlement, error) {
	rec, err := s.store.GetSettlement(ctx, id)
	if err != nil {
		return domain.Settlement{}, err
	}
	if userID != "" && rec.UserID != userID {
		return domain.Settlement{}, storage.ErrNotFound
	}
	return rec, nil
}

// List returns the caller's most recent settlements.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]domain.Settlement, error) {
	return s.store.ListSettlements(ctx, userID, limit)
}

// Resolve applies a final backend status to a submitted settlement. It is
// idempotent: a settlement that already left submitted is returned as is.
func (s *Service) Resolve(ctx context.Context, id string, success bool, txHash, message string) (domain.Settlement, error) {
	rec, err := s.store.GetSettlement(ctx, id)
	if err != nil {
		return domain.Settlement{}, err
	}
	if rec.Status != domain.StatusSubmitted {
		return rec, nil
	}

	submittedAt := rec.UpdatedAt
	if txHash != "" {
		rec.TxHash = txHash
	}
	eventType := events.TypeSettlementConfirmed
	if success {
		rec.Status = domain.StatusConfirmed
		rec.ErrorCode = ""
		rec.Message = ""
	} else {
		rec.Status = domain.StatusFailed
		code := wallets.ClassifyMessage(message)
		if code == apperr.CodeUnknown {
			code = apperr.CodeUpstream
		}
		rec.ErrorCode = string(code)
		rec.Message = message
		eventType = events.TypeSettlementFailed
	}

	updated, err := s.store.UpdateSettlement(ctx, rec, domain.StatusSubmitted)
	if errors.Is(err, storage.ErrStaleStatus) {
		return s.store.GetSettlement(ctx, id)
	}
	if err != nil {
		return domain.Settlement{}, err
	}

	metrics.RecordSettlement(string(updated.Kind), string(updated.Status))
	metrics.RecordConfirmation(time.Since(submittedAt))
	s.invalidate(ctx, updated, eventType)
	s.log.WithField("settlement", updated.ID).WithField("status", updated.Status).Info("settlement resolved")
	return updated, nil
}

// ListSubmitted returns settlements waiting for confirmation.
func (s *Service) ListSubmitted(ctx context.Context) ([]domain.Settlement, error) {
	return s.store.ListSubmittedSettlements(ctx)
}

// Status asks the backend about a submitted settlement using the service
// credentials.
func (s *Service) Status(ctx context.Context, rec domain.Settlement) (splito.SettleStatus, error) {
	if rec.RemoteID == "" {
		return splito.SettleStatus{}, apperr.New(apperr.CodeInternal, "settlement %s has no backend id", rec.ID)
	}
	return s.backend.SettleTransactionStatus(ctx, rec.RemoteID)
}

func (s *Service) prepare(userID, tokenID, chainID string, w wallet.Wallet) (tokens.Selection, *wallets.Flow, error) {
	if strings.TrimSpace(userID) == "" {
		return tokens.Selection{}, nil, apperr.New(apperr.CodeUnauthenticated, "user is required")
	}
	sel, err := s.resolver.Resolve(tokenID, chainID)
	if err != nil {
		return tokens.Selection{}, nil, err
	}
	flow, err := s.dispatcher.Open(w, sel.Chain)
	if err != nil {
		return tokens.Selection{}, nil, err
	}
	return sel, flow, nil
}

func (s *Service) run(ctx context.Context, flow *wallets.Flow, sel tokens.Selection, rec domain.Settlement, debts []balance.Debt) (Result, error) {
	conv, err := s.converter.Convert(ctx, sel, debts)
	if err != nil {
		return Result{}, err
	}

	rec.TokenID = sel.Token.ID
	rec.ChainID = sel.Chain.ID
	rec.Address = flow.Wallet().Address
	rec.Amount = conv.Total
	rec.Breakdown = conv.Lines
	rec.Status = domain.StatusPending

	rec, err = s.store.CreateSettlement(ctx, rec)
	if err != nil {
		return Result{}, err
	}
	res := Result{Settlement: rec, Conversion: conv}
	log := s.log.WithField("settlement", rec.ID).WithField("chain", rec.ChainID)

	created, err := s.backend.CreateSettleTransaction(ctx, splito.CreateSettleRequest{
		GroupID:         rec.GroupID,
		Address:         rec.Address,
		SettleWithID:    rec.FriendID,
		SelectedTokenID: rec.TokenID,
		SelectedChainID: rec.ChainID,
		Amount:          rec.Amount,
	})
	if err != nil {
		log.WithError(err).Warn("create settle transaction failed")
		res.Settlement = s.markFailed(ctx, rec, domain.StatusPending, err)
		return res, err
	}
	if strings.TrimSpace(created.SerializedTx) == "" {
		err := apperr.New(apperr.CodeMalformedTx, "backend returned an empty transaction")
		res.Settlement = s.markFailed(ctx, rec, domain.StatusPending, flow.Fail(err))
		return res, err
	}

	rec.RemoteID = created.ID
	rec.UnsignedTx = created.SerializedTx
	if created.Amount.IsPositive() {
		rec.Amount = created.Amount
	}
	rec.Status = domain.StatusSigning
	rec, err = s.store.UpdateSettlement(ctx, rec, domain.StatusPending)
	if err != nil {
		return res, err
	}
	res.Settlement = rec

	if flow.External() {
		if err := flow.AwaitExternal(); err != nil {
			return res, err
		}
		log.Info("settlement awaiting external signature")
		return res, nil
	}

	signed, err := flow.Sign(ctx, rec.UnsignedTx)
	if err != nil {
		log.WithError(err).Warn("gateway signing failed")
		res.Settlement = s.markFailed(ctx, rec, domain.StatusSigning, err)
		return res, err
	}
	res.Settlement, err = s.submit(ctx, flow, rec, signed)
	return res, err
}

func (s *Service) submit(ctx context.Context, flow *wallets.Flow, rec domain.Settlement, signed string) (domain.Settlement, error) {
	status, err := s.backend.SubmitSettleTransaction(ctx, splito.SubmitSettleRequest{
		ID:              rec.RemoteID,
		GroupID:         rec.GroupID,
		Address:         rec.Address,
		SettleWithID:    rec.FriendID,
		SelectedChainID: rec.ChainID,
		SignedTx:        signed,
	})
	if err != nil {
		return s.markFailed(ctx, rec, domain.StatusSigning, flow.Fail(err)), err
	}
	flow.Submitted()

	rec.Status = domain.StatusSubmitted
	rec.UnsignedTx = ""
	rec.TxHash = status.TxHash
	rec, err = s.store.UpdateSettlement(ctx, rec, domain.StatusSigning)
	if err != nil {
		return domain.Settlement{}, err
	}
	metrics.RecordSettlement(string(rec.Kind), string(rec.Status))

	switch strings.ToLower(status.Status) {
	case "confirmed", "success":
		return s.Resolve(ctx, rec.ID, true, status.TxHash, "")
	case "failed":
		return s.Resolve(ctx, rec.ID, false, status.TxHash, status.Error)
	}
	return rec, nil
}

// markFailed records cause on rec. Store errors are logged; the caller
// returns cause either way.
func (s *Service) markFailed(ctx context.Context, rec domain.Settlement, from domain.Status, cause error) domain.Settlement {
	code := wallets.Classify(cause)
	rec.Status = domain.StatusFailed
	rec.ErrorCode = string(code)
	rec.Message = cause.Error()
	rec.UnsignedTx = ""

	updated, err := s.store.UpdateSettlement(ctx, rec, from)
	if err != nil {
		s.log.WithError(err).WithField("settlement", rec.ID).Error("record settlement failure")
		return rec
	}
	metrics.RecordSettlement(string(updated.Kind), string(updated.Status))
	return updated
}

func (s *Service) invalidate(ctx context.Context, rec domain.Settlement, t events.Type) {
	users := []string{rec.UserID}
	seen := map[string]struct{}{rec.UserID: {}}
	for _, id := range append([]string{rec.FriendID}, rec.Counterparties...) {
		if _, dup := seen[id]; id == "" || dup {
			continue
		}
		seen[id] = struct{}{}
		users = append(users, id)
	}
	var groups []string
	if rec.GroupID != "" {
		groups = append(groups, rec.GroupID)
	}
	s.balances.Invalidate(ctx, users, groups)

	if s.publisher != nil {
		s.publisher.Publish(ctx, events.Event{
			Type:         t,
			SettlementID: rec.ID,
			UserIDs:      users,
			GroupIDs:     groups,
		})
	}
}

func filterCurrencies(debts []balance.Debt, currencies []string) []balance.Debt {
	if len(currencies) == 0 {
		return debts
	}
	want := make(map[string]struct{}, len(currencies))
	for _, c := range currencies {
		want[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	var out []balance.Debt
	for _, d := range debts {
		if _, ok := want[d.Currency]; ok {
			out = append(out, d)
		}
	}
	return out
}

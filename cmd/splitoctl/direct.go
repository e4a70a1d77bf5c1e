package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/splito-labs/settlement_gateway/internal/app"
	"github.com/splito-labs/settlement_gateway/internal/app/domain/balance"
	domain "github.com/splito-labs/settlement_gateway/internal/app/domain/settlement"
	"github.com/splito-labs/settlement_gateway/internal/app/domain/token"
	"github.com/splito-labs/settlement_gateway/internal/app/domain/wallet"
	"github.com/splito-labs/settlement_gateway/internal/app/runtime"
	settlementsvc "github.com/splito-labs/settlement_gateway/internal/app/services/settlement"
	"github.com/splito-labs/settlement_gateway/internal/config"
	"github.com/splito-labs/settlement_gateway/internal/splito"
	"github.com/splito-labs/settlement_gateway/pkg/logger"
)

// directGateway runs the services in process against the backend. Wallets
// whose keys are listed in the signing config are signed here; any other
// address is treated as externally signed.
type directGateway struct {
	app     *app.Application
	session string
	userID  string
	close   func()
}

func newDirectGateway(ctx context.Context, cfg *config.Config, session string, log *logger.Logger) (*directGateway, error) {
	if strings.TrimSpace(session) == "" {
		return nil, fmt.Errorf("--session is required")
	}
	stores, closeStores, err := runtime.OpenStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	application, err := app.New(cfg, stores, log)
	if err != nil {
		closeStores()
		return nil, err
	}
	user, err := application.Backend.Me(splito.WithSession(ctx, session))
	if err != nil {
		closeStores()
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	return &directGateway{app: application, session: session, userID: user.ID, close: closeStores}, nil
}

// Close releases the stores.
func (g *directGateway) Close() error {
	if g.close != nil {
		g.close()
	}
	return nil
}

func (g *directGateway) ctx(ctx context.Context) context.Context {
	return splito.WithSession(ctx, g.session)
}

func (g *directGateway) Tokens(ctx context.Context, chainID string) ([]token.Option, error) {
	return g.app.Tokens.Options(chainID)
}

func (g *directGateway) Balances(ctx context.Context) (balance.Summary, error) {
	return g.app.Balances.Summary(g.ctx(ctx), g.userID)
}

func (g *directGateway) Quote(ctx context.Context, tokenID, chainID string, debts []balance.Debt) (domain.Conversion, error) {
	sel, err := g.app.Tokens.Resolve(tokenID, chainID)
	if err != nil {
		return domain.Conversion{}, err
	}
	return g.app.Pricing.Convert(g.ctx(ctx), sel, debts)
}

func (g *directGateway) Settle(ctx context.Context, args settleArgs) (settlementsvc.Result, error) {
	w := g.wallet(args)
	if args.FriendID != "" {
		return g.app.Settlements.SettleOne(g.ctx(ctx), settlementsvc.OneRequest{
			UserID:     g.userID,
			GroupID:    args.GroupID,
			FriendID:   args.FriendID,
			TokenID:    args.TokenID,
			ChainID:    args.ChainID,
			Wallet:     w,
			Currencies: args.Currencies,
		})
	}
	return g.app.Settlements.SettleAll(g.ctx(ctx), settlementsvc.AllRequest{
		UserID:  g.userID,
		GroupID: args.GroupID,
		TokenID: args.TokenID,
		ChainID: args.ChainID,
		Wallet:  w,
		Exclude: args.Exclude,
	})
}

func (g *directGateway) Submit(ctx context.Context, id, signed, rejection string) (domain.Settlement, error) {
	return g.app.Settlements.SubmitSigned(g.ctx(ctx), g.userID, id, signed, rejection)
}

// Status runs one confirmation pass first, since no poller runs in process.
func (g *directGateway) Status(ctx context.Context, id string) (domain.Settlement, error) {
	rec, err := g.app.Settlements.Get(g.ctx(ctx), g.userID, id)
	if err != nil || rec.Status != domain.StatusSubmitted {
		return rec, err
	}
	g.app.Poller.Tick(ctx)
	return g.app.Settlements.Get(g.ctx(ctx), g.userID, id)
}

// wallet picks gateway custody when the keyring holds the address. With no
// address the first held key of the requested kind is used.
func (g *directGateway) wallet(args settleArgs) wallet.Wallet {
	w := wallet.Wallet{
		Kind:      wallet.Kind(strings.ToLower(args.Kind)),
		Address:   strings.TrimSpace(args.Address),
		PublicKey: args.PublicKey,
		Custody:   wallet.CustodyExternal,
		Connected: true,
	}
	keyring := g.app.Wallets.Keyring()
	if w.Address == "" {
		for _, held := range keyring.Wallets() {
			if w.Kind == "" || held.Kind == w.Kind {
				return held
			}
		}
	}
	if _, ok := keyring.Lookup(w); ok {
		w.Custody = wallet.CustodyGateway
	}
	return w
}

package app

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/splito-labs/settlement_gateway/internal/app/events"
	"github.com/splito-labs/settlement_gateway/internal/app/services/balances"
	"github.com/splito-labs/settlement_gateway/internal/app/services/invoices"
	"github.com/splito-labs/settlement_gateway/internal/app/services/onboarding"
	"github.com/splito-labs/settlement_gateway/internal/app/services/pricing"
	settlementsvc "github.com/splito-labs/settlement_gateway/internal/app/services/settlement"
	"github.com/splito-labs/settlement_gateway/internal/app/services/tokens"
	"github.com/splito-labs/settlement_gateway/internal/app/services/wallets"
	"github.com/splito-labs/settlement_gateway/internal/app/storage"
	"github.com/splito-labs/settlement_gateway/internal/app/storage/memory"
	"github.com/splito-labs/settlement_gateway/internal/app/system"
	"github.com/splito-labs/settlement_gateway/internal/cache"
	"github.com/splito-labs/settlement_gateway/internal/config"
	"github.com/splito-labs/settlement_gateway/internal/splito"
	"github.com/splito-labs/settlement_gateway/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation and a nil Cache to an in-process cache.
type Stores struct {
	Settlements storage.SettlementStore
	Onboarding  storage.OnboardingStore
	Cache       cache.Cache
	// Redis enables cross-instance invalidation fan-out when set.
	Redis *redis.Client
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Config      *config.Config
	Cache       cache.Cache
	Backend     *splito.Client
	Tokens      *tokens.Resolver
	Balances    *balances.Service
	Pricing     *pricing.Converter
	Wallets     *wallets.Dispatcher
	Settlements *settlementsvc.Service
	Invoices    *invoices.Service
	Onboarding  *onboarding.Service
	Events      *events.Hub
	Poller      *settlementsvc.Poller
}

// New builds a fully initialised application from cfg and the provided
// stores.
func New(cfg *config.Config, stores Stores, log *logger.Logger) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Settlements == nil {
		stores.Settlements = mem
	}
	if stores.Onboarding == nil {
		stores.Onboarding = mem
	}
	if stores.Cache == nil {
		stores.Cache = cache.NewMemory()
	}

	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	backend, err := splito.New(splito.Config{
		BaseURL:      cfg.Backend.BaseURL,
		ServiceToken: cfg.Backend.ServiceToken,
		SessionName:  cfg.Backend.SessionName,
		Timeout:      cfg.Backend.Timeout,
		MaxRetries:   cfg.Backend.MaxRetries,
		RateLimit:    cfg.Backend.RateLimit,
		RateBurst:    cfg.Backend.RateBurst,
		Logger:       log.Named("splito-client"),
	})
	if err != nil {
		return nil, fmt.Errorf("configure backend client: %w", err)
	}

	keyring, err := wallets.NewKeyring(cfg.Signing.StellarSeedList(), cfg.Signing.AptosKeyList())
	if err != nil {
		return nil, fmt.Errorf("load signing keys: %w", err)
	}

	manager := system.NewManager()

	resolver := tokens.NewResolver(catalog)
	balanceSvc := balances.New(backend, stores.Cache, cfg.Cache.BalanceTTL, log.Named("balances"))
	converter := pricing.NewConverter(pricing.Options{
		Primary:     pricing.NewPricingFetcher(backend),
		Fallback:    pricing.NewExchangeRateFetcher(backend),
		Cache:       stores.Cache,
		TTL:         cfg.Pricing.QuoteTTL,
		MaxParallel: cfg.Pricing.MaxParallel,
		Logger:      log.Named("pricing"),
	})
	dispatcher := wallets.NewDispatcher(keyring, log.Named("wallets"))
	hub := events.NewHub(log.Named("events"))

	settlementService := settlementsvc.New(backend, balanceSvc, converter, resolver, dispatcher,
		stores.Settlements, hub, log.Named("settlement"))
	poller := settlementsvc.NewPoller(settlementService,
		settlementsvc.NewBackendResolver(settlementService, cfg.Settlement.ConfirmTimeout),
		cfg.Settlement.PollInterval, log.Named("settlement-poller"))

	var pairs []pricing.Pair
	for _, p := range cfg.Pricing.Pairs() {
		pairs = append(pairs, pricing.Pair{TokenID: p[0], Currency: p[1]})
	}
	warmer, err := pricing.NewWarmer(converter, cfg.Pricing.WarmSchedule, pairs, log.Named("pricing-warmer"))
	if err != nil {
		return nil, err
	}

	services := []system.Service{poller, warmer}
	if stores.Redis != nil {
		relay := events.NewRedisRelay(stores.Redis, cfg.Redis.Channel, hub, log.Named("events-relay"))
		relay.OnRemote = func(ctx context.Context, e events.Event) {
			balanceSvc.Invalidate(ctx, e.UserIDs, e.GroupIDs)
		}
		services = append(services, relay)
	}
	for _, svc := range services {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:     manager,
		log:         log,
		Config:      cfg,
		Cache:       stores.Cache,
		Backend:     backend,
		Tokens:      resolver,
		Balances:    balanceSvc,
		Pricing:     converter,
		Wallets:     dispatcher,
		Settlements: settlementService,
		Invoices:    invoices.New(backend, log.Named("invoices")),
		Onboarding:  onboarding.New(stores.Onboarding),
		Events:      hub,
		Poller:      poller,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Services lists the lifecycle-managed services in start order.
func (a *Application) Services() []string {
	return a.manager.Services()
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

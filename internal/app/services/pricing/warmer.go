package pricing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/settlement"
	"github.com/splito-labs/settlement_gateway/internal/app/system"
	"github.com/splito-labs/settlement_gateway/pkg/logger"
)

var _ system.Service = (*Warmer)(nil)

// Pair is a (token, currency) combination kept warm in the quote cache.
type Pair struct {
	TokenID  string
	Currency string
}

// Warmer refreshes configured quotes on a cron schedule so settlement
// requests rarely wait on the pricing endpoint.
type Warmer struct {
	converter *Converter
	schedule  string
	pairs     []Pair
	log       *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewWarmer creates a warmer. schedule accepts standard cron specs and
// descriptors such as "@every 1m".
func NewWarmer(converter *Converter, schedule string, pairs []Pair, log *logger.Logger) (*Warmer, error) {
	if log == nil {
		log = logger.NewDefault("pricing-warmer")
	}
	if schedule == "" {
		schedule = "@every 1m"
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("parse warm schedule %q: %w", schedule, err)
	}
	return &Warmer{converter: converter, schedule: schedule, pairs: pairs, log: log}, nil
}

func (w *Warmer) Name() string { return "pricing-warmer" }

func (w *Warmer) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if len(w.pairs) == 0 {
		w.log.Info("no quote pairs configured; warmer idle")
		w.running = true
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(w.schedule, func() { w.WarmOnce(context.Background()) }); err != nil {
		return fmt.Errorf("schedule warmer: %w", err)
	}
	c.Start()
	w.cron = c
	w.running = true
	w.log.Infof("quote warmer started for %d pairs (%s)", len(w.pairs), w.schedule)
	return nil
}

func (w *Warmer) Stop(ctx context.Context) error {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.running = false
	w.mu.Unlock()
	if c == nil {
		return nil
	}

	done := c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	w.log.Info("quote warmer stopped")
	return nil
}

// WarmOnce refreshes every pair and stores successful quotes.
func (w *Warmer) WarmOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	warmed := 0
	for _, p := range w.pairs {
		q := w.converter.Refresh(ctx, p.TokenID, p.Currency)
		if w.converter.cache == nil || q.Source == settlement.SourceFallback {
			continue
		}
		if err := w.converter.cache.Set(ctx, QuoteKey(p.TokenID, p.Currency), q, w.converter.ttl); err != nil {
			w.log.WithError(err).Warn("store warmed quote")
			continue
		}
		warmed++
	}
	return warmed
}

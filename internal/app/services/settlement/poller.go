package settlement

import (
	"context"
	"strings"
	"sync"
	"time"

	domain "github.com/splito-labs/settlement_gateway/internal/app/domain/settlement"
	"github.com/splito-labs/settlement_gateway/internal/app/system"
	"github.com/splito-labs/settlement_gateway/internal/apperr"
	"github.com/splito-labs/settlement_gateway/pkg/logger"
)

// Outcome is a resolver's verdict on a submitted settlement.
type Outcome struct {
	Done       bool
	Success    bool
	TxHash     string
	Message    string
	RetryAfter time.Duration
}

// StatusResolver decides whether a submitted settlement reached the chain.
type StatusResolver interface {
	Resolve(ctx context.Context, rec domain.Settlement) (Outcome, error)
}

// BackendResolver asks the backend for the settlement status and gives up
// once a settlement has been waiting longer than the confirm timeout.
type BackendResolver struct {
	service *Service
	timeout time.Duration
	now     func() time.Time
}

// NewBackendResolver creates a resolver backed by svc.Status.
func NewBackendResolver(svc *Service, timeout time.Duration) *BackendResolver {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &BackendResolver{service: svc, timeout: timeout, now: time.Now}
}

func (r *BackendResolver) Resolve(ctx context.Context, rec domain.Settlement) (Outcome, error) {
	if r.now().Sub(rec.UpdatedAt) >= r.timeout {
		return Outcome{Done: true, Message: "timeout waiting for chain confirmation"}, nil
	}

	status, err := r.service.Status(ctx, rec)
	if err != nil {
		if apperr.Is(err, apperr.CodeNotFound) {
			return Outcome{Done: true, Message: "backend lost track of the transaction"}, nil
		}
		return Outcome{}, err
	}

	switch strings.ToLower(status.Status) {
	case "confirmed", "success":
		return Outcome{Done: true, Success: true, TxHash: status.TxHash}, nil
	case "failed":
		msg := status.Error
		if msg == "" {
			msg = "transaction failed on chain"
		}
		return Outcome{Done: true, TxHash: status.TxHash, Message: msg}, nil
	}
	return Outcome{TxHash: status.TxHash}, nil
}

// Poller watches submitted settlements and resolves them. Each settlement
// backs off independently: the delay doubles after every inconclusive check
// up to maxBackoff.
type Poller struct {
	service    *Service
	resolver   StatusResolver
	interval   time.Duration
	maxBackoff time.Duration
	log        *logger.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
	schedule map[string]attempt
}

type attempt struct {
	next  time.Time
	delay time.Duration
}

var _ system.Service = (*Poller)(nil)

// NewPoller creates a poller. A nil resolver asks the backend.
func NewPoller(svc *Service, resolver StatusResolver, interval time.Duration, log *logger.Logger) *Poller {
	if log == nil {
		log = logger.NewDefault("settlement-poller")
	}
	if resolver == nil {
		resolver = NewBackendResolver(svc, 0)
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		service:    svc,
		resolver:   resolver,
		interval:   interval,
		maxBackoff: 12 * interval,
		log:        log,
		schedule:   make(map[string]attempt),
	}
}

func (p *Poller) Name() string { return "settlement-poller" }

func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				p.Tick(runCtx)
			}
		}
	}()

	p.log.Info("settlement confirmation poller started")
	return nil
}

func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Tick checks every due settlement once and reports how many were resolved.
func (p *Poller) Tick(ctx context.Context) int {
	recs, err := p.service.ListSubmitted(ctx)
	if err != nil {
		p.log.WithError(err).Warn("list submitted settlements failed")
		return 0
	}

	resolved := 0
	now := time.Now()
	for _, rec := range recs {
		if ctx.Err() != nil {
			return resolved
		}
		if !p.shouldAttempt(rec.ID, now) {
			continue
		}

		out, err := p.resolver.Resolve(ctx, rec)
		if err != nil {
			p.log.WithError(err).Warnf("status check for settlement %s failed", rec.ID)
			p.backoff(rec.ID, out.RetryAfter)
			continue
		}
		if !out.Done {
			p.backoff(rec.ID, out.RetryAfter)
			continue
		}

		if _, err := p.service.Resolve(ctx, rec.ID, out.Success, out.TxHash, out.Message); err != nil {
			p.log.WithError(err).Warnf("resolve settlement %s failed", rec.ID)
			p.backoff(rec.ID, out.RetryAfter)
			continue
		}
		p.clearSchedule(rec.ID)
		resolved++
	}
	return resolved
}

func (p *Poller) shouldAttempt(id string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.schedule[id]
	return !ok || !now.Before(a.next)
}

func (p *Poller) backoff(id string, after time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.schedule[id]
	switch {
	case after > 0:
		a.delay = after
	case a.delay == 0:
		a.delay = p.interval
	default:
		a.delay *= 2
	}
	if a.delay > p.maxBackoff {
		a.delay = p.maxBackoff
	}
	a.next = time.Now().Add(a.delay)
	p.schedule[id] = a
}

func (p *Poller) clearSchedule(id string) {
	p.mu.Lock()
	delete(p.schedule, id)
	p.mu.Unlock()
}

// Pending reports how many settlements have a backoff scheduled.
func (p *Poller) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.schedule)
}

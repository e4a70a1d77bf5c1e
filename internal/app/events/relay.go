package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/splito-labs/settlement_gateway/internal/app/system"
	"github.com/splito-labs/settlement_gateway/pkg/logger"
)

// RedisRelay forwards hub events over a redis channel and feeds events
// from other instances back into the hub.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	// OnRemote runs for every event received from another instance, before
	// local delivery. The gateway uses it to drop in-process caches.
	OnRemote func(context.Context, Event)
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ system.Service = (*RedisRelay)(nil)
var _ Forwarder = (*RedisRelay)(nil)

// NewRedisRelay creates a relay and attaches it to hub.
func NewRedisRelay(client *redis.Client, channel string, hub *Hub, log *logger.Logger) *RedisRelay {
	if log == nil {
		log = logger.NewDefault("events-relay")
	}
	if channel == "" {
		channel = "splito:invalidate"
	}
	r := &RedisRelay{client: client, channel: channel, hub: hub, log: log}
	hub.SetForwarder(r)
	return r
}

func (r *RedisRelay) Name() string { return "events-relay" }

// Forward publishes e to the channel.
func (r *RedisRelay) Forward(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

func (r *RedisRelay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	sub := r.client.Subscribe(runCtx, r.channel)
	if _, err := sub.Receive(runCtx); err != nil {
		cancel()
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer sub.Close()
		messages := sub.Channel()
		for {
			select {
			case <-runCtx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				r.handle(runCtx, msg.Payload)
			}
		}
	}()

	r.log.WithField("channel", r.channel).Info("event relay started")
	return nil
}

func (r *RedisRelay) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *RedisRelay) handle(ctx context.Context, payload string) {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		r.log.WithError(err).Warn("discarding malformed event")
		return
	}
	if e.Origin == r.hub.Origin() {
		return
	}
	if r.OnRemote != nil {
		r.OnRemote(ctx, e)
	}
	r.hub.Deliver(e)
}

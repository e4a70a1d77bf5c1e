// Package events fans cache-invalidation notices out to connected clients
// and, when redis is configured, to the other gateway instances.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/splito-labs/settlement_gateway/pkg/logger"
)

// Type names a notice.
type Type string

const (
	TypeSettlementConfirmed Type = "settlement.confirmed"
	TypeSettlementFailed    Type = "settlement.failed"
	TypeBalancesChanged     Type = "balances.changed"
)

// Event tells subscribers which cached views went stale.
type Event struct {
	ID           string    `json:"id"`
	Type         Type      `json:"type"`
	SettlementID string    `json:"settlementId,omitempty"`
	UserIDs      []string  `json:"userIds,omitempty"`
	GroupIDs     []string  `json:"groupIds,omitempty"`
	Origin       string    `json:"origin,omitempty"`
	At           time.Time `json:"at"`
}

// Concerns reports whether a subscriber for userID should see e. Events
// without users are broadcast.
func (e Event) Concerns(userID string) bool {
	if len(e.UserIDs) == 0 || userID == "" {
		return true
	}
	for _, id := range e.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Publisher accepts events.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Forwarder relays locally published events elsewhere.
type Forwarder interface {
	Forward(ctx context.Context, e Event) error
}

const subscriberBuffer = 16

type subscriber struct {
	userID string
	ch     chan Event
}

// Hub is an in-process broadcaster. Slow subscribers drop events rather
// than block publishers.
type Hub struct {
	mu        sync.RWMutex
	subs      map[uint64]*subscriber
	next      uint64
	origin    string
	forwarder Forwarder
	log       *logger.Logger
}

var _ Publisher = (*Hub)(nil)

// NewHub creates a hub with a random origin id.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDefault("events")
	}
	return &Hub{subs: make(map[uint64]*subscriber), origin: uuid.NewString(), log: log}
}

// Origin identifies this instance in forwarded events.
func (h *Hub) Origin() string { return h.origin }

// SetForwarder attaches a relay for cross-instance delivery.
func (h *Hub) SetForwarder(f Forwarder) {
	h.mu.Lock()
	h.forwarder = f
	h.mu.Unlock()
}

// Subscribe registers a listener for events concerning userID. The returned
// function unsubscribes and closes the channel.
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	h.mu.Lock()
	h.next++
	id := h.next
	sub := &subscriber{userID: userID, ch: make(chan Event, subscriberBuffer)}
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Subscribers reports the number of active listeners.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish delivers e locally and forwards it.
func (h *Hub) Publish(ctx context.Context, e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	e.Origin = h.origin
	h.deliver(e)

	h.mu.RLock()
	fwd := h.forwarder
	h.mu.RUnlock()
	if fwd != nil {
		if err := fwd.Forward(ctx, e); err != nil {
			h.log.WithError(err).WithField("event", e.ID).Warn("forward event failed")
		}
	}
}

// Deliver hands an event received from another instance to local
// subscribers. Events carrying this hub's origin are ignored.
func (h *Hub) Deliver(e Event) bool {
	if e.Origin == h.origin {
		return false
	}
	h.deliver(e)
	return true
}

func (h *Hub) deliver(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !e.Concerns(sub.userID) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			h.log.WithField("user", sub.userID).Warn("subscriber buffer full; dropping event")
		}
	}
}

// Package memory is a thread-safe in-memory implementation of the storage
// interfaces. It backs tests and single-instance deployments without a
// database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/onboarding"
	"github.com/splito-labs/settlement_gateway/internal/app/domain/settlement"
	"github.com/splito-labs/settlement_gateway/internal/app/storage"
)

// Store keeps records in maps guarded by one lock.
type Store struct {
	mu          sync.RWMutex
	settlements map[string]settlement.Settlement
	flags       map[string]onboarding.Flag
}

var _ storage.SettlementStore = (*Store)(nil)
var _ storage.OnboardingStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		settlements: make(map[string]settlement.Settlement),
		flags:       make(map[string]onboarding.Flag),
	}
}

// --- SettlementStore ---------------------------------------------------------

func (s *Store) CreateSettlement(_ context.Context, rec settlement.Settlement) (settlement.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if _, exists := s.settlements[rec.ID]; exists {
		return settlement.Settlement{}, storage.ErrStaleStatus
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec = cloneSettlement(rec)
	s.settlements[rec.ID] = rec
	return cloneSettlement(rec), nil
}

func (s *Store) GetSettlement(_ context.Context, id string) (settlement.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.settlements[id]
	if !ok {
		return settlement.Settlement{}, storage.ErrNotFound
	}
	return cloneSettlement(rec), nil
}

func (s *Store) ListSettlements(_ context.Context, userID string, limit int) ([]settlement.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []settlement.Settlement
	for _, rec := range s.settlements {
		if userID == "" || rec.UserID == userID {
			out = append(out, cloneSettlement(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateSettlement(_ context.Context, rec settlement.Settlement, from settlement.Status) (settlement.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.settlements[rec.ID]
	if !ok {
		return settlement.Settlement{}, storage.ErrNotFound
	}
	if current.Status != from {
		return settlement.Settlement{}, storage.ErrStaleStatus
	}
	rec.CreatedAt = current.CreatedAt
	rec.UpdatedAt = time.Now().UTC()
	rec = cloneSettlement(rec)
	s.settlements[rec.ID] = rec
	return cloneSettlement(rec), nil
}

func (s *Store) ListSubmittedSettlements(_ context.Context) ([]settlement.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []settlement.Settlement
	for _, rec := range s.settlements {
		if rec.Status == settlement.StatusSubmitted {
			out = append(out, cloneSettlement(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

// --- OnboardingStore ---------------------------------------------------------

func (s *Store) MarkSeen(_ context.Context, userID, tutorial string) (onboarding.Flag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := flagKey(userID, tutorial)
	if flag, ok := s.flags[key]; ok {
		return flag, nil
	}
	flag := onboarding.Flag{UserID: userID, Tutorial: tutorial, SeenAt: time.Now().UTC()}
	s.flags[key] = flag
	return flag, nil
}

func (s *Store) GetFlag(_ context.Context, userID, tutorial string) (onboarding.Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flag, ok := s.flags[flagKey(userID, tutorial)]
	if !ok {
		return onboarding.Flag{}, storage.ErrNotFound
	}
	return flag, nil
}

func (s *Store) ListFlags(_ context.Context, userID string) ([]onboarding.Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []onboarding.Flag
	for _, flag := range s.flags {
		if flag.UserID == userID {
			out = append(out, flag)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tutorial < out[j].Tutorial })
	return out, nil
}

func (s *Store) ResetFlag(_ context.Context, userID, tutorial string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flags, flagKey(userID, tutorial))
	return nil
}

func flagKey(userID, tutorial string) string { return userID + "\x00" + tutorial }

func cloneSettlement(rec settlement.Settlement) settlement.Settlement {
	if rec.Breakdown != nil {
		lines := make([]settlement.Line, len(rec.Breakdown))
		copy(lines, rec.Breakdown)
		rec.Breakdown = lines
	}
	if rec.Counterparties != nil {
		rec.Counterparties = append([]string(nil), rec.Counterparties...)
	}
	return rec
}

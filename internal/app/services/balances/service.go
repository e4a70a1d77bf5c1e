package balances

import (
	"context"
	"time"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/balance"
	"github.com/splito-labs/settlement_gateway/internal/cache"
	"github.com/splito-labs/settlement_gateway/pkg/logger"
)

// Backend is the part of the Splito client the service reads from.
type Backend interface {
	ListFriends(ctx context.Context) ([]balance.Friend, error)
	GroupBalances(ctx context.Context, groupID string) ([]balance.GroupBalance, error)
}

// FriendsKey is the cache key of a user's friend list.
func FriendsKey(userID string) string { return cache.Key("friends", userID) }

// GroupKey is the cache key prefix of everything cached for a group. The
// trailing separator keeps g1 from matching g10.
func GroupKey(groupID string) string { return cache.Key("groups", groupID) + ":" }

// AnalyticsKey is the cache key prefix of a user's spending analytics.
func AnalyticsKey(userID string) string { return cache.Key("analytics", userID) + ":" }

// Service serves balance views through a read-through cache.
type Service struct {
	backend Backend
	cache   cache.Cache
	ttl     time.Duration
	log     *logger.Logger
}

// New creates a balance service. A nil cache disables caching.
func New(backend Backend, c cache.Cache, ttl time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("balances")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Service{backend: backend, cache: c, ttl: ttl, log: log}
}

// Friends returns the caller's friends with their balances.
func (s *Service) Friends(ctx context.Context, userID string) ([]balance.Friend, error) {
	return cache.Remember(ctx, s.cache, FriendsKey(userID), s.ttl, s.backend.ListFriends)
}

// Summary aggregates the caller's friend balances.
func (s *Service) Summary(ctx context.Context, userID string) (balance.Summary, error) {
	friends, err := s.Friends(ctx, userID)
	if err != nil {
		return balance.Summary{}, err
	}
	return FromFriends(userID, friends), nil
}

// GroupSummary aggregates one group's balance rows.
func (s *Service) GroupSummary(ctx context.Context, groupID string) (balance.Summary, error) {
	rows, err := cache.Remember(ctx, s.cache, GroupKey(groupID)+"balances", s.ttl,
		func(ctx context.Context) ([]balance.GroupBalance, error) {
			return s.backend.GroupBalances(ctx, groupID)
		})
	if err != nil {
		return balance.Summary{}, err
	}
	return Aggregate(rows), nil
}

// Plan builds a settle-all plan for the caller.
func (s *Service) Plan(ctx context.Context, userID string, exclude []string) (Plan, error) {
	friends, err := s.Friends(ctx, userID)
	if err != nil {
		return Plan{}, err
	}
	return SettleAllPlan(friends, exclude), nil
}

// Friend returns one friend of the caller.
func (s *Service) Friend(ctx context.Context, userID, friendID string) (balance.Friend, bool, error) {
	friends, err := s.Friends(ctx, userID)
	if err != nil {
		return balance.Friend{}, false, err
	}
	for _, f := range friends {
		if f.ID == friendID {
			return f, true, nil
		}
	}
	return balance.Friend{}, false, nil
}

// Invalidate drops cached friend, group and analytics views for the given
// users and groups.
func (s *Service) Invalidate(ctx context.Context, userIDs, groupIDs []string) {
	if s.cache == nil {
		return
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id != "" {
			keys = append(keys, FriendsKey(id))
		}
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.log.WithError(err).Warn("invalidate friend balances")
	}
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if err := s.cache.DeletePrefix(ctx, AnalyticsKey(id)); err != nil {
			s.log.WithError(err).WithField("user", id).Warn("invalidate analytics")
		}
	}
	for _, id := range groupIDs {
		if id == "" {
			continue
		}
		if err := s.cache.DeletePrefix(ctx, GroupKey(id)); err != nil {
			s.log.WithError(err).WithField("group", id).Warn("invalidate group balances")
		}
	}
}

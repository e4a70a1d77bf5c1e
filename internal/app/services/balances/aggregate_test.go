package balances

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/balance"
	"github.com/splito-labs/settlement_gateway/internal/cache"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAggregateMatchesSignedSum(t *testing.T) {
	rows := []balance.GroupBalance{
		{GroupID: "g1", UserID: "me", FriendID: "alice", Currency: "USD", Amount: d("30")},
		{GroupID: "g2", UserID: "me", FriendID: "alice", Currency: "usd", Amount: d("-12.5")},
		{GroupID: "g1", UserID: "me", FriendID: "bob", Currency: "USD", Amount: d("-7.25")},
		{GroupID: "g1", UserID: "me", FriendID: "bob", Currency: "EUR", Amount: d("10")},
		{GroupID: "g3", UserID: "me", FriendID: "carol", Currency: "EUR", Amount: d("0")},
	}

	summary := Aggregate(rows)
	signed := NetByCurrency(rows)

	require.Len(t, summary.Currencies, 2)
	for _, totals := range summary.Currencies {
		assert.True(t, totals.Net().Equal(signed[totals.Currency]),
			"%s: net %s != signed sum %s", totals.Currency, totals.Net(), signed[totals.Currency])
		assert.False(t, totals.Owe.IsNegative())
		assert.False(t, totals.Owed.IsNegative())
	}

	usd := summary.Currencies[1]
	assert.Equal(t, "USD", usd.Currency)
	assert.True(t, usd.Owe.Equal(d("30")))
	assert.True(t, usd.Owed.Equal(d("19.75")))

	require.Len(t, summary.Friends, 2, "zero rows contribute nothing")
	alice := summary.Friends[0]
	assert.Equal(t, "alice", alice.FriendID)
	require.Len(t, alice.Amounts, 1)
	assert.True(t, alice.Amounts[0].Amount.Equal(d("17.5")))
}

func TestFromFriends(t *testing.T) {
	friends := []balance.Friend{
		{ID: "alice", Balances: []balance.CurrencyAmount{{Currency: "USD", Amount: d("30")}, {Currency: "EUR", Amount: d("10")}}},
		{ID: "bob", Balances: []balance.CurrencyAmount{{Currency: "USD", Amount: d("-5")}}},
	}
	summary := FromFriends("me", friends)
	require.Len(t, summary.Currencies, 2)
	assert.Equal(t, "EUR", summary.Currencies[0].Currency)
	assert.True(t, summary.Currencies[1].Net().Equal(d("25")))
	assert.Equal(t, "me", summary.Friends[0].UserID)
}

func TestSettleAllPlanExclusion(t *testing.T) {
	friends := []balance.Friend{
		{ID: "alice", Balances: []balance.CurrencyAmount{{Currency: "USD", Amount: d("30")}, {Currency: "EUR", Amount: d("10")}}},
		{ID: "bob", Balances: []balance.CurrencyAmount{{Currency: "USD", Amount: d("12")}, {Currency: "EUR", Amount: d("-4")}}},
		{ID: "carol", Balances: []balance.CurrencyAmount{{Currency: "GBP", Amount: d("-8")}}},
	}

	all := SettleAllPlan(friends, nil)
	assert.True(t, all.RemainingTotal("USD").Equal(d("42")))
	assert.True(t, all.RemainingTotal("EUR").Equal(d("10")), "credits are not netted")
	assert.True(t, all.RemainingTotal("GBP").IsZero())
	require.Len(t, all.Friends, 2)

	without := SettleAllPlan(friends, []string{"bob"})
	assert.Equal(t, []string{"bob"}, without.Excluded)
	for _, debt := range FriendDebts(friends[1]) {
		diff := all.RemainingTotal(debt.Currency).Sub(without.RemainingTotal(debt.Currency))
		assert.True(t, diff.Equal(debt.Amount), "%s reduced by %s, want %s", debt.Currency, diff, debt.Amount)
	}
	assert.True(t, without.RemainingTotal("EUR").Equal(all.RemainingTotal("EUR")))
	require.Len(t, without.Friends, 1)
	assert.Equal(t, "alice", without.Friends[0].FriendID)

	none := SettleAllPlan(friends, []string{"alice", "bob"})
	assert.True(t, none.Empty())
}

type fakeBackend struct {
	friends []balance.Friend
	rows    []balance.GroupBalance
	calls   int
}

func (f *fakeBackend) ListFriends(context.Context) ([]balance.Friend, error) {
	f.calls++
	return f.friends, nil
}

func (f *fakeBackend) GroupBalances(context.Context, string) ([]balance.GroupBalance, error) {
	f.calls++
	return f.rows, nil
}

func TestServiceCachesAndInvalidates(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{friends: []balance.Friend{
		{ID: "alice", Balances: []balance.CurrencyAmount{{Currency: "USD", Amount: d("3")}}},
	}}
	svc := New(backend, cache.NewMemory(), 0, nil)

	for i := 0; i < 2; i++ {
		summary, err := svc.Summary(ctx, "me")
		require.NoError(t, err)
		require.Len(t, summary.Currencies, 1)
	}
	assert.Equal(t, 1, backend.calls)

	friend, ok, err := svc.Friend(ctx, "me", "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", friend.ID)

	svc.Invalidate(ctx, []string{"me"}, []string{"g1"})
	_, err = svc.Summary(ctx, "me")
	require.NoError(t, err)
	assert.Equal(t, 2, backend.calls)

	_, err = svc.GroupSummary(ctx, "g1")
	require.NoError(t, err)
	_, err = svc.GroupSummary(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 3, backend.calls)
	svc.Invalidate(ctx, nil, []string{"g1"})
	_, err = svc.GroupSummary(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 4, backend.calls)
}

func TestInvalidateGroupKeepsSiblingGroups(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{rows: []balance.GroupBalance{}}
	c := cache.NewMemory()
	svc := New(backend, c, 0, nil)

	for _, g := range []string{"g1", "g10"} {
		_, err := svc.GroupSummary(ctx, g)
		require.NoError(t, err)
	}
	require.NoError(t, c.Set(ctx, AnalyticsKey("u1")+"monthly", 1, time.Minute))
	require.NoError(t, c.Set(ctx, AnalyticsKey("u10")+"monthly", 1, time.Minute))
	assert.Equal(t, 2, backend.calls)

	svc.Invalidate(ctx, []string{"u1"}, []string{"g1"})

	_, err := svc.GroupSummary(ctx, "g10")
	require.NoError(t, err)
	assert.Equal(t, 2, backend.calls, "g10 must stay cached")
	_, err = svc.GroupSummary(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 3, backend.calls)

	var v int
	ok, err := c.Get(ctx, AnalyticsKey("u10")+"monthly", &v)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.Get(ctx, AnalyticsKey("u1")+"monthly", &v)
	require.NoError(t, err)
	assert.False(t, ok)
}

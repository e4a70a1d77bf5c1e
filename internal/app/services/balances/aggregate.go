// Package balances reduces backend balance rows into per-currency positions
// and builds settle-all plans.
package balances

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/balance"
)

type netKey struct {
	user, friend, currency string
}

type accumulator struct {
	totals map[string]*balance.CurrencyTotals
	nets   map[netKey]decimal.Decimal
}

func newAccumulator() *accumulator {
	return &accumulator{
		totals: make(map[string]*balance.CurrencyTotals),
		nets:   make(map[netKey]decimal.Decimal),
	}
}

func (a *accumulator) add(user, friend, currency string, amount decimal.Decimal) {
	if amount.IsZero() {
		return
	}
	currency = normalizeCurrency(currency)

	t, ok := a.totals[currency]
	if !ok {
		t = &balance.CurrencyTotals{Currency: currency}
		a.totals[currency] = t
	}
	if amount.IsPositive() {
		t.Owe = t.Owe.Add(amount)
	} else {
		t.Owed = t.Owed.Add(amount.Neg())
	}

	k := netKey{user: user, friend: friend, currency: currency}
	a.nets[k] = a.nets[k].Add(amount)
}

func (a *accumulator) summary() balance.Summary {
	out := balance.Summary{
		Currencies: make([]balance.CurrencyTotals, 0, len(a.totals)),
	}
	for _, t := range a.totals {
		out.Currencies = append(out.Currencies, *t)
	}
	sort.Slice(out.Currencies, func(i, j int) bool {
		return out.Currencies[i].Currency < out.Currencies[j].Currency
	})

	type pair struct{ user, friend string }
	grouped := make(map[pair][]balance.CurrencyAmount)
	for k, amount := range a.nets {
		p := pair{k.user, k.friend}
		grouped[p] = append(grouped[p], balance.CurrencyAmount{Currency: k.currency, Amount: amount})
	}
	out.Friends = make([]balance.FriendNet, 0, len(grouped))
	for p, amounts := range grouped {
		sort.Slice(amounts, func(i, j int) bool { return amounts[i].Currency < amounts[j].Currency })
		out.Friends = append(out.Friends, balance.FriendNet{UserID: p.user, FriendID: p.friend, Amounts: amounts})
	}
	sort.Slice(out.Friends, func(i, j int) bool {
		if out.Friends[i].UserID != out.Friends[j].UserID {
			return out.Friends[i].UserID < out.Friends[j].UserID
		}
		return out.Friends[i].FriendID < out.Friends[j].FriendID
	})
	return out
}

// Aggregate reduces group balance rows. Rows are keyed by
// (userId, friendId, currency); a positive amount is money the user owes.
func Aggregate(rows []balance.GroupBalance) balance.Summary {
	acc := newAccumulator()
	for _, row := range rows {
		acc.add(row.UserID, row.FriendID, row.Currency, row.Amount)
	}
	return acc.summary()
}

// FromFriends aggregates the pre-aggregated friend balances of userID.
func FromFriends(userID string, friends []balance.Friend) balance.Summary {
	acc := newAccumulator()
	for _, f := range friends {
		for _, b := range f.Balances {
			acc.add(userID, f.ID, b.Currency, b.Amount)
		}
	}
	return acc.summary()
}

// NetByCurrency sums signed amounts per currency without splitting them.
func NetByCurrency(rows []balance.GroupBalance) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, row := range rows {
		c := normalizeCurrency(row.Currency)
		out[c] = out[c].Add(row.Amount)
	}
	return out
}

func normalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

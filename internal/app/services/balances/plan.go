package balances

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/balance"
)

// FriendDebt is what the user owes one friend, per currency.
type FriendDebt struct {
	FriendID string         `json:"friendId"`
	Name     string         `json:"name,omitempty"`
	Debts    []balance.Debt `json:"debts"`
}

// Plan is the set of debts a settle-all run pays.
type Plan struct {
	Friends   []FriendDebt   `json:"friends"`
	Remaining []balance.Debt `json:"remainingTotal"`
	Excluded  []string       `json:"excluded,omitempty"`
}

// Empty reports whether there is nothing to pay.
func (p Plan) Empty() bool { return len(p.Remaining) == 0 }

// RemainingTotal returns the remaining amount for one currency.
func (p Plan) RemainingTotal(currency string) decimal.Decimal {
	currency = normalizeCurrency(currency)
	for _, d := range p.Remaining {
		if d.Currency == currency {
			return d.Amount
		}
	}
	return decimal.Zero
}

// SettleAllPlan collects the currencies the user owes across friends not in
// exclude. Credits (negative balances) are never netted against debts.
func SettleAllPlan(friends []balance.Friend, exclude []string) Plan {
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		if id = strings.TrimSpace(id); id != "" {
			skip[id] = struct{}{}
		}
	}

	var plan Plan
	remaining := make(map[string]decimal.Decimal)
	for _, f := range friends {
		if _, excluded := skip[f.ID]; excluded {
			plan.Excluded = append(plan.Excluded, f.ID)
			continue
		}
		debts := FriendDebts(f)
		if len(debts) == 0 {
			continue
		}
		for _, d := range debts {
			remaining[d.Currency] = remaining[d.Currency].Add(d.Amount)
		}
		plan.Friends = append(plan.Friends, FriendDebt{FriendID: f.ID, Name: f.Name, Debts: debts})
	}

	plan.Remaining = sortedDebts(remaining)
	sort.Strings(plan.Excluded)
	return plan
}

// FriendDebts returns the positive per-currency balances owed to f.
func FriendDebts(f balance.Friend) []balance.Debt {
	byCurrency := make(map[string]decimal.Decimal)
	for _, b := range f.Balances {
		byCurrency[normalizeCurrency(b.Currency)] = byCurrency[normalizeCurrency(b.Currency)].Add(b.Amount)
	}
	owed := make(map[string]decimal.Decimal, len(byCurrency))
	for c, amount := range byCurrency {
		if amount.IsPositive() {
			owed[c] = amount
		}
	}
	return sortedDebts(owed)
}

func sortedDebts(m map[string]decimal.Decimal) []balance.Debt {
	out := make([]balance.Debt, 0, len(m))
	for c, amount := range m {
		out = append(out, balance.Debt{Currency: c, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

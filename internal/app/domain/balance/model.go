package balance

import (
	"time"

	"github.com/shopspring/decimal"
)

// GroupBalance is one backend balance row. A positive Amount means UserID owes
// FriendID; a negative Amount means FriendID owes UserID.
type GroupBalance struct {
	GroupID   string          `json:"groupId"`
	UserID    string          `json:"userId"`
	FriendID  string          `json:"friendId"`
	Currency  string          `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// CurrencyAmount is a signed amount in one currency.
type CurrencyAmount struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// Friend is a counterpart with balances pre-aggregated across shared groups.
type Friend struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Email    string           `json:"email"`
	Image    string           `json:"image,omitempty"`
	Balances []CurrencyAmount `json:"balances"`
}

// CurrencyTotals splits the net position in one currency. Owe is what the
// user owes others, Owed is what others owe the user; both are non-negative.
type CurrencyTotals struct {
	Currency string          `json:"currency"`
	Owe      decimal.Decimal `json:"owe"`
	Owed     decimal.Decimal `json:"owed"`
}

// Net returns Owe - Owed, which matches the raw signed sum.
func (t CurrencyTotals) Net() decimal.Decimal { return t.Owe.Sub(t.Owed) }

// FriendNet is the signed per-currency position against one friend.
type FriendNet struct {
	UserID   string           `json:"userId"`
	FriendID string           `json:"friendId"`
	Amounts  []CurrencyAmount `json:"amounts"`
}

// Summary is the aggregated view of a set of balances.
type Summary struct {
	Currencies []CurrencyTotals `json:"currencies"`
	Friends    []FriendNet      `json:"friends"`
}

// Debt is an amount the user owes in one currency, as fed to the converter.
type Debt struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

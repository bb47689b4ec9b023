package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a monetary amount in integer minor units (cents). Amounts stay in
// minor units through the pipeline; conversion to decimal currency happens
// only at presentation and gateway boundaries.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// NewMoneyFromCents builds a Money value directly from minor units.
func NewMoneyFromCents(cents int64, currency string) Money {
	return Money{Amount: cents, Currency: currency}
}

// Decimal returns the amount in major units with full precision.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -2)
}

// Add returns the sum of two amounts. Currencies must match.
func (m Money) Add(other Money) Money {
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Decimal().StringFixed(2), m.Currency)
}

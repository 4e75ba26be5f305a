// Package portfolio holds the P&L arithmetic shared by the reconciler and
// the summary aggregator.
//
// Every figure is a decimal rounded to two places, the way the broker and
// the dashboards display rupees and percentages.
package portfolio

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Round2 rounds half away from zero to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// AveragePrice returns amount / qty rounded to two places, or zero when qty
// is not positive.
func AveragePrice(amount decimal.Decimal, qty int64) decimal.Decimal {
	if qty <= 0 {
		return decimal.Zero
	}
	return Round2(amount.Div(decimal.NewFromInt(qty)))
}

// PnL returns (price - avg) * qty rounded to two places.
func PnL(price, avg decimal.Decimal, qty int64) decimal.Decimal {
	if qty == 0 {
		return decimal.Zero
	}
	return Round2(price.Sub(avg).Mul(decimal.NewFromInt(qty)))
}

// PercentReturn returns (price - avg) / avg * 100 rounded to two places.
// A zero average yields zero.
func PercentReturn(price, avg decimal.Decimal) decimal.Decimal {
	if avg.IsZero() {
		return decimal.Zero
	}
	return Round2(price.Sub(avg).Div(avg).Mul(hundred))
}

package notification

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatINR renders a rupee amount with the currency sign and thousands
// separators, e.g. "₹1,234.50" or "-₹40.05".
func FormatINR(d decimal.Decimal) string {
	paise := d.Shift(2).Round(0).IntPart()
	return money.New(paise, money.INR).Display()
}

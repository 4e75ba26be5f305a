package model

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// CategoryMTF is the broker product code for margin trading facility positions.
const CategoryMTF = "MTF"

// RawPositionRow is one row of the broker position feed, already summed
// across the carry-forward and intraday fields.
type RawPositionRow struct {
	Category  string          `json:"category"`
	Symbol    string          `json:"symbol"`
	BuyQty    int64           `json:"buy_qty"`    // cfBuyQty + flBuyQty
	BuyAmount decimal.Decimal `json:"buy_amount"` // buyAmt + cfBuyAmt
}

// Status is the state transition of a symbol between two polls.
type Status string

const (
	StatusRunning     Status = "RUNNING"
	StatusPartialExit Status = "PARTIAL_EXIT"
	StatusFullExit    Status = "FULL_EXIT"
)

// PositionView is the per-symbol row produced by one reconciliation cycle.
type PositionView struct {
	Symbol         string           `json:"symbol"`
	Quantity       int64            `json:"qty"`
	AveragePrice   decimal.Decimal  `json:"avg_price"`
	ReferencePrice decimal.Decimal  `json:"ltp"`
	PriceResolved  bool             `json:"price_resolved"`
	UnrealizedPnL  decimal.Decimal  `json:"pnl"`
	PercentReturn  decimal.Decimal  `json:"pct_return"`
	Status         Status           `json:"status"`
	ExitPrice      *decimal.Decimal `json:"exit_price,omitempty"` // nil while RUNNING
}

// Exited reports whether the view carries an exit.
func (v *PositionView) Exited() bool {
	return v.Status == StatusPartialExit || v.Status == StatusFullExit
}

// ExitRecord is a realized exit, written once to the exit sink.
type ExitRecord struct {
	ID              string          `json:"id"`
	Symbol          string          `json:"symbol"`
	Quantity        int64           `json:"qty"`
	AveragePrice    decimal.Decimal `json:"avg_price"`
	ExitPrice       decimal.Decimal `json:"exit_price"`
	PriceResolved   bool            `json:"price_resolved"`
	RealizedPnL     decimal.Decimal `json:"pnl"`
	RealizedPercent decimal.Decimal `json:"pct_return"`
	TradeTime       time.Time       `json:"trade_date"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Key returns the natural key used for downstream deduplication:
// "symbol|trade_ts|qty".
func (r *ExitRecord) Key() string {
	return r.Symbol + "|" + r.TradeTime.UTC().Format(time.RFC3339Nano) + "|" + strconv.FormatInt(r.Quantity, 10)
}

// Summary holds the headline numbers of a cycle.
type Summary struct {
	TotalUnrealizedPnL   decimal.Decimal `json:"total_pnl"`
	AveragePercentReturn decimal.Decimal `json:"total_pct"`
	TotalRealizedPnL     decimal.Decimal `json:"realized_pnl"`
	OpenPositions        int             `json:"open_positions"`
}

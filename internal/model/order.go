package model

import "github.com/shopspring/decimal"

// Order is one row of the broker's order book, reduced to display fields.
type Order struct {
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"` // B, S
	Quantity int64           `json:"qty"`
	Price    decimal.Decimal `json:"price"`
	Product  string          `json:"order_type"` // MTF, CNC, MIS, NRML
	Status   string          `json:"status"`
	Time     string          `json:"time"` // broker format: 02-Jan-2006 15:04:05
}

// RawOrderRow is an order as returned by the broker before the date filter.
type RawOrderRow struct {
	Symbol   string          `json:"sym"`
	Side     string          `json:"side"`
	Quantity int64           `json:"qty"`
	AvgPrice decimal.Decimal `json:"avgPrc"`
	Product  string          `json:"prod"`
	Status   string          `json:"stat"`
	Time     string          `json:"ordDtTm"`
}

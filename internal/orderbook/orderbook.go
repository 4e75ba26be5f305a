// Package orderbook reduces the broker order book to today's orders.
package orderbook

import (
	"strings"
	"time"

	"mtf-tracker/internal/markethours"
	"mtf-tracker/internal/model"
	"mtf-tracker/internal/portfolio"
)

// DateLayout is the date prefix of the broker's order timestamp, e.g.
// "14-Oct-2026 10:01:02".
const DateLayout = "02-Jan-2006"

// Today keeps rows placed on now's IST date, preserving broker order.
// The prefix match is case-insensitive since the month abbreviation is
// sometimes upper-cased.
func Today(rows []model.RawOrderRow, now time.Time) []model.Order {
	prefix := now.In(markethours.IST).Format(DateLayout)
	out := make([]model.Order, 0, len(rows))
	for _, r := range rows {
		ts := strings.TrimSpace(r.Time)
		if len(ts) < len(prefix) || !strings.EqualFold(ts[:len(prefix)], prefix) {
			continue
		}
		out = append(out, model.Order{
			Symbol:   r.Symbol,
			Side:     r.Side,
			Quantity: r.Quantity,
			Price:    portfolio.Round2(r.AvgPrice),
			Product:  r.Product,
			Status:   r.Status,
			Time:     ts,
		})
	}
	return out
}

// Filter keeps orders of one product, e.g. model.CategoryMTF. An empty
// product keeps everything.
func Filter(orders []model.Order, product string) []model.Order {
	if product == "" {
		return orders
	}
	out := make([]model.Order, 0, len(orders))
	for _, o := range orders {
		if strings.EqualFold(o.Product, product) {
			out = append(out, o)
		}
	}
	return out
}

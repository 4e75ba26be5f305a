// Package reconcile turns successive broker position polls into position
// views and realized-exit records.
//
// Each cycle diffs the current feed against the snapshot of the previous
// one. A quantity drop is an exit priced at the current reference price; a
// quantity rise is an addition and only moves the baseline. Symbols that
// vanish from the feed while the snapshot still holds them are full exits.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mtf-tracker/internal/markethours"
	"mtf-tracker/internal/model"
	"mtf-tracker/internal/portfolio"
	"mtf-tracker/internal/snapshot"
)

// Config controls row filtering and timestamps.
type Config struct {
	Category    string         // product category kept from the feed, default MTF
	Location    *time.Location // zone of ExitRecord.TradeTime, default IST
	Concurrency int            // parallel price lookups, default 8
}

// Result is the output of one cycle.
type Result struct {
	Positions []model.PositionView
	Exits     []model.ExitRecord
}

// Option customises a Reconciler.
type Option func(*Reconciler)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithIDs overrides the exit record id generator.
func WithIDs(next func() string) Option {
	return func(r *Reconciler) { r.newID = next }
}

// Reconciler owns the snapshot. Reconcile is the only writer; concurrent
// calls are serialised so two cycles never interleave their read and write.
type Reconciler struct {
	mu sync.Mutex

	cfg    Config
	prices model.PriceResolver
	snap   *snapshot.Store
	log    *zap.Logger

	now   func() time.Time
	newID func() string
}

// New creates a Reconciler over snap. A nil logger is replaced by a no-op one.
func New(cfg Config, prices model.PriceResolver, snap *snapshot.Store, log *zap.Logger, opts ...Option) *Reconciler {
	if cfg.Category == "" {
		cfg.Category = model.CategoryMTF
	}
	if cfg.Location == nil {
		cfg.Location = markethours.IST
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &Reconciler{
		cfg:    cfg,
		prices: prices,
		snap:   snap,
		log:    log.Named("reconcile"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// candidate is a symbol that takes part in the diff.
type candidate struct {
	symbol string
	qty    int64
	avg    decimal.Decimal
	last   int64
}

// Reconcile runs one cycle over rows. It returns an error only when ctx is
// done before the snapshot is replaced; in that case the snapshot is left
// exactly as it was.
func (r *Reconciler) Reconcile(ctx context.Context, rows []model.RawPositionRow) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.snap.All()
	cands := r.candidates(rows, prev)

	prices := r.resolve(ctx, cands)
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("reconcile: aborted before snapshot update: %w", err)
	}

	now := r.now()
	res := Result{
		Positions: make([]model.PositionView, 0, len(cands)),
		Exits:     []model.ExitRecord{},
	}
	next := make(map[string]snapshot.Entry, len(cands))

	for _, c := range cands {
		q := prices[c.symbol]
		px, priced := q.price, q.ok
		view := model.PositionView{
			Symbol:         c.symbol,
			Quantity:       c.qty,
			AveragePrice:   c.avg,
			ReferencePrice: px,
			PriceResolved:  priced,
			UnrealizedPnL:  decimal.Zero,
			PercentReturn:  decimal.Zero,
			Status:         model.StatusRunning,
		}

		if c.last > c.qty {
			closed := c.last - c.qty
			rec := r.exitRecord(c, closed, px, priced, now)
			res.Exits = append(res.Exits, rec)

			exitPx := px
			view.ExitPrice = &exitPx
			view.Status = model.StatusPartialExit
			if c.qty == 0 {
				view.Status = model.StatusFullExit
				view.PercentReturn = rec.RealizedPercent
			}
			r.log.Info("exit detected",
				zap.String("symbol", c.symbol),
				zap.String("status", string(view.Status)),
				zap.Int64("closed_qty", closed),
				zap.Int64("remaining_qty", c.qty),
				zap.String("exit_price", px.StringFixed(2)),
				zap.Bool("price_resolved", priced),
				zap.String("realized_pnl", rec.RealizedPnL.StringFixed(2)),
			)
		}

		if c.qty > 0 && priced {
			view.UnrealizedPnL = portfolio.PnL(px, c.avg, c.qty)
			view.PercentReturn = portfolio.PercentReturn(px, c.avg)
		}
		if c.qty > 0 {
			next[c.symbol] = snapshot.Entry{Qty: c.qty, AvgPrice: c.avg}
		}
		res.Positions = append(res.Positions, view)
	}

	r.snap.SetAll(next)
	return res, nil
}

// candidates filters and merges the feed, then appends symbols that only
// the snapshot still knows about.
func (r *Reconciler) candidates(rows []model.RawPositionRow, prev map[string]snapshot.Entry) []candidate {
	type agg struct {
		qty    int64
		amount decimal.Decimal
	}
	order := make([]string, 0, len(rows))
	merged := make(map[string]*agg, len(rows))

	for _, row := range rows {
		if !strings.EqualFold(strings.TrimSpace(row.Category), r.cfg.Category) {
			continue
		}
		sym := strings.TrimSpace(row.Symbol)
		if sym == "" {
			continue
		}
		a, ok := merged[sym]
		if !ok {
			a = &agg{amount: decimal.Zero}
			merged[sym] = a
			order = append(order, sym)
		}
		a.qty += row.BuyQty
		a.amount = a.amount.Add(row.BuyAmount)
	}

	out := make([]candidate, 0, len(order)+len(prev))
	for _, sym := range order {
		a := merged[sym]
		qty := a.qty
		if qty < 0 {
			qty = 0
		}
		avg := portfolio.AveragePrice(a.amount, qty)
		last := prev[sym]

		if qty <= 0 && avg.IsZero() && last.Qty <= 0 {
			continue
		}
		// a closed row no longer carries its cost, the exit is priced
		// against the average seen when it was open
		if qty == 0 && last.Qty > 0 {
			avg = last.AvgPrice
		}
		out = append(out, candidate{symbol: sym, qty: qty, avg: avg, last: last.Qty})
	}

	var vanished []string
	for sym, e := range prev {
		if _, seen := merged[sym]; !seen && e.Qty > 0 {
			vanished = append(vanished, sym)
		}
	}
	sort.Strings(vanished)
	for _, sym := range vanished {
		e := prev[sym]
		out = append(out, candidate{symbol: sym, qty: 0, avg: e.AvgPrice, last: e.Qty})
	}
	return out
}

type quoted struct {
	price decimal.Decimal
	ok    bool
}

// resolve looks up every candidate's reference price in parallel.
func (r *Reconciler) resolve(ctx context.Context, cands []candidate) map[string]quoted {
	out := make(map[string]quoted, len(cands))
	if r.prices == nil || len(cands) == 0 {
		return out
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, r.cfg.Concurrency)
	)
	for _, c := range cands {
		wg.Add(1)
		sem <- struct{}{}
		go func(sym string) {
			defer wg.Done()
			defer func() { <-sem }()
			px, ok := r.prices.Resolve(ctx, sym)
			if !ok || !px.IsPositive() {
				px, ok = decimal.Zero, false
			}
			mu.Lock()
			out[sym] = quoted{price: px, ok: ok}
			mu.Unlock()
		}(c.symbol)
	}
	wg.Wait()
	return out
}

func (r *Reconciler) exitRecord(c candidate, closed int64, px decimal.Decimal, ok bool, now time.Time) model.ExitRecord {
	rec := model.ExitRecord{
		ID:              r.newID(),
		Symbol:          c.symbol,
		Quantity:        closed,
		AveragePrice:    c.avg,
		ExitPrice:       px,
		PriceResolved:   ok,
		RealizedPnL:     decimal.Zero,
		RealizedPercent: decimal.Zero,
		TradeTime:       now.In(r.cfg.Location),
		CreatedAt:       now.UTC(),
	}
	if ok {
		rec.RealizedPnL = portfolio.PnL(px, c.avg, closed)
		rec.RealizedPercent = portfolio.PercentReturn(px, c.avg)
	}
	return rec
}

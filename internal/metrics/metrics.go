// Package metrics exposes Prometheus instruments for the poller and a
// /healthz check over its dependencies.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"mtf-tracker/internal/quote"
	"mtf-tracker/internal/tracker"
)

// Metrics holds all Prometheus metrics for the tracker.
type Metrics struct {
	CyclesTotal   *prometheus.CounterVec // labels: outcome
	CycleDuration prometheus.Histogram
	ExitsTotal    prometheus.Counter
	SinkFailures  prometheus.Counter
	OpenPositions prometheus.Gauge
	UnrealizedPnL prometheus.Gauge
	RealizedPnL   prometheus.Counter

	// Quote resolution
	QuoteLookups   *prometheus.CounterVec // labels: source, result
	QuoteCacheHits prometheus.Counter
	BreakerState   *prometheus.GaugeVec // labels: source; 0=closed, 1=open, 2=half-open
	BreakerTrips   *prometheus.CounterVec

	WSClients prometheus.Gauge

	MarketState prometheus.Gauge // 0=closed, 1=open
}

// New creates every instrument and registers it with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mtf_cycles_total",
			Help: "Reconciliation cycles by outcome",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mtf_cycle_duration_seconds",
			Help:    "Wall time of one reconciliation cycle",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ExitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mtf_exits_total",
			Help: "Exit records produced by reconciliation",
		}),
		SinkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mtf_exit_sink_failures_total",
			Help: "Cycles whose exits could not be persisted",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mtf_open_positions",
			Help: "Positions with quantity > 0 after the last successful cycle",
		}),
		UnrealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mtf_unrealized_pnl_inr",
			Help: "Total unrealized P&L after the last successful cycle",
		}),
		RealizedPnL: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mtf_realized_profit_inr_total",
			Help: "Sum of positive realized P&L across recorded exits",
		}),

		QuoteLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mtf_quote_lookups_total",
			Help: "Quote source lookups by source and result",
		}, []string{"source", "result"}),
		QuoteCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mtf_quote_cache_hits_total",
			Help: "Reference prices served from the resolver cache",
		}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mtf_quote_breaker_state",
			Help: "Quote source circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"source"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mtf_quote_breaker_trips_total",
			Help: "Times a quote source breaker tripped open",
		}, []string{"source"}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mtf_ws_clients",
			Help: "Connected WebSocket subscribers",
		}),

		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mtf_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.ExitsTotal,
		m.SinkFailures,
		m.OpenPositions,
		m.UnrealizedPnL,
		m.RealizedPnL,
		m.QuoteLookups,
		m.QuoteCacheHits,
		m.BreakerState,
		m.BreakerTrips,
		m.WSClients,
		m.MarketState,
	)
	return m
}

// Publish records a finished cycle. It implements tracker.Publisher.
func (m *Metrics) Publish(_ context.Context, res *tracker.CycleResult) error {
	m.CyclesTotal.WithLabelValues(string(res.Outcome)).Inc()
	m.CycleDuration.Observe(res.Took.Seconds())
	if res.SinkErr != nil {
		m.SinkFailures.Inc()
	}
	if !res.OK() {
		return nil
	}
	m.ExitsTotal.Add(float64(len(res.Exits)))
	for i := range res.Exits {
		if p := res.Exits[i].RealizedPnL.InexactFloat64(); p > 0 {
			m.RealizedPnL.Add(p)
		}
	}
	m.OpenPositions.Set(float64(res.Summary.OpenPositions))
	m.UnrealizedPnL.Set(res.Summary.TotalUnrealizedPnL.InexactFloat64())
	return nil
}

// Instrument hooks the resolver's lookup, cache and breaker callbacks.
// Call it before the resolver serves traffic.
func (m *Metrics) Instrument(r *quote.Resolver) {
	r.OnLookup = func(source, result string) {
		m.QuoteLookups.WithLabelValues(source, result).Inc()
	}
	r.OnCacheHit = m.QuoteCacheHits.Inc
	r.OnBreakerMove = func(source string, to quote.State) {
		m.BreakerState.WithLabelValues(source).Set(float64(to))
		if to == quote.StateOpen {
			m.BreakerTrips.WithLabelValues(source).Inc()
		}
	}
	for name, st := range r.BreakerStates() {
		m.BreakerState.WithLabelValues(name).Set(float64(st))
	}
}

// SetWSClients is shaped to fit gateway.Hub.OnClients.
func (m *Metrics) SetWSClients(n int) { m.WSClients.Set(float64(n)) }

// SetMarketOpen records the market session state.
func (m *Metrics) SetMarketOpen(open bool) {
	if open {
		m.MarketState.Set(1)
		return
	}
	m.MarketState.Set(0)
}

package quote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultTTL           = 60 * time.Second
	defaultSourceTimeout = 3 * time.Second
)

// Lookup outcomes reported through OnLookup.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultTimeout = "timeout"
	ResultSkipped = "skipped" // breaker open
)

// Config configures a Resolver.
type Config struct {
	TTL             time.Duration // cache lifetime of a resolved price, default 60s
	SourceTimeout   time.Duration // bound on each source call, default 3s
	BreakerFailures int           // consecutive failures before a source is skipped; 0 disables
	BreakerCooldown time.Duration
}

type guardedSource struct {
	src Source
	cb  *Breaker
}

type cacheEntry struct {
	price   decimal.Decimal
	source  string
	expires time.Time
}

// Resolver resolves reference prices with fallback and a TTL cache.
// It is safe for concurrent use; concurrent lookups of one symbol share a
// single upstream call per cache window.
type Resolver struct {
	sources []guardedSource
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	log     *zap.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	// Optional hooks, set before first use.
	OnLookup      func(source, result string)
	OnCacheHit    func()
	OnBreakerMove func(source string, to State)
}

// NewResolver creates a Resolver over sources, tried in the given order.
func NewResolver(cfg Config, log *zap.Logger, sources ...Source) *Resolver {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = defaultSourceTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &Resolver{
		ttl:     cfg.TTL,
		timeout: cfg.SourceTimeout,
		now:     time.Now,
		log:     log.Named("quote"),
		cache:   make(map[string]cacheEntry),
		locks:   make(map[string]*sync.Mutex),
	}
	for _, s := range sources {
		cb := NewBreaker(cfg.BreakerFailures, cfg.BreakerCooldown)
		name := s.Name()
		cb.OnStateChange = func(from, to State) {
			r.log.Warn("quote source breaker", zap.String("source", name),
				zap.Stringer("from", from), zap.Stringer("to", to))
			if r.OnBreakerMove != nil {
				r.OnBreakerMove(name, to)
			}
		}
		r.sources = append(r.sources, guardedSource{src: s, cb: cb})
	}
	return r
}

// Resolve returns the reference price for symbol, or false when every
// source failed.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	if symbol == "" {
		return decimal.Zero, false
	}
	if p, ok := r.cached(symbol); ok {
		return p, true
	}

	lock := r.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	// another goroutine may have filled the cache while we waited
	if p, ok := r.cached(symbol); ok {
		return p, true
	}

	for _, g := range r.sources {
		price, err := r.query(ctx, g, symbol)
		if err == nil {
			r.store(symbol, g.src.Name(), price)
			return price, true
		}
		r.log.Debug("quote source failed", zap.String("source", g.src.Name()),
			zap.String("symbol", symbol), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}

	r.log.Warn("quote unresolved", zap.String("symbol", symbol), zap.Int("sources", len(r.sources)))
	return decimal.Zero, false
}

// BreakerStates returns the breaker state per source name.
func (r *Resolver) BreakerStates() map[string]State {
	states := make(map[string]State, len(r.sources))
	for _, g := range r.sources {
		states[g.src.Name()] = g.cb.CurrentState()
	}
	return states
}

func (r *Resolver) query(ctx context.Context, g guardedSource, symbol string) (price decimal.Decimal, err error) {
	name := g.src.Name()
	err = g.cb.Execute(func() (callErr error) {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				callErr = fmt.Errorf("%s: panic: %v", name, rec)
			}
		}()
		price, callErr = g.src.LastPrice(callCtx, symbol)
		if callErr == nil && !price.IsPositive() {
			callErr = ErrNoPrice
		}
		if callErr != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			callErr = fmt.Errorf("%s: %w", name, context.DeadlineExceeded)
		}
		return callErr
	})

	switch {
	case err == nil:
		r.report(name, ResultOK)
	case errors.Is(err, ErrCircuitOpen):
		r.report(name, ResultSkipped)
	case errors.Is(err, context.DeadlineExceeded):
		r.report(name, ResultTimeout)
	default:
		r.report(name, ResultError)
	}
	return price, err
}

func (r *Resolver) report(source, result string) {
	if r.OnLookup != nil {
		r.OnLookup(source, result)
	}
}

func (r *Resolver) cached(symbol string) (decimal.Decimal, bool) {
	r.mu.RLock()
	e, ok := r.cache[symbol]
	r.mu.RUnlock()
	if !ok || !r.now().Before(e.expires) {
		return decimal.Zero, false
	}
	if r.OnCacheHit != nil {
		r.OnCacheHit()
	}
	return e.price, true
}

func (r *Resolver) store(symbol, source string, price decimal.Decimal) {
	r.mu.Lock()
	r.cache[symbol] = cacheEntry{price: price, source: source, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()
}

func (r *Resolver) symbolLock(symbol string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	l, ok := r.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		r.locks[symbol] = l
	}
	return l
}

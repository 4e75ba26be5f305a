// Package tracker runs one reconciliation cycle end to end: session check,
// position feed, reconcile, exit sink, summary and fan-out.
//
// RunCycle never returns a bare error and never panics. Every outcome is a
// CycleResult carrying positions or a human-readable reason, with Err and
// SinkErr set for callers that branch on errors.Is.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mtf-tracker/internal/logger"
	"mtf-tracker/internal/model"
	"mtf-tracker/internal/orderbook"
	"mtf-tracker/internal/portfolio"
	"mtf-tracker/internal/reconcile"
)

var (
	ErrNoSession      = errors.New("no broker session")
	ErrSessionExpired = errors.New("broker session expired")
	ErrFeed           = errors.New("broker feed failed")
	ErrSink           = errors.New("exit sink write failed")
)

// Outcome labels a finished cycle for metrics and logs.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeNoSession Outcome = "no_session"
	OutcomeFeedError Outcome = "feed_error"
	OutcomeSinkError Outcome = "sink_error"
	OutcomeAborted   Outcome = "aborted"
)

// CycleResult is the structured outcome of one cycle.
type CycleResult struct {
	CycleID   string               `json:"cycle_id"`
	StartedAt time.Time            `json:"started_at"`
	Took      time.Duration        `json:"took_ns"`
	Outcome   Outcome              `json:"outcome"`
	Positions []model.PositionView `json:"positions"`
	Exits     []model.ExitRecord   `json:"exits"`
	Summary   model.Summary        `json:"summary"`
	Reason    string               `json:"reason,omitempty"`
	Error     string               `json:"error,omitempty"`
	SinkError string               `json:"sink_error,omitempty"`

	Err     error `json:"-"`
	SinkErr error `json:"-"`
}

// OK reports whether the cycle produced positions (a sink failure still counts).
func (r *CycleResult) OK() bool { return r.Err == nil }

// OrdersResult is the outcome of an order book request.
type OrdersResult struct {
	Orders []model.Order `json:"orders"`
	Reason string        `json:"reason,omitempty"`
	Err    error         `json:"-"`
}

// Publisher receives every finished cycle, successful or not.
type Publisher interface {
	Publish(ctx context.Context, res *CycleResult) error
}

// ExitNotifier is told about newly recorded exits.
type ExitNotifier interface {
	NotifyExits(ctx context.Context, exits []model.ExitRecord) error
}

// Deps are the collaborators of a Service. Orders, Sink, Publishers and
// Notifier are optional.
type Deps struct {
	Sessions   model.SessionProvider
	Positions  model.PositionFeed
	Orders     model.OrderFeed
	Reconciler *reconcile.Reconciler
	Sink       model.ExitSink
	Publishers []Publisher
	Notifier   ExitNotifier
	Log        *zap.Logger
}

// Service serialises cycles and remembers the last successful one.
type Service struct {
	deps Deps
	log  *zap.Logger
	now  func() time.Time

	// OnCycle is called after every cycle, for metrics.
	OnCycle func(res *CycleResult)

	cycleMu sync.Mutex

	lastMu sync.RWMutex
	last   *CycleResult
}

// New creates a Service. Sessions, Positions and Reconciler are required.
func New(deps Deps) *Service {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{deps: deps, log: log.Named("tracker"), now: time.Now}
}

// RunCycle performs one reconciliation cycle. Cycles never overlap.
func (s *Service) RunCycle(ctx context.Context) (res *CycleResult) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	start := s.now()
	res = &CycleResult{
		CycleID:   uuid.NewString(),
		StartedAt: start,
		Positions: []model.PositionView{},
		Exits:     []model.ExitRecord{},
	}
	ctx = logger.WithTraceID(ctx, res.CycleID)
	log := logger.From(ctx, s.log)

	defer func() {
		if p := recover(); p != nil {
			log.Error("cycle panicked", zap.Any("panic", p), zap.Stack("stack"))
			res.Positions = []model.PositionView{}
			res.Exits = []model.ExitRecord{}
			res.Summary = model.Summary{}
			s.fail(res, OutcomeAborted, "Internal error, cycle aborted", fmt.Errorf("tracker: panic: %v", p))
		}
		s.finish(ctx, log, res, start)
	}()

	sess, reason, err := s.session(ctx)
	if err != nil {
		s.fail(res, OutcomeNoSession, reason, err)
		return res
	}

	rows, err := s.deps.Positions.Positions(ctx, sess)
	if err != nil {
		s.fail(res, OutcomeFeedError, "Could not fetch positions: "+err.Error(), fmt.Errorf("%w: positions: %w", ErrFeed, err))
		return res
	}

	out, err := s.deps.Reconciler.Reconcile(ctx, rows)
	if err != nil {
		s.fail(res, OutcomeAborted, "Cycle cancelled", err)
		return res
	}
	res.Positions = out.Positions
	res.Exits = out.Exits
	res.Summary = portfolio.Summarize(out.Positions, out.Exits)
	res.Outcome = OutcomeOK
	if len(res.Positions) == 0 {
		res.Reason = "No MTF positions found"
	}

	// the snapshot is already replaced; a failed write must not roll it back
	if len(out.Exits) > 0 && s.deps.Sink != nil {
		if err := s.deps.Sink.Append(ctx, out.Exits); err != nil {
			res.SinkErr = fmt.Errorf("%w: %w", ErrSink, err)
			res.SinkError = res.SinkErr.Error()
			res.Outcome = OutcomeSinkError
			log.Error("exit sink write failed", zap.Int("exits", len(out.Exits)), zap.Error(err))
		}
	}

	s.lastMu.Lock()
	s.last = res
	s.lastMu.Unlock()
	return res
}

// Last returns the most recent cycle that produced positions.
func (s *Service) Last() (*CycleResult, bool) {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.last, s.last != nil
}

// Orders returns today's orders through the same session as the cycles.
func (s *Service) Orders(ctx context.Context) OrdersResult {
	if s.deps.Orders == nil {
		return OrdersResult{Orders: []model.Order{}, Reason: "Order feed not configured", Err: fmt.Errorf("%w: no order feed", ErrFeed)}
	}
	sess, reason, err := s.session(ctx)
	if err != nil {
		return OrdersResult{Orders: []model.Order{}, Reason: reason, Err: err}
	}
	rows, err := s.deps.Orders.Orders(ctx, sess)
	if err != nil {
		return OrdersResult{
			Orders: []model.Order{},
			Reason: "Could not fetch orders: " + err.Error(),
			Err:    fmt.Errorf("%w: orders: %w", ErrFeed, err),
		}
	}
	orders := orderbook.Today(rows, s.now())
	res := OrdersResult{Orders: orders}
	if len(orders) == 0 {
		res.Reason = "No orders today"
	}
	return res
}

func (s *Service) session(ctx context.Context) (*model.Session, string, error) {
	sess, err := s.deps.Sessions.Current(ctx)
	if err != nil {
		return nil, "Login failed: " + err.Error(), fmt.Errorf("%w: %w", ErrNoSession, err)
	}
	if sess == nil {
		return nil, "Not logged in", ErrNoSession
	}
	if !sess.Valid(s.now()) {
		return nil, "Session expired, please log in again", ErrSessionExpired
	}
	return sess, "", nil
}

func (s *Service) fail(res *CycleResult, outcome Outcome, reason string, err error) {
	res.Outcome = outcome
	res.Reason = reason
	res.Err = err
	res.Error = err.Error()
}

func (s *Service) finish(ctx context.Context, log *zap.Logger, res *CycleResult, start time.Time) {
	res.Took = s.now().Sub(start)

	if res.Err != nil {
		log.Warn("cycle failed",
			zap.String("outcome", string(res.Outcome)),
			zap.String("reason", res.Reason),
			zap.Error(res.Err),
		)
	} else {
		log.Info("cycle done",
			zap.Int("positions", len(res.Positions)),
			zap.Int("exits", len(res.Exits)),
			zap.String("total_pnl", res.Summary.TotalUnrealizedPnL.StringFixed(2)),
			zap.String("total_pct", res.Summary.AveragePercentReturn.StringFixed(2)),
			zap.Duration("took", res.Took),
		)
	}

	for _, p := range s.deps.Publishers {
		if err := guard(func() error { return p.Publish(ctx, res) }); err != nil {
			log.Warn("publish failed", zap.Error(err))
		}
	}
	if len(res.Exits) > 0 && s.deps.Notifier != nil {
		if err := guard(func() error { return s.deps.Notifier.NotifyExits(ctx, res.Exits) }); err != nil {
			log.Warn("exit notification failed", zap.Error(err))
		}
	}
	if s.OnCycle != nil {
		s.OnCycle(res)
	}
}

// guard runs fn, turning a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}

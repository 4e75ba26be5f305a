package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtf-tracker/internal/model"
	"mtf-tracker/internal/reconcile"
	"mtf-tracker/internal/snapshot"
)

var testNow = time.Date(2026, 10, 14, 5, 0, 0, 0, time.UTC)

type fakeSessions struct {
	sess *model.Session
	err  error
}

func (f *fakeSessions) Current(context.Context) (*model.Session, error) { return f.sess, f.err }

func validSession() *model.Session {
	return &model.Session{BearerToken: "t", SessionID: "s", BaseURL: "https://b", ValidUntil: testNow.Add(time.Hour)}
}

type fakeFeed struct {
	mu     sync.Mutex
	rows   []model.RawPositionRow
	err    error
	orders []model.RawOrderRow
	calls  int
}

func (f *fakeFeed) set(err error, rows ...model.RawPositionRow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows, f.err = rows, err
}

func (f *fakeFeed) Positions(context.Context, *model.Session) ([]model.RawPositionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.rows, f.err
}

func (f *fakeFeed) Orders(context.Context, *model.Session) ([]model.RawOrderRow, error) {
	return f.orders, f.err
}

type fakeSink struct {
	err     error
	batches [][]model.ExitRecord
}

func (f *fakeSink) Append(_ context.Context, recs []model.ExitRecord) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, recs)
	return nil
}

type recorder struct {
	results []*CycleResult
	exits   []model.ExitRecord
}

func (r *recorder) Publish(_ context.Context, res *CycleResult) error {
	r.results = append(r.results, res)
	return nil
}

func (r *recorder) NotifyExits(_ context.Context, exits []model.ExitRecord) error {
	r.exits = append(r.exits, exits...)
	return nil
}

type flatPrices struct{}

func (flatPrices) Resolve(context.Context, string) (decimal.Decimal, bool) {
	return decimal.NewFromInt(110), true
}

type fixture struct {
	svc      *Service
	sessions *fakeSessions
	feed     *fakeFeed
	sink     *fakeSink
	rec      *recorder
	snap     *snapshot.Store
}

func newFixture() *fixture {
	f := &fixture{
		sessions: &fakeSessions{sess: validSession()},
		feed:     &fakeFeed{},
		sink:     &fakeSink{},
		rec:      &recorder{},
		snap:     snapshot.New(),
	}
	clock := func() time.Time { return testNow }
	r := reconcile.New(reconcile.Config{}, flatPrices{}, f.snap, nil, reconcile.WithClock(clock))
	f.svc = New(Deps{
		Sessions:   f.sessions,
		Positions:  f.feed,
		Orders:     f.feed,
		Reconciler: r,
		Sink:       f.sink,
		Publishers: []Publisher{f.rec},
		Notifier:   f.rec,
	})
	f.svc.now = clock
	return f
}

func row(sym string, qty int64) model.RawPositionRow {
	return model.RawPositionRow{
		Category:  model.CategoryMTF,
		Symbol:    sym,
		BuyQty:    qty,
		BuyAmount: decimal.NewFromInt(100 * qty),
	}
}

func TestRunCycle_Success(t *testing.T) {
	f := newFixture()
	f.feed.set(nil, row("S", 10))

	res := f.svc.RunCycle(context.Background())
	require.True(t, res.OK(), res.Error)
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.NotEmpty(t, res.CycleID)
	require.Len(t, res.Positions, 1)
	assert.Equal(t, "100", res.Summary.TotalUnrealizedPnL.String())
	assert.Equal(t, "10", res.Summary.AveragePercentReturn.String())
	assert.Empty(t, res.Reason)

	last, ok := f.svc.Last()
	require.True(t, ok)
	assert.Same(t, res, last)
	assert.Len(t, f.rec.results, 1)
}

func TestRunCycle_NoSession(t *testing.T) {
	f := newFixture()
	f.sessions.sess = nil

	res := f.svc.RunCycle(context.Background())
	assert.ErrorIs(t, res.Err, ErrNoSession)
	assert.Equal(t, OutcomeNoSession, res.Outcome)
	assert.Equal(t, "Not logged in", res.Reason)
	assert.Empty(t, res.Positions)
	assert.Zero(t, f.feed.calls, "feed must not be called without a session")

	_, ok := f.svc.Last()
	assert.False(t, ok)
	// failures are still published so clients see the reason
	assert.Len(t, f.rec.results, 1)
}

func TestRunCycle_ExpiredSession(t *testing.T) {
	f := newFixture()
	f.sessions.sess.ValidUntil = testNow.Add(-time.Second)

	res := f.svc.RunCycle(context.Background())
	assert.ErrorIs(t, res.Err, ErrSessionExpired)
	assert.Zero(t, f.feed.calls)
}

func TestRunCycle_ProviderError(t *testing.T) {
	f := newFixture()
	boom := errors.New("login rejected")
	f.sessions.err = boom

	res := f.svc.RunCycle(context.Background())
	assert.ErrorIs(t, res.Err, ErrNoSession)
	assert.ErrorIs(t, res.Err, boom)
	assert.Contains(t, res.Reason, "login rejected")
}

func TestRunCycle_FeedFailureLeavesSnapshotUntouched(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.feed.set(nil, row("S", 100))
	require.True(t, f.svc.RunCycle(ctx).OK())

	f.feed.set(errors.New("502 bad gateway"))
	res := f.svc.RunCycle(ctx)
	assert.ErrorIs(t, res.Err, ErrFeed)
	assert.Equal(t, OutcomeFeedError, res.Outcome)
	assert.Empty(t, res.Exits)
	assert.Equal(t, int64(100), f.snap.Get("S"))

	// next good cycle diffs against the pre-failure snapshot
	f.feed.set(nil, row("S", 60))
	res = f.svc.RunCycle(ctx)
	require.True(t, res.OK())
	require.Len(t, res.Exits, 1)
	assert.Equal(t, int64(40), res.Exits[0].Quantity)
}

func TestRunCycle_SinkFailureStillUpdatesSnapshot(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.feed.set(nil, row("S", 100))
	f.svc.RunCycle(ctx)

	f.sink.err = errors.New("disk full")
	f.feed.set(nil, row("S", 60))
	res := f.svc.RunCycle(ctx)

	assert.True(t, res.OK())
	assert.ErrorIs(t, res.SinkErr, ErrSink)
	assert.Equal(t, OutcomeSinkError, res.Outcome)
	require.Len(t, res.Positions, 1)
	assert.Equal(t, model.StatusPartialExit, res.Positions[0].Status)
	assert.Equal(t, int64(60), f.snap.Get("S"))

	// the exit is not re-detected once the sink recovers
	f.sink.err = nil
	res = f.svc.RunCycle(ctx)
	assert.Empty(t, res.Exits)
	assert.Empty(t, f.sink.batches)
}

func TestRunCycle_ExitsReachSinkAndNotifier(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.feed.set(nil, row("S", 10))
	f.svc.RunCycle(ctx)
	f.feed.set(nil)
	res := f.svc.RunCycle(ctx)

	require.Len(t, res.Exits, 1)
	require.Len(t, f.sink.batches, 1)
	assert.Equal(t, res.Exits, f.sink.batches[0])
	assert.Len(t, f.rec.exits, 1)
	assert.Equal(t, "100", res.Summary.TotalRealizedPnL.String())
}

func TestRunCycle_NoPositions(t *testing.T) {
	f := newFixture()
	f.feed.set(nil, model.RawPositionRow{Category: "CNC", Symbol: "X", BuyQty: 1})

	res := f.svc.RunCycle(context.Background())
	assert.True(t, res.OK())
	assert.Equal(t, "No MTF positions found", res.Reason)
	assert.Empty(t, res.Positions)
}

type panicFeed struct{}

func (panicFeed) Positions(context.Context, *model.Session) ([]model.RawPositionRow, error) {
	panic("boom")
}

func TestRunCycle_RecoversPanic(t *testing.T) {
	f := newFixture()
	f.svc.deps.Positions = panicFeed{}

	var res *CycleResult
	require.NotPanics(t, func() { res = f.svc.RunCycle(context.Background()) })
	assert.Error(t, res.Err)
	assert.Equal(t, OutcomeAborted, res.Outcome)
}

func TestRunCycle_OnCycleHook(t *testing.T) {
	f := newFixture()
	var got []Outcome
	f.svc.OnCycle = func(res *CycleResult) { got = append(got, res.Outcome) }

	f.svc.RunCycle(context.Background())
	f.sessions.sess = nil
	f.svc.RunCycle(context.Background())

	assert.Equal(t, []Outcome{OutcomeOK, OutcomeNoSession}, got)
}

func TestOrders(t *testing.T) {
	f := newFixture()
	f.feed.orders = []model.RawOrderRow{
		{Symbol: "A", Time: "14-Oct-2026 10:00:00"},
		{Symbol: "B", Time: "13-Oct-2026 10:00:00"},
	}

	res := f.svc.Orders(context.Background())
	require.NoError(t, res.Err)
	require.Len(t, res.Orders, 1)
	assert.Equal(t, "A", res.Orders[0].Symbol)

	f.sessions.sess = nil
	res = f.svc.Orders(context.Background())
	assert.ErrorIs(t, res.Err, ErrNoSession)
}

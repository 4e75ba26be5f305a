package quote

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = 0 // source is queried normally
	StateOpen     State = 1 // source is skipped until the cool-down elapses
	StateHalfOpen State = 2 // one trial lookup is let through
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a source is skipped by its breaker.
var ErrCircuitOpen = errors.New("quote source circuit open")

// Breaker stops hammering a quote source that keeps failing.
// After maxFailures consecutive failures the breaker opens and every lookup
// is rejected for cooldown. The next lookup after that is a half-open
// trial, and lookups arriving while it runs are rejected. Success closes
// the breaker, failure reopens it.
type Breaker struct {
	mu           sync.Mutex
	state        State
	failures     int
	maxFailures  int
	cooldown     time.Duration
	lastFailure  time.Time
	trialRunning bool // a half-open trial is in flight
	now          func() time.Time

	OnStateChange func(from, to State)
}

// NewBreaker creates a closed breaker. maxFailures <= 0 disables it.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		state:       StateClosed,
		now:         time.Now,
	}
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	if b.maxFailures <= 0 {
		return fn()
	}

	b.mu.Lock()
	if b.state == StateOpen {
		if b.now().Sub(b.lastFailure) <= b.cooldown {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
	}
	trial := b.state == StateHalfOpen
	if trial {
		if b.trialRunning {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.trialRunning = true
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if trial {
		b.trialRunning = false
	}

	if err != nil {
		b.failures++
		b.lastFailure = b.now()
		if b.state == StateHalfOpen || b.failures >= b.maxFailures {
			b.transition(StateOpen)
		}
		return err
	}

	if b.state == StateHalfOpen {
		b.transition(StateClosed)
	}
	b.failures = 0
	return nil
}

// CurrentState returns the breaker state.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if to == StateClosed {
		b.failures = 0
	}
	if b.OnStateChange != nil {
		b.OnStateChange(from, to)
	}
}

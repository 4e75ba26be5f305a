package model

import (
	"context"

	"github.com/shopspring/decimal"
)

// ── Ports ──
// These interfaces decouple the reconciliation core from the broker, the
// quote providers and the exit store.

// SessionProvider supplies the current broker session.
type SessionProvider interface {
	// Current returns nil, nil when nobody is logged in.
	Current(ctx context.Context) (*Session, error)
}

// PositionFeed fetches the raw position list for a session.
type PositionFeed interface {
	Positions(ctx context.Context, sess *Session) ([]RawPositionRow, error)
}

// OrderFeed fetches the raw order book for a session.
type OrderFeed interface {
	Orders(ctx context.Context, sess *Session) ([]RawOrderRow, error)
}

// PriceResolver returns a reference price, or false when no source answered.
type PriceResolver interface {
	Resolve(ctx context.Context, symbol string) (decimal.Decimal, bool)
}

// ExitSink appends realized exits. There is no update or delete path.
type ExitSink interface {
	Append(ctx context.Context, records []ExitRecord) error
}

// ExitHistory reads back persisted exits for reporting.
type ExitHistory interface {
	List(ctx context.Context, limit int) ([]ExitRecord, error)
}

// Package snapshot holds the last observed open quantity per symbol.
//
// The store is process-local: it is created empty at start, replaced once
// per reconciliation cycle and lost on restart. A restart therefore treats
// every quantity in the next feed as a fresh baseline.
package snapshot

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Entry is the state remembered for one symbol.
type Entry struct {
	Qty      int64
	AvgPrice decimal.Decimal // entry price at the time Qty was observed
}

// Store is the diff baseline for the next poll.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New creates an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]Entry)}
}

// Get returns the last quantity for symbol, 0 when unknown.
func (s *Store) Get(symbol string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[symbol].Qty
}

// Entry returns the full entry for symbol.
func (s *Store) Entry(symbol string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[symbol]
	return e, ok
}

// All returns a copy of every entry.
func (s *Store) All() map[string]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(map[string]Entry, len(s.entries))
	for k, v := range s.entries {
		cp[k] = v
	}
	return cp
}

// SetAll replaces the whole store. Entries with a non-positive quantity are
// dropped, so a fully exited symbol falls back to the default of 0.
func (s *Store) SetAll(current map[string]Entry) {
	next := make(map[string]Entry, len(current))
	for k, v := range current {
		if v.Qty > 0 {
			next[k] = v
		}
	}
	s.mu.Lock()
	s.entries = next
	s.mu.Unlock()
}

// Len returns the number of tracked symbols.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

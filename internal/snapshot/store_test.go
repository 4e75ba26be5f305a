package snapshot

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_DefaultsToZero(t *testing.T) {
	s := New()
	assert.Equal(t, int64(0), s.Get("RELIANCE-EQ"))
	_, ok := s.Entry("RELIANCE-EQ")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestStore_SetAllReplacesWholesale(t *testing.T) {
	s := New()
	s.SetAll(map[string]Entry{
		"A": {Qty: 10, AvgPrice: decimal.NewFromInt(100)},
		"B": {Qty: 5},
	})
	require.Equal(t, 2, s.Len())

	s.SetAll(map[string]Entry{"C": {Qty: 1}})
	assert.Equal(t, int64(0), s.Get("A"), "A must not survive a replace")
	assert.Equal(t, int64(0), s.Get("B"))
	assert.Equal(t, int64(1), s.Get("C"))
}

func TestStore_DropsZeroQuantities(t *testing.T) {
	s := New()
	s.SetAll(map[string]Entry{"A": {Qty: 0}, "B": {Qty: -3}, "C": {Qty: 7}})
	assert.Equal(t, 1, s.Len())
	e, ok := s.Entry("C")
	require.True(t, ok)
	assert.Equal(t, int64(7), e.Qty)
}

func TestStore_AllIsACopy(t *testing.T) {
	s := New()
	s.SetAll(map[string]Entry{"A": {Qty: 10}})
	all := s.All()
	all["A"] = Entry{Qty: 99}
	assert.Equal(t, int64(10), s.Get("A"))
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int64) {
			defer wg.Done()
			s.SetAll(map[string]Entry{"A": {Qty: n + 1}})
		}(int64(i))
		go func() {
			defer wg.Done()
			_ = s.Get("A")
			_ = s.All()
		}()
	}
	wg.Wait()
	assert.Greater(t, s.Get("A"), int64(0))
}

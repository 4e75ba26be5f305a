package portfolio

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"mtf-tracker/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAveragePrice(t *testing.T) {
	assert.True(t, AveragePrice(d("1000"), 3).Equal(d("333.33")))
	assert.True(t, AveragePrice(d("250.5"), 1).Equal(d("250.5")))
}

func TestAveragePrice_ZeroQty(t *testing.T) {
	assert.True(t, AveragePrice(d("1000"), 0).IsZero())
	assert.True(t, AveragePrice(d("1000"), -5).IsZero())
}

func TestPnL(t *testing.T) {
	assert.True(t, PnL(d("110"), d("100"), 40).Equal(d("400")))
	assert.True(t, PnL(d("95.5"), d("100"), 10).Equal(d("-45")))
	assert.True(t, PnL(d("95.5"), d("100"), 0).IsZero())
}

func TestPercentReturn(t *testing.T) {
	assert.True(t, PercentReturn(d("102"), d("100")).Equal(d("2")))
	assert.True(t, PercentReturn(d("1"), d("3")).Equal(d("-66.67")))
	assert.True(t, PercentReturn(d("123.45"), decimal.Zero).IsZero(), "zero avg must not divide")
}

func TestSummarize(t *testing.T) {
	views := []model.PositionView{
		{Symbol: "A", Quantity: 10, UnrealizedPnL: d("100"), PercentReturn: d("5")},
		{Symbol: "B", Quantity: 5, UnrealizedPnL: d("-40"), PercentReturn: d("-2")},
		{Symbol: "C", Quantity: 0, UnrealizedPnL: d("0"), PercentReturn: d("0")},
	}
	s := Summarize(views, nil)

	assert.True(t, s.TotalUnrealizedPnL.Equal(d("60")), "total: %s", s.TotalUnrealizedPnL)
	assert.True(t, s.AveragePercentReturn.Equal(d("1")), "avg pct: %s", s.AveragePercentReturn)
	assert.Equal(t, 2, s.OpenPositions)
	assert.True(t, s.TotalRealizedPnL.IsZero())
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, nil)
	assert.True(t, s.TotalUnrealizedPnL.IsZero())
	assert.True(t, s.AveragePercentReturn.IsZero())
	assert.Equal(t, 0, s.OpenPositions)
}

func TestSummarize_RealizedFromExits(t *testing.T) {
	exits := []model.ExitRecord{
		{Symbol: "A", Quantity: 40, RealizedPnL: d("400")},
		{Symbol: "B", Quantity: 5, RealizedPnL: d("-22.5")},
	}
	s := Summarize(nil, exits)
	assert.True(t, s.TotalRealizedPnL.Equal(d("377.5")))
}

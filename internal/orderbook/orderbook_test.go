package orderbook

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtf-tracker/internal/markethours"
	"mtf-tracker/internal/model"
)

func TestToday(t *testing.T) {
	now := time.Date(2026, 10, 14, 11, 0, 0, 0, markethours.IST)
	rows := []model.RawOrderRow{
		{Symbol: "INFY", Side: "B", Quantity: 3, AvgPrice: decimal.RequireFromString("1450.256"), Product: "MTF", Status: "complete", Time: "14-Oct-2026 10:01:02"},
		{Symbol: "OLD", Time: "13-Oct-2026 15:00:00"},
		{Symbol: "UPPER", Product: "CNC", Time: "14-OCT-2026 09:30:00"},
		{Symbol: "SHORT", Time: "14-Oct"},
		{Symbol: "EMPTY"},
	}

	got := Today(rows, now)
	require.Len(t, got, 2)
	assert.Equal(t, "INFY", got[0].Symbol)
	assert.Equal(t, "1450.26", got[0].Price.StringFixed(2))
	assert.Equal(t, "UPPER", got[1].Symbol)

	mtf := Filter(got, model.CategoryMTF)
	require.Len(t, mtf, 1)
	assert.Equal(t, "INFY", mtf[0].Symbol)
	assert.Len(t, Filter(got, ""), 2)
}

func TestToday_UsesISTDate(t *testing.T) {
	// 19:00 UTC on the 13th is already the 14th in IST
	now := time.Date(2026, 10, 13, 19, 0, 0, 0, time.UTC)
	got := Today([]model.RawOrderRow{{Symbol: "X", Time: "14-Oct-2026 00:45:00"}}, now)
	assert.Len(t, got, 1)
}

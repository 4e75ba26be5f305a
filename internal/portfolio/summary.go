package portfolio

import (
	"github.com/shopspring/decimal"

	"mtf-tracker/internal/model"
)

// Summarize folds a cycle's views into headline numbers.
//
// The percent figure is the unweighted mean of the per-symbol returns, not a
// size-weighted average. exits may be nil.
func Summarize(views []model.PositionView, exits []model.ExitRecord) model.Summary {
	s := model.Summary{
		TotalUnrealizedPnL:   decimal.Zero,
		AveragePercentReturn: decimal.Zero,
		TotalRealizedPnL:     decimal.Zero,
	}

	pctSum := decimal.Zero
	for _, v := range views {
		s.TotalUnrealizedPnL = s.TotalUnrealizedPnL.Add(v.UnrealizedPnL)
		pctSum = pctSum.Add(v.PercentReturn)
		if v.Quantity > 0 {
			s.OpenPositions++
		}
	}
	if len(views) > 0 {
		s.AveragePercentReturn = Round2(pctSum.Div(decimal.NewFromInt(int64(len(views)))))
	}
	s.TotalUnrealizedPnL = Round2(s.TotalUnrealizedPnL)

	for _, e := range exits {
		s.TotalRealizedPnL = s.TotalRealizedPnL.Add(e.RealizedPnL)
	}
	s.TotalRealizedPnL = Round2(s.TotalRealizedPnL)
	return s
}

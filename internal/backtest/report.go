package backtest

import (
	"fmt"
	"io"
	"math"
)

// WriteReport renders the result's summary statistics as a text block.
func WriteReport(w io.Writer, r *Result) error {
	s := r.Stats
	lines := []struct {
		label string
		value string
	}{
		{"Strategy", r.Strategy},
		{"Symbol", r.Symbol},
		{"Bars", fmt.Sprintf("%d", r.Bars)},
		{"Starting cash", fmt.Sprintf("%.2f", s.StartingCash)},
		{"Final equity", fmt.Sprintf("%.2f", s.FinalEquity)},
		{"Total return", fmt.Sprintf("%.2f%%", s.TotalReturnPct)},
		{"Annual return", fmt.Sprintf("%.2f%%", s.AnnualReturnPct)},
		{"Annual volatility", fmt.Sprintf("%.2f%%", s.AnnualVolatilityPct)},
		{"Sharpe ratio", fmt.Sprintf("%.2f", s.Sharpe)},
		{"Max drawdown", fmt.Sprintf("%.2f%%", s.MaxDrawdownPct)},
		{"Max drawdown bars", fmt.Sprintf("%d", s.MaxDrawdownBars)},
		{"Calmar ratio", fmt.Sprintf("%.2f", s.Calmar)},
		{"Exposure", fmt.Sprintf("%.2f%%", s.ExposurePct)},
		{"Trades", fmt.Sprintf("%d", s.TradeCount)},
		{"Win rate", fmt.Sprintf("%.2f%%", s.WinRatePct)},
		{"Avg win", fmt.Sprintf("%.2f", s.AvgWin)},
		{"Avg loss", fmt.Sprintf("%.2f", s.AvgLoss)},
		{"Expectancy", fmt.Sprintf("%.2f", s.Expectancy)},
		{"Profit factor", formatRatio(s.ProfitFactor)},
		{"Best trade", formatTrade(s.BestTrade, s.TradeCount)},
		{"Worst trade", formatTrade(s.WorstTrade, s.TradeCount)},
		{"Win streak", fmt.Sprintf("%d", s.LongestWinStreak)},
		{"Loss streak", fmt.Sprintf("%d", s.LongestLossStreak)},
		{"Rejections", fmt.Sprintf("%d", len(r.Rejections))},
	}

	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", l.label, l.value); err != nil {
			return err
		}
	}
	return nil
}

func formatRatio(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", v)
}

func formatTrade(v float64, count int) string {
	if count == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}

package backtest

import (
	"math"
	"sort"

	"backlab/internal/domain"
)

// periodsPerYear is the annualization factor for 15-minute bars:
// 4 bars/hour x 24 hours x 365 days (crypto trades continuously).
const periodsPerYear = 365 * 24 * 4

// Stats summarizes one run. All values derive from the equity curve and the
// trade log alone. Trade-level metrics classify wins and losses on net PnL,
// after commission.
type Stats struct {
	StartingCash        float64
	FinalEquity         float64
	TotalReturnPct      float64
	AnnualReturnPct     float64
	AnnualVolatilityPct float64
	Sharpe              float64
	MaxDrawdownPct      float64
	MaxDrawdownBars     int
	Calmar              float64
	ExposurePct         float64

	TradeCount        int
	WinRatePct        float64
	AvgWin            float64
	AvgLoss           float64
	Expectancy        float64
	ProfitFactor      float64
	BestTrade         float64
	WorstTrade        float64
	LongestWinStreak  int
	LongestLossStreak int
}

// ComputeStats builds Stats from an equity curve (starting-cash sample
// first), the closed trades, and the bar count.
func ComputeStats(equity []float64, trades []domain.Trade, bars int) Stats {
	s := Stats{TradeCount: len(trades)}
	if len(equity) == 0 {
		return s
	}
	s.StartingCash = equity[0]
	s.FinalEquity = equity[len(equity)-1]
	if s.StartingCash > 0 {
		s.TotalReturnPct = (s.FinalEquity/s.StartingCash - 1) * 100
	}

	s.annualize(equity)
	s.drawdown(equity)
	if s.MaxDrawdownPct > 0 {
		s.Calmar = s.AnnualReturnPct / s.MaxDrawdownPct
	}
	s.ExposurePct = exposurePct(trades, bars)
	s.tradeStats(trades)
	return s
}

// annualize computes annualized return, volatility, and Sharpe from per-bar
// returns at the 15-minute cadence.
func (s *Stats) annualize(equity []float64) {
	n := len(equity) - 1
	if n <= 0 || s.StartingCash <= 0 || s.FinalEquity <= 0 {
		return
	}

	growth := s.FinalEquity / s.StartingCash
	s.AnnualReturnPct = (math.Pow(growth, float64(periodsPerYear)/float64(n)) - 1) * 100

	returns := make([]float64, 0, n)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] != 0 {
			returns = append(returns, equity[i]/equity[i-1]-1)
		}
	}
	if len(returns) == 0 {
		return
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var varsum float64
	for _, r := range returns {
		varsum += (r - mean) * (r - mean)
	}
	std := math.Sqrt(varsum / float64(len(returns)))

	s.AnnualVolatilityPct = std * math.Sqrt(periodsPerYear) * 100
	if std > 0 {
		s.Sharpe = mean / std * math.Sqrt(periodsPerYear)
	}
}

// drawdown computes the maximum peak-to-trough drawdown and the longest
// stretch of bars spent below a prior peak.
func (s *Stats) drawdown(equity []float64) {
	peak := equity[0]
	peakIdx := 0
	for i, eq := range equity {
		if eq >= peak {
			peak = eq
			peakIdx = i
			continue
		}
		if peak > 0 {
			if dd := (peak - eq) / peak * 100; dd > s.MaxDrawdownPct {
				s.MaxDrawdownPct = dd
			}
		}
		if under := i - peakIdx; under > s.MaxDrawdownBars {
			s.MaxDrawdownBars = under
		}
	}
}

// exposurePct measures the share of bars with an open position, taken as
// the union of the trades' bar intervals.
func exposurePct(trades []domain.Trade, bars int) float64 {
	if bars == 0 || len(trades) == 0 {
		return 0
	}
	type interval struct{ lo, hi int }
	ivs := make([]interval, len(trades))
	for i, t := range trades {
		ivs[i] = interval{t.EntryBar, t.ExitBar}
	}
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].lo < ivs[j].lo })

	covered := 0
	cur := ivs[0]
	for _, iv := range ivs[1:] {
		if iv.lo <= cur.hi+1 {
			if iv.hi > cur.hi {
				cur.hi = iv.hi
			}
			continue
		}
		covered += cur.hi - cur.lo + 1
		cur = iv
	}
	covered += cur.hi - cur.lo + 1
	return float64(covered) / float64(bars) * 100
}

// tradeStats computes the per-trade metrics on net PnL.
func (s *Stats) tradeStats(trades []domain.Trade) {
	if len(trades) == 0 {
		return
	}

	var wins, losses int
	var winSum, lossSum, netSum float64
	var winStreak, lossStreak int
	s.BestTrade = math.Inf(-1)
	s.WorstTrade = math.Inf(1)

	for _, t := range trades {
		net := t.NetPnL()
		netSum += net
		if net > s.BestTrade {
			s.BestTrade = net
		}
		if net < s.WorstTrade {
			s.WorstTrade = net
		}
		switch {
		case net > 0:
			wins++
			winSum += net
			winStreak++
			lossStreak = 0
		case net < 0:
			losses++
			lossSum += -net
			lossStreak++
			winStreak = 0
		default:
			winStreak, lossStreak = 0, 0
		}
		if winStreak > s.LongestWinStreak {
			s.LongestWinStreak = winStreak
		}
		if lossStreak > s.LongestLossStreak {
			s.LongestLossStreak = lossStreak
		}
	}

	s.WinRatePct = float64(wins) / float64(len(trades)) * 100
	if wins > 0 {
		s.AvgWin = winSum / float64(wins)
	}
	if losses > 0 {
		s.AvgLoss = lossSum / float64(losses)
	}
	s.Expectancy = netSum / float64(len(trades))
	if lossSum > 0 {
		s.ProfitFactor = winSum / lossSum
	} else if winSum > 0 {
		s.ProfitFactor = math.Inf(1)
	}
}

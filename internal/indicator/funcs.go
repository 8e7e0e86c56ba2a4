package indicator

import (
	"fmt"
	"math"
)

// nanSlice returns a length-n slice filled with NaN.
func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func oneInput(name string, inputs [][]float64) ([]float64, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("%s takes exactly 1 input array, got %d", name, len(inputs))
	}
	return inputs[0], nil
}

// SMA returns a simple moving average function over the given period. The
// first period-1 values are NaN.
func SMA(period int) Func {
	return func(inputs ...[]float64) ([][]float64, error) {
		if period <= 0 {
			return nil, fmt.Errorf("sma period must be positive, got %d", period)
		}
		src, err := oneInput("sma", inputs)
		if err != nil {
			return nil, err
		}
		out := nanSlice(len(src))
		var sum float64
		for i, v := range src {
			sum += v
			if i >= period {
				sum -= src[i-period]
			}
			if i >= period-1 {
				out[i] = sum / float64(period)
			}
		}
		return [][]float64{out}, nil
	}
}

// EMA returns an exponential moving average function over the given period,
// seeded with the simple average of the first period values. The first
// period-1 values are NaN.
func EMA(period int) Func {
	return func(inputs ...[]float64) ([][]float64, error) {
		if period <= 0 {
			return nil, fmt.Errorf("ema period must be positive, got %d", period)
		}
		src, err := oneInput("ema", inputs)
		if err != nil {
			return nil, err
		}
		out := emaOver(src, period)
		return [][]float64{out}, nil
	}
}

// emaOver computes an EMA over src, skipping any NaN prefix and seeding with
// the simple average of the first period valid values.
func emaOver(src []float64, period int) []float64 {
	out := nanSlice(len(src))
	alpha := 2.0 / float64(period+1)

	start := 0
	for start < len(src) && math.IsNaN(src[start]) {
		start++
	}
	if start+period > len(src) {
		return out
	}

	var sum float64
	for i := start; i < start+period; i++ {
		sum += src[i]
	}
	prev := sum / float64(period)
	out[start+period-1] = prev

	for i := start + period; i < len(src); i++ {
		prev = src[i]*alpha + prev*(1-alpha)
		out[i] = prev
	}
	return out
}

// RSI returns a relative strength index function over the given period using
// Wilder's smoothing. The first period values are NaN.
func RSI(period int) Func {
	return func(inputs ...[]float64) ([][]float64, error) {
		if period <= 0 {
			return nil, fmt.Errorf("rsi period must be positive, got %d", period)
		}
		src, err := oneInput("rsi", inputs)
		if err != nil {
			return nil, err
		}
		out := nanSlice(len(src))
		if len(src) <= period {
			return [][]float64{out}, nil
		}

		var avgGain, avgLoss float64
		for i := 1; i <= period; i++ {
			d := src[i] - src[i-1]
			if d > 0 {
				avgGain += d
			} else {
				avgLoss -= d
			}
		}
		avgGain /= float64(period)
		avgLoss /= float64(period)
		out[period] = rsiValue(avgGain, avgLoss)

		for i := period + 1; i < len(src); i++ {
			d := src[i] - src[i-1]
			gain, loss := 0.0, 0.0
			if d > 0 {
				gain = d
			} else {
				loss = -d
			}
			avgGain = (avgGain*float64(period-1) + gain) / float64(period)
			avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
			out[i] = rsiValue(avgGain, avgLoss)
		}
		return [][]float64{out}, nil
	}
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// BBands returns a Bollinger Bands function over the given period and width
// k, producing three outputs: upper band, middle (SMA), lower band.
func BBands(period int, k float64) Func {
	return func(inputs ...[]float64) ([][]float64, error) {
		if period <= 0 {
			return nil, fmt.Errorf("bbands period must be positive, got %d", period)
		}
		src, err := oneInput("bbands", inputs)
		if err != nil {
			return nil, err
		}
		upper := nanSlice(len(src))
		mid := nanSlice(len(src))
		lower := nanSlice(len(src))

		for i := period - 1; i < len(src); i++ {
			window := src[i-period+1 : i+1]
			var sum float64
			for _, v := range window {
				sum += v
			}
			m := sum / float64(period)
			var varsum float64
			for _, v := range window {
				varsum += (v - m) * (v - m)
			}
			sd := math.Sqrt(varsum / float64(period))
			mid[i] = m
			upper[i] = m + k*sd
			lower[i] = m - k*sd
		}
		return [][]float64{upper, mid, lower}, nil
	}
}

// ATR returns an average true range function over the given period using
// Wilder's smoothing. It takes three inputs: high, low, close. The first
// period values are NaN.
func ATR(period int) Func {
	return func(inputs ...[]float64) ([][]float64, error) {
		if period <= 0 {
			return nil, fmt.Errorf("atr period must be positive, got %d", period)
		}
		if len(inputs) != 3 {
			return nil, fmt.Errorf("atr takes exactly 3 input arrays (high, low, close), got %d", len(inputs))
		}
		high, low, cls := inputs[0], inputs[1], inputs[2]
		n := len(high)
		out := nanSlice(n)
		if n <= period {
			return [][]float64{out}, nil
		}

		// True range needs the prior close, so it starts at index 1.
		tr := func(i int) float64 {
			r := high[i] - low[i]
			if d := math.Abs(high[i] - cls[i-1]); d > r {
				r = d
			}
			if d := math.Abs(low[i] - cls[i-1]); d > r {
				r = d
			}
			return r
		}

		var sum float64
		for i := 1; i <= period; i++ {
			sum += tr(i)
		}
		prev := sum / float64(period)
		out[period] = prev

		for i := period + 1; i < n; i++ {
			prev = (prev*float64(period-1) + tr(i)) / float64(period)
			out[i] = prev
		}
		return [][]float64{out}, nil
	}
}

// MACD returns a moving average convergence/divergence function with the
// given fast, slow, and signal periods, producing three outputs: the MACD
// line, the signal line, and the histogram.
func MACD(fast, slow, signal int) Func {
	return func(inputs ...[]float64) ([][]float64, error) {
		if fast <= 0 || slow <= 0 || signal <= 0 {
			return nil, fmt.Errorf("macd periods must be positive, got %d/%d/%d", fast, slow, signal)
		}
		if fast >= slow {
			return nil, fmt.Errorf("macd fast period %d must be smaller than slow period %d", fast, slow)
		}
		src, err := oneInput("macd", inputs)
		if err != nil {
			return nil, err
		}

		fastEMA := emaOver(src, fast)
		slowEMA := emaOver(src, slow)

		line := nanSlice(len(src))
		for i := range src {
			if !math.IsNaN(fastEMA[i]) && !math.IsNaN(slowEMA[i]) {
				line[i] = fastEMA[i] - slowEMA[i]
			}
		}

		sig := emaOver(line, signal)

		hist := nanSlice(len(src))
		for i := range src {
			if !math.IsNaN(line[i]) && !math.IsNaN(sig[i]) {
				hist[i] = line[i] - sig[i]
			}
		}
		return [][]float64{line, sig, hist}, nil
	}
}

package patterns

import "math"

// Trend is the direction of change of an ordered series.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// TrendThresholdPercent is the percent change beyond which a series is no longer stable.
const TrendThresholdPercent = 5.0

// PercentChange splits values into halves (the second half takes the extra element on odd
// lengths) and returns the percent change of the second-half mean relative to the first.
// Fewer than two values, or a first-half mean of zero, yield 0.
func PercentChange(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mid := len(values) / 2
	first := mean(values[:mid])
	second := mean(values[mid:])
	if first == 0 {
		return 0
	}
	return (second - first) / first * 100
}

// ClassifyTrend labels an ordered series with the split-halves heuristic. It is not a
// regression: with short series it leans on the most recent values.
func ClassifyTrend(values []float64) Trend {
	change := PercentChange(values)
	switch {
	case change > TrendThresholdPercent:
		return TrendIncreasing
	case change < -TrendThresholdPercent:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the sample standard deviation; it is 0 for fewer than two values.
func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

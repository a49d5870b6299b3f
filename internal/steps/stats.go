package steps

import (
	"math"

	"github.com/oddvarlia/cellcycler/internal/celldata"
)

// Delta is the relative change between the first and last value of a step,
// in percent. A zero start never yields an infinity: the result is 0 when
// nothing changed and the plain difference otherwise, so downstream
// cumulative sums stay finite.
func Delta(start, end float64) float64 {
	if start != 0 {
		return 100 * (end - start) / start
	}
	if end == start {
		return 0
	}
	return end - start
}

// Rate is the first value divided by the last. Unlike Delta it is allowed to
// be undefined: a zero end yields NaN.
func Rate(start, end float64) float64 {
	if end == 0 {
		return math.NaN()
	}
	return start / end
}

// channelStats computes the per-step aggregates for one measurement channel.
// The values slice must be non-empty.
func channelStats(values []float64) celldata.ChannelStats {
	start, end := values[0], values[len(values)-1]

	min, max := values[0], values[0]
	var sum float64
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}

	return celldata.ChannelStats{
		Avg:   mean,
		Std:   math.Sqrt(sq / float64(len(values))), // population, not sample
		Max:   max,
		Min:   min,
		Start: start,
		End:   end,
		Delta: Delta(start, end),
		Rate:  Rate(start, end),
	}
}

package detector

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// mean returns the arithmetic mean of values. values must not be empty.
func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// populationStdDev divides by len(values), not len(values)-1: the batch is
// the whole population under test.
func populationStdDev(values []float64, mu float64) float64 {
	var sq float64
	for _, v := range values {
		d := v - mu
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}

// round2 rounds the exact binary value of v to 2 decimals, half to even on
// exact ties, so 2.675 (stored as 2.67499...) becomes 2.67.
func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	d, err := decimal.NewFromString(strconv.FormatFloat(v, 'f', 2, 64))
	if err != nil {
		return v
	}
	return d.InexactFloat64()
}

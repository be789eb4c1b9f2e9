// Package analysis compares simulated traveled-distance distributions with
// experimental histograms.
package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Edges returns n evenly spaced bin edges over [0, hi].
func Edges(n int, hi float64) []float64 {
	return floats.Span(make([]float64, n), 0, hi)
}

// Histogram bins values over edges, giving every value the weight 1/len(values).
// Bins are half-open except the last, which includes its upper edge. Values
// outside the edges are dropped, so the result sums to the in-range fraction.
func Histogram(values, edges []float64) []float64 {
	nbins := len(edges) - 1
	if nbins < 1 {
		return nil
	}
	counts := make([]float64, nbins)
	if len(values) == 0 {
		return counts
	}

	lo, hi := edges[0], edges[nbins]
	inside := make([]float64, 0, len(values))
	var onUpper float64
	for _, v := range values {
		switch {
		case v == hi:
			onUpper++
		case v >= lo && v < hi:
			inside = append(inside, v)
		}
	}
	sort.Float64s(inside)

	if len(inside) > 0 {
		stat.Histogram(counts, edges, inside, nil)
	}
	counts[nbins-1] += onUpper

	floats.Scale(1/float64(len(values)), counts)
	return counts
}

// BhattacharyyaCoefficient returns sum_i sqrt(p_i q_i) over the common bins
// of p and q. Identical normalized histograms score 1, disjoint ones 0.
func BhattacharyyaCoefficient(p, q []float64) float64 {
	n := min(len(p), len(q))
	if n == 0 {
		return 0
	}
	// stat.Bhattacharyya is the distance -ln(BC)
	bc := math.Exp(-stat.Bhattacharyya(p[:n], q[:n]))
	if math.IsNaN(bc) {
		return 0
	}
	return bc
}

// MeanStd returns the mean and population standard deviation of scores.
func MeanStd(scores []float64) (mean, std float64) {
	if len(scores) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(scores, nil)
}

package stats

import (
	"math"
	"sort"
)

// Summary describes the distribution of one numeric column over a track
type Summary struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	P95   float64 `json:"p95"`
}

// Summarize computes a Summary of the non-nil values. It returns nil when
// every value is nil.
func Summarize(values []*float64) *Summary {
	present := make([]float64, 0, len(values))
	for _, v := range values {
		if v != nil {
			present = append(present, *v)
		}
	}
	if len(present) == 0 {
		return nil
	}
	sort.Float64s(present)

	var sum float64
	for _, v := range present {
		sum += v
	}
	return &Summary{
		Count: len(present),
		Min:   present[0],
		Max:   present[len(present)-1],
		Mean:  sum / float64(len(present)),
		P95:   quantile(present, 0.95),
	}
}

// quantile interpolates linearly between the closest ranks of sorted
func quantile(sorted []float64, q float64) float64 {
	index := q * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

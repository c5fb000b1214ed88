package db

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// SpeedPercentiles summarises a set of speed samples in km/h.
type SpeedPercentiles struct {
	P50 float64 `json:"p50_kmh"`
	P85 float64 `json:"p85_kmh"`
	P95 float64 `json:"p95_kmh"`
	Max float64 `json:"max_kmh"`
}

// ComputeSpeedPercentiles computes the p50/p85/p95 and max of the samples.
// ok is false when samples is empty. The input slice is left unmodified.
func ComputeSpeedPercentiles(samples []float64) (pct SpeedPercentiles, ok bool) {
	if len(samples) == 0 {
		return SpeedPercentiles{}, false
	}

	speeds := make([]float64, len(samples))
	copy(speeds, samples)
	sort.Float64s(speeds)

	return SpeedPercentiles{
		P50: stat.Quantile(0.50, stat.Empirical, speeds, nil),
		P85: stat.Quantile(0.85, stat.Empirical, speeds, nil),
		P95: stat.Quantile(0.95, stat.Empirical, speeds, nil),
		Max: speeds[len(speeds)-1],
	}, true
}

package qso

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// snrWindow keeps the most recent SNR readings for summary statistics.
type snrWindow struct {
	values []float64
	next   int
	full   bool
}

func newSNRWindow(size int) *snrWindow {
	if size <= 0 {
		size = 500
	}
	return &snrWindow{values: make([]float64, size)}
}

func (w *snrWindow) add(snr int) {
	w.values[w.next] = float64(snr)
	w.next++
	if w.next == len(w.values) {
		w.next = 0
		w.full = true
	}
}

func (w *snrWindow) samples() []float64 {
	if w.full {
		return w.values
	}
	return w.values[:w.next]
}

// SNRStats summarizes recent decodes.
type SNRStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Median float64 `json:"median"`
}

func (w *snrWindow) stats() SNRStats {
	xs := w.samples()
	if len(xs) == 0 {
		return SNRStats{}
	}
	mean, std := stat.MeanStdDev(xs, nil)
	if math.IsNaN(std) {
		std = 0
	}

	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)

	return SNRStats{Count: len(xs), Mean: mean, StdDev: std, Median: median}
}

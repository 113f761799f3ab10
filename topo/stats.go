// topo/stats.go
package topo

import (
	"math"
	"sort"
)

type IntOrFloat64 interface {
	int | int64 | float64
}

// CalculatePercentile returns the p-th percentile of data, interpolating
// linearly between the two closest ranks. data must be sorted ascending.
// Returns 0 for empty input.
func CalculatePercentile[T IntOrFloat64](data []T, p float64) float64 {
	n := len(data)
	if n == 0 {
		return 0
	}

	rank := p / 100.0 * float64(n-1)
	lowerIdx := int(math.Floor(rank))
	upperIdx := int(math.Ceil(rank))
	if lowerIdx < 0 {
		lowerIdx = 0
	}
	if upperIdx >= n {
		return float64(data[n-1])
	}

	if lowerIdx == upperIdx {
		return float64(data[lowerIdx])
	}
	lowerVal := float64(data[lowerIdx])
	upperVal := float64(data[upperIdx])
	return lowerVal + (upperVal-lowerVal)*(rank-float64(lowerIdx))
}

// CalculateMean returns the arithmetic mean, or 0 for empty input.
func CalculateMean[T IntOrFloat64](numbers []T) float64 {
	if len(numbers) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, number := range numbers {
		sum += float64(number)
	}

	return sum / float64(len(numbers))
}

// sortedCopy returns an ascending copy of values.
func sortedCopy(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}

// rollingWindow keeps the last `size` values both in arrival order and in
// sorted order so the median is available after every push.
type rollingWindow struct {
	size   int
	fifo   []float64
	sorted []float64
}

func newRollingWindow(size int) *rollingWindow {
	return &rollingWindow{
		size:   size,
		fifo:   make([]float64, 0, size),
		sorted: make([]float64, 0, size),
	}
}

func (w *rollingWindow) Len() int { return len(w.fifo) }

func (w *rollingWindow) Push(v float64) {
	if len(w.fifo) == w.size {
		oldest := w.fifo[0]
		w.fifo = w.fifo[1:]
		idx := sort.SearchFloat64s(w.sorted, oldest)
		w.sorted = append(w.sorted[:idx], w.sorted[idx+1:]...)
	}
	w.fifo = append(w.fifo, v)
	idx := sort.SearchFloat64s(w.sorted, v)
	w.sorted = append(w.sorted, 0)
	copy(w.sorted[idx+1:], w.sorted[idx:])
	w.sorted[idx] = v
}

// Median of the current window contents; 0 when empty.
func (w *rollingWindow) Median() float64 {
	return CalculatePercentile(w.sorted, 50)
}

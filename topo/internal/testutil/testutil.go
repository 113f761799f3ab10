// Package testutil provides shared test infrastructure for the topology pipeline.
// It consolidates synthetic dataset builders and assertion helpers used across
// topo/ and its sub-package tests.
package testutil

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"testing"

	"github.com/toposense/toposense/topo"
)

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

// ConstantSeries returns n slots of the same throughput for one cell.
func ConstantSeries(cellID string, n int, value float64) []topo.ThroughputSample {
	out := make([]topo.ThroughputSample, n)
	for i := range out {
		out[i] = topo.ThroughputSample{CellID: cellID, SlotID: int64(i), Throughput: value}
	}
	return out
}

// SeriesFromValues builds samples for one cell with slots numbered from 0.
func SeriesFromValues(cellID string, values ...float64) []topo.ThroughputSample {
	out := make([]topo.ThroughputSample, len(values))
	for i, v := range values {
		out[i] = topo.ThroughputSample{CellID: cellID, SlotID: int64(i), Throughput: v}
	}
	return out
}

// BlockDataset describes synthetic cells wired to independent fronthaul links.
type BlockDataset struct {
	Samples []topo.ThroughputSample
	Blocks  [][]string // cell ids per block, in natural order
}

// BlockCongestion builds blocks × perBlock cells over slots. Cells of a block
// share congestion slots (about congestedFraction of all slots, dropping
// throughput from 100 to 20); each cell also dips on its own in about 1% of
// slots. Keep congestedFraction below the congestion percentile so the per-cell
// reference stays at the nominal throughput. Deterministic for a given seed.
func BlockCongestion(blocks, perBlock, slots int, congestedFraction float64, seed int64) BlockDataset {
	ds := BlockDataset{Blocks: make([][]string, blocks)}

	cell := 1
	for b := 0; b < blocks; b++ {
		linkRNG := subRNG(seed, fmt.Sprintf("link_%d", b))
		shared := make([]bool, slots)
		for s := range shared {
			shared[s] = linkRNG.Float64() < congestedFraction
		}
		for c := 0; c < perBlock; c++ {
			id := topo.FormatCellID(cell)
			cell++
			ds.Blocks[b] = append(ds.Blocks[b], id)
			cellRNG := subRNG(seed, id)
			for s := 0; s < slots; s++ {
				v := 100.0
				if shared[s] || cellRNG.Float64() < 0.01 {
					v = 20.0
				}
				ds.Samples = append(ds.Samples, topo.ThroughputSample{CellID: id, SlotID: int64(s), Throughput: v})
			}
		}
	}
	return ds
}

// subRNG returns a generator seeded with seed XOR fnv1a64(name), so every
// link and cell draws from its own stream and resizing one block leaves the
// others unchanged.
func subRNG(seed int64, name string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(name))
	return rand.New(rand.NewSource(seed ^ int64(h.Sum64())))
}

// EventSeries builds a congestion event series with slots numbered from 0.
func EventSeries(cellID string, events ...uint8) topo.CongestionEventSeries {
	slots := make([]int64, len(events))
	for i := range slots {
		slots[i] = int64(i)
	}
	return topo.CongestionEventSeries{CellID: cellID, Source: topo.EventSourceCongestion, SlotIDs: slots, Events: events}
}

package topo

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/toposense/toposense/topo/trace"
)

// RawSample is a finer-than-slot throughput contribution (typically one OFDM symbol).
// Slot assignment uses, in order of precedence: Slot when HasSlot is set,
// Timestamp when the aggregator has a slot duration, otherwise Symbol.
type RawSample struct {
	CellID     string
	Symbol     int64
	Timestamp  float64
	Slot       int64
	HasSlot    bool
	Throughput float64
}

// SlotAggregator sums raw contributions into one ThroughputSample per (cell, slot).
type SlotAggregator struct {
	SymbolsPerSlot int
	SlotDuration   float64 // seconds; 0 disables timestamp bucketing
	Origin         float64 // timestamp of slot 0's left edge
}

// NewSlotAggregator builds an aggregator from the run configuration.
func NewSlotAggregator(cfg Config) *SlotAggregator {
	return &SlotAggregator{SymbolsPerSlot: cfg.SymbolsPerSlot, SlotDuration: cfg.SlotDuration, Origin: cfg.SlotOrigin}
}

// AggregateResult is the output of SlotAggregator.Aggregate.
type AggregateResult struct {
	Series     []CellSeries
	Exclusions []trace.ExclusionRecord
}

// Samples flattens the aggregated series back into ThroughputSamples in cell, slot order.
func (r *AggregateResult) Samples() []ThroughputSample {
	var out []ThroughputSample
	for _, s := range r.Series {
		for i, slot := range s.SlotIDs {
			out = append(out, ThroughputSample{CellID: s.CellID, SlotID: slot, Throughput: s.Throughput[i]})
		}
	}
	return out
}

// Aggregate buckets raw samples into slots. expectedCells lists cells the caller
// expects in the run; any of them without a single usable sample is logged and
// recorded as a data gap instead of failing the run.
func (a *SlotAggregator) Aggregate(raw []RawSample, expectedCells []string) (*AggregateResult, error) {
	if a.SymbolsPerSlot < 1 && a.SlotDuration <= 0 {
		return nil, fmt.Errorf("slot aggregator needs symbols_per_slot >= 1 or slot_duration > 0")
	}

	sums := make(map[string]map[int64]float64)
	skipped := make(map[string]int)
	for _, r := range raw {
		if !isFinite(r.Throughput) || r.Throughput < 0 {
			skipped[r.CellID]++
			continue
		}
		slot, ok := a.slotOf(r)
		if !ok {
			skipped[r.CellID]++
			continue
		}
		cell := sums[r.CellID]
		if cell == nil {
			cell = make(map[int64]float64)
			sums[r.CellID] = cell
		}
		cell[slot] += r.Throughput
	}

	result := &AggregateResult{}
	cellIDs := make([]string, 0, len(sums))
	for id := range sums {
		cellIDs = append(cellIDs, id)
	}
	SortCellIDs(cellIDs)

	for _, id := range cellIDs {
		slots := make([]int64, 0, len(sums[id]))
		for slot := range sums[id] {
			slots = append(slots, slot)
		}
		sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
		series := CellSeries{CellID: id, SlotIDs: slots, Throughput: make([]float64, len(slots))}
		for i, slot := range slots {
			series.Throughput[i] = sums[id][slot]
		}
		result.Series = append(result.Series, series)
	}

	skippedIDs := make([]string, 0, len(skipped))
	for id := range skipped {
		skippedIDs = append(skippedIDs, id)
	}
	SortCellIDs(skippedIDs)
	for _, id := range skippedIDs {
		logrus.Warnf("cell %s: skipped %d malformed raw samples during slot aggregation", id, skipped[id])
		result.Exclusions = append(result.Exclusions, trace.ExclusionRecord{
			CellID: id, Stage: StageAggregate, Kind: trace.KindRejectedSample,
			Reason: "non-finite, negative or unassignable raw sample", Count: skipped[id],
		})
	}

	for _, id := range sortedUnique(expectedCells) {
		if _, ok := sums[id]; ok {
			continue
		}
		gap := &DataGapError{CellID: id, Stage: StageAggregate, Have: 0, Need: 1}
		logrus.Warnf("%v; dropping cell from the run", gap)
		result.Exclusions = append(result.Exclusions, trace.ExclusionRecord{
			CellID: id, Stage: StageAggregate, Kind: trace.KindDataGap, Reason: gap.Error(), Count: 1,
		})
	}

	return result, nil
}

func (a *SlotAggregator) slotOf(r RawSample) (int64, bool) {
	switch {
	case r.HasSlot:
		return r.Slot, r.Slot >= 0
	case a.SlotDuration > 0:
		if !isFinite(r.Timestamp) || r.Timestamp < a.Origin {
			return 0, false
		}
		return int64(math.Floor((r.Timestamp - a.Origin) / a.SlotDuration)), true
	default:
		if r.Symbol < 0 || a.SymbolsPerSlot < 1 {
			return 0, false
		}
		return r.Symbol / int64(a.SymbolsPerSlot), true
	}
}

func sortedUnique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	SortCellIDs(out)
	return out
}

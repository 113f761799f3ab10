package topo_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toposense/toposense/topo"
	"github.com/toposense/toposense/topo/trace"
)

func TestAggregate_SumsSymbolsPerSlot(t *testing.T) {
	// GIVEN 30 symbols of throughput 2 for one cell
	var raw []topo.RawSample
	for sym := int64(0); sym < 30; sym++ {
		raw = append(raw, topo.RawSample{CellID: "cell_01", Symbol: sym, Throughput: 2})
	}

	// WHEN aggregated at 14 symbols per slot
	res, err := topo.NewSlotAggregator(topo.DefaultConfig()).Aggregate(raw, nil)
	require.NoError(t, err)

	// THEN slots 0 and 1 are full and slot 2 holds the remainder
	require.Len(t, res.Series, 1)
	assert.Equal(t, []int64{0, 1, 2}, res.Series[0].SlotIDs)
	assert.Equal(t, []float64{28, 28, 4}, res.Series[0].Throughput)
	assert.Len(t, res.Samples(), 3)
}

func TestAggregate_BucketsByTimestamp(t *testing.T) {
	cfg := topo.DefaultConfig()
	cfg.SlotDuration = 0.5e-3
	raw := []topo.RawSample{
		{CellID: "cell_01", Timestamp: 0.0001, Throughput: 1},
		{CellID: "cell_01", Timestamp: 0.0004, Throughput: 1},
		{CellID: "cell_01", Timestamp: 0.0006, Throughput: 5},
		{CellID: "cell_01", Timestamp: 0.0021, Throughput: 7},
	}
	res, err := topo.NewSlotAggregator(cfg).Aggregate(raw, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 4}, res.Series[0].SlotIDs)
	assert.Equal(t, []float64{2, 5, 7}, res.Series[0].Throughput)
}

func TestAggregate_TimestampsFromConfiguredOrigin(t *testing.T) {
	// GIVEN capture timestamps that start well after zero
	cfg := topo.DefaultConfig()
	cfg.SlotDuration = 0.5e-3
	cfg.SlotOrigin = 1000
	raw := []topo.RawSample{
		{CellID: "cell_01", Timestamp: 999.9999, Throughput: 9},
		{CellID: "cell_01", Timestamp: 1000.0001, Throughput: 1},
		{CellID: "cell_01", Timestamp: 1000.0006, Throughput: 5},
	}

	// WHEN aggregated
	res, err := topo.NewSlotAggregator(cfg).Aggregate(raw, nil)
	require.NoError(t, err)

	// THEN slots count from the origin and earlier samples are rejected
	assert.Equal(t, []int64{0, 1}, res.Series[0].SlotIDs)
	assert.Equal(t, []float64{1, 5}, res.Series[0].Throughput)
	require.Len(t, res.Exclusions, 1)
	assert.Equal(t, 1, res.Exclusions[0].Count)
}

func TestAggregate_ExplicitSlotWins(t *testing.T) {
	raw := []topo.RawSample{
		{CellID: "cell_01", Symbol: 100, Slot: 3, HasSlot: true, Throughput: 1},
		{CellID: "cell_01", Symbol: 0, Slot: 3, HasSlot: true, Throughput: 1},
	}
	res, err := topo.NewSlotAggregator(topo.DefaultConfig()).Aggregate(raw, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, res.Series[0].SlotIDs)
	assert.Equal(t, []float64{2}, res.Series[0].Throughput)
}

func TestAggregate_MalformedAndMissing(t *testing.T) {
	// GIVEN a cell with malformed samples and an expected cell with none
	raw := []topo.RawSample{
		{CellID: "cell_02", Symbol: 0, Throughput: 1},
		{CellID: "cell_02", Symbol: 1, Throughput: -1},
		{CellID: "cell_02", Symbol: 2, Throughput: math.NaN()},
		{CellID: "cell_02", Symbol: -5, Throughput: 1},
	}

	// WHEN aggregated
	res, err := topo.NewSlotAggregator(topo.DefaultConfig()).Aggregate(raw, []string{"cell_02", "cell_01"})
	require.NoError(t, err)

	// THEN the bad samples are counted and the empty cell is a data gap
	require.Len(t, res.Series, 1)
	assert.Equal(t, []float64{1}, res.Series[0].Throughput)
	require.Len(t, res.Exclusions, 2)
	assert.Equal(t, trace.ExclusionRecord{
		CellID: "cell_02", Stage: topo.StageAggregate, Kind: trace.KindRejectedSample,
		Reason: res.Exclusions[0].Reason, Count: 3,
	}, res.Exclusions[0])
	assert.Equal(t, "cell_01", res.Exclusions[1].CellID)
	assert.Equal(t, trace.KindDataGap, res.Exclusions[1].Kind)
}

func TestAggregate_NaturalCellOrder(t *testing.T) {
	raw := []topo.RawSample{
		{CellID: "cell_10", Throughput: 1},
		{CellID: "cell_9", Throughput: 1},
	}
	res, err := topo.NewSlotAggregator(topo.DefaultConfig()).Aggregate(raw, nil)
	require.NoError(t, err)
	assert.Equal(t, "cell_9", res.Series[0].CellID)
}

func TestBuildCellSeries_SortsAndDeduplicates(t *testing.T) {
	samples := []topo.ThroughputSample{
		{CellID: "cell_02", SlotID: 5, Throughput: 1},
		{CellID: "cell_02", SlotID: 1, Throughput: 2},
		{CellID: "cell_02", SlotID: 5, Throughput: 9},
		{CellID: "cell_01", SlotID: 0, Throughput: 3},
	}
	series, exclusions := topo.BuildCellSeries(samples)
	require.Len(t, series, 2)
	assert.Equal(t, "cell_01", series[0].CellID)
	assert.Equal(t, []int64{1, 5}, series[1].SlotIDs)
	assert.Equal(t, []float64{2, 1}, series[1].Throughput)
	require.Len(t, exclusions, 1)
	assert.Equal(t, trace.KindDuplicateSlot, exclusions[0].Kind)
	assert.Equal(t, 1, exclusions[0].Count)
}

package topo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toposense/toposense/topo"
	"github.com/toposense/toposense/topo/internal/testutil"
	"github.com/toposense/toposense/topo/trace"
)

func TestNewPipeline_InvalidConfig_ConfigurationError(t *testing.T) {
	// GIVEN a zero window
	cfg := topo.DefaultConfig()
	cfg.Window = 0

	// WHEN a pipeline is built
	p, err := topo.NewPipeline(cfg, nil)

	// THEN it fails before any computation with the offending field
	assert.Nil(t, p)
	var cfgErr *topo.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "window", cfgErr.Field)

	_, err = topo.Run(context.Background(), cfg, nil)
	assert.True(t, errors.As(err, &cfgErr))
}

func TestRun_SameInputSameOutput(t *testing.T) {
	// GIVEN a block dataset
	ds := testutil.BlockCongestion(3, 4, 600, 0.05, 21)
	cfg := topo.DefaultConfig()
	cfg.Workers = 4

	// WHEN run twice
	first, err := topo.Run(context.Background(), cfg, ds.Samples)
	require.NoError(t, err)
	second, err := topo.Run(context.Background(), cfg, ds.Samples)
	require.NoError(t, err)

	// THEN the results are identical
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("results differ (-first +second):\n%s", diff)
	}
}

func TestRun_OneRecordPerSample(t *testing.T) {
	ds := testutil.BlockCongestion(2, 3, 300, 0.05, 1)
	result, err := topo.Run(context.Background(), topo.DefaultConfig(), ds.Samples)
	require.NoError(t, err)

	assert.Len(t, result.Anomalies, len(ds.Samples))
	assert.Len(t, result.Summaries, 6)
	assert.Len(t, result.Assignments, 6)
	assert.Len(t, result.Layout, 6)
	assert.Len(t, result.GroupPropagation, len(result.Groups))
	assert.Empty(t, result.Trace.Exclusions)
}

func TestRun_RecoverableProblemsAreTraced(t *testing.T) {
	// GIVEN a healthy block, a cell too short for event extraction, a cell
	// that never congests and a duplicated sample
	ds := testutil.BlockCongestion(1, 3, 300, 0.05, 2)
	samples := append([]topo.ThroughputSample{}, ds.Samples...)
	samples = append(samples, testutil.SeriesFromValues("cell_50", 100, 100, 90, 100, 100)...)
	samples = append(samples, testutil.ConstantSeries("cell_60", 300, 100)...)
	samples = append(samples, topo.ThroughputSample{CellID: "cell_01", SlotID: 0, Throughput: 1})

	// WHEN run
	result, err := topo.Run(context.Background(), topo.DefaultConfig(), samples)
	require.NoError(t, err)

	// THEN the short cell has anomaly output but no event series
	assert.Contains(t, result.Cells, "cell_50")
	assert.Equal(t, []string{"cell_50"}, result.Trace.ExcludedFrom(topo.StageCongestion))
	for _, s := range result.Congestion {
		assert.NotEqual(t, "cell_50", s.CellID)
	}

	// AND the constant cell is clustered alone with zero similarity
	g, ok := groupOf(result.Groups, "cell_60")
	require.True(t, ok)
	assert.Equal(t, []string{"cell_60"}, g.MemberCellIDs)

	// AND every problem is in the trace
	summary := trace.Summarize(result.Trace)
	assert.Equal(t, 1, summary.ExcludedCells)
	assert.Equal(t, 1, summary.DegenerateCells)
	assert.Equal(t, 1, summary.KindDistribution[trace.KindDuplicateSlot])
	assert.Equal(t, 1, summary.RejectedSamples)

	// AND the duplicate kept the first value
	for _, r := range result.Anomalies {
		if r.CellID == "cell_01" && r.SlotID == 0 {
			assert.NotEqual(t, 1.0, r.Throughput)
		}
	}
}

func TestRun_EmptyInput(t *testing.T) {
	result, err := topo.Run(context.Background(), topo.DefaultConfig(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Cells)
	assert.Empty(t, result.Groups)
}

func TestRun_AllCellsTooShort_NoTopology(t *testing.T) {
	// GIVEN cells that all have fewer samples than event extraction needs
	samples := testutil.SeriesFromValues("cell_01", 100, 100, 90, 100, 100)
	samples = append(samples, testutil.SeriesFromValues("cell_02", 80, 80, 80, 40, 80)...)

	// WHEN run
	result, err := topo.Run(context.Background(), topo.DefaultConfig(), samples)
	require.NoError(t, err)

	// THEN anomaly output survives, each cell is one data gap and no groups form
	assert.Len(t, result.Summaries, 2)
	assert.Empty(t, result.Congestion)
	assert.Equal(t, []string{"cell_01", "cell_02"}, result.Trace.ExcludedFrom(topo.StageCongestion))
	assert.Equal(t, 2, trace.Summarize(result.Trace).KindDistribution[trace.KindDataGap])
	assert.Empty(t, result.Groups)
	assert.Empty(t, result.Assignments)
	assert.Empty(t, result.Layout)
	assert.Equal(t, 0, result.Similarity.Len())
	assert.Equal(t, 0, result.Correlation.Len())
}

func TestInferTopology_NoSeries(t *testing.T) {
	p, err := topo.NewPipeline(topo.DefaultConfig(), nil)
	require.NoError(t, err)

	topology, rt, err := p.InferTopology(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, rt.Exclusions)
	assert.Empty(t, topology.Groups)
	assert.Equal(t, 0, topology.Similarity.Len())
}

func TestRunWithEvents_TopologyFromSuppliedEvents(t *testing.T) {
	// GIVEN throughput with a constant cell that would be degenerate, and
	// loss events for three other cells only
	reg := prometheus.NewRegistry()
	metrics := topo.NewMetrics(reg)
	p, err := topo.NewPipeline(topo.DefaultConfig(), metrics)
	require.NoError(t, err)
	ds := testutil.BlockCongestion(1, 3, 300, 0.05, 5)
	samples := append(ds.Samples, testutil.ConstantSeries("cell_60", 300, 100)...)
	loss := []topo.CongestionEventSeries{
		testutil.EventSeries("cell_01", 0, 1, 0, 0, 1, 0, 1, 0, 0, 1),
		testutil.EventSeries("cell_02", 0, 1, 0, 0, 1, 0, 1, 0, 0, 1),
		testutil.EventSeries("cell_03", 1, 0, 0, 1, 0, 0, 0, 1, 1, 0),
	}

	// WHEN run with the loss events driving topology
	result, err := p.RunWithEvents(context.Background(), samples, loss)
	require.NoError(t, err)

	// THEN groups come from the loss events
	require.Len(t, result.Groups, 2)
	assert.Equal(t, []string{"cell_01", "cell_02"}, result.Groups[0].MemberCellIDs)
	_, ok := groupOf(result.Groups, "cell_60")
	assert.False(t, ok)

	// AND congestion output still comes from throughput
	assert.Len(t, result.Congestion, 4)

	// AND the gauge and trace describe the topology that was returned
	assert.Equal(t, float64(len(result.Groups)), promtest.ToFloat64(metrics.Groups))
	assert.Equal(t, 0, trace.Summarize(result.Trace).DegenerateCells)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ds := testutil.BlockCongestion(2, 2, 100, 0.05, 1)
	_, err := topo.Run(ctx, topo.DefaultConfig(), ds.Samples)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_ThresholdsAreIsolatedPerPipeline(t *testing.T) {
	// GIVEN two pipelines with different drop thresholds over the same data
	values := append(repeat(100, 100), 50)
	samples := testutil.SeriesFromValues("cell_01", values...)
	loose := topo.DefaultConfig()
	strict := topo.DefaultConfig()
	strict.DropRatioThreshold = 0.6

	// WHEN run concurrently
	type out struct {
		name   string
		result *topo.Result
		err    error
	}
	ch := make(chan out, 2)
	for name, cfg := range map[string]topo.Config{"loose": loose, "strict": strict} {
		go func() {
			r, err := topo.Run(context.Background(), cfg, samples)
			ch <- out{name, r, err}
		}()
	}

	// THEN each sees only its own threshold
	for i := 0; i < 2; i++ {
		o := <-ch
		require.NoError(t, o.err)
		want := 1
		if o.name == "strict" {
			want = 0
		}
		assert.Equal(t, want, o.result.Summaries[0].AnomalousSlots, o.name)
	}
}

func TestRunRaw_AggregatesAndReportsMissingCells(t *testing.T) {
	// GIVEN two cells of raw symbols and a third expected cell without data
	var raw []topo.RawSample
	for _, cell := range []string{"cell_01", "cell_02"} {
		for sym := int64(0); sym < 14*20; sym++ {
			raw = append(raw, topo.RawSample{CellID: cell, Symbol: sym, Throughput: 1})
		}
	}
	p, err := topo.NewPipeline(topo.DefaultConfig(), nil)
	require.NoError(t, err)

	// WHEN run from raw samples
	result, err := p.RunRaw(context.Background(), raw, []string{"cell_01", "cell_02", "cell_03"})
	require.NoError(t, err)

	// THEN slots are sums of 14 symbols and the missing cell is a data gap
	assert.Equal(t, []string{"cell_01", "cell_02"}, result.Cells)
	assert.Len(t, result.Anomalies, 40)
	assert.Equal(t, 14.0, result.Anomalies[0].Throughput)
	assert.Equal(t, []string{"cell_03"}, result.Trace.ExcludedFrom(topo.StageAggregate))
}

func TestInferTopology_FromLossEvents(t *testing.T) {
	p, err := topo.NewPipeline(topo.DefaultConfig(), nil)
	require.NoError(t, err)
	events := []topo.CongestionEventSeries{
		testutil.EventSeries("cell_01", 0, 1, 0, 0, 1, 0, 1, 0, 0, 1),
		testutil.EventSeries("cell_02", 0, 1, 0, 0, 1, 0, 1, 0, 0, 1),
		testutil.EventSeries("cell_03", 1, 0, 0, 1, 0, 0, 0, 1, 1, 0),
	}
	topology, rt, err := p.InferTopology(context.Background(), events)
	require.NoError(t, err)
	assert.Empty(t, rt.Exclusions)
	require.Len(t, topology.Groups, 2)
	assert.Equal(t, []string{"cell_01", "cell_02"}, topology.Groups[0].MemberCellIDs)
}

func TestPipeline_Metrics(t *testing.T) {
	// GIVEN a pipeline with registered metrics
	reg := prometheus.NewRegistry()
	metrics := topo.NewMetrics(reg)
	p, err := topo.NewPipeline(topo.DefaultConfig(), metrics)
	require.NoError(t, err)

	// WHEN a run with a short cell completes
	ds := testutil.BlockCongestion(2, 3, 300, 0.05, 4)
	samples := append(ds.Samples, testutil.SeriesFromValues("cell_50", 100, 100, 100)...)
	result, err := p.Run(context.Background(), samples)
	require.NoError(t, err)

	// THEN the counters reflect the run
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.Runs.WithLabelValues("ok")))
	assert.Equal(t, float64(len(result.Groups)), promtest.ToFloat64(metrics.Groups))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.ExcludedCells.WithLabelValues(topo.StageCongestion, trace.KindDataGap)))
	anomalous := 0
	for _, s := range result.Summaries {
		anomalous += s.AnomalousSlots
	}
	assert.Equal(t, float64(anomalous), promtest.ToFloat64(metrics.AnomalousSlots))

	// AND a cancelled run counts as an error
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Run(ctx, samples)
	require.Error(t, err)
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.Runs.WithLabelValues("error")))
}

func groupOf(groups []topo.TopologyGroup, cellID string) (topo.TopologyGroup, bool) {
	for _, g := range groups {
		for _, c := range g.MemberCellIDs {
			if c == cellID {
				return g, true
			}
		}
	}
	return topo.TopologyGroup{}, false
}

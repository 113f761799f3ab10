package topo_test

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toposense/toposense/topo"
	"github.com/toposense/toposense/topo/internal/testutil"
)

// twoPairMatrix: cell_01/cell_02 at 0.9, cell_03/cell_04 at 0.8, 0.1 across.
func twoPairMatrix() *topo.SimilarityMatrix {
	return &topo.SimilarityMatrix{
		CellIDs: []string{"cell_01", "cell_02", "cell_03", "cell_04"},
		Values: [][]float64{
			{1, 0.9, 0.1, 0.1},
			{0.9, 1, 0.1, 0.1},
			{0.1, 0.1, 1, 0.8},
			{0.1, 0.1, 0.8, 1},
		},
	}
}

func cluster(t *testing.T, cfg topo.Config, m *topo.SimilarityMatrix) *topo.ClusterResult {
	t.Helper()
	res, err := topo.NewTopologyClusterer(cfg).Cluster(m)
	require.NoError(t, err)
	return res
}

func members(groups []topo.TopologyGroup) [][]string {
	out := make([][]string, len(groups))
	for i, g := range groups {
		out[i] = g.MemberCellIDs
	}
	return out
}

func TestCluster_SingleCell_OneGroup(t *testing.T) {
	m := &topo.SimilarityMatrix{CellIDs: []string{"cell_01"}, Values: [][]float64{{1}}}
	res := cluster(t, topo.DefaultConfig(), m)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, []string{"cell_01"}, res.Groups[0].MemberCellIDs)
	assert.Equal(t, "G1", res.Groups[0].GroupID)
	assert.Equal(t, 1.0, res.Groups[0].AvgSimilarity)
	assert.Empty(t, res.Dendrogram.Merges)
}

func TestCluster_Empty(t *testing.T) {
	res := cluster(t, topo.DefaultConfig(), &topo.SimilarityMatrix{})
	assert.Empty(t, res.Groups)
}

func TestCluster_AllZeroSimilarity_Singletons(t *testing.T) {
	// GIVEN five cells that share nothing
	n := 5
	m := &topo.SimilarityMatrix{CellIDs: make([]string, n), Values: make([][]float64, n)}
	for i := 0; i < n; i++ {
		m.CellIDs[i] = topo.FormatCellID(i + 1)
		m.Values[i] = make([]float64, n)
		m.Values[i][i] = 1
	}

	// WHEN clustered at any threshold below 1
	for _, threshold := range []float64{0.1, 0.5, 0.99} {
		cfg := topo.DefaultConfig()
		cfg.LinkageDistanceThreshold = threshold
		res := cluster(t, cfg, m)

		// THEN every cell is its own group
		assert.Len(t, res.Groups, n, "threshold %.2f", threshold)
	}
}

func TestCluster_TwoPairs(t *testing.T) {
	res := cluster(t, topo.DefaultConfig(), twoPairMatrix())

	// THEN the pairs form the groups, numbered by first appearance
	want := [][]string{{"cell_01", "cell_02"}, {"cell_03", "cell_04"}}
	if diff := cmp.Diff(want, members(res.Groups)); diff != "" {
		t.Errorf("groups mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []int{0, 0, 1, 1}, res.Labels)
	assert.Equal(t, "Link_A", res.Groups[0].Name)
	assert.Equal(t, "Link_B", res.Groups[1].Name)
	assert.Equal(t, topo.Palette[1], res.Groups[1].Color)
	testutil.AssertFloat64Equal(t, "avg similarity", 0.9, res.Groups[0].AvgSimilarity, 1e-12)

	g, ok := res.GroupOf("cell_04")
	assert.True(t, ok)
	assert.Equal(t, "G2", g.GroupID)
}

func TestCluster_DendrogramIsAverageLinkage(t *testing.T) {
	res := cluster(t, topo.DefaultConfig(), twoPairMatrix())
	merges := res.Dendrogram.Merges

	// THEN n-1 merges with non-decreasing distances
	require.Len(t, merges, 3)
	assert.Equal(t, topo.Merge{Left: 0, Right: 1, Distance: merges[0].Distance, Size: 2}, merges[0])
	testutil.AssertFloat64Equal(t, "first", 0.1, merges[0].Distance, 1e-12)
	assert.Equal(t, topo.Merge{Left: 2, Right: 3, Distance: merges[1].Distance, Size: 2}, merges[1])
	testutil.AssertFloat64Equal(t, "second", 0.2, merges[1].Distance, 1e-12)

	// AND the final merge joins the two clusters at their mean pairwise distance
	assert.Equal(t, 4, merges[2].Left)
	assert.Equal(t, 5, merges[2].Right)
	assert.Equal(t, 4, merges[2].Size)
	testutil.AssertFloat64Equal(t, "root", 0.9, merges[2].Distance, 1e-12)
}

func TestCluster_MaxClusters(t *testing.T) {
	tests := []struct {
		max  int
		want [][]string
	}{
		{1, [][]string{{"cell_01", "cell_02", "cell_03", "cell_04"}}},
		{2, [][]string{{"cell_01", "cell_02"}, {"cell_03", "cell_04"}}},
		{3, [][]string{{"cell_01", "cell_02"}, {"cell_03"}, {"cell_04"}}},
		{10, [][]string{{"cell_01"}, {"cell_02"}, {"cell_03"}, {"cell_04"}}},
	}
	for _, tt := range tests {
		cfg := topo.DefaultConfig()
		cfg.MaxClusters = tt.max
		res := cluster(t, cfg, twoPairMatrix())
		if diff := cmp.Diff(tt.want, members(res.Groups)); diff != "" {
			t.Errorf("max_clusters=%d (-want +got):\n%s", tt.max, diff)
		}
	}
}

func TestCluster_NaNSimilarity_Error(t *testing.T) {
	m := twoPairMatrix()
	m.Values[0][2] = math.NaN()
	_, err := topo.NewTopologyClusterer(topo.DefaultConfig()).Cluster(m)
	assert.Error(t, err)
}

func TestCluster_RecoversIndependentBlocks(t *testing.T) {
	// GIVEN 24 cells on 4 independent links of 6 cells
	ds := testutil.BlockCongestion(4, 6, 2000, 0.06, 42)

	// WHEN the full pipeline runs with default thresholds
	result, err := topo.Run(context.Background(), topo.DefaultConfig(), ds.Samples)
	require.NoError(t, err)

	// THEN exactly the 4 blocks come back as groups
	if diff := cmp.Diff(ds.Blocks, members(result.Groups)); diff != "" {
		t.Errorf("groups mismatch (-want +got):\n%s", diff)
	}
}

func TestCluster_GroupsPartitionCells(t *testing.T) {
	ds := testutil.BlockCongestion(3, 4, 800, 0.05, 9)
	for _, threshold := range []float64{0.05, 0.3, 0.5, 0.8, 0.95} {
		cfg := topo.DefaultConfig()
		cfg.LinkageDistanceThreshold = threshold
		result, err := topo.Run(context.Background(), cfg, ds.Samples)
		require.NoError(t, err)

		seen := make(map[string]int)
		for _, g := range result.Groups {
			for _, c := range g.MemberCellIDs {
				seen[c]++
			}
		}
		assert.Len(t, seen, len(result.Congestion), "threshold %.2f", threshold)
		for c, n := range seen {
			assert.Equal(t, 1, n, "cell %s at threshold %.2f", c, threshold)
		}
	}
}

func TestCluster_Deterministic(t *testing.T) {
	ds := testutil.BlockCongestion(4, 5, 600, 0.05, 5)
	m, err := topo.NewCorrelationEngine(topo.DefaultConfig()).Compute(context.Background(), congestionOf(t, ds.Samples))
	require.NoError(t, err)

	first := cluster(t, topo.DefaultConfig(), m.Similarity)
	for i := 0; i < 5; i++ {
		again := cluster(t, topo.DefaultConfig(), m.Similarity)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("run %d differs (-first +again):\n%s", i, diff)
		}
	}
}

func congestionOf(t *testing.T, samples []topo.ThroughputSample) []topo.CongestionEventSeries {
	t.Helper()
	series, _ := topo.BuildCellSeries(samples)
	extractor := topo.NewCongestionEventExtractor(topo.DefaultConfig())
	out := make([]topo.CongestionEventSeries, 0, len(series))
	for _, s := range series {
		ev, err := extractor.Extract(s)
		require.NoError(t, err)
		out = append(out, *ev)
	}
	return out
}

package topo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Merge is one agglomeration step. Left and Right use dendrogram numbering:
// ids below the leaf count are cells (matrix rows); id leaves+k is the
// cluster formed by the k-th merge.
type Merge struct {
	Left     int     `json:"left" yaml:"left"`
	Right    int     `json:"right" yaml:"right"`
	Distance float64 `json:"distance" yaml:"distance"`
	Size     int     `json:"size" yaml:"size"`
}

// Dendrogram is the full average-linkage merge history over CellIDs.
type Dendrogram struct {
	CellIDs []string `json:"cell_ids" yaml:"cell_ids"`
	Merges  []Merge  `json:"merges" yaml:"merges"`
}

// TopologyClusterer partitions cells into topology groups with average-linkage
// agglomerative clustering over 1 - similarity.
type TopologyClusterer struct {
	DistanceThreshold float64
	MaxClusters       int // when > 0, cut to this many clusters instead of by distance
}

// NewTopologyClusterer builds a clusterer from the run configuration.
func NewTopologyClusterer(cfg Config) *TopologyClusterer {
	return &TopologyClusterer{DistanceThreshold: cfg.LinkageDistanceThreshold, MaxClusters: cfg.MaxClusters}
}

// ClusterResult is the flat partition plus the dendrogram it was cut from.
// Labels[i] is the group index of the i-th matrix cell.
type ClusterResult struct {
	Groups     []TopologyGroup
	Labels     []int
	Dendrogram *Dendrogram
}

// GroupOf returns the group holding cellID.
func (r *ClusterResult) GroupOf(cellID string) (TopologyGroup, bool) {
	for _, g := range r.Groups {
		for _, member := range g.MemberCellIDs {
			if member == cellID {
				return g, true
			}
		}
	}
	return TopologyGroup{}, false
}

// Cluster partitions the matrix's cells. Group ids, names and colours follow
// the order in which groups first appear along the matrix rows, so identical
// input always yields identical output.
func (c *TopologyClusterer) Cluster(m *SimilarityMatrix) (*ClusterResult, error) {
	n := m.Len()
	dendrogram := &Dendrogram{CellIDs: append([]string(nil), m.CellIDs...), Merges: []Merge{}}
	if n == 0 {
		return &ClusterResult{Dendrogram: dendrogram}, nil
	}
	if n == 1 {
		labels := []int{0}
		return &ClusterResult{Groups: buildGroups(m, labels), Labels: labels, Dendrogram: dendrogram}, nil
	}

	dist, err := distanceMatrix(m)
	if err != nil {
		return nil, err
	}
	dendrogram.Merges = averageLinkage(dist)

	var cut int
	if c.MaxClusters > 0 {
		cut = n - c.MaxClusters
		if cut < 0 {
			cut = 0
		}
	} else {
		for cut < len(dendrogram.Merges) && dendrogram.Merges[cut].Distance <= c.DistanceThreshold {
			cut++
		}
	}

	labels := flatLabels(n, dendrogram.Merges[:cut])
	return &ClusterResult{Groups: buildGroups(m, labels), Labels: labels, Dendrogram: dendrogram}, nil
}

// distanceMatrix converts similarity to distance, clamped to [0,1] with a zero diagonal.
func distanceMatrix(m *SimilarityMatrix) (*mat.SymDense, error) {
	n := m.Len()
	dist := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		if len(m.Values[i]) != n {
			return nil, fmt.Errorf("similarity matrix row %d has %d columns, want %d", i, len(m.Values[i]), n)
		}
		for j := i + 1; j < n; j++ {
			s := m.Values[i][j]
			if math.IsNaN(s) {
				return nil, fmt.Errorf("similarity between %s and %s is NaN", m.CellIDs[i], m.CellIDs[j])
			}
			dist.SetSym(i, j, clamp01(1-s))
		}
	}
	return dist, nil
}

// averageLinkage runs UPGMA and returns all n-1 merges in order. The merged
// cluster keeps the lower slot; ties on distance go to the lowest slot pair.
func averageLinkage(dist *mat.SymDense) []Merge {
	n := dist.SymmetricDim()
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
		for j := range d[i] {
			d[i][j] = dist.At(i, j)
		}
	}
	active := make([]bool, n)
	size := make([]int, n)
	node := make([]int, n) // dendrogram id currently held by each slot
	for i := 0; i < n; i++ {
		active[i] = true
		size[i] = 1
		node[i] = i
	}

	merges := make([]Merge, 0, n-1)
	for step := 0; step < n-1; step++ {
		bi, bj := -1, -1
		best := math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if active[j] && d[i][j] < best {
					best = d[i][j]
					bi, bj = i, j
				}
			}
		}

		merged := size[bi] + size[bj]
		left, right := node[bi], node[bj]
		if left > right {
			left, right = right, left
		}
		merges = append(merges, Merge{Left: left, Right: right, Distance: best, Size: merged})

		for k := 0; k < n; k++ {
			if !active[k] || k == bi || k == bj {
				continue
			}
			v := (float64(size[bi])*d[bi][k] + float64(size[bj])*d[bj][k]) / float64(merged)
			d[bi][k] = v
			d[k][bi] = v
		}
		active[bj] = false
		size[bi] = merged
		node[bi] = n + step
	}
	return merges
}

// flatLabels applies merges with a union-find and numbers the resulting
// clusters by first appearance along the leaves.
func flatLabels(n int, merges []Merge) []int {
	parent := make([]int, n+len(merges))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for k, m := range merges {
		id := n + k
		parent[find(m.Left)] = id
		parent[find(m.Right)] = id
	}

	labels := make([]int, n)
	next := 0
	seen := make(map[int]int)
	for i := 0; i < n; i++ {
		root := find(i)
		label, ok := seen[root]
		if !ok {
			label = next
			seen[root] = label
			next++
		}
		labels[i] = label
	}
	return labels
}

func buildGroups(m *SimilarityMatrix, labels []int) []TopologyGroup {
	count := 0
	for _, l := range labels {
		if l+1 > count {
			count = l + 1
		}
	}
	members := make([][]int, count)
	for i, l := range labels {
		members[l] = append(members[l], i)
	}

	groups := make([]TopologyGroup, count)
	for k, idx := range members {
		ids := make([]string, len(idx))
		for i, row := range idx {
			ids[i] = m.CellIDs[row]
		}
		groups[k] = TopologyGroup{
			GroupID:       GroupID(k),
			Name:          LinkName(k),
			Color:         PaletteColor(k),
			MemberCellIDs: ids,
			AvgSimilarity: intraSimilarity(m, idx),
		}
	}
	return groups
}

// intraSimilarity is the mean off-diagonal similarity among rows; 1 for singletons.
func intraSimilarity(m *SimilarityMatrix, rows []int) float64 {
	if len(rows) < 2 {
		return 1.0
	}
	pairs := make([]float64, 0, len(rows)*(len(rows)-1)/2)
	for a := 0; a < len(rows); a++ {
		for b := a + 1; b < len(rows); b++ {
			pairs = append(pairs, m.At(rows[a], rows[b]))
		}
	}
	return CalculateMean(pairs)
}

package topo

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/mds"
)

// ComputeLayout embeds the cells in two dimensions with classical
// multidimensional scaling of the 1 - similarity distances. Dimensions
// without a positive eigenvalue are left at zero.
func ComputeLayout(m *SimilarityMatrix) []CellPosition {
	n := m.Len()
	positions := make([]CellPosition, n)
	for i, id := range m.CellIDs {
		positions[i].CellID = id
	}
	if n < 2 {
		return positions
	}

	dist := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dist.SetSym(i, j, clamp01(1-m.At(i, j)))
		}
	}

	var coords mat.Dense
	k, _ := mds.TorgersonScaling(&coords, nil, dist)
	if k == 0 || coords.IsEmpty() {
		return positions
	}
	_, cols := coords.Dims()
	dims := min(k, cols, 2)
	for i := 0; i < n; i++ {
		if dims > 0 {
			positions[i].X = coords.At(i, 0)
		}
		if dims > 1 {
			positions[i].Y = coords.At(i, 1)
		}
	}
	return positions
}

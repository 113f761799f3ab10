package topo

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// SimilarityMatrix is a symmetric cell × cell matrix with a unit diagonal.
// Rows and columns follow CellIDs.
type SimilarityMatrix struct {
	CellIDs []string    `json:"cell_ids" yaml:"cell_ids"`
	Values  [][]float64 `json:"values" yaml:"values"`
}

func newSimilarityMatrix(cellIDs []string, sym *mat.SymDense) *SimilarityMatrix {
	n := len(cellIDs)
	values := make([][]float64, n)
	for i := 0; i < n; i++ {
		values[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			values[i][j] = sym.At(i, j)
		}
	}
	ids := make([]string, n)
	copy(ids, cellIDs)
	return &SimilarityMatrix{CellIDs: ids, Values: values}
}

func emptySimilarityMatrix() *SimilarityMatrix {
	return &SimilarityMatrix{CellIDs: []string{}, Values: [][]float64{}}
}

// Len returns the number of cells.
func (m *SimilarityMatrix) Len() int { return len(m.CellIDs) }

// At returns the similarity between the i-th and j-th cells.
func (m *SimilarityMatrix) At(i, j int) float64 { return m.Values[i][j] }

// Index returns the row of cellID.
func (m *SimilarityMatrix) Index(cellID string) (int, bool) {
	for i, id := range m.CellIDs {
		if id == cellID {
			return i, true
		}
	}
	return 0, false
}

// Sym returns the matrix as a gonum symmetric matrix. Only the upper
// triangle is read, so the result is symmetric by construction.
func (m *SimilarityMatrix) Sym() *mat.SymDense {
	n := m.Len()
	if n == 0 {
		return &mat.SymDense{}
	}
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, m.Values[i][j])
		}
	}
	return sym
}

// CorrelationEngine turns event series into a similarity matrix.
type CorrelationEngine struct {
	Scaling string
	Workers int
}

// NewCorrelationEngine builds an engine from the run configuration.
func NewCorrelationEngine(cfg Config) *CorrelationEngine {
	return &CorrelationEngine{Scaling: cfg.scaling(), Workers: cfg.workerCount()}
}

// CorrelationResult holds the scaled similarity matrix and the raw Pearson
// coefficients it was derived from (invalid pairs are 0 in both).
type CorrelationResult struct {
	Similarity      *SimilarityMatrix
	Correlation     *SimilarityMatrix
	Degenerate      []*DegenerateSeriesError
	DegeneratePairs int // pairs constant within their overlap or with no overlap
}

type pairResult struct {
	raw   float64
	valid bool
}

// Compute correlates every unordered pair of series. Pairs are computed once
// and written to both triangles. Rows run in parallel; the whole matrix is
// complete when Compute returns.
func (e *CorrelationEngine) Compute(ctx context.Context, series []CongestionEventSeries) (*CorrelationResult, error) {
	ordered := make([]CongestionEventSeries, len(series))
	copy(ordered, series)
	sort.SliceStable(ordered, func(i, j int) bool { return lessCellID(ordered[i].CellID, ordered[j].CellID) })

	n := len(ordered)
	if n == 0 {
		return &CorrelationResult{Similarity: emptySimilarityMatrix(), Correlation: emptySimilarityMatrix()}, nil
	}
	cellIDs := make([]string, n)
	constant := make([]bool, n)
	result := &CorrelationResult{}
	for i, s := range ordered {
		cellIDs[i] = s.CellID
		if v, ok := constantValue(s.Events); ok {
			constant[i] = true
			result.Degenerate = append(result.Degenerate, &DegenerateSeriesError{CellID: s.CellID, Value: v})
		}
	}

	pairs := make([]pairResult, n*n)
	workers := e.Workers
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for j := i + 1; j < n; j++ {
				if constant[i] || constant[j] {
					continue
				}
				r, ok := pearsonAligned(ordered[i], ordered[j])
				pairs[i*n+j] = pairResult{raw: r, valid: ok}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var valid []float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			p := pairs[i*n+j]
			if p.valid {
				valid = append(valid, p.raw)
			} else {
				result.DegeneratePairs++
			}
		}
	}
	scale := e.scaler(valid)

	similarity := mat.NewSymDense(n, nil)
	correlation := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		similarity.SetSym(i, i, 1.0)
		correlation.SetSym(i, i, 1.0)
		for j := i + 1; j < n; j++ {
			p := pairs[i*n+j]
			if !p.valid {
				continue
			}
			correlation.SetSym(i, j, p.raw)
			similarity.SetSym(i, j, clamp01(scale(p.raw)))
		}
	}

	result.Similarity = newSimilarityMatrix(cellIDs, similarity)
	result.Correlation = newSimilarityMatrix(cellIDs, correlation)
	return result, nil
}

// scaler maps raw correlations into [0,1] according to the configured scaling.
// The z-score scaling needs at least two valid pairs with distinct values;
// otherwise it degrades to clipping.
func (e *CorrelationEngine) scaler(valid []float64) func(float64) float64 {
	clip := func(r float64) float64 { return math.Max(r, 0) }
	switch e.Scaling {
	case ScalingShift:
		return func(r float64) float64 { return (r + 1) / 2 }
	case ScalingClip:
		return clip
	}

	if len(valid) < 2 {
		return clip
	}
	mean, std := stat.MeanStdDev(valid, nil)
	if std == 0 || math.IsNaN(std) {
		return clip
	}
	zmin, zmax := math.Inf(1), math.Inf(-1)
	for _, r := range valid {
		z := (r - mean) / std
		zmin = math.Min(zmin, z)
		zmax = math.Max(zmax, z)
	}
	if zmax <= zmin {
		return clip
	}
	return func(r float64) float64 {
		z := (r - mean) / std
		return (z - zmin) / (zmax - zmin)
	}
}

// pearsonAligned correlates two event series over the slots they share.
// Returns ok=false when the overlap is empty or either side is constant on it.
func pearsonAligned(a, b CongestionEventSeries) (float64, bool) {
	x := make([]float64, 0, min(len(a.SlotIDs), len(b.SlotIDs)))
	y := make([]float64, 0, cap(x))
	i, j := 0, 0
	for i < len(a.SlotIDs) && j < len(b.SlotIDs) {
		switch {
		case a.SlotIDs[i] < b.SlotIDs[j]:
			i++
		case a.SlotIDs[i] > b.SlotIDs[j]:
			j++
		default:
			x = append(x, float64(a.Events[i]))
			y = append(y, float64(b.Events[j]))
			i++
			j++
		}
	}
	if len(x) < 2 || isConstant(x) || isConstant(y) {
		return 0, false
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0, false
	}
	return math.Max(-1, math.Min(1, r)), true
}

func constantValue(events []uint8) (uint8, bool) {
	if len(events) == 0 {
		return 0, true
	}
	for _, e := range events[1:] {
		if e != events[0] {
			return 0, false
		}
	}
	return events[0], true
}

func isConstant(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

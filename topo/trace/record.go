// Package trace records per-cell exclusions made during a pipeline run.
// It imports nothing from topo and holds plain data only.
package trace

// Exclusion kinds.
const (
	KindDataGap        = "data_gap"
	KindDegenerate     = "degenerate_series"
	KindRejectedSample = "rejected_sample"
	KindDuplicateSlot  = "duplicate_slot"
)

// ExclusionRecord captures one recoverable per-cell problem.
// Count is the number of affected samples for sample-level kinds, 1 otherwise.
type ExclusionRecord struct {
	CellID string `json:"cell_id" yaml:"cell_id"`
	Stage  string `json:"stage" yaml:"stage"`
	Kind   string `json:"kind" yaml:"kind"`
	Reason string `json:"reason" yaml:"reason"`
	Count  int    `json:"count" yaml:"count"`
}

// Excludes reports whether the record removes the cell from the stage's
// artifact. Sample-level rejections and degenerate series do not.
func (r ExclusionRecord) Excludes() bool {
	return r.Kind == KindDataGap
}

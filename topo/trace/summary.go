package trace

// TraceSummary aggregates statistics from a RunTrace.
type TraceSummary struct {
	TotalRecords     int            `json:"total_records" yaml:"total_records"`
	ExcludedCells    int            `json:"excluded_cells" yaml:"excluded_cells"`
	RejectedSamples  int            `json:"rejected_samples" yaml:"rejected_samples"`
	DegenerateCells  int            `json:"degenerate_cells" yaml:"degenerate_cells"`
	StageExclusions  map[string]int `json:"stage_exclusions" yaml:"stage_exclusions"` // stage → cells excluded
	KindDistribution map[string]int `json:"kind_distribution" yaml:"kind_distribution"`
}

// Summarize computes aggregate statistics from a RunTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(rt *RunTrace) *TraceSummary {
	summary := &TraceSummary{
		StageExclusions:  make(map[string]int),
		KindDistribution: make(map[string]int),
	}
	if rt == nil {
		return summary
	}

	summary.TotalRecords = len(rt.Exclusions)
	excluded := make(map[string]bool)
	degenerate := make(map[string]bool)
	for _, r := range rt.Exclusions {
		summary.KindDistribution[r.Kind]++
		switch r.Kind {
		case KindRejectedSample, KindDuplicateSlot:
			summary.RejectedSamples += r.Count
		case KindDegenerate:
			degenerate[r.CellID] = true
		}
		if r.Excludes() {
			summary.StageExclusions[r.Stage]++
			excluded[r.CellID] = true
		}
	}
	summary.ExcludedCells = len(excluded)
	summary.DegenerateCells = len(degenerate)

	return summary
}

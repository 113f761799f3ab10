package trace

// RunTrace collects exclusion records during a pipeline run.
type RunTrace struct {
	Exclusions []ExclusionRecord `json:"exclusions" yaml:"exclusions"`
}

// NewRunTrace creates a RunTrace ready for recording.
func NewRunTrace() *RunTrace {
	return &RunTrace{
		Exclusions: make([]ExclusionRecord, 0),
	}
}

// Record appends an exclusion record.
func (rt *RunTrace) Record(record ExclusionRecord) {
	rt.Exclusions = append(rt.Exclusions, record)
}

// ExcludedFrom returns the cells removed from a stage's artifact, in recording order.
func (rt *RunTrace) ExcludedFrom(stage string) []string {
	var cells []string
	seen := make(map[string]bool)
	for _, r := range rt.Exclusions {
		if r.Stage != stage || !r.Excludes() || seen[r.CellID] {
			continue
		}
		seen[r.CellID] = true
		cells = append(cells, r.CellID)
	}
	return cells
}

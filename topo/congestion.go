package topo

// CongestionEventExtractor marks slots where a cell's throughput falls below
// its own low percentile over the whole run. The reference is per cell and
// covers the full series, unlike the rolling anomaly baseline.
type CongestionEventExtractor struct {
	Percentile float64
	MinSamples int
}

// NewCongestionEventExtractor builds an extractor from the run configuration.
func NewCongestionEventExtractor(cfg Config) *CongestionEventExtractor {
	return &CongestionEventExtractor{Percentile: cfg.CongestionPercentile, MinSamples: cfg.MinCongestionSamples}
}

// Extract computes the event series for one cell. Malformed samples are
// skipped, so the returned slot axis may be shorter than the input.
// A cell with fewer than MinSamples valid samples yields a *DataGapError.
func (e *CongestionEventExtractor) Extract(series CellSeries) (*CongestionEventSeries, error) {
	slots := make([]int64, 0, series.Len())
	values := make([]float64, 0, series.Len())
	for i, v := range series.Throughput {
		if !validThroughput(v) {
			continue
		}
		slots = append(slots, series.SlotIDs[i])
		values = append(values, v)
	}
	if len(values) < e.MinSamples {
		return nil, &DataGapError{CellID: series.CellID, Stage: StageCongestion, Have: len(values), Need: e.MinSamples}
	}

	threshold := CalculatePercentile(sortedCopy(values), e.Percentile)
	events := make([]uint8, len(values))
	for i, v := range values {
		if v < threshold {
			events[i] = 1
		}
	}
	return &CongestionEventSeries{
		CellID:    series.CellID,
		Source:    EventSourceCongestion,
		Threshold: threshold,
		SlotIDs:   slots,
		Events:    events,
	}, nil
}

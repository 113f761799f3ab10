package topo

// baselineEpsilon guards the drop-ratio division: baselines at or below it
// count as zero and cannot produce an anomaly.
const baselineEpsilon = 1e-9

// BaselineAnomalyDetector flags slots whose throughput drops sharply below a
// causal rolling-median baseline.
type BaselineAnomalyDetector struct {
	Window               int
	DropRatioThreshold   float64
	CellAnomalyThreshold float64
	MinSamples           int
}

// NewBaselineAnomalyDetector builds a detector from the run configuration.
func NewBaselineAnomalyDetector(cfg Config) *BaselineAnomalyDetector {
	return &BaselineAnomalyDetector{
		Window:               cfg.Window,
		DropRatioThreshold:   cfg.DropRatioThreshold,
		CellAnomalyThreshold: cfg.CellAnomalyThreshold,
		MinSamples:           cfg.MinBaselineSamples,
	}
}

// CellAnomalyResult holds one cell's records and summary. Rejected counts
// samples discarded as malformed before evaluation.
type CellAnomalyResult struct {
	Records  []AnomalyRecord
	Summary  *CellAnomalySummary
	Rejected int
}

// Detect evaluates every accepted sample of the series. Negative or
// non-finite throughput is rejected and takes no part in any baseline.
// When fewer than MinSamples samples are accepted, Detect returns a
// *DataGapError along with a result carrying only the rejection count.
func (d *BaselineAnomalyDetector) Detect(series CellSeries) (*CellAnomalyResult, error) {
	result := &CellAnomalyResult{}
	accepted := 0
	for _, v := range series.Throughput {
		if validThroughput(v) {
			accepted++
		}
	}
	result.Rejected = series.Len() - accepted
	if accepted < d.MinSamples {
		return result, &DataGapError{CellID: series.CellID, Stage: StageAnomaly, Have: accepted, Need: d.MinSamples}
	}

	window := newRollingWindow(d.Window)
	records := make([]AnomalyRecord, 0, accepted)
	summary := &CellAnomalySummary{CellID: series.CellID, RejectedSamples: result.Rejected}
	for i, v := range series.Throughput {
		if !validThroughput(v) {
			continue
		}
		rec := AnomalyRecord{CellID: series.CellID, SlotID: series.SlotIDs[i], Throughput: v}
		if window.Len() > 0 {
			rec.HasBaseline = true
			rec.Baseline = window.Median()
			d.evaluate(&rec)
		}
		window.Push(v)

		records = append(records, rec)
		if rec.IsAnomaly {
			summary.AnomalousSlots++
			if rec.Confidence > summary.MaxConfidence {
				summary.MaxConfidence = rec.Confidence
			}
		}
	}

	summary.Slots = len(records)
	summary.AnomalyRate = float64(summary.AnomalousSlots) / float64(summary.Slots)
	summary.IsAnomalousCell = summary.AnomalyRate > d.CellAnomalyThreshold
	result.Records = records
	result.Summary = summary
	return result, nil
}

func (d *BaselineAnomalyDetector) evaluate(rec *AnomalyRecord) {
	if rec.Baseline <= baselineEpsilon {
		return
	}
	rec.DropRatioValid = true
	rec.DropRatio = (rec.Baseline - rec.Throughput) / rec.Baseline
	if rec.DropRatio > d.DropRatioThreshold {
		rec.IsAnomaly = true
		rec.Confidence = clamp01((rec.DropRatio - d.DropRatioThreshold) / d.DropRatioThreshold)
	}
}

func validThroughput(v float64) bool { return isFinite(v) && v >= 0 }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

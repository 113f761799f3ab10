package topo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/toposense/toposense/topo/trace"
)

// TopologyResult holds the artifacts derived from congestion event series.
type TopologyResult struct {
	Similarity        *SimilarityMatrix  `json:"similarity" yaml:"similarity"`
	Correlation       *SimilarityMatrix  `json:"correlation" yaml:"correlation"`
	Groups            []TopologyGroup    `json:"groups" yaml:"groups"`
	Assignments       []CellAssignment   `json:"assignments" yaml:"assignments"`
	Dendrogram        *Dendrogram        `json:"dendrogram" yaml:"dendrogram"`
	Layout            []CellPosition     `json:"layout" yaml:"layout"`
	PropagationEvents []PropagationEvent `json:"propagation_events" yaml:"propagation_events"`
}

// Result is everything one pipeline run produces. Every field is plain data.
type Result struct {
	Config           Config                  `json:"config" yaml:"config"`
	Cells            []string                `json:"cells" yaml:"cells"`
	Anomalies        []AnomalyRecord         `json:"anomalies" yaml:"anomalies"`
	Summaries        []CellAnomalySummary    `json:"summaries" yaml:"summaries"`
	Congestion       []CongestionEventSeries `json:"congestion" yaml:"congestion"`
	TopologyResult   `yaml:",inline"`
	GroupPropagation []GroupPropagation `json:"group_propagation" yaml:"group_propagation"`
	Trace            *trace.RunTrace    `json:"trace" yaml:"trace"`
}

// Pipeline sequences the pipeline stages for one immutable configuration.
type Pipeline struct {
	cfg     Config
	metrics *Metrics
}

// NewPipeline validates cfg and returns a pipeline bound to it. metrics may be nil.
// An invalid configuration returns a *ConfigurationError before any work is done.
func NewPipeline(cfg Config, metrics *Metrics) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg, metrics: metrics}, nil
}

// Run is a convenience wrapper: NewPipeline(cfg, nil) followed by Run.
func Run(ctx context.Context, cfg Config, samples []ThroughputSample) (*Result, error) {
	p, err := NewPipeline(cfg, nil)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, samples)
}

// Config returns the pipeline's configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// RunRaw aggregates raw symbol-level samples into slots and runs the pipeline.
// Cells in expectedCells without any sample are reported as data gaps.
func (p *Pipeline) RunRaw(ctx context.Context, raw []RawSample, expectedCells []string) (*Result, error) {
	start := time.Now()
	agg, err := NewSlotAggregator(p.cfg).Aggregate(raw, expectedCells)
	if err != nil {
		p.metrics.finishRun(err, nil)
		return nil, err
	}
	p.metrics.observeStage(StageAggregate, start)
	return p.run(ctx, agg.Series, agg.Exclusions, nil)
}

// Run executes the pipeline over slot-level samples. Per-cell problems are
// recorded in Result.Trace and never abort the run; a cancelled ctx does.
func (p *Pipeline) Run(ctx context.Context, samples []ThroughputSample) (*Result, error) {
	series, exclusions := BuildCellSeries(samples)
	return p.run(ctx, series, exclusions, nil)
}

// RunWithEvents is Run with the topology inferred from events (e.g. packet
// loss) instead of the congestion events extracted from samples. Anomaly and
// congestion output still come from samples.
func (p *Pipeline) RunWithEvents(ctx context.Context, samples []ThroughputSample, events []CongestionEventSeries) (*Result, error) {
	series, exclusions := BuildCellSeries(samples)
	return p.run(ctx, series, exclusions, topologyEvents(events))
}

// RunRawWithEvents is RunRaw with the topology inferred from events.
func (p *Pipeline) RunRawWithEvents(ctx context.Context, raw []RawSample, expectedCells []string, events []CongestionEventSeries) (*Result, error) {
	start := time.Now()
	agg, err := NewSlotAggregator(p.cfg).Aggregate(raw, expectedCells)
	if err != nil {
		p.metrics.finishRun(err, nil)
		return nil, err
	}
	p.metrics.observeStage(StageAggregate, start)
	return p.run(ctx, agg.Series, agg.Exclusions, topologyEvents(events))
}

// topologyEvents keeps a nil override distinct from an empty event set.
func topologyEvents(events []CongestionEventSeries) *[]CongestionEventSeries {
	if events == nil {
		events = []CongestionEventSeries{}
	}
	return &events
}

func (p *Pipeline) run(ctx context.Context, series []CellSeries, pre []trace.ExclusionRecord, override *[]CongestionEventSeries) (result *Result, err error) {
	defer func() { p.metrics.finishRun(err, result) }()

	rt := trace.NewRunTrace()
	for _, r := range pre {
		p.record(rt, r)
	}

	logrus.Infof("Starting pipeline over %d cells, window=%d, drop_ratio_threshold=%.2f, congestion_percentile=%.1f, linkage_distance_threshold=%.2f",
		len(series), p.cfg.Window, p.cfg.DropRatioThreshold, p.cfg.CongestionPercentile, p.cfg.LinkageDistanceThreshold)

	start := time.Now()
	outcomes, err := p.perCell(ctx, series)
	if err != nil {
		return nil, err
	}
	p.metrics.observeStage(StageAnomaly, start)

	result = &Result{Config: p.cfg, Cells: make([]string, 0, len(series))}
	anomalies := make(map[string][]AnomalyRecord, len(series))
	var events []CongestionEventSeries
	for i, s := range series {
		result.Cells = append(result.Cells, s.CellID)
		o := outcomes[i]

		if o.anomaly != nil && o.anomaly.Rejected > 0 {
			logrus.Warnf("cell %s: rejected %d malformed throughput samples", s.CellID, o.anomaly.Rejected)
			p.record(rt, trace.ExclusionRecord{
				CellID: s.CellID, Stage: StageAnomaly, Kind: trace.KindRejectedSample,
				Reason: "negative or non-finite throughput", Count: o.anomaly.Rejected,
			})
		}
		if err := p.recordGap(rt, o.anomalyErr); err != nil {
			return nil, err
		}
		if o.anomaly != nil && o.anomaly.Summary != nil {
			result.Anomalies = append(result.Anomalies, o.anomaly.Records...)
			result.Summaries = append(result.Summaries, *o.anomaly.Summary)
			anomalies[s.CellID] = o.anomaly.Records
		}

		if err := p.recordGap(rt, o.eventsErr); err != nil {
			return nil, err
		}
		if o.events != nil {
			events = append(events, *o.events)
		}
	}
	result.Congestion = events

	topologyInput := events
	if override != nil {
		topologyInput = *override
		logrus.Infof("Inferring topology from %d external event series", len(topologyInput))
	}
	topology, err := p.inferTopology(ctx, topologyInput, rt)
	if err != nil {
		return nil, err
	}
	result.TopologyResult = *topology
	result.GroupPropagation = AnalyzeGroupPropagation(topology.Groups, anomalies)
	result.Trace = rt

	logrus.Infof("Pipeline complete: %d cells, %d clustered, %d groups, %d exclusion records",
		len(result.Cells), len(topologyInput), len(result.Groups), len(rt.Exclusions))
	return result, nil
}

// InferTopology runs correlation, clustering and the derived group analyses
// directly on event series, e.g. packet-loss events.
func (p *Pipeline) InferTopology(ctx context.Context, events []CongestionEventSeries) (*TopologyResult, *trace.RunTrace, error) {
	rt := trace.NewRunTrace()
	topology, err := p.inferTopology(ctx, events, rt)
	if err != nil {
		return nil, nil, err
	}
	return topology, rt, nil
}

func (p *Pipeline) inferTopology(ctx context.Context, events []CongestionEventSeries, rt *trace.RunTrace) (*TopologyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	corr, err := NewCorrelationEngine(p.cfg).Compute(ctx, events)
	if err != nil {
		return nil, fmt.Errorf("computing similarity matrix: %w", err)
	}
	p.metrics.observeStage(StageCorrelation, start)
	for _, d := range corr.Degenerate {
		logrus.Warnf("%v; similarity to all peers set to 0", d)
		p.record(rt, trace.ExclusionRecord{
			CellID: d.CellID, Stage: StageCorrelation, Kind: trace.KindDegenerate, Reason: d.Error(), Count: 1,
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	clusters, err := NewTopologyClusterer(p.cfg).Cluster(corr.Similarity)
	if err != nil {
		return nil, fmt.Errorf("clustering topology: %w", err)
	}
	p.metrics.observeStage(StageCluster, start)
	logrus.Debugf("clustered %d cells into %d groups", corr.Similarity.Len(), len(clusters.Groups))

	return &TopologyResult{
		Similarity:        corr.Similarity,
		Correlation:       corr.Correlation,
		Groups:            clusters.Groups,
		Assignments:       AssessGroupFit(corr.Similarity, clusters, p.cfg.GroupFitThreshold),
		Dendrogram:        clusters.Dendrogram,
		Layout:            ComputeLayout(corr.Similarity),
		PropagationEvents: DetectGroupPropagation(clusters.Groups, events, p.cfg.PropagationMaxLag, p.cfg.PropagationMinCorrelation),
	}, nil
}

type cellOutcome struct {
	anomaly    *CellAnomalyResult
	anomalyErr error
	events     *CongestionEventSeries
	eventsErr  error
}

// perCell runs anomaly detection and event extraction for every cell on a
// bounded worker pool. Outcomes are indexed like series.
func (p *Pipeline) perCell(ctx context.Context, series []CellSeries) ([]cellOutcome, error) {
	detector := NewBaselineAnomalyDetector(p.cfg)
	extractor := NewCongestionEventExtractor(p.cfg)
	outcomes := make([]cellOutcome, len(series))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.workerCount())
	for i := range series {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			o := &outcomes[i]
			o.anomaly, o.anomalyErr = detector.Detect(series[i])
			o.events, o.eventsErr = extractor.Extract(series[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// recordGap logs and traces a recoverable data gap. Any other error is returned.
func (p *Pipeline) recordGap(rt *trace.RunTrace, err error) error {
	if err == nil {
		return nil
	}
	var gap *DataGapError
	if !errors.As(err, &gap) {
		return err
	}
	logrus.Warnf("%v; cell excluded from %s output", gap, gap.Stage)
	p.record(rt, trace.ExclusionRecord{
		CellID: gap.CellID, Stage: gap.Stage, Kind: trace.KindDataGap, Reason: gap.Error(), Count: 1,
	})
	return nil
}

func (p *Pipeline) record(rt *trace.RunTrace, r trace.ExclusionRecord) {
	rt.Record(r)
	if r.Excludes() {
		p.metrics.excluded(r.Stage, r.Kind)
	}
}

// BuildCellSeries groups samples by cell in natural cell order, sorting each
// cell by slot. A repeated (cell, slot) pair keeps its first occurrence; the
// rest are reported as duplicate-slot records.
func BuildCellSeries(samples []ThroughputSample) ([]CellSeries, []trace.ExclusionRecord) {
	type entry struct {
		slot int64
		v    float64
	}
	byCell := make(map[string][]entry)
	seen := make(map[string]map[int64]bool)
	dups := make(map[string]int)
	for _, s := range samples {
		if seen[s.CellID] == nil {
			seen[s.CellID] = make(map[int64]bool)
		}
		if seen[s.CellID][s.SlotID] {
			dups[s.CellID]++
			continue
		}
		seen[s.CellID][s.SlotID] = true
		byCell[s.CellID] = append(byCell[s.CellID], entry{slot: s.SlotID, v: s.Throughput})
	}

	ids := make([]string, 0, len(byCell))
	for id := range byCell {
		ids = append(ids, id)
	}
	SortCellIDs(ids)

	series := make([]CellSeries, 0, len(ids))
	var exclusions []trace.ExclusionRecord
	for _, id := range ids {
		entries := byCell[id]
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].slot < entries[j].slot })
		s := CellSeries{CellID: id, SlotIDs: make([]int64, len(entries)), Throughput: make([]float64, len(entries))}
		for i, e := range entries {
			s.SlotIDs[i] = e.slot
			s.Throughput[i] = e.v
		}
		series = append(series, s)
		if n := dups[id]; n > 0 {
			logrus.Warnf("cell %s: dropped %d duplicate slot samples", id, n)
			exclusions = append(exclusions, trace.ExclusionRecord{
				CellID: id, Stage: StageIngest, Kind: trace.KindDuplicateSlot,
				Reason: "repeated (cell_id, slot_id) pair", Count: n,
			})
		}
	}
	return series, exclusions
}

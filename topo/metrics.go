package topo

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes pipeline counters to Prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Runs           *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	ExcludedCells  *prometheus.CounterVec
	AnomalousSlots prometheus.Counter
	AnomalousCells prometheus.Counter
	Groups         prometheus.Gauge
}

// NewMetrics creates the pipeline metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toposense_pipeline_runs_total",
			Help: "Pipeline runs by result",
		}, []string{"result"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "toposense_pipeline_stage_duration_seconds",
			Help:    "Wall time per pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 0.1ms to ~26s
		}, []string{"stage"}),
		ExcludedCells: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toposense_pipeline_excluded_cells_total",
			Help: "Cells left out of a stage's artifact",
		}, []string{"stage", "kind"}),
		AnomalousSlots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toposense_anomalous_slots_total",
			Help: "Slots flagged by baseline anomaly detection",
		}),
		AnomalousCells: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toposense_anomalous_cells_total",
			Help: "Cells whose anomaly rate exceeded the cell threshold",
		}),
		Groups: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toposense_topology_groups",
			Help: "Topology groups found by the last run",
		}),
	}
	reg.MustRegister(m.Runs, m.StageDuration, m.ExcludedCells, m.AnomalousSlots, m.AnomalousCells, m.Groups)
	return m
}

func (m *Metrics) observeStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) excluded(stage, kind string) {
	if m == nil {
		return
	}
	m.ExcludedCells.WithLabelValues(stage, kind).Inc()
}

func (m *Metrics) finishRun(err error, result *Result) {
	if m == nil {
		return
	}
	if err != nil {
		m.Runs.WithLabelValues("error").Inc()
		return
	}
	m.Runs.WithLabelValues("ok").Inc()
	for _, s := range result.Summaries {
		m.AnomalousSlots.Add(float64(s.AnomalousSlots))
		if s.IsAnomalousCell {
			m.AnomalousCells.Inc()
		}
	}
	m.Groups.Set(float64(len(result.Groups)))
}

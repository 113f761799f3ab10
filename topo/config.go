package topo

import (
	"math"
	"runtime"
)

// Similarity scalings applied to raw Pearson correlations.
const (
	ScalingZScore = "zscore" // z-score over all valid pairs, then min-max to [0,1]
	ScalingShift  = "shift"  // (r+1)/2
	ScalingClip   = "clip"   // max(r,0)
)

// ValidSimilarityScalings is the set of recognized similarity_scaling values.
var ValidSimilarityScalings = map[string]bool{"": true, ScalingZScore: true, ScalingShift: true, ScalingClip: true}

// Config holds every threshold of a pipeline run. It is passed by value into
// NewPipeline and never mutated afterwards, so concurrent runs with different
// thresholds do not interfere.
type Config struct {
	// Baseline anomaly detection
	Window               int     `yaml:"window"`                 // trailing baseline window in slots
	DropRatioThreshold   float64 `yaml:"drop_ratio_threshold"`   // T_drop, strict >
	CellAnomalyThreshold float64 `yaml:"cell_anomaly_threshold"` // T_cell, strict >
	MinBaselineSamples   int     `yaml:"min_baseline_samples"`

	// Congestion events
	CongestionPercentile float64 `yaml:"congestion_percentile"` // p in [0,100]
	MinCongestionSamples int     `yaml:"min_congestion_samples"`

	// Similarity and clustering
	SimilarityScaling        string  `yaml:"similarity_scaling"`
	LinkageDistanceThreshold float64 `yaml:"linkage_distance_threshold"`
	MaxClusters              int     `yaml:"max_clusters"` // 0 = cut by distance threshold

	// Slot aggregation
	SymbolsPerSlot int     `yaml:"symbols_per_slot"`
	SlotDuration   float64 `yaml:"slot_duration"` // seconds; 0 = slots by symbol index
	SlotOrigin     float64 `yaml:"slot_origin"`   // timestamp of slot 0 when slot_duration > 0

	// Group fit and propagation
	GroupFitThreshold         float64 `yaml:"group_fit_threshold"`
	PropagationMaxLag         int     `yaml:"propagation_max_lag"`
	PropagationMinCorrelation float64 `yaml:"propagation_min_correlation"`

	Workers int `yaml:"workers"` // 0 = GOMAXPROCS
}

// DefaultConfig returns the thresholds used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Window:                    100,
		DropRatioThreshold:        0.30,
		CellAnomalyThreshold:      0.25,
		MinBaselineSamples:        2,
		CongestionPercentile:      10,
		MinCongestionSamples:      10,
		SimilarityScaling:         ScalingZScore,
		LinkageDistanceThreshold:  0.5,
		SymbolsPerSlot:            14,
		GroupFitThreshold:         0.5,
		PropagationMaxLag:         50,
		PropagationMinCorrelation: 0.6,
	}
}

// Validate checks every threshold. The returned error is always a *ConfigurationError.
func (c Config) Validate() error {
	if c.Window < 1 {
		return newConfigError("window", c.Window, "must be >= 1")
	}
	if !isFinite(c.DropRatioThreshold) || c.DropRatioThreshold <= 0 || c.DropRatioThreshold >= 1 {
		return newConfigError("drop_ratio_threshold", c.DropRatioThreshold, "must be in (0,1)")
	}
	if !inUnitInterval(c.CellAnomalyThreshold) {
		return newConfigError("cell_anomaly_threshold", c.CellAnomalyThreshold, "must be in [0,1]")
	}
	if c.MinBaselineSamples < 2 {
		return newConfigError("min_baseline_samples", c.MinBaselineSamples, "must be >= 2")
	}
	if !isFinite(c.CongestionPercentile) || c.CongestionPercentile < 0 || c.CongestionPercentile > 100 {
		return newConfigError("congestion_percentile", c.CongestionPercentile, "must be in [0,100]")
	}
	if c.MinCongestionSamples < 2 {
		return newConfigError("min_congestion_samples", c.MinCongestionSamples, "must be >= 2")
	}
	if !ValidSimilarityScalings[c.SimilarityScaling] {
		return newConfigError("similarity_scaling", c.SimilarityScaling, "must be one of zscore, shift, clip")
	}
	if !isFinite(c.LinkageDistanceThreshold) || c.LinkageDistanceThreshold <= 0 || c.LinkageDistanceThreshold >= 1 {
		return newConfigError("linkage_distance_threshold", c.LinkageDistanceThreshold, "must be in (0,1)")
	}
	if c.MaxClusters < 0 {
		return newConfigError("max_clusters", c.MaxClusters, "must be >= 0")
	}
	if c.SymbolsPerSlot < 1 {
		return newConfigError("symbols_per_slot", c.SymbolsPerSlot, "must be >= 1")
	}
	if !isFinite(c.SlotDuration) || c.SlotDuration < 0 {
		return newConfigError("slot_duration", c.SlotDuration, "must be >= 0")
	}
	if !isFinite(c.SlotOrigin) {
		return newConfigError("slot_origin", c.SlotOrigin, "must be finite")
	}
	if !inUnitInterval(c.GroupFitThreshold) {
		return newConfigError("group_fit_threshold", c.GroupFitThreshold, "must be in [0,1]")
	}
	if c.PropagationMaxLag < 0 {
		return newConfigError("propagation_max_lag", c.PropagationMaxLag, "must be >= 0")
	}
	if !inUnitInterval(c.PropagationMinCorrelation) {
		return newConfigError("propagation_min_correlation", c.PropagationMinCorrelation, "must be in [0,1]")
	}
	if c.Workers < 0 {
		return newConfigError("workers", c.Workers, "must be >= 0")
	}
	return nil
}

func (c Config) scaling() string {
	if c.SimilarityScaling == "" {
		return ScalingZScore
	}
	return c.SimilarityScaling
}

func (c Config) workerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func inUnitInterval(v float64) bool { return isFinite(v) && v >= 0 && v <= 1 }

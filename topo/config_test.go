package topo

import (
	"errors"
	"math"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfig_Validate_RejectsOutOfRange(t *testing.T) {
	tests := []struct {
		field  string
		mutate func(*Config)
	}{
		{"window", func(c *Config) { c.Window = 0 }},
		{"drop_ratio_threshold", func(c *Config) { c.DropRatioThreshold = 0 }},
		{"drop_ratio_threshold", func(c *Config) { c.DropRatioThreshold = 1 }},
		{"drop_ratio_threshold", func(c *Config) { c.DropRatioThreshold = math.NaN() }},
		{"cell_anomaly_threshold", func(c *Config) { c.CellAnomalyThreshold = 1.5 }},
		{"min_baseline_samples", func(c *Config) { c.MinBaselineSamples = 1 }},
		{"congestion_percentile", func(c *Config) { c.CongestionPercentile = 101 }},
		{"min_congestion_samples", func(c *Config) { c.MinCongestionSamples = 0 }},
		{"similarity_scaling", func(c *Config) { c.SimilarityScaling = "rank" }},
		{"linkage_distance_threshold", func(c *Config) { c.LinkageDistanceThreshold = 0 }},
		{"linkage_distance_threshold", func(c *Config) { c.LinkageDistanceThreshold = 1 }},
		{"max_clusters", func(c *Config) { c.MaxClusters = -1 }},
		{"symbols_per_slot", func(c *Config) { c.SymbolsPerSlot = 0 }},
		{"slot_duration", func(c *Config) { c.SlotDuration = math.Inf(1) }},
		{"slot_origin", func(c *Config) { c.SlotOrigin = math.NaN() }},
		{"group_fit_threshold", func(c *Config) { c.GroupFitThreshold = -0.1 }},
		{"propagation_max_lag", func(c *Config) { c.PropagationMaxLag = -1 }},
		{"propagation_min_correlation", func(c *Config) { c.PropagationMinCorrelation = 2 }},
		{"workers", func(c *Config) { c.Workers = -2 }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			// GIVEN a default config with one invalid field
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			// WHEN validated
			err := cfg.Validate()

			// THEN a ConfigurationError names that field
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestConfig_EmptyScalingMeansZScore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SimilarityScaling = ""
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ScalingZScore, cfg.scaling())
}

func TestConfig_WorkerCountDefaultsToGOMAXPROCS(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, runtime.GOMAXPROCS(0), cfg.workerCount())
	cfg.Workers = 3
	assert.Equal(t, 3, cfg.workerCount())
}

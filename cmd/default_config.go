package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/toposense/toposense/topo"
)

// loadPipelineConfig parses a YAML pipeline configuration on top of
// topo.DefaultConfig. Keys left out of the file keep their defaults.
// Uses strict field checking: a misspelled threshold must fail, not be ignored.
func loadPipelineConfig(path string) (topo.Config, error) {
	cfg := topo.DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading pipeline config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing pipeline config %s: %w", path, err)
	}
	return cfg, nil
}

// applyFlagOverrides copies threshold flags into cfg. Only flags the user set
// explicitly override the file; defaults never clobber configured values.
func applyFlagOverrides(cmd *cobra.Command, cfg *topo.Config) {
	flags := cmd.Flags()
	if flags.Changed("window") {
		cfg.Window = window
	}
	if flags.Changed("drop-ratio-threshold") {
		cfg.DropRatioThreshold = dropRatioThreshold
	}
	if flags.Changed("cell-anomaly-threshold") {
		cfg.CellAnomalyThreshold = cellAnomalyThreshold
	}
	if flags.Changed("congestion-percentile") {
		cfg.CongestionPercentile = congestionPercentile
	}
	if flags.Changed("linkage-distance-threshold") {
		cfg.LinkageDistanceThreshold = linkageDistanceThreshold
	}
	if flags.Changed("max-clusters") {
		cfg.MaxClusters = maxClusters
	}
	if flags.Changed("similarity-scaling") {
		cfg.SimilarityScaling = similarityScaling
	}
	if flags.Changed("symbols-per-slot") {
		cfg.SymbolsPerSlot = symbolsPerSlot
	}
	if flags.Changed("slot-duration") {
		cfg.SlotDuration = slotDuration
	}
	if flags.Changed("slot-origin") {
		cfg.SlotOrigin = slotOrigin
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
}

// resolveConfig loads the config file, applies flag overrides and validates.
func resolveConfig(cmd *cobra.Command) (topo.Config, error) {
	cfg, err := loadPipelineConfig(configPath)
	if err != nil {
		return cfg, err
	}
	applyFlagOverrides(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// configCmd prints the effective configuration after file and flag overrides.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective pipeline configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshaling config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

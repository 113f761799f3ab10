package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/toposense/toposense/topo"
	"github.com/toposense/toposense/topo/ingest"
)

var (
	// Inputs and outputs
	configPath  string   // Pipeline config YAML
	inputPath   string   // Slot throughput CSV
	symbolPaths []string // Per-cell symbol .dat files, aggregated into slots
	lossPaths   []string // Per-cell packet stats files; loss events replace congestion events for topology
	outDir      string   // Artifact directory
	metricsOut  string   // Prometheus textfile path
	logLevel    string   // Log verbosity level
	timeout     time.Duration

	// Threshold overrides, applied only when set explicitly
	window                   int
	dropRatioThreshold       float64
	cellAnomalyThreshold     float64
	congestionPercentile     float64
	linkageDistanceThreshold float64
	maxClusters              int
	similarityScaling        string
	symbolsPerSlot           int
	slotDuration             float64
	slotOrigin               float64
	workers                  int
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "toposense",
	Short: "Infer shared fronthaul topology from per-cell slot throughput",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
		return nil
	},
}

// runCmd executes the full pipeline and writes the run artifacts
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run anomaly detection and topology inference",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := runPipeline(ctx, cfg, cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("Pipeline failed: %v", err)
		}
	},
}

// runPipeline loads the configured inputs, runs the pipeline and writes
// artifacts. It prints a one-line-per-group summary to w.
func runPipeline(ctx context.Context, cfg topo.Config, w io.Writer) error {
	if inputPath == "" && len(symbolPaths) == 0 {
		return fmt.Errorf("no input: pass --input or --symbols")
	}

	runID := uuid.NewString()
	reg := prometheus.NewRegistry()
	pipeline, err := topo.NewPipeline(cfg, topo.NewMetrics(reg))
	if err != nil {
		return err
	}

	var loss []topo.CongestionEventSeries
	if len(lossPaths) > 0 {
		loss, err = ingest.LoadPacketStatsFiles(lossPaths)
		if err != nil {
			return err
		}
		logrus.Infof("Topology inferred from packet-loss events of %d cells", len(loss))
	}

	var (
		result *topo.Result
		inputs []string
	)
	if inputPath != "" {
		samples, _, err := ingest.LoadThroughputCSV(inputPath)
		if err != nil {
			return err
		}
		inputs = append(inputs, inputPath)
		if loss != nil {
			result, err = pipeline.RunWithEvents(ctx, samples, loss)
		} else {
			result, err = pipeline.Run(ctx, samples)
		}
		if err != nil {
			return err
		}
	} else {
		raw, cells, err := ingest.LoadSymbolFiles(symbolPaths)
		if err != nil {
			return err
		}
		inputs = append(inputs, symbolPaths...)
		if loss != nil {
			result, err = pipeline.RunRawWithEvents(ctx, raw, cells, loss)
		} else {
			result, err = pipeline.RunRaw(ctx, raw, cells)
		}
		if err != nil {
			return err
		}
	}
	inputs = append(inputs, lossPaths...)

	if outDir != "" {
		manifest := ingest.Manifest{
			RunID:     runID,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
			Inputs:    inputs,
		}
		if err := ingest.WriteArtifacts(outDir, result, manifest); err != nil {
			return err
		}
		logrus.Infof("Run %s artifacts written to %s", runID, outDir)
	}
	if metricsOut != "" {
		if err := prometheus.WriteToTextfile(metricsOut, reg); err != nil {
			return fmt.Errorf("writing metrics textfile: %w", err)
		}
	}

	printSummary(w, runID, result)
	return nil
}

func printSummary(w io.Writer, runID string, result *topo.Result) {
	anomalous := 0
	for _, s := range result.Summaries {
		if s.IsAnomalousCell {
			anomalous++
		}
	}
	fmt.Fprintf(w, "=== Run %s ===\n", runID)
	fmt.Fprintf(w, "Cells: %d, anomalous: %d, groups: %d\n", len(result.Cells), anomalous, len(result.Groups))
	for _, g := range result.Groups {
		fmt.Fprintf(w, "  %s (%s) %s avg_similarity=%.3f members=%v\n",
			g.GroupID, g.Name, g.Color, g.AvgSimilarity, g.MemberCellIDs)
	}
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Pipeline config YAML (unset keys use defaults)")

	for _, c := range []*cobra.Command{runCmd, configCmd} {
		c.Flags().IntVar(&window, "window", 100, "Trailing baseline window in slots")
		c.Flags().Float64Var(&dropRatioThreshold, "drop-ratio-threshold", 0.30, "Drop ratio above which a slot is anomalous")
		c.Flags().Float64Var(&cellAnomalyThreshold, "cell-anomaly-threshold", 0.25, "Anomaly rate above which a cell is anomalous")
		c.Flags().Float64Var(&congestionPercentile, "congestion-percentile", 10, "Per-cell percentile below which a slot is congested")
		c.Flags().Float64Var(&linkageDistanceThreshold, "linkage-distance-threshold", 0.5, "Dendrogram cut distance, in (0,1)")
		c.Flags().IntVar(&maxClusters, "max-clusters", 0, "Cut into at most this many groups (0 = use distance threshold)")
		c.Flags().StringVar(&similarityScaling, "similarity-scaling", topo.ScalingZScore, "Correlation to similarity map (zscore, shift, clip)")
		c.Flags().IntVar(&symbolsPerSlot, "symbols-per-slot", 14, "Symbols summed into one slot")
		c.Flags().Float64Var(&slotDuration, "slot-duration", 0, "Slot length in seconds (0 = group by symbol index)")
		c.Flags().Float64Var(&slotOrigin, "slot-origin", 0, "Timestamp of slot 0 when --slot-duration is set")
		c.Flags().IntVar(&workers, "workers", 0, "Worker pool size (0 = GOMAXPROCS)")
	}

	runCmd.Flags().StringVar(&inputPath, "input", "", "Slot throughput CSV (cell_id, slot_id, throughput)")
	runCmd.Flags().StringSliceVar(&symbolPaths, "symbols", nil, "Per-cell symbol .dat files, used when --input is unset")
	runCmd.Flags().StringSliceVar(&lossPaths, "loss", nil, "Per-cell packet stats files; topology is inferred from their loss events")
	runCmd.Flags().StringVar(&outDir, "out", "", "Artifact output directory")
	runCmd.Flags().StringVar(&metricsOut, "metrics-out", "", "Write Prometheus metrics to this textfile")
	runCmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort the run after this duration (0 = no limit)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(aggregateCmd)
}

package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/toposense/toposense/topo"
	"github.com/toposense/toposense/topo/ingest"
)

var aggregateOut string

// aggregateCmd converts per-cell symbol files into a slot throughput CSV
var aggregateCmd = &cobra.Command{
	Use:   "aggregate [flags] FILE...",
	Short: "Sum per-symbol throughput .dat files into a slot CSV",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		n, err := aggregateFiles(cfg, args, aggregateOut)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d slot samples to %s\n", n, aggregateOut)
		return nil
	},
}

func aggregateFiles(cfg topo.Config, paths []string, out string) (int, error) {
	raw, cells, err := ingest.LoadSymbolFiles(paths)
	if err != nil {
		return 0, err
	}
	agg, err := topo.NewSlotAggregator(cfg).Aggregate(raw, cells)
	if err != nil {
		return 0, err
	}
	for _, e := range agg.Exclusions {
		logrus.Debugf("aggregate: %s %s: %s", e.CellID, e.Kind, e.Reason)
	}
	samples := agg.Samples()
	if err := ingest.WriteThroughputCSV(out, samples); err != nil {
		return 0, err
	}
	return len(samples), nil
}

func init() {
	aggregateCmd.Flags().StringVarP(&aggregateOut, "out", "o", "slot_throughput.csv", "Output CSV path")
	aggregateCmd.Flags().IntVar(&symbolsPerSlot, "symbols-per-slot", 14, "Symbols summed into one slot")
	aggregateCmd.Flags().Float64Var(&slotDuration, "slot-duration", 0, "Slot length in seconds (0 = group by symbol index)")
	aggregateCmd.Flags().Float64Var(&slotOrigin, "slot-origin", 0, "Timestamp of slot 0 when --slot-duration is set")
}

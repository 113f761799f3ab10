package topo

import (
	"sort"
	"strconv"
	"strings"
)

// ThroughputSample is one aggregated throughput value for a (cell, slot) pair.
type ThroughputSample struct {
	CellID     string  `json:"cell_id" yaml:"cell_id"`
	SlotID     int64   `json:"slot_id" yaml:"slot_id"`
	Throughput float64 `json:"throughput" yaml:"throughput"`
}

// CellSeries is the slot-ordered throughput history of a single cell.
// SlotIDs and Throughput are parallel slices sorted by slot ascending.
type CellSeries struct {
	CellID     string    `json:"cell_id" yaml:"cell_id"`
	SlotIDs    []int64   `json:"slot_ids" yaml:"slot_ids"`
	Throughput []float64 `json:"throughput" yaml:"throughput"`
}

// Len returns the number of slots in the series.
func (s CellSeries) Len() int { return len(s.SlotIDs) }

// AnomalyRecord is the per-slot output of baseline anomaly detection.
// HasBaseline is false for the first accepted slot of a cell (no history yet).
// DropRatioValid is false when the baseline is zero or near zero.
type AnomalyRecord struct {
	CellID         string  `json:"cell_id" yaml:"cell_id"`
	SlotID         int64   `json:"slot_id" yaml:"slot_id"`
	Throughput     float64 `json:"throughput" yaml:"throughput"`
	Baseline       float64 `json:"baseline" yaml:"baseline"`
	HasBaseline    bool    `json:"has_baseline" yaml:"has_baseline"`
	DropRatio      float64 `json:"drop_ratio" yaml:"drop_ratio"`
	DropRatioValid bool    `json:"drop_ratio_valid" yaml:"drop_ratio_valid"`
	IsAnomaly      bool    `json:"is_anomaly" yaml:"is_anomaly"`
	Confidence     float64 `json:"confidence" yaml:"confidence"`
}

// CellAnomalySummary aggregates a cell's AnomalyRecords.
type CellAnomalySummary struct {
	CellID          string  `json:"cell_id" yaml:"cell_id"`
	Slots           int     `json:"slots" yaml:"slots"`
	AnomalousSlots  int     `json:"anomalous_slots" yaml:"anomalous_slots"`
	RejectedSamples int     `json:"rejected_samples" yaml:"rejected_samples"`
	AnomalyRate     float64 `json:"anomaly_rate" yaml:"anomaly_rate"`
	MaxConfidence   float64 `json:"max_confidence" yaml:"max_confidence"`
	IsAnomalousCell bool    `json:"is_anomalous_cell" yaml:"is_anomalous_cell"`
}

// Event sources for CongestionEventSeries.
const (
	EventSourceCongestion = "congestion"
	EventSourceLoss       = "loss"
)

// CongestionEventSeries is a binary per-slot series: 1 means the cell was congested
// (or lost packets, for loss-sourced series) in that slot.
type CongestionEventSeries struct {
	CellID    string  `json:"cell_id" yaml:"cell_id"`
	Source    string  `json:"source" yaml:"source"`
	Threshold float64 `json:"threshold" yaml:"threshold"` // percentile value; 0 for loss series
	SlotIDs   []int64 `json:"slot_ids" yaml:"slot_ids"`
	Events    []uint8 `json:"events" yaml:"events"`
}

// EventCount returns the number of slots flagged 1.
func (s CongestionEventSeries) EventCount() int {
	n := 0
	for _, e := range s.Events {
		if e != 0 {
			n++
		}
	}
	return n
}

// TopologyGroup is one inferred fronthaul link and the cells sharing it.
type TopologyGroup struct {
	GroupID       string   `json:"group_id" yaml:"group_id"`
	Name          string   `json:"name" yaml:"name"`
	Color         string   `json:"color" yaml:"color"`
	MemberCellIDs []string `json:"member_cell_ids" yaml:"member_cell_ids"`
	AvgSimilarity float64  `json:"avg_similarity" yaml:"avg_similarity"`
}

// CellAssignment maps a cell to its group and reports how well it fits there.
type CellAssignment struct {
	CellID    string  `json:"cell_id" yaml:"cell_id"`
	GroupID   string  `json:"group_id" yaml:"group_id"`
	Color     string  `json:"color" yaml:"color"`
	Fit       float64 `json:"fit" yaml:"fit"`
	IsOutlier bool    `json:"is_outlier" yaml:"is_outlier"`
	Severity  string  `json:"severity" yaml:"severity"`
}

// CellPosition is a 2-D layout coordinate for dashboards.
type CellPosition struct {
	CellID string  `json:"cell_id" yaml:"cell_id"`
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
}

// lessCellID orders cell ids naturally: digit runs compare numerically,
// so "cell_2" sorts before "cell_10". Falls back to byte order on ties.
func lessCellID(a, b string) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ca, cb := a[i], b[j]
		if isDigit(ca) && isDigit(cb) {
			si := i
			for i < len(a) && isDigit(a[i]) {
				i++
			}
			sj := j
			for j < len(b) && isDigit(b[j]) {
				j++
			}
			na := strings.TrimLeft(a[si:i], "0")
			nb := strings.TrimLeft(b[sj:j], "0")
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			continue
		}
		if ca != cb {
			return ca < cb
		}
		i++
		j++
	}
	if len(a)-i != len(b)-j {
		return len(a)-i < len(b)-j
	}
	return a < b
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// SortCellIDs sorts ids in natural order in place.
func SortCellIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool { return lessCellID(ids[i], ids[j]) })
}

// FormatCellID renders a numeric cell index the way the raw data files name cells.
func FormatCellID(n int) string {
	return "cell_" + leftPad(strconv.Itoa(n), 2)
}

func leftPad(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}

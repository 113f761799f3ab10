package topo

import "fmt"

// Pipeline stages, used to label exclusions and metrics.
const (
	StageAggregate   = "aggregate"
	StageIngest      = "ingest"
	StageAnomaly     = "anomaly"
	StageCongestion  = "congestion"
	StageCorrelation = "correlation"
	StageCluster     = "cluster"
)

// DataGapError reports a cell with too few samples for a stage. Recoverable:
// the cell is left out of that stage's artifact and the run continues.
type DataGapError struct {
	CellID string
	Stage  string
	Have   int
	Need   int
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("cell %s: %s needs at least %d samples, have %d", e.CellID, e.Stage, e.Need, e.Have)
}

// DegenerateSeriesError reports a constant event series. Recoverable: the
// cell's similarity to every peer is 0.
type DegenerateSeriesError struct {
	CellID string
	Value  uint8 // the constant event value
}

func (e *DegenerateSeriesError) Error() string {
	return fmt.Sprintf("cell %s: event series is constant (%d), correlation undefined", e.CellID, e.Value)
}

// ConfigurationError reports an invalid threshold. Fatal to the run.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s=%v %s", e.Field, e.Value, e.Reason)
}

func newConfigError(field string, value any, reason string) error {
	return &ConfigurationError{Field: field, Value: value, Reason: reason}
}

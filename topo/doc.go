// Package topo infers shared fronthaul topology from per-slot cell throughput.
//
// # Reading Guide
//
// Start with these files to understand the pipeline:
//   - types.go: the per-run value types (samples, series, records, groups)
//   - pipeline.go: stage sequencing, the per-cell worker pool and the Result
//   - config.go: every threshold, its default and its validation
//
// # Stages
//
// Data flows in one direction:
//
//	SlotAggregator → BaselineAnomalyDetector            (anomaly records, summaries)
//	               → CongestionEventExtractor → CorrelationEngine → TopologyClusterer
//
// Anomaly detection and event extraction read the same slot series
// independently. Clustering depends only on the event series, never on
// anomaly labels. Group fit, propagation analysis and the 2-D layout are
// derived from the clustered matrix.
//
// # Errors
//
// Per-cell problems (DataGapError, DegenerateSeriesError, malformed samples)
// are recoverable: they become records in the run trace (sub-package
// topo/trace) and the rest of the batch continues. A ConfigurationError is
// returned by NewPipeline before any computation.
//
// Sub-packages:
//   - topo/trace/: exclusion records and their summary
//   - topo/ingest/: CSV and .dat readers, artifact writers
package topo

package ingest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/toposense/toposense/topo"
	"github.com/toposense/toposense/topo/trace"
)

// Manifest describes one run's artifact directory.
type Manifest struct {
	RunID     string              `json:"run_id"`
	CreatedAt string              `json:"created_at"`
	Inputs    []string            `json:"inputs"`
	Cells     int                 `json:"cells"`
	Groups    int                 `json:"groups"`
	Summary   *trace.TraceSummary `json:"trace_summary"`
	Files     []string            `json:"files"`
}

// WriteArtifacts writes the result into dir (created if missing):
// similarity.json, groups.json, summaries.json, propagation.json,
// anomalies.csv, congestion.csv, config.yaml and manifest.json.
func WriteArtifacts(dir string, result *topo.Result, manifest Manifest) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}

	jsonFiles := []struct {
		name string
		v    any
	}{
		{"similarity.json", map[string]any{"similarity": result.Similarity, "correlation": result.Correlation}},
		{"groups.json", map[string]any{
			"groups":      result.Groups,
			"assignments": result.Assignments,
			"dendrogram":  result.Dendrogram,
			"layout":      result.Layout,
		}},
		{"summaries.json", map[string]any{"summaries": result.Summaries, "trace": result.Trace}},
		{"propagation.json", map[string]any{
			"group_propagation":  result.GroupPropagation,
			"propagation_events": result.PropagationEvents,
		}},
	}
	for _, f := range jsonFiles {
		if err := writeJSON(filepath.Join(dir, f.name), f.v); err != nil {
			return err
		}
		manifest.Files = append(manifest.Files, f.name)
	}

	if err := writeAnomaliesCSV(filepath.Join(dir, "anomalies.csv"), result.Anomalies); err != nil {
		return err
	}
	if err := writeCongestionCSV(filepath.Join(dir, "congestion.csv"), result.Congestion); err != nil {
		return err
	}
	configData, err := yaml.Marshal(result.Config)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), configData, 0644); err != nil {
		return fmt.Errorf("writing config.yaml: %w", err)
	}
	manifest.Files = append(manifest.Files, "anomalies.csv", "congestion.csv", "config.yaml")

	manifest.Cells = len(result.Cells)
	manifest.Groups = len(result.Groups)
	manifest.Summary = trace.Summarize(result.Trace)
	if err := writeJSON(filepath.Join(dir, "manifest.json"), manifest); err != nil {
		return err
	}
	logrus.Debugf("Successfully wrote %d artifacts to '%s'", len(manifest.Files)+1, dir)
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

var anomalyColumns = []string{
	"cell_id", "slot_id", "throughput", "baseline", "drop_ratio", "is_anomaly", "confidence",
}

func writeAnomaliesCSV(path string, records []topo.AnomalyRecord) error {
	return writeCSV(path, anomalyColumns, len(records), func(i int) []string {
		r := records[i]
		baseline, dropRatio := "", ""
		if r.HasBaseline {
			baseline = formatFloat(r.Baseline)
		}
		if r.DropRatioValid {
			dropRatio = formatFloat(r.DropRatio)
		}
		return []string{
			r.CellID,
			strconv.FormatInt(r.SlotID, 10),
			formatFloat(r.Throughput),
			baseline,
			dropRatio,
			boolInt(r.IsAnomaly),
			formatFloat(r.Confidence),
		}
	})
}

var congestionColumns = []string{"slot_id", "cell_id", "congestion_event"}

func writeCongestionCSV(path string, series []topo.CongestionEventSeries) error {
	type row struct {
		cell  string
		slot  int64
		event uint8
	}
	var rows []row
	for _, s := range series {
		for i, slot := range s.SlotIDs {
			rows = append(rows, row{cell: s.CellID, slot: slot, event: s.Events[i]})
		}
	}
	return writeCSV(path, congestionColumns, len(rows), func(i int) []string {
		return []string{strconv.FormatInt(rows[i].slot, 10), rows[i].cell, strconv.Itoa(int(rows[i].event))}
	})
}

func writeCSV(path string, header []string, n int, row func(int) []string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("writing %s header: %w", filepath.Base(path), err)
	}
	for i := 0; i < n; i++ {
		if err := writer.Write(row(i)); err != nil {
			return fmt.Errorf("writing %s row %d: %w", filepath.Base(path), i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func boolInt(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

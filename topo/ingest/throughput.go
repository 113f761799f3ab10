// Package ingest reads raw measurement files into topo types and writes run
// artifacts. All file I/O of the pipeline lives here; package topo does none.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/toposense/toposense/topo"
)

// throughputColumns is the header written by WriteThroughputCSV.
var throughputColumns = []string{"cell_id", "slot_id", "throughput_slot"}

// LoadThroughputCSV reads slot-level samples. The header must name cell_id,
// slot_id and one of throughput_slot or throughput, in any order. Rows that
// do not parse are skipped with a warning; the count is returned.
func LoadThroughputCSV(path string) ([]topo.ThroughputSample, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening throughput data: %w", err)
	}
	defer func() { _ = file.Close() }()
	return ReadThroughputCSV(file)
}

// ReadThroughputCSV is LoadThroughputCSV over an arbitrary reader.
func ReadThroughputCSV(r io.Reader) ([]topo.ThroughputSample, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("reading CSV header: %w", err)
	}
	cellCol, slotCol, valueCol := -1, -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "cell_id":
			cellCol = i
		case "slot_id":
			slotCol = i
		case "throughput_slot", "throughput":
			if valueCol < 0 {
				valueCol = i
			}
		}
	}
	if cellCol < 0 || slotCol < 0 || valueCol < 0 {
		return nil, 0, fmt.Errorf("CSV header %v must contain cell_id, slot_id and throughput_slot", header)
	}
	width := max(cellCol, slotCol, valueCol) + 1

	var samples []topo.ThroughputSample
	skipped := 0
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, skipped, fmt.Errorf("reading CSV row %d: %w", line, err)
		}
		if len(row) < width {
			skipped++
			continue
		}
		cellID := strings.TrimSpace(row[cellCol])
		slot, slotErr := strconv.ParseInt(strings.TrimSpace(row[slotCol]), 10, 64)
		value, valueErr := strconv.ParseFloat(strings.TrimSpace(row[valueCol]), 64)
		if cellID == "" || slotErr != nil || valueErr != nil {
			skipped++
			continue
		}
		samples = append(samples, topo.ThroughputSample{CellID: cellID, SlotID: slot, Throughput: value})
	}
	if skipped > 0 {
		logrus.Warnf("skipped %d unparsable throughput rows", skipped)
	}
	return samples, skipped, nil
}

// WriteThroughputCSV writes samples with the throughputColumns header.
func WriteThroughputCSV(path string, samples []topo.ThroughputSample) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating throughput file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)
	if err := writer.Write(throughputColumns); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, s := range samples {
		row := []string{
			s.CellID,
			strconv.FormatInt(s.SlotID, 10),
			strconv.FormatFloat(s.Throughput, 'f', -1, 64),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing CSV row for cell %s slot %d: %w", s.CellID, s.SlotID, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

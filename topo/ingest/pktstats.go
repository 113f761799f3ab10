package ingest

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/toposense/toposense/topo"
)

func nan() float64 { return math.NaN() }

// LoadPacketStats reads a whitespace-separated packet statistics file with
// columns "slot slotStart txPackets rxPackets tooLateRxPackets" and returns a
// loss event series: a slot is a loss event when more packets were sent than
// received. A leading header row is ignored. Rows whose packet counts do not
// parse are skipped; the count is returned.
func LoadPacketStats(path, cellID string) (*topo.CongestionEventSeries, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening packet stats: %w", err)
	}
	defer func() { _ = file.Close() }()

	events := make(map[int64]uint8)
	scanner := bufio.NewScanner(file)
	row, skipped := 0, 0
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		row++
		if len(fields) < 4 {
			return nil, skipped, fmt.Errorf("%s: row %d has %d columns, expected at least 4", path, row, len(fields))
		}
		slot, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			if row == 1 {
				continue // header row
			}
			return nil, skipped, fmt.Errorf("%s: row %d: slot %q: %w", path, row, fields[0], err)
		}
		tx, txErr := strconv.ParseFloat(fields[2], 64)
		rx, rxErr := strconv.ParseFloat(fields[3], 64)
		if txErr != nil || rxErr != nil {
			skipped++
			continue
		}
		if tx > rx {
			events[slot] = 1
		} else if _, ok := events[slot]; !ok {
			events[slot] = 0
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("reading packet stats %s: %w", path, err)
	}
	if skipped > 0 {
		logrus.Warnf("%s: skipped %d packet stats rows with unparsable counts", path, skipped)
	}

	series := &topo.CongestionEventSeries{CellID: cellID, Source: topo.EventSourceLoss}
	for slot := range events {
		series.SlotIDs = append(series.SlotIDs, slot)
	}
	sort.Slice(series.SlotIDs, func(i, j int) bool { return series.SlotIDs[i] < series.SlotIDs[j] })
	series.Events = make([]uint8, len(series.SlotIDs))
	for i, slot := range series.SlotIDs {
		series.Events[i] = events[slot]
	}
	return series, skipped, nil
}

// LoadPacketStatsFiles loads one loss series per file, naming cells by CellIDFromPath.
func LoadPacketStatsFiles(paths []string) ([]topo.CongestionEventSeries, error) {
	out := make([]topo.CongestionEventSeries, 0, len(paths))
	for _, p := range paths {
		cellID, err := CellIDFromPath(p)
		if err != nil {
			return nil, err
		}
		s, _, err := LoadPacketStats(p, cellID)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

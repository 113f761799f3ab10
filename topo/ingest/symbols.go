package ingest

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/toposense/toposense/topo"
)

var cellNumberPattern = regexp.MustCompile(`(?i)cell[-_]?(\d+)`)

// CellIDFromPath derives a cell id such as "cell_07" from a file name like
// "throughput-cell-7.dat" or "pkt-stats-cell-7.dat".
func CellIDFromPath(path string) (string, error) {
	m := cellNumberPattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return "", fmt.Errorf("no cell number in file name %q", filepath.Base(path))
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return "", fmt.Errorf("cell number in %q: %w", filepath.Base(path), err)
	}
	return topo.FormatCellID(n), nil
}

// LoadSymbolFile reads a whitespace-separated "time throughput" file where
// each row is one symbol. Row order defines the symbol index. Rows whose
// throughput does not parse are kept as NaN so the aggregator can count them.
func LoadSymbolFile(path, cellID string) ([]topo.RawSample, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening symbol file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var samples []topo.RawSample
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var symbol int64
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("%s: symbol %d has %d columns, expected 2", path, symbol, len(fields))
		}
		ts, tsErr := strconv.ParseFloat(fields[0], 64)
		value, valueErr := strconv.ParseFloat(fields[1], 64)
		if tsErr != nil && symbol == 0 && valueErr != nil {
			continue // header row
		}
		if valueErr != nil {
			value = nan()
		}
		samples = append(samples, topo.RawSample{CellID: cellID, Symbol: symbol, Timestamp: ts, Throughput: value})
		symbol++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading symbol file %s: %w", path, err)
	}
	return samples, nil
}

// LoadSymbolFiles loads every file, naming cells by CellIDFromPath. It returns
// the samples and the cell ids in argument order, including cells whose file
// held no samples.
func LoadSymbolFiles(paths []string) ([]topo.RawSample, []string, error) {
	var all []topo.RawSample
	cells := make([]string, 0, len(paths))
	for _, p := range paths {
		cellID, err := CellIDFromPath(p)
		if err != nil {
			return nil, nil, err
		}
		samples, err := LoadSymbolFile(p, cellID)
		if err != nil {
			return nil, nil, err
		}
		all = append(all, samples...)
		cells = append(cells, cellID)
	}
	return all, cells, nil
}

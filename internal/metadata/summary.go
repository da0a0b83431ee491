package metadata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const (
	NodeSummaryFile = "node_summary.txt"
	EdgeSummaryFile = "edge_summary.txt"
)

// NodeRow is one line of node_summary.txt.
type NodeRow struct {
	Category  string
	Frequency int64
}

// EdgeRow is one line of edge_summary.txt.
type EdgeRow struct {
	SubjectCategory string
	SubjectPrefix   string
	EdgeType        string
	Relation        string
	ObjectCategory  string
	ObjectPrefix    string
	ProvidedBy      string
	Frequency       int64
}

// ReadNodeSummary parses a pipe-separated category|frequency table.
func ReadNodeSummary(path string) ([]NodeRow, error) {
	records, err := readTable(path, "category", "frequency")
	if err != nil {
		return nil, err
	}
	rows := make([]NodeRow, 0, len(records))
	for i, rec := range records {
		freq, err := parseFrequency(rec["frequency"])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		rows = append(rows, NodeRow{Category: rec["category"], Frequency: freq})
	}
	return rows, nil
}

// ReadEdgeSummary parses the pipe-separated edge summary table. The relation
// and provided_by columns may be missing or blank.
func ReadEdgeSummary(path string) ([]EdgeRow, error) {
	records, err := readTable(path,
		"subject_category", "subject_prefix", "edge_type",
		"object_category", "object_prefix", "frequency")
	if err != nil {
		return nil, err
	}
	rows := make([]EdgeRow, 0, len(records))
	for i, rec := range records {
		freq, err := parseFrequency(rec["frequency"])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		rows = append(rows, EdgeRow{
			SubjectCategory: rec["subject_category"],
			SubjectPrefix:   rec["subject_prefix"],
			EdgeType:        rec["edge_type"],
			Relation:        rec["relation"],
			ObjectCategory:  rec["object_category"],
			ObjectPrefix:    rec["object_prefix"],
			ProvidedBy:      rec["provided_by"],
			Frequency:       freq,
		})
	}
	return rows, nil
}

// readTable reads a headed pipe-separated file into one map per row. Blank
// header cells (a leading index column) are ignored.
func readTable(path string, required ...string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening summary: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '|'
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: empty summary", path)
		}
		return nil, fmt.Errorf("reading %s header: %w", path, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	for _, col := range required {
		if !containsColumn(header, col) {
			return nil, fmt.Errorf("%s: missing column %q", path, col)
		}
	}

	var out []map[string]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		row := make(map[string]string, len(header))
		for i, name := range header {
			if name == "" || i >= len(rec) {
				continue
			}
			row[name] = strings.TrimSpace(rec[i])
		}
		out = append(out, row)
	}
}

func containsColumn(header []string, col string) bool {
	for _, h := range header {
		if h == col {
			return true
		}
	}
	return false
}

// parseFrequency accepts integers and pandas-style floats ("12.0").
func parseFrequency(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frequency %q", s)
	}
	return int64(f), nil
}

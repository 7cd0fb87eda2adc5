package analytics

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// Export formats accepted by Write.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatXLSX = "xlsx"
)

// Write renders s in the named format.
func Write(w io.Writer, format string, s Summary) error {
	switch strings.ToLower(format) {
	case FormatJSON, "":
		return WriteJSON(w, s)
	case FormatYAML, "yml":
		return WriteYAML(w, s)
	case FormatXLSX, "excel":
		return WriteXLSX(w, s)
	default:
		return fmt.Errorf("unknown export format %q (want json, yaml or xlsx)", format)
	}
}

// WriteJSON writes s as indented JSON.
func WriteJSON(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteYAML writes s as YAML.
func WriteYAML(w io.Writer, s Summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}

const (
	toolsSheet     = "Tools"
	sequencesSheet = "Sequences"
)

// WriteXLSX writes a workbook with one sheet of per-tool totals and one of
// the most frequent sequences.
func WriteXLSX(w io.Writer, s Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", toolsSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(sequencesSheet); err != nil {
		return err
	}

	rows := [][]any{{"tool", "calls", "errors", "tokens_in", "tokens_out", "tokens", "mean_latency_ms"}}
	for _, name := range sortedTools(s.Tools) {
		ts := s.Tools[name]
		rows = append(rows, []any{name, ts.Calls, ts.Errors, ts.TokensIn, ts.TokensOut, ts.Tokens, ts.MeanLatencyMS})
	}
	rows = append(rows, []any{"total", s.TotalCalls, s.TotalErrors, nil, nil, s.TotalTokens, s.MeanLatencyMS})
	if err := setRows(f, toolsSheet, rows); err != nil {
		return err
	}

	rows = [][]any{{"sequence", "length", "count"}}
	for _, seq := range s.Sequences {
		rows = append(rows, []any{strings.Join(seq.Tools, " > "), len(seq.Tools), seq.Count})
	}
	if err := setRows(f, sequencesSheet, rows); err != nil {
		return err
	}

	_, err := f.WriteTo(w)
	return err
}

func setRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func sortedTools(m map[string]ToolStats) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package pipeline

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"quantity-pipeline/internal/model"
	"quantity-pipeline/pkg/utils"
)

// Export types, used in the JSON envelope.
const (
	ExportObservations = "observations"
	ExportAggregated   = "aggregated"
	ExportComparison   = "comparison"
)

const (
	csvSeparator  = ';'
	utf8BOM       = "\ufeff"
	sheetName     = "Vergleich"
	noDifferences = "Keine Unterschiede gefunden."
)

var keyHeader = []string{"Kategorie", "Gruppe", "Art", "Status"}

// changeFills are the cell colors of the compared values per change.
var changeFills = map[model.ChangeType]string{
	model.ChangeAdded:   "#FFFACD",
	model.ChangeRemoved: "#D3D3D3",
	model.ChangeChanged: "#FFCCCC",
}

// tabular is the uniform view the writers work on.
type tabular struct {
	Kind    string
	Header  []string
	Cells   [][]model.Value
	Changes []model.ChangeType // comparison tables only
	// Highlight are the column positions colored by change.
	Highlight []int
	Payload   any
}

func observationsTable(rows []model.ObservationRow) tabular {
	t := tabular{
		Kind:    ExportObservations,
		Header:  append(append([]string(nil), keyHeader...), "Eigenschaft", "Wert"),
		Payload: rows,
	}
	for _, r := range rows {
		t.Cells = append(t.Cells, []model.Value{
			model.Text(r.Kategorie), model.Text(r.Gruppe), model.Text(r.Art), model.Text(r.Status),
			model.Text(r.Eigenschaft), r.Wert,
		})
	}
	return t
}

func aggregatedTable(table model.AggregatedTable) tabular {
	t := tabular{
		Kind:    ExportAggregated,
		Header:  append(append([]string(nil), keyHeader...), table.Columns...),
		Payload: aggregatedRecords(table),
	}
	for _, r := range table.Rows {
		cells := []model.Value{
			model.Text(r.Key.Kategorie), model.Text(r.Key.Gruppe), model.Text(r.Key.Art), model.Text(r.Key.Status),
		}
		for _, c := range table.Columns {
			cells = append(cells, r.Get(c))
		}
		t.Cells = append(t.Cells, cells)
	}
	return t
}

// aggregatedRecords flattens wide rows to one JSON object per row.
func aggregatedRecords(table model.AggregatedTable) []map[string]any {
	out := make([]map[string]any, 0, len(table.Rows))
	for _, r := range table.Rows {
		rec := map[string]any{
			"Kategorie": r.Key.Kategorie,
			"Gruppe":    r.Key.Gruppe,
			"Art":       r.Key.Art,
			"Status":    r.Key.Status,
		}
		for _, c := range table.Columns {
			rec[c] = r.Get(c).Raw()
		}
		out = append(out, rec)
	}
	return out
}

func comparisonTable(rows []model.ComparisonRow) tabular {
	t := tabular{
		Kind:      ExportComparison,
		Header:    append(append([]string(nil), keyHeader...), "Eigenschaft", "Wert A", "Wert B", "Delta", "Change"),
		Highlight: []int{5, 6, 7},
		Payload:   rows,
	}
	for _, r := range rows {
		delta := model.Empty()
		if r.Delta != nil {
			delta = model.Number(*r.Delta)
		}
		t.Cells = append(t.Cells, []model.Value{
			model.Text(r.Kategorie), model.Text(r.Gruppe), model.Text(r.Art), model.Text(r.Status),
			model.Text(r.Eigenschaft), r.WertA, r.WertB, delta, model.Text(string(r.Change)),
		})
		t.Changes = append(t.Changes, r.Change)
	}
	return t
}

// ------------------- Delimited text -------------------

func writeCSV(w io.Writer, t tabular, loc utils.Locale) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(bw)
	cw.Comma = csvSeparator
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(t.Header))
	for _, cells := range t.Cells {
		for i, v := range cells {
			record[i] = formatCell(v, loc)
		}
		if err := cw.Write(record[:len(cells)]); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

func formatCell(v model.Value, loc utils.Locale) string {
	if v.IsNumber() {
		return loc.FormatPlain(v.Float())
	}
	return v.String()
}

// WriteObservationsCSV writes the long-form table.
func WriteObservationsCSV(w io.Writer, rows []model.ObservationRow, loc utils.Locale) error {
	return writeCSV(w, observationsTable(rows), loc)
}

// WriteAggregatedCSV writes the wide table.
func WriteAggregatedCSV(w io.Writer, table model.AggregatedTable, loc utils.Locale) error {
	return writeCSV(w, aggregatedTable(table), loc)
}

// WriteComparisonCSV writes the comparison table.
func WriteComparisonCSV(w io.Writer, rows []model.ComparisonRow, loc utils.Locale) error {
	return writeCSV(w, comparisonTable(rows), loc)
}

// ------------------- JSON -------------------

func writeJSON(w io.Writer, jobID string, t tabular) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"export_info": map[string]any{
			"job_id":       jobID,
			"exported_at":  time.Now().UTC(),
			"record_count": len(t.Cells),
			"export_type":  t.Kind,
		},
		"data": t.Payload,
	})
}

// ------------------- Spreadsheet -------------------

func writeXLSX(w io.Writer, t tabular) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if len(t.Cells) == 0 {
		if err := f.SetCellValue(sheetName, "A1", "Info"); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetName, "A1", "A1", bold); err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, "A2", noDifferences); err != nil {
			return err
		}
		return f.Write(w)
	}

	fills := make(map[model.ChangeType]int, len(changeFills))
	for change, color := range changeFills {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
		})
		if err != nil {
			return err
		}
		fills[change] = id
	}

	for col, h := range t.Header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(t.Header), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, bold); err != nil {
		return err
	}

	for i, cells := range t.Cells {
		row := i + 2
		for col, v := range cells {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheetName, cell, v.Raw()); err != nil {
				return err
			}
		}
		if i >= len(t.Changes) {
			continue
		}
		style, ok := fills[t.Changes[i]]
		if !ok {
			continue
		}
		for _, col := range t.Highlight {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellStyle(sheetName, cell, cell, style); err != nil {
				return err
			}
		}
	}
	return f.Write(w)
}

// WriteComparisonXLSX writes the styled comparison workbook.
func WriteComparisonXLSX(w io.Writer, rows []model.ComparisonRow) error {
	return writeXLSX(w, comparisonTable(rows))
}

// ------------------- Export manager -------------------

// ExportManager writes result tables to files, picking the format from the
// file extension (.csv, .json or .xlsx).
type ExportManager struct {
	JobID  string
	Locale utils.Locale
	Retry  RetryConfig
}

// NewExportManager returns a manager with the default locale and retry policy.
func NewExportManager(jobID string, loc utils.Locale) *ExportManager {
	return &ExportManager{JobID: jobID, Locale: loc, Retry: DefaultRetryConfigs[StageExport]}
}

// ExportObservations writes the long-form table to path.
func (em *ExportManager) ExportObservations(ctx context.Context, path string, rows []model.ObservationRow) model.ExportResult {
	return em.export(ctx, path, observationsTable(rows))
}

// ExportAggregated writes the wide table to path.
func (em *ExportManager) ExportAggregated(ctx context.Context, path string, table model.AggregatedTable) model.ExportResult {
	return em.export(ctx, path, aggregatedTable(table))
}

// ExportComparison writes the comparison table to path.
func (em *ExportManager) ExportComparison(ctx context.Context, path string, rows []model.ComparisonRow) model.ExportResult {
	return em.export(ctx, path, comparisonTable(rows))
}

// write renders t in format ("csv", "json" or "xlsx") to w.
func (em *ExportManager) write(w io.Writer, format string, t tabular) error {
	switch format {
	case "csv":
		return writeCSV(w, t, em.Locale)
	case "json":
		return writeJSON(w, em.JobID, t)
	case "xlsx":
		return writeXLSX(w, t)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// WriteTo renders a result table straight to w, used for downloads.
func (em *ExportManager) WriteTo(w io.Writer, format string, table any) error {
	var t tabular
	switch v := table.(type) {
	case []model.ObservationRow:
		t = observationsTable(v)
	case model.AggregatedTable:
		t = aggregatedTable(v)
	case []model.ComparisonRow:
		t = comparisonTable(v)
	default:
		return fmt.Errorf("cannot export %T", table)
	}
	return em.write(w, format, t)
}

// FormatOf maps a file extension to an export format.
func FormatOf(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return "csv", nil
	case ".json":
		return "json", nil
	case ".xlsx":
		return "xlsx", nil
	default:
		return "", fmt.Errorf("unsupported export extension %q", ext)
	}
}

func (em *ExportManager) export(ctx context.Context, path string, t tabular) model.ExportResult {
	result := model.ExportResult{Path: path, Timestamp: time.Now()}
	format, err := FormatOf(path)
	if err == nil {
		result.Type = format
		err = WithRetry(ctx, em.Retry, func() error { return em.writeFile(path, format, t) })
	}
	if err != nil {
		result.Error = err.Error()
		slog.Error("export failed", "job", em.JobID, "path", path, "error", err)
		return result
	}
	result.Success = true
	result.RecordCount = len(t.Cells)
	slog.Info("export written", "job", em.JobID, "path", path, "type", format, "records", result.RecordCount)
	return result
}

func (em *ExportManager) writeFile(path, format string, t tabular) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := em.write(file, format, t); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

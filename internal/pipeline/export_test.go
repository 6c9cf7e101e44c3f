package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"quantity-pipeline/internal/model"
	"quantity-pipeline/pkg/utils"
)

func german(t *testing.T) utils.Locale {
	t.Helper()
	loc, err := utils.ParseLocale("de")
	require.NoError(t, err)
	return loc
}

func sampleTable() model.AggregatedTable {
	return model.AggregatedTable{
		Columns: []string{"Länge", "Material"},
		Rows: []model.AggregatedRow{{
			Key:    model.GroupKey{Kategorie: "Wände", Gruppe: "AW", Status: "Neu"},
			Values: map[string]model.Value{"Länge": model.Number(3.5), "Material": model.Text("Beton | Ziegel")},
		}},
	}
}

func sampleComparison() []model.ComparisonRow {
	delta := 0.5
	return []model.ComparisonRow{
		{Kategorie: "Wände", Gruppe: "AW", Eigenschaft: "Länge", WertA: model.Number(3.5), WertB: model.Number(4), Delta: &delta, Change: model.ChangeChanged},
		{Kategorie: "Wände", Gruppe: "IW", Eigenschaft: "Material", WertA: model.Text("Gips"), WertB: model.Text("Gips"), Change: model.ChangeUnchanged},
	}
}

func TestWriteAggregatedCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteAggregatedCSV(&buf, sampleTable(), german(t)))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "\ufeff"), "UTF-8 BOM")
	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(out, "\ufeff")), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Kategorie;Gruppe;Art;Status;Länge;Material", lines[0])
	assert.Equal(t, "Wände;AW;;Neu;3,5;Beton | Ziegel", lines[1])
}

func TestWriteComparisonCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteComparisonCSV(&buf, sampleComparison(), german(t)))
	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(buf.String(), "\ufeff")), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Kategorie;Gruppe;Art;Status;Eigenschaft;Wert A;Wert B;Delta;Change", lines[0])
	assert.Equal(t, "Wände;AW;;;Länge;3,5;4;0,5;changed", lines[1])
	assert.Equal(t, "Wände;IW;;;Material;Gips;Gips;;unchanged", lines[2])
}

func TestWriteObservationsCSVEnglish(t *testing.T) {
	loc, err := utils.ParseLocale("en")
	require.NoError(t, err)
	var buf bytes.Buffer
	rows := []model.ObservationRow{row("Wände", "AW", "LL AM.Länge", model.Number(3.5))}
	require.NoError(t, WriteObservationsCSV(&buf, rows, loc))
	assert.Contains(t, buf.String(), "Wände;AW;;;LL AM.Länge;3.5")
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	em := NewExportManager("job-7", german(t))
	require.NoError(t, em.WriteTo(&buf, "json", sampleTable()))

	var doc struct {
		Info map[string]any   `json:"export_info"`
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "job-7", doc.Info["job_id"])
	assert.Equal(t, ExportAggregated, doc.Info["export_type"])
	assert.Equal(t, 1.0, doc.Info["record_count"])
	require.Len(t, doc.Data, 1)
	assert.Equal(t, 3.5, doc.Data[0]["Länge"])
	assert.Equal(t, "AW", doc.Data[0]["Gruppe"])
}

func TestWriteComparisonXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteComparisonXLSX(&buf, sampleComparison()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Vergleich"}, f.GetSheetList())
	header, err := f.GetCellValue("Vergleich", "F1")
	require.NoError(t, err)
	assert.Equal(t, "Wert A", header)
	a, err := f.GetCellValue("Vergleich", "F2")
	require.NoError(t, err)
	assert.Equal(t, "3.5", a)

	changed, err := f.GetCellStyle("Vergleich", "G2")
	require.NoError(t, err)
	plain, err := f.GetCellStyle("Vergleich", "E2")
	require.NoError(t, err)
	unchanged, err := f.GetCellStyle("Vergleich", "G3")
	require.NoError(t, err)
	assert.NotEqual(t, plain, changed, "changed values are filled")
	assert.Equal(t, plain, unchanged)

	style, err := f.GetStyle(changed)
	require.NoError(t, err)
	require.NotEmpty(t, style.Fill.Color)
	assert.Contains(t, strings.ToUpper(style.Fill.Color[0]), "FFCCCC")
}

func TestWriteComparisonXLSXEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteComparisonXLSX(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	info, err := f.GetCellValue("Vergleich", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Info", info)
	msg, err := f.GetCellValue("Vergleich", "A2")
	require.NoError(t, err)
	assert.Equal(t, "Keine Unterschiede gefunden.", msg)
}

func TestExportManagerFiles(t *testing.T) {
	dir := t.TempDir()
	em := NewExportManager("job-1", german(t))
	ctx := context.Background()

	res := em.ExportAggregated(ctx, filepath.Join(dir, "nested", "mengen.csv"), sampleTable())
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "csv", res.Type)
	assert.Equal(t, 1, res.RecordCount)
	_, err := os.Stat(res.Path)
	assert.NoError(t, err)

	res = em.ExportComparison(ctx, filepath.Join(dir, "vergleich.xlsx"), sampleComparison())
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 2, res.RecordCount)

	res = em.ExportObservations(ctx, filepath.Join(dir, "rows.json"), []model.ObservationRow{row("W", "A", "x", model.Number(1))})
	require.True(t, res.Success, res.Error)

	res = em.ExportAggregated(ctx, filepath.Join(dir, "mengen.txt"), sampleTable())
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unsupported export extension")
}

func TestWriteToRejectsUnknownTables(t *testing.T) {
	em := NewExportManager("job-1", german(t))
	assert.Error(t, em.WriteTo(&bytes.Buffer{}, "csv", 42))
	assert.Error(t, em.WriteTo(&bytes.Buffer{}, "pdf", sampleTable()))
}

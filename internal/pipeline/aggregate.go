package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"quantity-pipeline/internal/model"
	"quantity-pipeline/pkg/utils"
)

// textSeparator joins the distinct values of a text column.
const textSeparator = " | "

// AggregateOptions tune Aggregate.
type AggregateOptions struct {
	// Workers > 1 aggregates categories concurrently.
	Workers int
}

// CategoryWorker folds the observations of one category into wide rows.
type CategoryWorker struct {
	ID       int
	Schema   *CategorySchema
	keys     []model.GroupKey
	accs     map[model.GroupKey]*groupAccumulator
	RowCount int
}

// groupAccumulator holds the running reductions of one group key.
type groupAccumulator struct {
	sums  map[string]float64
	maxes map[string]float64
	texts map[string][]string
	seen  map[string]map[string]bool
}

func newCategoryWorker(id int, cs *CategorySchema) *CategoryWorker {
	return &CategoryWorker{ID: id, Schema: cs, accs: make(map[model.GroupKey]*groupAccumulator)}
}

// processRow applies one observation.
func (w *CategoryWorker) processRow(r model.ObservationRow) {
	f, ok := w.Schema.Field(r.Eigenschaft)
	if !ok || !f.Kind.HasColumn() {
		return
	}
	key := r.Key()
	acc := w.accs[key]
	if acc == nil {
		acc = &groupAccumulator{
			sums:  make(map[string]float64),
			maxes: make(map[string]float64),
			texts: make(map[string][]string),
			seen:  make(map[string]map[string]bool),
		}
		w.accs[key] = acc
		w.keys = append(w.keys, key)
	}
	w.RowCount++

	switch f.Kind {
	case KindSum:
		acc.sums[f.Key] += numericOrZero(r.Wert)
	case KindMax:
		n, ok := numeric(r.Wert)
		if !ok {
			return
		}
		if cur, exists := acc.maxes[f.Key]; !exists || n > cur {
			acc.maxes[f.Key] = n
		}
	case KindText:
		s := strings.TrimSpace(r.Wert.String())
		if s == "" {
			return
		}
		if acc.seen[f.Key] == nil {
			acc.seen[f.Key] = make(map[string]bool)
		}
		if !acc.seen[f.Key][s] {
			acc.seen[f.Key][s] = true
			acc.texts[f.Key] = append(acc.texts[f.Key], s)
		}
	}
}

// rows renders the wide rows in first-seen key order.
func (w *CategoryWorker) rows() []model.AggregatedRow {
	out := make([]model.AggregatedRow, 0, len(w.keys))
	for _, key := range w.keys {
		acc := w.accs[key]
		values := make(map[string]model.Value)
		for _, f := range w.Schema.Fields {
			switch f.Kind {
			case KindSum:
				if s, ok := acc.sums[f.Key]; ok {
					values[f.Column] = model.Number(s)
				}
			case KindMax:
				if m, ok := acc.maxes[f.Key]; ok {
					values[f.Column] = model.Number(utils.RoundTo(m, 2))
				}
			case KindText:
				if t := acc.texts[f.Key]; len(t) > 0 {
					values[f.Column] = model.Text(strings.Join(t, textSeparator))
				}
			}
		}
		out = append(out, model.AggregatedRow{Key: key, Values: values})
	}
	return out
}

// Aggregate folds long-form rows into one wide row per group key. Categories
// are processed independently with the types of schema; rows, categories and
// columns keep their first-seen order whatever the worker count.
func Aggregate(ctx context.Context, rows []model.ObservationRow, schema *Schema, opts AggregateOptions) (model.AggregatedTable, error) {
	if schema == nil {
		return model.AggregatedTable{}, fmt.Errorf("aggregate: schema is required")
	}

	byCategory := make([][]model.ObservationRow, len(schema.Categories))
	index := make(map[string]int, len(schema.Categories))
	for i, cs := range schema.Categories {
		index[cs.Category] = i
	}
	for _, r := range rows {
		i, ok := index[r.Kategorie]
		if !ok {
			return model.AggregatedTable{}, fmt.Errorf("aggregate: category %q missing from schema", r.Kategorie)
		}
		byCategory[i] = append(byCategory[i], r)
	}

	results := make([][]model.AggregatedRow, len(schema.Categories))
	g, gctx := errgroup.WithContext(ctx)
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for i, cs := range schema.Categories {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			w := newCategoryWorker(i+1, cs)
			for _, r := range byCategory[i] {
				w.processRow(r)
			}
			results[i] = w.rows()
			slog.Debug("category aggregated", "worker", w.ID, "category", cs.Category, "observations", w.RowCount, "rows", len(results[i]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.AggregatedTable{}, fmt.Errorf("aggregate: %w", err)
	}

	table := model.AggregatedTable{Columns: schema.Columns()}
	for _, part := range results {
		table.Rows = append(table.Rows, part...)
	}
	return table, nil
}

// ApplyUnits rewrites the millimeter columns of table. With convert the values
// are scaled to meters and the column renamed "<col> [m]" (non-numeric values
// become empty); without it the column is only renamed "<col> (mm)". The input
// table is left untouched.
func ApplyUnits(table model.AggregatedTable, mmColumns []string, convert bool) model.AggregatedTable {
	rename := make(map[string]string)
	for renamed, source := range UnitSources(table.Columns, mmColumns, convert) {
		rename[source] = renamed
	}

	out := model.AggregatedTable{Columns: make([]string, len(table.Columns))}
	for i, c := range table.Columns {
		out.Columns[i] = c
		if target, ok := rename[c]; ok {
			out.Columns[i] = target
		}
	}

	out.Rows = make([]model.AggregatedRow, len(table.Rows))
	for i, r := range table.Rows {
		values := make(map[string]model.Value, len(r.Values))
		for col, v := range r.Values {
			target, ok := rename[col]
			if !ok {
				values[col] = v
				continue
			}
			if convert {
				if n, isNum := numeric(v); isNum {
					v = model.Number(n * 0.001)
				} else {
					v = model.Empty()
				}
			}
			values[target] = v
		}
		out.Rows[i] = model.AggregatedRow{Key: r.Key, Values: values}
	}
	return out
}

// UnitSources maps the names ApplyUnits gives the millimeter columns among
// columns back to the schema column they came from.
func UnitSources(columns, mmColumns []string, convert bool) map[string]string {
	mm := make(map[string]bool, len(mmColumns))
	for _, c := range mmColumns {
		mm[c] = true
	}
	out := make(map[string]string)
	for _, c := range columns {
		if !mm[c] {
			continue
		}
		if convert {
			out[c+" [m]"] = c
		} else {
			out[c+" (mm)"] = c
		}
	}
	return out
}

// SortTable orders rows by a key column or value column. Numbers sort before
// text; the sort is stable so equal rows keep their aggregation order.
func SortTable(table model.AggregatedTable, sortBy string, ascending bool) model.AggregatedTable {
	rows := append([]model.AggregatedRow(nil), table.Rows...)
	cell := func(r model.AggregatedRow) model.Value {
		switch sortBy {
		case "Kategorie":
			return model.Text(r.Key.Kategorie)
		case "Gruppe":
			return model.Text(r.Key.Gruppe)
		case "Art":
			return model.Text(r.Key.Art)
		case "Status":
			return model.Text(r.Key.Status)
		default:
			return r.Get(sortBy)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := cell(rows[i]), cell(rows[j])
		if ascending {
			return lessValue(a, b)
		}
		return lessValue(b, a)
	})
	return model.AggregatedTable{Columns: table.Columns, Rows: rows}
}

func lessValue(a, b model.Value) bool {
	an, aok := numeric(a)
	bn, bok := numeric(b)
	switch {
	case aok && bok:
		return an < bn
	case aok != bok:
		return aok
	default:
		return a.String() < b.String()
	}
}

// numeric reads a cell as a number with the lenient parser.
func numeric(v model.Value) (float64, bool) {
	switch v.Kind() {
	case model.KindNumber:
		f := v.Float()
		return f, !math.IsNaN(f)
	case model.KindText:
		return utils.ParseNumber(v.String())
	default:
		return 0, false
	}
}

func numericOrZero(v model.Value) float64 {
	f, _ := numeric(v)
	return f
}

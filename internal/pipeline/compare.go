package pipeline

import (
	"strings"

	"quantity-pipeline/internal/model"
)

// ------------------- Numeric comparison -------------------

// Compare aligns two wide tables on their group keys and compares each field.
// Fields default to the union of both column sets; Stückzahl is always
// compared first. Keys are taken in A order followed by B-only keys. Unchanged
// rows are included; see FilterDifferences.
func Compare(a, b model.AggregatedTable, opts model.CompareOptions) []model.ComparisonRow {
	fields := opts.Fields
	if len(fields) == 0 {
		fields = unionStrings(a.Columns, b.Columns)
	}
	fields = countFirst(fields)

	keys := unionKeys(a, b)
	idxA, idxB := a.Index(), b.Index()

	var out []model.ComparisonRow
	for _, field := range fields {
		for _, key := range keys {
			va, vb := model.Empty(), model.Empty()
			if i, ok := idxA[key]; ok {
				va = a.Rows[i].Get(field)
			}
			if i, ok := idxB[key]; ok {
				vb = b.Rows[i].Get(field)
			}
			if row, ok := compareValues(key, field, va, vb); ok {
				out = append(out, row)
			}
		}
	}
	return out
}

// compareValues classifies one (key, field) cell pair. ok is false when both
// sides are absent.
func compareValues(key model.GroupKey, field string, va, vb model.Value) (model.ComparisonRow, bool) {
	row := model.ComparisonRow{
		Kategorie:   key.Kategorie,
		Gruppe:      key.Gruppe,
		Art:         key.Art,
		Status:      key.Status,
		Eigenschaft: field,
		WertA:       va,
		WertB:       vb,
	}
	na, aNum := numeric(va)
	nb, bNum := numeric(vb)

	switch {
	case va.IsEmpty() && vb.IsEmpty():
		return row, false
	case va.IsEmpty():
		row.Change = model.ChangeAdded
		if bNum {
			row.WertA = model.Number(0)
			row.Delta = ptr(nb)
		}
	case vb.IsEmpty():
		row.Change = model.ChangeRemoved
		if aNum {
			row.WertB = model.Number(0)
			row.Delta = ptr(-na)
		}
	case aNum && bNum:
		row.WertA, row.WertB = model.Number(na), model.Number(nb)
		row.Delta = ptr(nb - na)
		row.Change = model.ChangeChanged
		if na == nb {
			row.Change = model.ChangeUnchanged
			row.Delta = ptr(0)
		}
	default:
		row.Change = model.ChangeChanged
		if va.String() == vb.String() {
			row.Change = model.ChangeUnchanged
		}
	}
	return row, true
}

// ------------------- Text comparison -------------------

type textKey struct {
	Key      model.GroupKey
	Property string
}

// CompareObservations compares long-form rows of the given properties, keyed
// by group key and full property key. Several observations of one key are
// joined like a text column. Eigenschaft is reported as the leaf name.
func CompareObservations(a, b []model.ObservationRow, properties map[string]bool) []model.ComparisonRow {
	return compareObservations(a, b, func(r model.ObservationRow) bool { return properties[r.Eigenschaft] })
}

func compareObservations(a, b []model.ObservationRow, include func(model.ObservationRow) bool) []model.ComparisonRow {
	textA, orderA := joinObservations(a, include)
	textB, orderB := joinObservations(b, include)

	keys := orderA
	for _, k := range orderB {
		if _, ok := textA[k]; !ok {
			keys = append(keys, k)
		}
	}

	var out []model.ComparisonRow
	for _, k := range keys {
		sa, sb := textA[k], textB[k]
		if sa == "" && sb == "" {
			continue
		}
		row := model.ComparisonRow{
			Kategorie:   k.Key.Kategorie,
			Gruppe:      k.Key.Gruppe,
			Art:         k.Key.Art,
			Status:      k.Key.Status,
			Eigenschaft: model.LeafName(k.Property),
			WertA:       textValue(sa),
			WertB:       textValue(sb),
		}
		switch {
		case sa == sb:
			row.Change = model.ChangeUnchanged
		case sa == "":
			row.Change = model.ChangeAdded
		case sb == "":
			row.Change = model.ChangeRemoved
		default:
			row.Change = model.ChangeChanged
		}
		if na, okA := numeric(model.Text(sa)); okA {
			if nb, okB := numeric(model.Text(sb)); okB && na != nb {
				row.Delta = ptr(nb - na)
			}
		}
		out = append(out, row)
	}
	return out
}

func joinObservations(rows []model.ObservationRow, include func(model.ObservationRow) bool) (map[textKey]string, []textKey) {
	parts := make(map[textKey][]string)
	seen := make(map[textKey]map[string]bool)
	var order []textKey
	for _, r := range rows {
		if !include(r) {
			continue
		}
		k := textKey{Key: r.Key(), Property: r.Eigenschaft}
		if _, ok := parts[k]; !ok {
			parts[k] = nil
			seen[k] = make(map[string]bool)
			order = append(order, k)
		}
		s := strings.TrimSpace(r.Wert.String())
		if s == "" || seen[k][s] {
			continue
		}
		seen[k][s] = true
		parts[k] = append(parts[k], s)
	}

	out := make(map[textKey]string, len(parts))
	for k, p := range parts {
		out[k] = strings.Join(p, textSeparator)
	}
	return out, order
}

func textValue(s string) model.Value {
	if s == "" {
		return model.Empty()
	}
	return model.Text(s)
}

// ------------------- Whole-model comparison -------------------

// fieldRef names a column or property key within one category.
type fieldRef struct {
	Kategorie string
	Name      string
}

// CompareModels compares two extraction results. Field kinds are looked up
// per category: sum and max columns and Stückzahl are compared on the wide
// tables, text properties on the long-form rows. Renamed millimeter columns
// are typed by their schema column. Both parts are concatenated and then
// filtered once unless opts.IncludeUnchanged is set.
func CompareModels(a, b *Result, opts model.CompareOptions) []model.ComparisonRow {
	textCols, textKeys := textFields(a.Schema, b.Schema)

	sources := make(map[string]string)
	for _, r := range []*Result{a, b} {
		for renamed, col := range r.UnitColumns {
			sources[renamed] = col
		}
	}
	source := func(col string) string {
		if s, ok := sources[col]; ok {
			return s
		}
		return col
	}

	wanted := make(map[string]bool, len(opts.Fields))
	for _, f := range opts.Fields {
		wanted[f] = true
	}
	want := func(names ...string) bool {
		if len(wanted) == 0 {
			return true
		}
		for _, n := range names {
			if wanted[n] {
				return true
			}
		}
		return false
	}

	var fields []string
	for _, c := range unionStrings(a.Aggregated.Columns, b.Aggregated.Columns) {
		if want(c, source(c)) {
			fields = append(fields, c)
		}
	}

	var rows []model.ComparisonRow
	for _, r := range Compare(a.Aggregated, b.Aggregated, model.CompareOptions{Fields: countFirst(fields)}) {
		if textCols[fieldRef{r.Kategorie, source(r.Eigenschaft)}] {
			continue
		}
		rows = append(rows, r)
	}
	rows = append(rows, compareObservations(a.Observations, b.Observations, func(r model.ObservationRow) bool {
		return textKeys[fieldRef{r.Kategorie, r.Eigenschaft}] && want(r.Eigenschaft, model.LeafName(r.Eigenschaft))
	})...)

	if opts.IncludeUnchanged {
		return rows
	}
	return FilterDifferences(rows)
}

// textFields collects the text columns and text property keys of every
// category. A field is text when either schema types it so.
func textFields(schemas ...*Schema) (cols, keys map[fieldRef]bool) {
	cols = make(map[fieldRef]bool)
	keys = make(map[fieldRef]bool)
	for _, s := range schemas {
		if s == nil {
			continue
		}
		for _, cs := range s.Categories {
			for _, f := range cs.Fields {
				if f.Kind == KindText {
					cols[fieldRef{cs.Category, f.Column}] = true
					keys[fieldRef{cs.Category, f.Key}] = true
				}
			}
		}
	}
	return cols, keys
}

// FilterDifferences drops rows that document equality. Filtering a filtered
// table is a no-op.
func FilterDifferences(rows []model.ComparisonRow) []model.ComparisonRow {
	out := make([]model.ComparisonRow, 0, len(rows))
	for _, r := range rows {
		if r.IsDifference() {
			out = append(out, r)
		}
	}
	return out
}

// Mirror turns compare(A,B) into compare(B,A): sides swap, deltas flip sign
// and added/removed trade places.
func Mirror(rows []model.ComparisonRow) []model.ComparisonRow {
	out := make([]model.ComparisonRow, len(rows))
	for i, r := range rows {
		m := r
		m.WertA, m.WertB = r.WertB, r.WertA
		m.Change = r.Change.Mirror()
		if r.Delta != nil {
			d := -*r.Delta
			if d == 0 {
				d = 0
			}
			m.Delta = &d
		}
		out[i] = m
	}
	return out
}

func unionKeys(a, b model.AggregatedTable) []model.GroupKey {
	seen := make(map[model.GroupKey]bool, len(a.Rows)+len(b.Rows))
	var out []model.GroupKey
	for _, t := range []model.AggregatedTable{a, b} {
		for _, r := range t.Rows {
			if !seen[r.Key] {
				seen[r.Key] = true
				out = append(out, r.Key)
			}
		}
	}
	return out
}

func unionStrings(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range lists {
		for _, s := range l {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// countFirst moves Stückzahl to the front, adding it when missing.
func countFirst(fields []string) []string {
	out := []string{model.CountProperty}
	for _, f := range fields {
		if f != model.CountProperty {
			out = append(out, f)
		}
	}
	return out
}

func ptr(f float64) *float64 { return &f }

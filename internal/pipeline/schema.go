package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"quantity-pipeline/internal/model"
	"quantity-pipeline/pkg/utils"
)

// FieldKind decides how a property is reduced per group key.
type FieldKind string

const (
	KindSum    FieldKind = "sum"
	KindText   FieldKind = "text"
	KindMax    FieldKind = "max"
	KindIgnore FieldKind = "ignore"
	// KindGroup marks keys already encoded in the group key.
	KindGroup FieldKind = "group"
)

// HasColumn reports whether fields of this kind become table columns.
func (k FieldKind) HasColumn() bool {
	return k == KindSum || k == KindText || k == KindMax
}

// Field is one property of a category.
type Field struct {
	Key      string    `json:"key"`
	Column   string    `json:"column"`
	Kind     FieldKind `json:"kind"`
	Explicit bool      `json:"explicit"`
}

// CategorySchema types the properties of one category.
type CategorySchema struct {
	Category string  `json:"category"`
	Fields   []Field `json:"fields"`
	byKey    map[string]int
}

// Field returns the field of key.
func (cs *CategorySchema) Field(key string) (Field, bool) {
	i, ok := cs.byKey[key]
	if !ok {
		return Field{}, false
	}
	return cs.Fields[i], true
}

// Columns returns the value columns in first-seen order.
func (cs *CategorySchema) Columns() []string {
	var out []string
	for _, f := range cs.Fields {
		if f.Kind.HasColumn() {
			out = append(out, f.Column)
		}
	}
	return out
}

// Schema is the per-run registry of field types, built once before
// aggregation.
type Schema struct {
	Categories []*CategorySchema `json:"categories"`
	byName     map[string]*CategorySchema
}

// Category returns the schema of one category, nil when it was not observed.
func (s *Schema) Category(name string) *CategorySchema {
	if s == nil {
		return nil
	}
	return s.byName[name]
}

// KindOf returns the kind of key within category, empty when unknown.
func (s *Schema) KindOf(category, key string) FieldKind {
	cs := s.Category(category)
	if cs == nil {
		return ""
	}
	f, _ := cs.Field(key)
	return f.Kind
}

// Columns is the union of the category columns in category order.
func (s *Schema) Columns() []string {
	seen := make(map[string]bool)
	var out []string
	for _, cs := range s.Categories {
		for _, c := range cs.Columns() {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// ColumnCollisionError reports distinct property keys of one category that
// would land in the same column.
type ColumnCollisionError struct {
	Category string
	Column   string
	Keys     []string
}

func (e *ColumnCollisionError) Error() string {
	return fmt.Sprintf("category %q: column %q is claimed by %s", e.Category, e.Column, strings.Join(e.Keys, ", "))
}

// BuildSchema types every property observed in rows, per category. Explicit
// kinds come from the rules of the classes seen in the category; heuristic
// categories get the built-in defaults when heuristicDefaults is set; the
// remaining properties are probed: all non-empty values numeric means sum,
// anything else, including properties without any value, text.
func BuildSchema(rows []model.ObservationRow, mapping model.Mapping, heuristicDefaults bool) (*Schema, error) {
	s := &Schema{byName: make(map[string]*CategorySchema)}
	classes := make(map[string]map[string]bool)
	numeric := make(map[string]map[string]bool)
	observed := make(map[string]map[string]bool)

	for _, r := range rows {
		cs := s.byName[r.Kategorie]
		if cs == nil {
			cs = &CategorySchema{Category: r.Kategorie, byKey: make(map[string]int)}
			s.byName[r.Kategorie] = cs
			s.Categories = append(s.Categories, cs)
			classes[r.Kategorie] = make(map[string]bool)
			numeric[r.Kategorie] = make(map[string]bool)
			observed[r.Kategorie] = make(map[string]bool)
		}
		classes[r.Kategorie][r.OriginalClass] = true

		if _, ok := cs.byKey[r.Eigenschaft]; !ok {
			cs.byKey[r.Eigenschaft] = len(cs.Fields)
			cs.Fields = append(cs.Fields, Field{Key: r.Eigenschaft, Column: model.LeafName(r.Eigenschaft)})
			numeric[r.Kategorie][r.Eigenschaft] = true
		}
		if r.Wert.IsEmpty() {
			continue
		}
		observed[r.Kategorie][r.Eigenschaft] = true
		if !isNumericValue(r.Wert) {
			numeric[r.Kategorie][r.Eigenschaft] = false
		}
	}

	for _, cs := range s.Categories {
		explicit, heuristic := explicitKinds(mapping, classes[cs.Category])
		for i := range cs.Fields {
			f := &cs.Fields[i]
			switch {
			case f.Key == model.CountProperty:
				f.Kind, f.Explicit = KindSum, true
			case explicit[f.Key] != "":
				f.Kind, f.Explicit = explicit[f.Key], true
			case heuristic && heuristicDefaults && noSumFields[f.Column]:
				f.Kind, f.Explicit = KindText, true
			case heuristic && heuristicDefaults && maxFields[f.Column]:
				f.Kind, f.Explicit = KindMax, true
			case numeric[cs.Category][f.Key] && observed[cs.Category][f.Key]:
				f.Kind = KindSum
			default:
				f.Kind = KindText
			}
		}
		if err := cs.checkCollisions(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// explicitKinds merges the rules of the classes observed in one category.
// Grouping wins over ignore, ignore over text, text over sum. heuristic is
// true when some class of the category has no rule.
func explicitKinds(mapping model.Mapping, classes map[string]bool) (map[string]FieldKind, bool) {
	rank := map[FieldKind]int{KindSum: 1, KindText: 2, KindIgnore: 3, KindGroup: 4}
	out := make(map[string]FieldKind)
	set := func(key string, k FieldKind) {
		if rank[k] > rank[out[key]] {
			out[key] = k
		}
	}

	heuristic := false
	for class := range classes {
		rule, ok := mapping.Rule(class)
		if !ok {
			heuristic = true
			continue
		}
		for _, k := range rule.Sum {
			set(k, KindSum)
		}
		for _, k := range rule.Text {
			set(k, KindText)
		}
		for _, k := range rule.Ignore {
			set(k, KindIgnore)
		}
		for k := range rule.GroupingKeys() {
			set(k, KindGroup)
		}
	}
	return out, heuristic
}

func (cs *CategorySchema) checkCollisions() error {
	owners := make(map[string][]string)
	var order []string
	for _, f := range cs.Fields {
		if !f.Kind.HasColumn() {
			continue
		}
		if _, ok := owners[f.Column]; !ok {
			order = append(order, f.Column)
		}
		owners[f.Column] = append(owners[f.Column], f.Key)
	}
	for _, col := range order {
		if keys := owners[col]; len(keys) > 1 {
			sort.Strings(keys)
			return &ColumnCollisionError{Category: cs.Category, Column: col, Keys: keys}
		}
	}
	return nil
}

func isNumericValue(v model.Value) bool {
	if v.IsNumber() {
		return true
	}
	if v.Kind() != model.KindText {
		return false
	}
	_, ok := utils.ParseNumber(v.String())
	return ok
}

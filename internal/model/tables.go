package model

// CountProperty is the synthetic per-element count observation.
const CountProperty = "Stückzahl"

// GroupKey identifies one row of the wide table.
type GroupKey struct {
	Kategorie string `json:"Kategorie"`
	Gruppe    string `json:"Gruppe"`
	Art       string `json:"Art"`
	Status    string `json:"Status"`
}

// ObservationRow is one property observation of one element (long form).
type ObservationRow struct {
	Kategorie     string `json:"Kategorie"`
	Gruppe        string `json:"Gruppe"`
	Art           string `json:"Art"`
	Status        string `json:"Status"`
	Eigenschaft   string `json:"Eigenschaft"`
	Wert          Value  `json:"Wert"`
	OriginalClass string `json:"OriginalClass,omitempty"`
}

// Key returns the group key of the row.
func (r ObservationRow) Key() GroupKey {
	return GroupKey{Kategorie: r.Kategorie, Gruppe: r.Gruppe, Art: r.Art, Status: r.Status}
}

// AggregatedRow is one row of the wide table.
type AggregatedRow struct {
	Key    GroupKey         `json:"key"`
	Values map[string]Value `json:"values"`
}

// Get returns the value of column, Empty when the row has none.
func (r AggregatedRow) Get(column string) Value {
	if r.Values == nil {
		return Empty()
	}
	return r.Values[column]
}

// AggregatedTable is the wide result: one row per group key, one column per
// property. Columns holds the value columns in output order; the key columns
// are implicit.
type AggregatedTable struct {
	Columns []string        `json:"columns"`
	Rows    []AggregatedRow `json:"rows"`
}

// Index maps each key to its row position.
func (t AggregatedTable) Index() map[GroupKey]int {
	idx := make(map[GroupKey]int, len(t.Rows))
	for i, r := range t.Rows {
		idx[r.Key] = i
	}
	return idx
}

// HasColumn reports whether column is part of the table.
func (t AggregatedTable) HasColumn(column string) bool {
	for _, c := range t.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// ChangeType classifies a comparison row.
type ChangeType string

const (
	ChangeUnchanged ChangeType = "unchanged"
	ChangeAdded     ChangeType = "added"
	ChangeRemoved   ChangeType = "removed"
	ChangeChanged   ChangeType = "changed"
)

// Mirror swaps added and removed, which is what swapping the compared sides
// does to a change.
func (c ChangeType) Mirror() ChangeType {
	switch c {
	case ChangeAdded:
		return ChangeRemoved
	case ChangeRemoved:
		return ChangeAdded
	default:
		return c
	}
}

// ComparisonRow is one field of one key compared between snapshot A and B.
type ComparisonRow struct {
	Kategorie   string     `json:"Kategorie"`
	Gruppe      string     `json:"Gruppe"`
	Art         string     `json:"Art"`
	Status      string     `json:"Status"`
	Eigenschaft string     `json:"Eigenschaft"`
	WertA       Value      `json:"Wert A"`
	WertB       Value      `json:"Wert B"`
	Delta       *float64   `json:"Delta"`
	Change      ChangeType `json:"Change"`
}

// Key returns the group key of the row.
func (r ComparisonRow) Key() GroupKey {
	return GroupKey{Kategorie: r.Kategorie, Gruppe: r.Gruppe, Art: r.Art, Status: r.Status}
}

// IsDifference reports whether the row documents a change rather than equality.
func (r ComparisonRow) IsDifference() bool {
	if r.Change == ChangeUnchanged {
		return false
	}
	if r.Delta != nil && *r.Delta == 0 && r.WertA == r.WertB {
		return false
	}
	return true
}

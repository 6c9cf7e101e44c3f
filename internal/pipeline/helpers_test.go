package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"quantity-pipeline/internal/model"
	"quantity-pipeline/internal/modelfile"
)

// element builds a raw element with an "LL AM" property set.
func element(id, class, name string, props map[string]any) model.RawElement {
	return model.RawElement{
		ID:    id,
		Class: class,
		Name:  name,
		Psets: map[string]map[string]any{HeuristicPset: props},
	}
}

func reader(t *testing.T, units model.UnitInfo, elements ...model.RawElement) *modelfile.File {
	t.Helper()
	f, err := modelfile.FromDump(model.ModelDump{Name: "test", Units: units, Elements: elements})
	require.NoError(t, err)
	return f
}

// wallMapping groups walls by type and sums their length and area.
func wallMapping() model.Mapping {
	return model.Mapping{
		Categories: map[string]string{"IfcWall": "Wände"},
		Rules: map[string]model.MappingRule{
			"IfcWall": {
				Group:  []string{"LL AM.Typ"},
				Group3: []string{"LL AM.Status"},
				Sum:    []string{"LL AM.Länge", "LL AM.Fläche"},
				Text:   []string{"LL AM.Material"},
			},
		},
	}
}

func wall(id, typ string, length any) model.RawElement {
	return element(id, "IfcWall", "Wand "+id, map[string]any{
		"Typ":      typ,
		"Status":   "Neu",
		"Länge":    length,
		"Fläche":   2.0,
		"Material": "Beton",
	})
}

func row(kat, gruppe, prop string, v model.Value) model.ObservationRow {
	return model.ObservationRow{Kategorie: kat, Gruppe: gruppe, Eigenschaft: prop, Wert: v}
}

func key(kat, gruppe string) model.GroupKey {
	return model.GroupKey{Kategorie: kat, Gruppe: gruppe}
}

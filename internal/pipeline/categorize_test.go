package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantity-pipeline/internal/model"
)

func TestFlatten(t *testing.T) {
	rec := Flatten(model.RawElement{
		ID:    "1",
		Class: "IfcWall",
		Name:  "  Mauer ",
		Psets: map[string]map[string]any{
			"Pset_WallCommon": {"IsExternal": true, "Reference": " W1 "},
			"LL AM":           {"Länge": 3, "Breite": 0.24, "Leer": nil},
		},
	})

	assert.Equal(t, "Mauer", rec.Name)
	assert.Equal(t, []string{"LL AM", "Pset_WallCommon"}, rec.PsetNames)
	assert.Equal(t, 3.0, rec.Properties["LL AM.Länge"])
	assert.Equal(t, 0.24, rec.Properties["LL AM.Breite"])
	assert.Equal(t, "W1", rec.Properties["Pset_WallCommon.Reference"])
	assert.Equal(t, "true", rec.Properties["Pset_WallCommon.IsExternal"])
	assert.Contains(t, rec.Properties, "LL AM.Leer")
	assert.Nil(t, rec.Properties["LL AM.Leer"])

	v, ok := rec.Get("LL AM", "Länge")
	require.True(t, ok)
	assert.Equal(t, 3.0, v)
	assert.Len(t, rec.Pset("LL AM"), 3)
}

func TestFlattenNestedValues(t *testing.T) {
	rec := Flatten(model.RawElement{
		ID:    "1",
		Class: "IfcWall",
		Psets: map[string]map[string]any{
			"LL AM": {
				"Schichten": []any{"Beton", 0.24, nil, " Putz "},
				"Maße":      map[string]any{"Länge": 3, "Höhe": "2,5"},
			},
		},
	})

	assert.Equal(t, "Beton, 0.24, Putz", rec.Properties["LL AM.Schichten"])
	assert.Equal(t, 3.0, rec.Properties["LL AM.Maße.Länge"])
	assert.Equal(t, "2,5", rec.Properties["LL AM.Maße.Höhe"])
	assert.NotContains(t, rec.Properties, "LL AM.Maße")
	assert.Equal(t, "Länge", model.LeafName("LL AM.Maße.Länge"))
}

func TestFlattenWithoutPsets(t *testing.T) {
	rec := Flatten(model.RawElement{ID: "1", Class: "IfcDoor"})
	assert.Empty(t, rec.Properties)
	assert.Empty(t, rec.PsetNames)
}

func TestKeysByClass(t *testing.T) {
	records := []model.ElementRecord{
		Flatten(element("1", "IfcWall", "", map[string]any{"Länge": 1, "TypeName": "x"})),
		Flatten(element("2", "IfcWall", "", map[string]any{"Fläche": 1})),
	}
	assert.Equal(t, map[string][]string{"IfcWall": {"LL AM.Fläche", "LL AM.Länge"}}, KeysByClass(records))
}

func TestDetectScale(t *testing.T) {
	slab := func(id string, h any) model.RawElement {
		return element(id, "IfcSlab", "Platte", map[string]any{"Höhe": h})
	}

	t.Run("declared unit wins", func(t *testing.T) {
		r := reader(t, model.UnitInfo{LengthPrefix: "CENTI"}, slab("1", 0.2))
		assert.Equal(t, 0.01, DetectScale(r))
	})
	t.Run("millimeter thicknesses", func(t *testing.T) {
		r := reader(t, model.UnitInfo{}, slab("1", 200), slab("2", "180"), slab("3", 0.2))
		assert.Equal(t, 0.001, DetectScale(r))
	})
	t.Run("meter thicknesses", func(t *testing.T) {
		r := reader(t, model.UnitInfo{}, slab("1", 0.2), slab("2", "0,25"),
			element("3", "IfcWall", "Wand", map[string]any{"Breite": 0.3}))
		assert.Equal(t, 1.0, DetectScale(r))
	})
	t.Run("no samples", func(t *testing.T) {
		r := reader(t, model.UnitInfo{ConversionFactor: 1}, element("1", "IfcDoor", "Tür", nil))
		assert.Equal(t, 1.0, DetectScale(r))
	})
}

func TestCategorizeByRule(t *testing.T) {
	mapping := model.Mapping{
		Categories: map[string]string{"IfcWall": "Wände"},
		Rules: map[string]model.MappingRule{
			"IfcWall": {
				Group:  []string{"LL AM.Typ", "LL AM.Höhe"},
				Group2: []string{"LL AM.Material"},
				Sum:    []string{"LL AM.Länge"},
			},
		},
	}
	rec := Flatten(element("1", "IfcWall", "Mauer", map[string]any{
		"Typ": "AW", "Höhe": 2.5, "Material": "Beton", "Länge": 3.5, "Ungenutzt": 1,
	}))

	c := NewCategorizer(mapping, 1).Categorize(rec)
	assert.True(t, c.RuleDriven)
	assert.Equal(t, "Wände", c.Category)
	assert.Equal(t, Labels{Gruppe: "AW / 2.5", Art: "Beton", Status: ""}, c.Labels)
	assert.NotContains(t, c.Properties, "LL AM.Ungenutzt")
	assert.Len(t, c.Properties, 4)
}

func TestHeuristics(t *testing.T) {
	tests := []struct {
		name     string
		el       model.RawElement
		scale    float64
		code     string
		category string
		labels   Labels
	}{
		{
			name:     "wall with millimeter width",
			el:       element("1", "IfcWall", "Mauer", map[string]any{"Breite": 240}),
			scale:    0.001,
			code:     CodeWall,
			category: "Wand",
			labels:   Labels{Gruppe: "Mauer / 0.24 m", Art: "Mauer"},
		},
		{
			name:     "slab falls back to name",
			el:       element("2", "IfcSlab", "Pflaster", map[string]any{"Höhe": 0.08}),
			scale:    1,
			code:     CodeSlab,
			category: "Belag/Weg",
			labels:   Labels{Gruppe: "Pflaster / 0.08 m", Art: "Pflaster"},
		},
		{
			name: "structured tree",
			el: element("3", "IfcBuildingElementProxy", "Baum 1", map[string]any{
				"Name": "LL-VEG-BAUM-NEU", "Kronendurchmesser": 4, "dt. Bezeichnung": "Winterlinde", "lat. Bezeichnung": "Tilia cordata",
			}),
			scale:    1,
			code:     CodeTree,
			category: "Baum",
			labels:   Labels{Gruppe: "Winterlinde", Art: "Tilia cordata", Status: "Neu"},
		},
		{
			name:     "structured hedge",
			el:       element("4", "IfcBuildingElementProxy", "Hecke", map[string]any{"Name": "LL-VEG-HECKE", "Kronendurchmesser": 1}),
			scale:    1,
			code:     CodeHedgerow,
			category: "Hecke",
			labels:   Labels{Gruppe: "Hecke", Art: "Hecke"},
		},
		{
			name:     "structured vegetation without size",
			el:       element("5", "IfcBuildingElementProxy", "Strauch", map[string]any{"Name": "LL-VEG-GEHÖLZ-BESTAND"}),
			scale:    1,
			code:     CodeShrubPlanting,
			category: "Strauchpflanzung",
			labels:   Labels{Gruppe: "Strauch", Art: "Strauch", Status: "Bestand"},
		},
		{
			name:     "board edging",
			el:       element("6", "IfcBuildingElementProxy", "Bord", map[string]any{"Name": "LL-AUS-RB"}),
			scale:    1,
			code:     CodeFurniture,
			category: "Ausstattung",
			labels:   Labels{Gruppe: "Rasenbord", Art: "Rasenbord"},
		},
		{
			name:     "technical equipment",
			el:       element("7", "IfcBuildingElementProxy", "Leuchte", map[string]any{"Name": "LL-TGA-LEUCHTE"}),
			scale:    1,
			code:     CodeFurniture,
			category: "Ausstattung",
			labels:   Labels{Gruppe: "Leuchte", Art: "Leuchte"},
		},
		{
			name:     "stair geometry rounds half to even",
			el:       element("8", "IfcStair", "Treppe", map[string]any{"Breite": 150.5, "Auftritt Stufen": "32,5", "Steigung Stufen": 16}),
			scale:    1,
			code:     CodeStair,
			category: "Treppe",
			labels:   Labels{Gruppe: "B:150 / A:32 / S:16", Art: "B:150 / A:32 / S:16"},
		},
		{
			name:     "terrain model",
			el:       element("9", "IfcSite", "Gelände", map[string]any{"Name": "DGM Bestand"}),
			scale:    1,
			code:     CodeSite,
			category: "Geländemodell",
			labels:   Labels{Gruppe: "Geländemodell", Art: "Gelände"},
		},
		{
			name:     "planting element",
			el:       element("10", "IfcPlantingElement", "Beet", nil),
			scale:    1,
			code:     CodeAreaPlanting,
			category: "Flächenpflanzung",
			labels:   Labels{Gruppe: "Flächenpflanzung", Art: "Flächenpflanzung gesamt"},
		},
		{
			name:     "furnishing uses object type",
			el:       model.RawElement{ID: "11", Class: "IfcFurnishingElement", Name: "Bank 1", ObjectType: "Parkbank"},
			scale:    1,
			code:     CodeFurniture,
			category: "Ausstattung",
			labels:   Labels{Gruppe: "Parkbank", Art: "Parkbank"},
		},
		{
			name:     "tree by name",
			el:       element("12", "IfcBuildingElementProxy", "Baum Bestand", nil),
			scale:    1,
			code:     CodeTree,
			category: "Baum",
			labels:   Labels{Gruppe: "Baum Bestand", Art: "Baum Bestand"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCategorizer(model.Mapping{}, tt.scale).Categorize(Flatten(tt.el))
			assert.False(t, c.RuleDriven)
			assert.Equal(t, tt.code, c.Code)
			assert.Equal(t, tt.category, c.Category)
			assert.Equal(t, tt.labels, c.Labels)
		})
	}
}

func TestHeuristicOtherUsesLayerStatus(t *testing.T) {
	el := model.RawElement{ID: "1", Class: "IfcDoor", Name: "Tor", Tag: "T-01", Layer: "LA_Bestand"}
	c := NewCategorizer(model.Mapping{}, 1).Categorize(Flatten(el))
	assert.Equal(t, CodeOther, c.Code)
	assert.Equal(t, "Sonstige", c.Category)
	assert.Equal(t, Labels{Gruppe: "T-01", Art: "Tor", Status: "Bestand"}, c.Labels)
	assert.Equal(t, "other", c.Heuristic)
}

func TestThicknessLabelRoundsHalfToEven(t *testing.T) {
	assert.Equal(t, "Beton / 0.062 m", withThickness("Beton", 0.0625))
	assert.Equal(t, "Beton / 0.188 m", withThickness("Beton", 0.1875))
	assert.Equal(t, "Beton / 0.24 m", withThickness("Beton", 0.24))
	assert.Equal(t, "Beton", withThickness("Beton", 0))
}

func TestHeuristicCategoryOverride(t *testing.T) {
	mapping := model.Mapping{Categories: map[string]string{CodeWall: "Mauern"}}
	c := NewCategorizer(mapping, 1).Categorize(Flatten(element("1", "IfcWall", "Mauer", nil)))
	assert.Equal(t, "Mauern", c.Category)
}

func TestHeuristicPropertiesDropZeroCounts(t *testing.T) {
	rec := Flatten(element("1", "IfcBuildingElementProxy", "Baum", map[string]any{
		"Anzahl Pflanzen": 0, "Anzahl Stufen": "0", "Höhe": 12,
	}))
	props := heuristicProperties(rec)
	assert.Equal(t, model.PropertyBag{"LL AM.Höhe": 12.0}, props)
}

func TestCustomHeuristics(t *testing.T) {
	rules := []HeuristicRule{{
		Name:     "everything",
		Match:    func(HeuristicInput) bool { return true },
		Classify: func(in HeuristicInput) HeuristicResult { return HeuristicResult{Code: "Custom", Gruppe: in.Record.Name} },
	}}
	c := NewCategorizer(model.Mapping{}, 1).WithHeuristics(rules).Categorize(Flatten(element("1", "IfcWall", "Mauer", nil)))
	assert.Equal(t, "Custom", c.Category)
	assert.Equal(t, "Mauer", c.Labels.Gruppe)
}

func TestSeedMapping(t *testing.T) {
	records := []model.ElementRecord{
		Flatten(element("1", "IfcWall", "Mauer", map[string]any{"Länge": 3, "Breite": 0.24, "Material": "Beton"})),
		Flatten(element("2", "IfcWall", "Mauer", map[string]any{"Länge": "n/a"})),
		Flatten(element("3", "IfcSlab", "Weg", map[string]any{"Fläche": 12.5})),
	}
	m := SeedMapping(records, NewCategorizer(model.Mapping{}, 1))

	assert.Equal(t, "Wand", m.Categories["IfcWall"])
	assert.Equal(t, "Belag/Weg", m.Categories["IfcSlab"])
	assert.Empty(t, m.Rules["IfcWall"].Sum)
	assert.Equal(t, []string{"LL AM.Breite", "LL AM.Länge", "LL AM.Material"}, m.Rules["IfcWall"].Text)
	assert.Equal(t, []string{"LL AM.Fläche"}, m.Rules["IfcSlab"].Sum)
	require.NoError(t, m.Validate())
}

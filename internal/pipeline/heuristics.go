package pipeline

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"quantity-pipeline/internal/model"
	"quantity-pipeline/pkg/utils"
)

// Heuristic codes.
const (
	CodeSite          = "Site"
	CodeAreaPlanting  = "Flächenpflanzung"
	CodeStair         = "Stair"
	CodeRamp          = "Ramp"
	CodeTree          = "Tree"
	CodeHedgerow      = "Hedgerow"
	CodeShrubPlanting = "Strauchpflanzung"
	CodeFurniture     = "Furniture"
	CodeSlab          = "Slab"
	CodeWall          = "Wall"
	CodeOther         = "Other"
)

var displayNames = map[string]string{
	CodeSlab:          "Belag/Weg",
	CodeWall:          "Wand",
	CodeRamp:          "Rampe",
	CodeStair:         "Treppe",
	CodeTree:          "Baum",
	CodeHedgerow:      "Hecke",
	CodeShrubPlanting: "Strauchpflanzung",
	CodeAreaPlanting:  "Flächenpflanzung",
	CodeFurniture:     "Ausstattung",
	CodeOther:         "Sonstige",
	CodeSite:          "Geländemodell",
}

var boardNames = map[string]string{"RB": "Rasenbord", "TB": "Tiefbord"}

var furnitureObjects = map[string]bool{
	"MÜLL": true, "FAHRRAD": true, "BANK": true, "TISCH": true,
	"SITZ": true, "SITZGELEGENHEIT": true, "SPIEL": true,
}

var furnishingClasses = map[string]bool{
	"IfcFurnishingElement": true,
	"IfcFurniture":         true,
	"IfcFurnitureType":     true,
}

var nameSplitter = regexp.MustCompile(`[-_]`)

// title capitalizes s the German way. Casers keep state, so each call gets
// its own.
func title(s string) string {
	return cases.Title(language.German).String(s)
}

// HeuristicInput is everything a heuristic rule may look at.
type HeuristicInput struct {
	Record model.ElementRecord
	// Pset is the heuristic property set keyed by property name.
	Pset map[string]any
	// RawName is the upper-cased "Name" of the heuristic property set.
	RawName   string
	UpperName string
	// UpperPsets are the upper-cased property set names.
	UpperPsets  []string
	LayerStatus string
	Scale       float64
	// Structured name segments of "LL-<DOMAIN>-<OBJECT>-<STATUS>" names.
	Structured bool
	Parts      []string
	Domain     string
	Object     string
	StatusTag  string
}

// NewHeuristicInput precomputes the signals shared by the heuristic rules.
func NewHeuristicInput(rec model.ElementRecord, scale float64) HeuristicInput {
	in := HeuristicInput{
		Record:      rec,
		Pset:        rec.Pset(HeuristicPset),
		UpperName:   strings.ToUpper(rec.Name),
		LayerStatus: StatusFromLayer(rec.Layer),
		Scale:       scale,
	}
	in.RawName = strings.ToUpper(strings.TrimSpace(utils.Stringify(in.Pset["Name"])))
	for _, p := range rec.PsetNames {
		in.UpperPsets = append(in.UpperPsets, strings.ToUpper(p))
	}

	if strings.HasPrefix(in.RawName, "LL-") {
		in.Structured = true
		for _, p := range nameSplitter.Split(in.RawName, -1) {
			if p != "" {
				in.Parts = append(in.Parts, p)
			}
		}
		if len(in.Parts) > 1 {
			in.Domain = in.Parts[1]
		}
		if len(in.Parts) > 2 {
			in.Object = in.Parts[2]
		}
		if len(in.Parts) > 3 {
			in.StatusTag = capitalize(in.Parts[3])
		}
	}
	return in
}

// num reads a heuristic property with the lenient comma-decimal parser.
func (in HeuristicInput) num(prop string) float64 {
	return utils.NumberOrZero(in.Pset[prop])
}

// text returns the trimmed heuristic property or fallback when it is empty.
func (in HeuristicInput) text(prop, fallback string) string {
	if s := strings.TrimSpace(utils.Stringify(in.Pset[prop])); s != "" {
		return s
	}
	return fallback
}

func (in HeuristicInput) has(prop string) bool {
	v, ok := in.Pset[prop]
	return ok && v != nil && strings.TrimSpace(utils.Stringify(v)) != ""
}

func (in HeuristicInput) isClass(classes ...string) bool {
	for _, c := range classes {
		if in.Record.Class == c {
			return true
		}
	}
	return false
}

// HeuristicResult is what a matching rule decides. An empty Status is filled
// from the presentation layer.
type HeuristicResult struct {
	Code   string
	Gruppe string
	Art    string
	Status string
}

// HeuristicRule is one ordered discriminator: a predicate and the
// classification it implies.
type HeuristicRule struct {
	Name     string
	Match    func(HeuristicInput) bool
	Classify func(HeuristicInput) HeuristicResult
}

// DefaultHeuristics returns the built-in rules in priority order.
func DefaultHeuristics() []HeuristicRule {
	return []HeuristicRule{
		{Name: "site", Match: isSite, Classify: classifySite},
		{Name: "area-planting", Match: isAreaPlanting, Classify: classifyAreaPlanting},
		{Name: "stair", Match: func(in HeuristicInput) bool { return in.isClass("IfcStair") }, Classify: classifyStair},
		{Name: "ramp", Match: func(in HeuristicInput) bool { return in.isClass("IfcRamp") }, Classify: classifyRamp},
		{Name: "structured-name", Match: func(in HeuristicInput) bool { return in.Structured }, Classify: classifyStructured},
		{Name: "furnishing", Match: func(in HeuristicInput) bool { return furnishingClasses[in.Record.Class] }, Classify: classifyFurnishing},
		{Name: "shrub-name", Match: isShrubName, Classify: func(in HeuristicInput) HeuristicResult { return plant(in, CodeShrubPlanting, "") }},
		{Name: "botanical-proxy", Match: isBotanicalProxy, Classify: func(in HeuristicInput) HeuristicResult { return plant(in, CodeTree, "") }},
		{Name: "tree-name", Match: isTreeName, Classify: func(in HeuristicInput) HeuristicResult { return plant(in, CodeTree, "") }},
		{Name: "slab", Match: func(in HeuristicInput) bool { return in.isClass("IfcSlab") }, Classify: classifySlab},
		{Name: "wall", Match: func(in HeuristicInput) bool { return in.isClass("IfcWall", "IfcWallStandardCase") }, Classify: classifyWall},
		{Name: "other", Match: func(HeuristicInput) bool { return true }, Classify: otherResult},
	}
}

func isSite(in HeuristicInput) bool {
	for _, p := range in.UpperPsets {
		if strings.Contains(p, "DGM") || strings.Contains(p, "DTM") {
			return true
		}
	}
	return strings.Contains(in.RawName, "DGM") || strings.Contains(in.RawName, "DTM")
}

func classifySite(in HeuristicInput) HeuristicResult {
	return HeuristicResult{Code: CodeSite, Gruppe: displayNames[CodeSite], Art: in.Record.Name}
}

func isAreaPlanting(in HeuristicInput) bool {
	return in.isClass("IfcPlantingElement") ||
		strings.Contains(in.RawName, "FLÄCHENPFLANZUNG") ||
		strings.Contains(in.RawName, "PFLANZFLÄCHE")
}

func classifyAreaPlanting(HeuristicInput) HeuristicResult {
	return HeuristicResult{Code: CodeAreaPlanting, Gruppe: CodeAreaPlanting, Art: "Flächenpflanzung gesamt"}
}

func classifyStair(in HeuristicInput) HeuristicResult {
	label := geometryLabel(in.num("Breite"), in.num("Auftritt Stufen"), in.num("Steigung Stufen"))
	return HeuristicResult{Code: CodeStair, Gruppe: label, Art: label}
}

func classifyRamp(in HeuristicInput) HeuristicResult {
	label := geometryLabel(in.num("Breite"), in.num("Auftritt Stufen"), in.num("Steigung Rampe"))
	return HeuristicResult{Code: CodeRamp, Gruppe: label, Art: label}
}

// geometryLabel renders "B:<width> / A:<tread> / S:<slope>" with values
// rounded half to even.
func geometryLabel(width, tread, slope float64) string {
	return fmt.Sprintf("B:%d / A:%d / S:%d",
		int64(math.RoundToEven(width)), int64(math.RoundToEven(tread)), int64(math.RoundToEven(slope)))
}

func classifyStructured(in HeuristicInput) HeuristicResult {
	name := in.Record.Name
	switch {
	case in.Domain == "VEG" && in.Object == "HECKE":
		return plant(in, CodeHedgerow, "")
	case in.Domain == "VEG" && in.Object == "STRAUCHPFLANZUNG":
		return plant(in, CodeShrubPlanting, "")
	case in.Domain == "VEG":
		if in.has("Kronendurchmesser") || in.has("Höhe") {
			return plant(in, CodeTree, in.StatusTag)
		}
		return plant(in, CodeShrubPlanting, in.StatusTag)
	case in.Domain == "AUS" || in.Domain == "EIN":
		last := in.Parts[len(in.Parts)-1]
		grp, ok := boardNames[last]
		if !ok {
			grp = title(last)
		}
		return HeuristicResult{Code: CodeFurniture, Gruppe: grp, Art: grp}
	case furnitureObjects[in.Object]:
		grp := title(in.Object)
		return HeuristicResult{Code: CodeFurniture, Gruppe: grp, Art: grp}
	case in.Domain == "TGA":
		grp := name
		if in.Object != "" {
			grp = title(in.Object)
		}
		return HeuristicResult{Code: CodeFurniture, Gruppe: grp, Art: grp}
	default:
		grp := name
		if grp == "" {
			grp = in.Record.Class
		}
		return HeuristicResult{Code: CodeOther, Gruppe: grp, Art: name}
	}
}

func classifyFurnishing(in HeuristicInput) HeuristicResult {
	grp := in.Record.ObjectType
	if grp == "" {
		grp = in.Record.Name
	}
	if grp == "" {
		grp = "Unbenannt"
	}
	return HeuristicResult{Code: CodeFurniture, Gruppe: grp, Art: grp}
}

func isShrubName(in HeuristicInput) bool {
	return strings.Contains(in.RawName, "STRAUCH") || strings.Contains(in.UpperName, "STRAUCH")
}

func isBotanicalProxy(in HeuristicInput) bool {
	if !in.isClass("IfcBuildingElementProxy") {
		return false
	}
	if !in.has("dt. Bezeichnung") && !in.has("lat. Bezeichnung") {
		return false
	}
	for _, marker := range []string{"STRAUCH", "FLÄCHENPFLANZUNG", "HECKE"} {
		if strings.Contains(in.RawName, marker) || strings.Contains(in.UpperName, marker) {
			return false
		}
	}
	return true
}

func isTreeName(in HeuristicInput) bool {
	return strings.Contains(in.UpperName, "BAUM") && !strings.Contains(in.UpperName, "STRAUCH")
}

// plant labels vegetation by its German and botanical names.
func plant(in HeuristicInput, code, status string) HeuristicResult {
	return HeuristicResult{
		Code:   code,
		Gruppe: in.text("dt. Bezeichnung", in.Record.Name),
		Art:    in.text("lat. Bezeichnung", in.Record.Name),
		Status: status,
	}
}

// RawThickness reads the unscaled thickness of a slab (Höhe) or wall (Breite).
func RawThickness(in HeuristicInput) float64 {
	switch in.Record.Class {
	case "IfcSlab":
		return in.num("Höhe")
	case "IfcWall", "IfcWallStandardCase":
		return in.num("Breite")
	default:
		return 0
	}
}

func classifySlab(in HeuristicInput) HeuristicResult {
	mat := in.Record.Material
	if mat == "" {
		mat = in.Record.Name
	}
	if mat == "" {
		mat = "Unspecified"
	}
	return HeuristicResult{Code: CodeSlab, Gruppe: withThickness(mat, RawThickness(in)*in.Scale), Art: mat}
}

func classifyWall(in HeuristicInput) HeuristicResult {
	name := in.Record.Name
	if name == "" {
		name = "Unnamed Wall"
	}
	return HeuristicResult{Code: CodeWall, Gruppe: withThickness(name, RawThickness(in)*in.Scale), Art: in.Record.Name}
}

// withThickness appends the thickness in meters, rounded half to even at
// millimeters.
func withThickness(label string, meters float64) string {
	if meters <= 0 {
		return label
	}
	mm := math.RoundToEven(meters * 1000)
	return label + labelSeparator + utils.Stringify(mm/1000) + " m"
}

func otherResult(in HeuristicInput) HeuristicResult {
	grp := in.Record.Tag
	if grp == "" {
		grp = in.Record.Class
	}
	return HeuristicResult{Code: CodeOther, Gruppe: grp, Art: in.Record.Name}
}

// StatusFromLayer derives the planning status from a presentation layer name.
func StatusFromLayer(layer string) string {
	l := strings.ToLower(layer)
	switch {
	case strings.Contains(l, "bestand"):
		return "Bestand"
	case strings.Contains(l, "neu"):
		return "Neu"
	default:
		return ""
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

package pipeline

import (
	"strings"

	"quantity-pipeline/internal/model"
	"quantity-pipeline/pkg/utils"
)

// HeuristicPset is the property set the built-in heuristics read.
const HeuristicPset = "LL AM"

// labelSeparator joins the values of the keys listed in one grouping list.
const labelSeparator = " / "

// Labels are the secondary classification axes of an element.
type Labels struct {
	Gruppe string `json:"Gruppe"`
	Art    string `json:"Art"`
	Status string `json:"Status"`
}

// Classification is the Categorizer's verdict for one element.
type Classification struct {
	Category   string
	Labels     Labels
	Properties model.PropertyBag
	// RuleDriven is false when a built-in heuristic produced the result.
	RuleDriven bool
	// Code is the class name for rule-driven results and the heuristic code
	// ("Tree", "Slab", ...) otherwise.
	Code string
	// Heuristic names the heuristic rule that matched.
	Heuristic string
}

// Categorizer assigns category, labels and selected properties. It holds no
// state beyond its read-only inputs and is safe for concurrent use.
type Categorizer struct {
	mapping    model.Mapping
	scale      float64
	heuristics []HeuristicRule
}

// NewCategorizer returns a Categorizer using the default heuristic rules.
func NewCategorizer(mapping model.Mapping, scale float64) *Categorizer {
	return &Categorizer{mapping: mapping, scale: scale, heuristics: DefaultHeuristics()}
}

// WithHeuristics replaces the heuristic rule list.
func (c *Categorizer) WithHeuristics(rules []HeuristicRule) *Categorizer {
	c.heuristics = rules
	return c
}

// HasRule reports whether class is covered by an explicit mapping rule.
func (c *Categorizer) HasRule(class string) bool {
	_, ok := c.mapping.Rule(class)
	return ok
}

// Categorize classifies rec by its mapping rule, falling back to the
// heuristics when its class has none.
func (c *Categorizer) Categorize(rec model.ElementRecord) Classification {
	if rule, ok := c.mapping.Rule(rec.Class); ok {
		return c.byRule(rec, rule)
	}
	return c.Heuristic(rec)
}

func (c *Categorizer) byRule(rec model.ElementRecord, rule model.MappingRule) Classification {
	props := make(model.PropertyBag)
	for _, key := range rule.Selected() {
		if v, ok := rec.Properties[key]; ok {
			props[key] = v
		}
	}
	return Classification{
		Category: c.mapping.Category(rec.Class),
		Labels: Labels{
			Gruppe: labelFrom(props, rule.Group),
			Art:    labelFrom(props, rule.Group2),
			Status: labelFrom(props, rule.Group3),
		},
		Properties: props,
		RuleDriven: true,
		Code:       rec.Class,
	}
}

func labelFrom(props model.PropertyBag, keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = strings.TrimSpace(utils.Stringify(props[k]))
	}
	return strings.Join(parts, labelSeparator)
}

// Heuristic runs the ordered heuristic rules; the first match wins.
func (c *Categorizer) Heuristic(rec model.ElementRecord) Classification {
	in := NewHeuristicInput(rec, c.scale)
	res := otherResult(in)
	name := "other"
	for _, r := range c.heuristics {
		if r.Match(in) {
			res = r.Classify(in)
			name = r.Name
			break
		}
	}
	if res.Status == "" {
		res.Status = in.LayerStatus
	}
	return Classification{
		Category:   c.DisplayName(res.Code),
		Labels:     Labels{Gruppe: res.Gruppe, Art: res.Art, Status: res.Status},
		Properties: heuristicProperties(rec),
		Code:       res.Code,
		Heuristic:  name,
	}
}

// DisplayName resolves the category label of a heuristic code: a mapping
// category wins, then the built-in German names, then the code itself.
func (c *Categorizer) DisplayName(code string) string {
	if label, ok := c.mapping.Categories[code]; ok && strings.TrimSpace(label) != "" {
		return label
	}
	if label, ok := displayNames[code]; ok {
		return label
	}
	return code
}

// heuristicProperties selects the heuristic property set, dropping zero plant
// and step counts.
func heuristicProperties(rec model.ElementRecord) model.PropertyBag {
	prefix := HeuristicPset + "."
	props := make(model.PropertyBag)
	for key, v := range rec.Properties {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if zeroDropped[key[len(prefix):]] {
			if f, ok := utils.ParseNumber(v); ok && f == 0 {
				continue
			}
		}
		props[key] = v
	}
	return props
}

var zeroDropped = map[string]bool{
	"Anzahl Pflanzen": true,
	"Anzahl Stufen":   true,
}

// ------------------- Seeding -------------------

// noSumFields are heuristic properties that must never be summed.
var noSumFields = map[string]bool{
	"Kostengruppe":              true,
	"Kostengruppe Beschreibung": true,
	"Steigung Rampe":            true,
	"Steigung Stufen":           true,
	"Breite":                    true,
	"Auftritt Stufen":           true,
}

// maxFields are reduced to their maximum instead of a sum.
var maxFields = map[string]bool{
	"Kronendurchmesser": true,
	"Höhe":              true,
}

// SeedMapping derives a starting mapping from the heuristic view of records:
// every class gets a rule over its heuristic properties (numbers summed,
// no-sum fields and strings as text) and a category label.
func SeedMapping(records []model.ElementRecord, c *Categorizer) model.Mapping {
	out := model.Mapping{
		Categories: make(map[string]string),
		Rules:      make(map[string]model.MappingRule),
	}

	numeric := make(map[string]map[string]bool)
	var classes []string
	for _, rec := range records {
		if _, ok := numeric[rec.Class]; !ok {
			numeric[rec.Class] = make(map[string]bool)
			classes = append(classes, rec.Class)
			out.Categories[rec.Class] = c.Heuristic(rec).Category
		}
		for key, v := range heuristicProperties(rec) {
			_, isNum := utils.ParseNumber(v)
			prev, seen := numeric[rec.Class][key]
			if v == nil || v == "" {
				if !seen {
					numeric[rec.Class][key] = true
				}
				continue
			}
			numeric[rec.Class][key] = isNum && (!seen || prev)
		}
	}

	for _, class := range classes {
		var rule model.MappingRule
		for _, key := range sortedKeys(numeric[class]) {
			leaf := model.LeafName(key)
			if numeric[class][key] && !noSumFields[leaf] {
				rule.Sum = append(rule.Sum, key)
			} else {
				rule.Text = append(rule.Text, key)
			}
		}
		out.Rules[class] = rule
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	bag := make(model.PropertyBag, len(m))
	for k := range m {
		bag[k] = nil
	}
	return bag.Keys()
}

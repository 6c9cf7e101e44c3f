package model

import (
	"fmt"
	"sort"
	"strings"
)

// MappingRule lists, per element class, which flattened property keys
// ("Pset.Field") drive grouping and how the remaining ones are reduced.
type MappingRule struct {
	Group  []string `json:"group" yaml:"group"`   // Gruppe label
	Group2 []string `json:"group2" yaml:"group2"` // Art label
	Group3 []string `json:"group3" yaml:"group3"` // Status label
	Sum    []string `json:"sum" yaml:"sum"`
	Text   []string `json:"text" yaml:"text"`
	Ignore []string `json:"ignore" yaml:"ignore"`
}

// Mapping is the per-session configuration handed to the pipeline. The
// pipeline never mutates it.
type Mapping struct {
	Categories map[string]string      `json:"categories" yaml:"categories"` // class -> display label
	Rules      map[string]MappingRule `json:"rules" yaml:"rules"`           // class -> rule
}

// MappingConflictError reports a key used by more than one grouping list.
type MappingConflictError struct {
	Class string
	Key   string
	Lists []string
}

func (e *MappingConflictError) Error() string {
	return fmt.Sprintf("mapping rule %s: key %q is used by %s", e.Class, e.Key, strings.Join(e.Lists, " and "))
}

// Selected returns the union of all six lists, in list order, without
// duplicates.
func (r MappingRule) Selected() []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]string{r.Group, r.Group2, r.Group3, r.Sum, r.Text, r.Ignore} {
		for _, k := range list {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

// GroupingKeys returns the keys already encoded in the group tuple.
func (r MappingRule) GroupingKeys() map[string]bool {
	out := make(map[string]bool)
	for _, list := range [][]string{r.Group, r.Group2, r.Group3} {
		for _, k := range list {
			out[k] = true
		}
	}
	return out
}

// NeverConvert returns the keys whose values must stay strings in long form.
func (r MappingRule) NeverConvert() map[string]bool {
	out := r.GroupingKeys()
	for _, list := range [][]string{r.Text, r.Ignore} {
		for _, k := range list {
			out[k] = true
		}
	}
	return out
}

// Validate checks that no key appears in two of group, group2 and group3.
func (r MappingRule) Validate(class string) error {
	owners := make(map[string][]string)
	named := []struct {
		name string
		keys []string
	}{{"group", r.Group}, {"group2", r.Group2}, {"group3", r.Group3}}
	for _, n := range named {
		for _, k := range n.keys {
			owners[k] = append(owners[k], n.name)
		}
	}
	keys := make([]string, 0, len(owners))
	for k := range owners {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if lists := uniqueStrings(owners[k]); len(lists) > 1 {
			return &MappingConflictError{Class: class, Key: k, Lists: lists}
		}
	}
	return nil
}

// Category returns the display label for class, or class itself.
func (m Mapping) Category(class string) string {
	if label, ok := m.Categories[class]; ok && strings.TrimSpace(label) != "" {
		return label
	}
	return class
}

// Rule returns the rule configured for class.
func (m Mapping) Rule(class string) (MappingRule, bool) {
	r, ok := m.Rules[class]
	return r, ok
}

// Validate checks every rule.
func (m Mapping) Validate() error {
	classes := make([]string, 0, len(m.Rules))
	for c := range m.Rules {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	for _, c := range classes {
		if err := m.Rules[c].Validate(c); err != nil {
			return err
		}
	}
	return nil
}

// GroupingKeys is the union of the grouping keys of all rules.
func (m Mapping) GroupingKeys() map[string]bool {
	out := make(map[string]bool)
	for _, r := range m.Rules {
		for k := range r.GroupingKeys() {
			out[k] = true
		}
	}
	return out
}

// Clone returns a deep copy so callers can edit without touching a mapping
// that is in use.
func (m Mapping) Clone() Mapping {
	out := Mapping{
		Categories: make(map[string]string, len(m.Categories)),
		Rules:      make(map[string]MappingRule, len(m.Rules)),
	}
	for k, v := range m.Categories {
		out.Categories[k] = v
	}
	for k, r := range m.Rules {
		out.Rules[k] = MappingRule{
			Group:  append([]string(nil), r.Group...),
			Group2: append([]string(nil), r.Group2...),
			Group3: append([]string(nil), r.Group3...),
			Sum:    append([]string(nil), r.Sum...),
			Text:   append([]string(nil), r.Text...),
			Ignore: append([]string(nil), r.Ignore...),
		}
	}
	return out
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

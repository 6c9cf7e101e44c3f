package model

import (
	"sort"
	"strings"
)

// PropertyBag is a flattened property set: "Pset.Prop" -> string, float64 or nil.
type PropertyBag map[string]any

// RawElement is what a Model Reader hands over for one building element.
type RawElement struct {
	ID         string                    `json:"id" yaml:"id"`
	Class      string                    `json:"class" yaml:"class"`
	Name       string                    `json:"name" yaml:"name"`
	ObjectType string                    `json:"object_type" yaml:"object_type"`
	Tag        string                    `json:"tag,omitempty" yaml:"tag,omitempty"`
	Layer      string                    `json:"layer,omitempty" yaml:"layer,omitempty"`
	Material   string                    `json:"material,omitempty" yaml:"material,omitempty"`
	Psets      map[string]map[string]any `json:"psets" yaml:"psets"`
}

// ElementRecord is a flattened element. It is not modified after the
// flattener produced it.
type ElementRecord struct {
	ID         string
	Class      string
	Name       string
	ObjectType string
	Tag        string
	Layer      string
	Material   string
	PsetNames  []string
	Properties PropertyBag
}

// Get returns the value stored under "pset.prop".
func (e ElementRecord) Get(pset, prop string) (any, bool) {
	v, ok := e.Properties[pset+"."+prop]
	return v, ok
}

// Pset returns the properties of one property set keyed by property name.
func (e ElementRecord) Pset(pset string) map[string]any {
	prefix := pset + "."
	out := make(map[string]any)
	for k, v := range e.Properties {
		if strings.HasPrefix(k, prefix) {
			out[k[len(prefix):]] = v
		}
	}
	return out
}

// Keys returns the property keys in sorted order.
func (b PropertyBag) Keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LeafName returns the property part of a flattened key: the text after the
// last "." that is not followed by a space, so abbreviations inside property
// names ("LL AM.dt. Bezeichnung") survive.
func LeafName(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] != '.' {
			continue
		}
		if i+1 < len(key) && key[i+1] == ' ' {
			continue
		}
		if i+1 == len(key) {
			continue
		}
		return key[i+1:]
	}
	return key
}

// Package modelfile reads element dumps: the JSON or YAML documents an
// external model exporter writes for each building model.
package modelfile

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"quantity-pipeline/internal/model"
)

// allElements selects every element in ElementsOf.
const allElements = "IfcElement"

// File is an in-memory element dump. It implements pipeline.ModelReader.
type File struct {
	dump    model.ModelDump
	byClass map[string][]int
}

// Load reads a dump from path; the extension picks the decoder.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model dump: %w", err)
	}
	defer f.Close()

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	m, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if m.dump.Name == "" {
		m.dump.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return m, nil
}

// Decode reads a dump in format "json", "yaml" or "yml".
func Decode(r io.Reader, format string) (*File, error) {
	var dump model.ModelDump
	switch format {
	case "json":
		if err := json.NewDecoder(r).Decode(&dump); err != nil {
			return nil, fmt.Errorf("decode json model dump: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&dump); err != nil && err != io.EOF {
			return nil, fmt.Errorf("decode yaml model dump: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported model dump format %q", format)
	}
	return FromDump(dump)
}

// FromDump indexes an already decoded dump.
func FromDump(dump model.ModelDump) (*File, error) {
	m := &File{dump: dump, byClass: make(map[string][]int)}
	for i, el := range dump.Elements {
		if strings.TrimSpace(el.Class) == "" {
			return nil, fmt.Errorf("element %d (%q) has no class", i, el.ID)
		}
		m.byClass[el.Class] = append(m.byClass[el.Class], i)
	}
	return m, nil
}

// Name is the model name, the file base name when the dump has none.
func (m *File) Name() string { return m.dump.Name }

// Len is the number of elements.
func (m *File) Len() int { return len(m.dump.Elements) }

// ElementsOf returns the elements of class in dump order; "" and
// "IfcElement" select all of them.
func (m *File) ElementsOf(class string) ([]model.RawElement, error) {
	if class == "" || class == allElements {
		return append([]model.RawElement(nil), m.dump.Elements...), nil
	}
	idx := m.byClass[class]
	out := make([]model.RawElement, len(idx))
	for i, j := range idx {
		out[i] = m.dump.Elements[j]
	}
	return out, nil
}

// DeclaredLengthScale reports the declared unit of the dump.
func (m *File) DeclaredLengthScale() (float64, bool) {
	return m.dump.Units.Scale()
}

// Classes lists the element classes with their element counts, sorted by
// class name.
func (m *File) Classes() []ClassCount {
	out := make([]ClassCount, 0, len(m.byClass))
	for c, idx := range m.byClass {
		out = append(out, ClassCount{Class: c, Count: len(idx)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Class < out[j].Class })
	return out
}

// ClassCount is one entry of Classes.
type ClassCount struct {
	Class string `json:"class"`
	Count int    `json:"count"`
}

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"quantity-pipeline/internal/model"
	"quantity-pipeline/pkg/utils"
)

// ModelReader is the collaborator that knows the building-model format. The
// pipeline never parses a model itself.
type ModelReader interface {
	// ElementsOf returns the elements of class in model order. An empty class
	// or "IfcElement" returns every element.
	ElementsOf(class string) ([]model.RawElement, error)
	// DeclaredLengthScale returns the factor to meters of the declared length
	// unit, false when the model declares none.
	DeclaredLengthScale() (float64, bool)
}

// indexedElement keeps the model position of an element so workers can
// process out of order while results stay in model order.
type indexedElement struct {
	Index   int
	Element model.RawElement
}

// ------------------- Ingestion -------------------

// StartIngestion reads all elements and streams them, in model order, to out.
// It closes out when done and returns the number of elements sent.
func StartIngestion(ctx context.Context, reader ModelReader, out chan<- indexedElement) (int, error) {
	defer close(out)

	elements, err := reader.ElementsOf("")
	if err != nil {
		return 0, fmt.Errorf("read elements: %w", err)
	}
	if len(elements) == 0 {
		return 0, ErrNoElements
	}

	sent := 0
	for i, el := range elements {
		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		case out <- indexedElement{Index: i, Element: el}:
			sent++
		}
	}
	slog.Debug("ingestion done", "elements", sent)
	return sent, nil
}

// ------------------- Flattening -------------------

// Flatten turns the nested property sets of an element into one bag keyed by
// "<Pset>.<Prop>". Numbers become float64, strings are trimmed and any other
// scalar is rendered as text. Nested maps add "<Pset>.<Prop>.<Sub>" keys and
// lists are joined with ", ". A missing property set map yields an empty bag.
func Flatten(raw model.RawElement) model.ElementRecord {
	rec := model.ElementRecord{
		ID:         raw.ID,
		Class:      raw.Class,
		Name:       strings.TrimSpace(raw.Name),
		ObjectType: strings.TrimSpace(raw.ObjectType),
		Tag:        strings.TrimSpace(raw.Tag),
		Layer:      raw.Layer,
		Material:   strings.TrimSpace(raw.Material),
		Properties: make(model.PropertyBag),
	}

	psets := make([]string, 0, len(raw.Psets))
	for name := range raw.Psets {
		psets = append(psets, name)
	}
	sort.Strings(psets)
	rec.PsetNames = psets

	for _, pset := range psets {
		for prop, v := range raw.Psets[pset] {
			flattenInto(rec.Properties, pset+"."+prop, v)
		}
	}
	return rec
}

func flattenInto(bag model.PropertyBag, key string, v any) {
	switch val := v.(type) {
	case map[string]any:
		for sub, sv := range val {
			flattenInto(bag, key+"."+sub, sv)
		}
	case map[any]any:
		for sub, sv := range val {
			flattenInto(bag, key+"."+fmt.Sprint(sub), sv)
		}
	default:
		bag[key] = flatValue(v)
	}
}

func flatValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return strings.TrimSpace(val)
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case uint:
		return float64(val)
	case uint64:
		return float64(val)
	case uint32:
		return float64(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := utils.Stringify(flatValue(item)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}

// KeysByClass lists, per class, the sorted property keys seen on its elements.
// Keys whose property name starts with "type" are left out; they describe the
// type object rather than the occurrence.
func KeysByClass(records []model.ElementRecord) map[string][]string {
	seen := make(map[string]map[string]bool)
	for _, rec := range records {
		if seen[rec.Class] == nil {
			seen[rec.Class] = make(map[string]bool)
		}
		for key := range rec.Properties {
			if strings.HasPrefix(strings.ToLower(model.LeafName(key)), "type") {
				continue
			}
			seen[rec.Class][key] = true
		}
	}

	out := make(map[string][]string, len(seen))
	for class, keys := range seen {
		list := make([]string, 0, len(keys))
		for k := range keys {
			list = append(list, k)
		}
		sort.Strings(list)
		out[class] = list
	}
	return out
}

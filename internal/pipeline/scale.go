package pipeline

import (
	"log/slog"
	"sort"

	"quantity-pipeline/pkg/utils"
)

const (
	scaleSampleSize = 100
	// Raw thickness medians above this are taken as millimeters.
	millimeterMedianThreshold = 5.0
	millimeterScale           = 0.001
)

// thicknessSources names the property holding the raw thickness per class.
var thicknessSources = []struct {
	Class string
	Prop  string
}{
	{"IfcSlab", "Höhe"},
	{"IfcWall", "Breite"},
	{"IfcWallStandardCase", "Breite"},
}

// DetectScale returns the factor that converts raw model lengths to meters.
// A declared unit other than meters wins. Otherwise up to 100 slab and wall
// thickness values per class are sampled; a median above 5 means the model was
// drawn in millimeters.
func DetectScale(reader ModelReader) float64 {
	if f, ok := reader.DeclaredLengthScale(); ok && f != 1.0 {
		return f
	}

	var samples []float64
	for _, src := range thicknessSources {
		elements, err := reader.ElementsOf(src.Class)
		if err != nil {
			slog.Debug("scale sampling skipped class", "class", src.Class, "error", err)
			continue
		}
		if len(elements) > scaleSampleSize {
			elements = elements[:scaleSampleSize]
		}
		for _, el := range elements {
			if el.Class != src.Class {
				continue
			}
			raw := utils.NumberOrZero(el.Psets[HeuristicPset][src.Prop])
			if raw != 0 {
				samples = append(samples, raw)
			}
		}
	}

	if len(samples) > 0 && median(samples) > millimeterMedianThreshold {
		return millimeterScale
	}
	return 1.0
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

package model

import (
	"strings"
	"time"
)

// JobKind distinguishes stored jobs.
type JobKind string

const (
	JobExtraction JobKind = "extraction"
	JobComparison JobKind = "comparison"
)

// Job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ModelDump is an element dump as produced by an external model reader. It is
// the document the CLI and the HTTP API accept in place of a model file.
type ModelDump struct {
	Name     string       `json:"name,omitempty" yaml:"name,omitempty"`
	Units    UnitInfo     `json:"units" yaml:"units"`
	Elements []RawElement `json:"elements" yaml:"elements"`
}

// UnitInfo is the declared length unit of a model.
type UnitInfo struct {
	LengthPrefix     string  `json:"length_prefix,omitempty" yaml:"length_prefix,omitempty"`         // MILLI, CENTI, DECI
	ConversionFactor float64 `json:"conversion_factor,omitempty" yaml:"conversion_factor,omitempty"` // conversion-based unit
}

var lengthPrefixes = map[string]float64{
	"MILLI": 0.001,
	"CENTI": 0.01,
	"DECI":  0.1,
}

// Scale returns the factor to meters of the declared unit. A known SI prefix
// wins over a conversion factor; false means nothing usable was declared.
func (u UnitInfo) Scale() (float64, bool) {
	if f, ok := lengthPrefixes[strings.ToUpper(strings.TrimSpace(u.LengthPrefix))]; ok {
		return f, true
	}
	if u.ConversionFactor > 0 {
		return u.ConversionFactor, true
	}
	return 0, false
}

// RunOptions tune one pipeline run.
type RunOptions struct {
	ConvertMMToM     bool     `json:"convertMMToM" yaml:"convert_mm_to_m"`
	MillimeterFields []string `json:"millimeterFields,omitempty" yaml:"millimeter_fields,omitempty"`
	// SkipUnmapped drops elements of classes without a rule instead of
	// categorizing them heuristically.
	SkipUnmapped bool `json:"skipUnmapped" yaml:"skip_unmapped"`
	Workers      int  `json:"workers,omitempty" yaml:"workers,omitempty"`
}

// CompareOptions tune a comparison.
type CompareOptions struct {
	Fields           []string `json:"fields,omitempty"`
	IncludeUnchanged bool     `json:"includeUnchanged"`
}

// Export defines export targets
type Export struct {
	File   string `json:"file"`   // .csv, .json or .xlsx
	Locale string `json:"locale"` // number formatting, e.g. "de"
}

// ExtractionJobSpec is the body of POST /api/v1/extractions.
type ExtractionJobSpec struct {
	Model   ModelDump  `json:"model"`
	Mapping Mapping    `json:"mapping"`
	Options RunOptions `json:"options"`
	Export  *Export    `json:"export,omitempty"`
	Timeout string     `json:"timeout,omitempty"` // e.g., "5m"
}

// ComparisonJobSpec is the body of POST /api/v1/comparisons.
type ComparisonJobSpec struct {
	ModelA   ModelDump      `json:"model_a"`
	ModelB   ModelDump      `json:"model_b"`
	MappingA Mapping        `json:"mapping_a"`
	MappingB *Mapping       `json:"mapping_b,omitempty"` // defaults to MappingA
	Options  RunOptions     `json:"options"`
	Compare  CompareOptions `json:"compare"`
	Export   *Export        `json:"export,omitempty"`
	Timeout  string         `json:"timeout,omitempty"`
}

// ExportResult represents the result of an export operation
type ExportResult struct {
	Type        string    `json:"type"` // "csv", "json", "xlsx"
	Path        string    `json:"path"`
	RecordCount int       `json:"record_count"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"quantity-pipeline/internal/model"
)

// LoadMapping reads a mapping document; .json, .yaml and .yml are accepted.
// The mapping is validated before it is returned.
func LoadMapping(path string) (model.Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Mapping{}, fmt.Errorf("read mapping: %w", err)
	}
	m, err := DecodeMapping(bytes.NewReader(data), formatOf(path))
	if err != nil {
		return model.Mapping{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// DecodeMapping parses a mapping document in format "json" or "yaml".
func DecodeMapping(r io.Reader, format string) (model.Mapping, error) {
	var m model.Mapping
	switch format {
	case "json":
		if err := json.NewDecoder(r).Decode(&m); err != nil {
			return model.Mapping{}, fmt.Errorf("decode json mapping: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&m); err != nil && err != io.EOF {
			return model.Mapping{}, fmt.Errorf("decode yaml mapping: %w", err)
		}
	default:
		return model.Mapping{}, fmt.Errorf("unsupported mapping format %q", format)
	}
	if m.Categories == nil {
		m.Categories = make(map[string]string)
	}
	if m.Rules == nil {
		m.Rules = make(map[string]model.MappingRule)
	}
	if err := m.Validate(); err != nil {
		return model.Mapping{}, err
	}
	return m, nil
}

// SaveMapping writes m to path in the format of its extension.
func SaveMapping(path string, m model.Mapping) error {
	var (
		data []byte
		err  error
	)
	switch formatOf(path) {
	case "json":
		data, err = json.MarshalIndent(m, "", "  ")
	case "yaml", "yml":
		data, err = yaml.Marshal(m)
	default:
		return fmt.Errorf("unsupported mapping format %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create mapping directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func formatOf(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

package vignette

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Format is the serialization of a vignette document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf infers the format from a file extension.
func FormatOf(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".json":
		return FormatJSON, true
	}
	return "", false
}

// Parse decodes, schema-checks and validates one vignette document.
// Every failure is a *domain.VignetteError.
func Parse(data []byte, format Format) (*domain.Vignette, error) {
	raw, err := unmarshal(data, format)
	if err != nil {
		return nil, &domain.VignetteError{Problems: []string{err.Error()}}
	}
	return FromDocument(raw)
}

// FromDocument schema-checks, decodes and validates an already parsed document.
func FromDocument(raw map[string]any) (*domain.Vignette, error) {
	id, _ := raw["id"].(string)
	if problems := CheckSchema(raw); len(problems) > 0 {
		return nil, &domain.VignetteError{VignetteID: id, Problems: problems}
	}

	v, err := Decode(raw)
	if err != nil {
		return nil, &domain.VignetteError{VignetteID: id, Problems: []string{err.Error()}}
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

func unmarshal(data []byte, format Format) (map[string]any, error) {
	var raw map[string]any
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("json: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	if raw == nil {
		return nil, fmt.Errorf("empty document")
	}
	return raw, nil
}

// ParseFile reads and parses a .yaml, .yml or .json vignette.
func ParseFile(path string) (*domain.Vignette, error) {
	format, ok := FormatOf(path)
	if !ok {
		return nil, fmt.Errorf("%s: unsupported extension", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vignette: %w", err)
	}
	v, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

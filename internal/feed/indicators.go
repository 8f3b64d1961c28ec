package feed

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/huangsam/macindex/core/algo"
	"github.com/huangsam/macindex/schema"
	"gopkg.in/yaml.v3"
)

// IndicatorFile is the on-disk layout of an indicator definition file.
type IndicatorFile struct {
	Family     schema.Family                `yaml:"family" validate:"required"`
	Indicators []schema.IndicatorDefinition `yaml:"indicators" validate:"required,min=1,dive"`
}

// LoadIndicators reads indicator definitions for a family. An empty path
// returns the family's built-in definitions.
func LoadIndicators(path string, f schema.Family) ([]schema.IndicatorDefinition, error) {
	if path == "" {
		defs := schema.GetDefaultIndicators(f)
		if len(defs) == 0 {
			return nil, fmt.Errorf("%w: no built-in indicators for family %q", schema.ErrConfig, f)
		}
		return defs, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading indicators: %w", err)
	}
	return ReadIndicators(bytes.NewReader(data), f)
}

// ReadIndicators decodes and validates an indicator definition file.
func ReadIndicators(r io.Reader, f schema.Family) ([]schema.IndicatorDefinition, error) {
	var file IndicatorFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: decoding indicators: %w", schema.ErrConfig, err)
	}
	if err := checkStruct("indicators", file); err != nil {
		return nil, err
	}
	if file.Family != f {
		return nil, fmt.Errorf("%w: indicator file is for family %q, want %q", schema.ErrConfig, file.Family, f)
	}
	if err := algo.ValidateDefinitions(f, file.Indicators); err != nil {
		return nil, err
	}
	return file.Indicators, nil
}

package feed

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/huangsam/macindex/schema"
	"gopkg.in/yaml.v3"
)

//go:embed catalog/*.yaml
var catalogFS embed.FS

// ScenarioFile is the on-disk layout of a scenario catalog.
type ScenarioFile struct {
	Family    schema.Family     `yaml:"family" validate:"required"`
	Scenarios []schema.Scenario `yaml:"scenarios" validate:"required,min=1,dive"`
}

// LoadScenarios reads a scenario catalog. An empty path returns the
// family's built-in catalog.
func LoadScenarios(path string, f schema.Family) ([]schema.Scenario, error) {
	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = catalogFS.ReadFile(fmt.Sprintf("catalog/%s_scenarios.yaml", f))
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading scenarios: %w", err)
	}
	return ReadScenarios(bytes.NewReader(data), f)
}

// ReadScenarios decodes and validates a scenario catalog, sorted by start date.
func ReadScenarios(r io.Reader, f schema.Family) ([]schema.Scenario, error) {
	var file ScenarioFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: decoding scenarios: %w", schema.ErrConfig, err)
	}
	if err := checkStruct("scenarios", file); err != nil {
		return nil, err
	}
	if file.Family != f {
		return nil, fmt.Errorf("%w: scenario file is for family %q, want %q", schema.ErrConfig, file.Family, f)
	}
	if err := validateScenarios(f, file.Scenarios); err != nil {
		return nil, err
	}

	out := file.Scenarios
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func validateScenarios(f schema.Family, scenarios []schema.Scenario) error {
	profile, _ := schema.GetProfile(f)
	seen := make(map[string]bool, len(scenarios))
	for _, s := range scenarios {
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate scenario %q", schema.ErrConfig, s.ID)
		}
		seen[s.ID] = true
		if !s.End.IsZero() && s.End.Before(s.Start) {
			return fmt.Errorf("%w: scenario %s ends before it starts", schema.ErrConfig, s.ID)
		}
		if !s.ResolvedAt.IsZero() && s.ResolvedAt.Before(s.Finish()) {
			return fmt.Errorf("%w: scenario %s resolves before it ends", schema.ErrConfig, s.ID)
		}
		if _, ok := s.Target(); !ok {
			return fmt.Errorf("%w: scenario %s has no severity, rubric or expected range", schema.ErrConfig, s.ID)
		}
		for p := range s.Pillars {
			if !profile.HasPillar(p) {
				return fmt.Errorf("%w: scenario %s scores pillar %q outside family %s", schema.ErrConfig, s.ID, p, f)
			}
		}
	}
	return nil
}

// Package fixture provides the source template that stands in for a parsed
// document batch, and the default processing stage table.
package fixture

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rcliao/qa-validator/internal/model"
	"github.com/rcliao/qa-validator/internal/pipeline"
)

//go:embed data/*.yaml
var dataFS embed.FS

// Template returns the embedded source template.
func Template() (model.Fragment, error) {
	data, err := dataFS.ReadFile("data/template.yaml")
	if err != nil {
		return model.Fragment{}, fmt.Errorf("read embedded template: %w", err)
	}
	return ParseFragment(data)
}

// LoadTemplate reads a fragment from a YAML (or JSON) file on disk.
func LoadTemplate(path string) (model.Fragment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Fragment{}, fmt.Errorf("read template %s: %w", path, err)
	}
	f, err := ParseFragment(data)
	if err != nil {
		return model.Fragment{}, fmt.Errorf("template %s: %w", path, err)
	}
	return f, nil
}

// ParseFragment decodes a fragment and checks its enumerated fields.
func ParseFragment(data []byte) (model.Fragment, error) {
	var f model.Fragment
	if err := yaml.Unmarshal(data, &f); err != nil {
		return model.Fragment{}, fmt.Errorf("parse fragment: %w", err)
	}
	if err := validate(f); err != nil {
		return model.Fragment{}, err
	}
	return f, nil
}

// Stages returns the embedded processing stage table.
func Stages() ([]pipeline.Stage, error) {
	data, err := dataFS.ReadFile("data/stages.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded stages: %w", err)
	}
	var stages []pipeline.Stage
	if err := yaml.Unmarshal(data, &stages); err != nil {
		return nil, fmt.Errorf("parse stages: %w", err)
	}
	return stages, nil
}

// validate rejects values outside the allowed enumerations. Identifier
// references are deliberately not checked.
func validate(f model.Fragment) error {
	for _, r := range f.Requirements {
		if r.ID == "" {
			return fmt.Errorf("requirement with empty id")
		}
		if !model.ValidRequirementTypes[r.Type] {
			return fmt.Errorf("requirement %s: invalid type %q", r.ID, r.Type)
		}
		if !model.ValidPriorities[r.Priority] {
			return fmt.Errorf("requirement %s: invalid priority %q", r.ID, r.Priority)
		}
		if !model.ValidRequirementStatuses[r.Status] {
			return fmt.Errorf("requirement %s: invalid status %q", r.ID, r.Status)
		}
	}
	for _, tc := range f.TestCases {
		if tc.ID == "" {
			return fmt.Errorf("test case with empty id")
		}
		if !model.ValidTestCaseTypes[tc.Type] {
			return fmt.Errorf("test case %s: invalid type %q", tc.ID, tc.Type)
		}
		if !model.ValidPriorities[tc.Priority] {
			return fmt.Errorf("test case %s: invalid priority %q", tc.ID, tc.Priority)
		}
		if !model.ValidTestCaseStatuses[tc.Status] {
			return fmt.Errorf("test case %s: invalid status %q", tc.ID, tc.Status)
		}
	}
	for _, l := range f.Links {
		if !model.ValidCoverages[l.Coverage] {
			return fmt.Errorf("link %s: invalid coverage %q", l.RequirementID, l.Coverage)
		}
	}
	return nil
}

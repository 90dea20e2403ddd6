// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package synth

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// FormatVersion is the only CloudFormation template format version.
const FormatVersion = "2010-09-09"

// Resource is one entry of the Resources section.
type Resource struct {
	Type       string         `json:"Type"`
	DependsOn  []string       `json:"DependsOn,omitempty"`
	Properties map[string]any `json:"Properties"`
}

// Output is one entry of the Outputs section.
type Output struct {
	Description string `json:"Description,omitempty"`
	Value       any    `json:"Value"`
}

// Template is a CloudFormation template.
type Template struct {
	AWSTemplateFormatVersion string              `json:"AWSTemplateFormatVersion"`
	Description              string              `json:"Description,omitempty"`
	Resources                map[string]Resource `json:"Resources"`
	Outputs                  map[string]Output   `json:"Outputs,omitempty"`
}

func newTemplate(description string) *Template {
	return &Template{
		AWSTemplateFormatVersion: FormatVersion,
		Description:              description,
		Resources:                map[string]Resource{},
		Outputs:                  map[string]Output{},
	}
}

func (t *Template) add(logicalID string, r Resource) {
	t.Resources[logicalID] = r
}

// JSON renders the template as indented JSON. Map keys are sorted so the
// output is stable across runs.
func (t *Template) JSON() ([]byte, error) {
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}
	return append(b, '\n'), nil
}

// YAML renders the template as YAML. Intrinsic functions keep their long
// Fn:: form.
func (t *Template) YAML() ([]byte, error) {
	b, err := t.JSON()
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}
	return out, nil
}

// Query returns the value at a gjson path, e.g.
// "Resources.Pipeline.Properties.Stages.#.Name".
func (t *Template) Query(path string) (gjson.Result, error) {
	b, err := t.JSON()
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.GetBytes(b, path), nil
}

func ref(logicalID string) map[string]any {
	return map[string]any{"Ref": logicalID}
}

func getAtt(logicalID, attr string) map[string]any {
	return map[string]any{"Fn::GetAtt": []string{logicalID, attr}}
}

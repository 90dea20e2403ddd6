// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

// Package buildspec models the CodeBuild build spec of the release stage: an
// ordered, fail-fast list of shell steps grouped into phases. It renders the
// YAML CodeBuild consumes and can rehearse the same steps locally.
package buildspec

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Version is the build spec schema version CodeBuild expects.
const Version = "0.2"

// Phase is a CodeBuild build phase. Phases run in the order declared here.
type Phase string

const (
	PhaseInstall  Phase = "install"
	PhasePreBuild Phase = "pre_build"
	PhaseBuild    Phase = "build"
)

var phaseOrder = []Phase{PhaseInstall, PhasePreBuild, PhaseBuild}

// Step is one named unit of the build. Its commands run in order and a
// non-zero exit of any of them fails the step.
type Step struct {
	Name     string
	Phase    Phase
	Commands []string
}

// Spec is a complete build spec.
type Spec struct {
	// RuntimeVersions is passed to the install phase, e.g. nodejs: "20".
	RuntimeVersions map[string]string
	// Variables are plain, non-secret environment variables.
	Variables map[string]string
	// GitCredentialHelper lets git reuse the source connection's credentials.
	GitCredentialHelper bool
	Steps               []Step
}

type document struct {
	Version string     `yaml:"version"`
	Env     *envDoc    `yaml:"env,omitempty"`
	Phases  phasesDocs `yaml:"phases"`
}

type envDoc struct {
	GitCredentialHelper string            `yaml:"git-credential-helper,omitempty"`
	Variables           map[string]string `yaml:"variables,omitempty"`
}

type phasesDocs struct {
	Install  *phaseDoc `yaml:"install,omitempty"`
	PreBuild *phaseDoc `yaml:"pre_build,omitempty"`
	Build    *phaseDoc `yaml:"build,omitempty"`
}

type phaseDoc struct {
	OnFailure       string            `yaml:"on-failure"`
	RuntimeVersions map[string]string `yaml:"runtime-versions,omitempty"`
	Commands        []string          `yaml:"commands"`
}

// Commands flattens the steps into the command order CodeBuild will run.
func (s Spec) Commands() []string {
	var commands []string
	for _, phase := range phaseOrder {
		for _, step := range s.Steps {
			if step.Phase == phase {
				commands = append(commands, step.Commands...)
			}
		}
	}
	return commands
}

// Ordered returns the steps sorted by phase, keeping declaration order within
// a phase.
func (s Spec) Ordered() []Step {
	ordered := make([]Step, 0, len(s.Steps))
	for _, phase := range phaseOrder {
		for _, step := range s.Steps {
			if step.Phase == phase {
				ordered = append(ordered, step)
			}
		}
	}
	return ordered
}

// Validate rejects steps with no commands or an unknown phase.
func (s Spec) Validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("build spec has no steps")
	}
	for _, step := range s.Steps {
		known := false
		for _, p := range phaseOrder {
			if step.Phase == p {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("step %q: unknown phase %q", step.Name, step.Phase)
		}
		if len(step.Commands) == 0 {
			return fmt.Errorf("step %q has no commands", step.Name)
		}
		for _, c := range step.Commands {
			if strings.TrimSpace(c) == "" {
				return fmt.Errorf("step %q has an empty command", step.Name)
			}
		}
	}
	return nil
}

// Render returns the build spec YAML. Every phase aborts on failure so the
// first failing command ends the build.
func (s Spec) Render() (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}

	doc := document{Version: Version}
	if s.GitCredentialHelper || len(s.Variables) > 0 {
		doc.Env = &envDoc{Variables: s.Variables}
		if s.GitCredentialHelper {
			doc.Env.GitCredentialHelper = "yes"
		}
	}

	for _, phase := range phaseOrder {
		var commands []string
		for _, step := range s.Steps {
			if step.Phase == phase {
				commands = append(commands, step.Commands...)
			}
		}
		if len(commands) == 0 {
			continue
		}

		pd := &phaseDoc{OnFailure: "ABORT", Commands: commands}
		switch phase {
		case PhaseInstall:
			pd.RuntimeVersions = s.RuntimeVersions
			doc.Phases.Install = pd
		case PhasePreBuild:
			doc.Phases.PreBuild = pd
		case PhaseBuild:
			doc.Phases.Build = pd
		}
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to render build spec: %w", err)
	}
	return string(out), nil
}

// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

// Package pipeline models the two-stage release pipeline: a Source stage fed
// by a CodeStar connection and a Build stage running the release build.
package pipeline

import (
	"errors"
	"fmt"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid pipeline")

const (
	SourceStage = "Source"
	BuildStage  = "Build"

	SourceActionName = "GitHub_Source"
	BuildActionName  = "Build_And_Publish"

	// SourceArtifact is the handle passed from Source to Build.
	SourceArtifact = "SourceOutput"
)

// ActionType identifies the provider behind an action.
type ActionType struct {
	Category string `json:"Category" yaml:"Category"`
	Owner    string `json:"Owner" yaml:"Owner"`
	Provider string `json:"Provider" yaml:"Provider"`
	Version  string `json:"Version" yaml:"Version"`
}

// Action is one step of a stage.
type Action interface {
	Name() string
	Type() ActionType
	Inputs() []string
	Outputs() []string
	Configuration() map[string]any
}

// SourceAction produces the source artifact on every push to Branch.
type SourceAction struct {
	// ConnectionARN is a literal ARN or a template expression resolving to one.
	ConnectionARN any
	RepositoryID  string
	Branch        string
	// FullClone hands CodeBuild a git clone so the exact commit and the tag
	// history are available.
	FullClone bool
	Output    string
}

func (a SourceAction) Name() string { return SourceActionName }

func (a SourceAction) Type() ActionType {
	return ActionType{Category: "Source", Owner: "AWS", Provider: "CodeStarSourceConnection", Version: "1"}
}

func (a SourceAction) Inputs() []string  { return nil }
func (a SourceAction) Outputs() []string { return []string{a.Output} }

func (a SourceAction) Configuration() map[string]any {
	format := "CODE_ZIP"
	if a.FullClone {
		format = "CODEBUILD_CLONE_REF"
	}
	return map[string]any{
		"ConnectionArn":        a.ConnectionARN,
		"FullRepositoryId":     a.RepositoryID,
		"BranchName":           a.Branch,
		"OutputArtifactFormat": format,
		"DetectChanges":        true,
	}
}

// BuildAction runs the build project over the source artifact.
type BuildAction struct {
	// Project is the project name or a template reference to it.
	Project any
	Input   string
}

func (a BuildAction) Name() string { return BuildActionName }

func (a BuildAction) Type() ActionType {
	return ActionType{Category: "Build", Owner: "AWS", Provider: "CodeBuild", Version: "1"}
}

func (a BuildAction) Inputs() []string  { return []string{a.Input} }
func (a BuildAction) Outputs() []string { return nil }

func (a BuildAction) Configuration() map[string]any {
	return map[string]any{"ProjectName": a.Project}
}

// Stage is a named phase holding its actions.
type Stage struct {
	Name    string
	Actions []Action
}

// Pipeline is an ordered list of stages.
type Pipeline struct {
	Name   string
	Stages []Stage
}

// New returns the Source then Build pipeline wired through SourceArtifact.
func New(name string, source SourceAction, build BuildAction) Pipeline {
	source.Output = SourceArtifact
	build.Input = SourceArtifact
	return Pipeline{
		Name: name,
		Stages: []Stage{
			{Name: SourceStage, Actions: []Action{source}},
			{Name: BuildStage, Actions: []Action{build}},
		},
	}
}

// Validate enforces the shape the release relies on: exactly Source then
// Build, one action each, and the source artifact produced once and consumed
// exactly once by the build.
func (p Pipeline) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: no name", ErrInvalid)
	}
	if len(p.Stages) != 2 {
		return fmt.Errorf("%w: want 2 stages, got %d", ErrInvalid, len(p.Stages))
	}
	if p.Stages[0].Name != SourceStage || p.Stages[1].Name != BuildStage {
		return fmt.Errorf("%w: stages must be %s then %s, got %s then %s",
			ErrInvalid, SourceStage, BuildStage, p.Stages[0].Name, p.Stages[1].Name)
	}

	produced := map[string]int{}
	consumed := map[string]int{}
	for _, stage := range p.Stages {
		if len(stage.Actions) != 1 {
			return fmt.Errorf("%w: stage %s has %d actions, want 1", ErrInvalid, stage.Name, len(stage.Actions))
		}
		for _, a := range stage.Actions {
			for _, o := range a.Outputs() {
				produced[o]++
			}
			for _, i := range a.Inputs() {
				if produced[i] == 0 {
					return fmt.Errorf("%w: %s consumes %s before it is produced", ErrInvalid, a.Name(), i)
				}
				consumed[i]++
			}
		}
	}

	if _, ok := p.Stages[0].Actions[0].(SourceAction); !ok {
		return fmt.Errorf("%w: %s stage must hold a source action", ErrInvalid, SourceStage)
	}
	if _, ok := p.Stages[1].Actions[0].(BuildAction); !ok {
		return fmt.Errorf("%w: %s stage must hold a build action", ErrInvalid, BuildStage)
	}

	for artifact, n := range produced {
		if n != 1 {
			return fmt.Errorf("%w: artifact %s produced %d times", ErrInvalid, artifact, n)
		}
		if consumed[artifact] != 1 {
			return fmt.Errorf("%w: artifact %s consumed %d times, want 1", ErrInvalid, artifact, consumed[artifact])
		}
	}
	return nil
}

// Source returns the source action, if the first stage holds one.
func (p Pipeline) Source() (SourceAction, bool) {
	if len(p.Stages) == 0 || len(p.Stages[0].Actions) == 0 {
		return SourceAction{}, false
	}
	a, ok := p.Stages[0].Actions[0].(SourceAction)
	return a, ok
}

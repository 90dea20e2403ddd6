// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

// Package status reports where a deployed release pipeline stands.
package status

import (
	"context"
	"fmt"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline/types"
	"github.com/dustin/go-humanize"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/log"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/pipeline"
)

// API is the slice of the CodePipeline client used here.
type API interface {
	GetPipelineState(ctx context.Context, in *codepipeline.GetPipelineStateInput, optFns ...func(*codepipeline.Options)) (*codepipeline.GetPipelineStateOutput, error)
	ListPipelineExecutions(ctx context.Context, in *codepipeline.ListPipelineExecutionsInput, optFns ...func(*codepipeline.Options)) (*codepipeline.ListPipelineExecutionsOutput, error)
}

var now = time.Now

// Stage is the latest result of one stage.
type Stage struct {
	Name    string    `json:"stage" yaml:"stage"`
	Status  string    `json:"status" yaml:"status"`
	Action  string    `json:"action" yaml:"action"`
	Summary string    `json:"summary,omitempty" yaml:"summary,omitempty"`
	Changed time.Time `json:"changed" yaml:"changed"`
}

// Execution is one recent pipeline run.
type Execution struct {
	ID       string    `json:"id" yaml:"id"`
	Status   string    `json:"status" yaml:"status"`
	Revision string    `json:"revision,omitempty" yaml:"revision,omitempty"`
	Started  time.Time `json:"started" yaml:"started"`
}

// Report is the state of a pipeline.
type Report struct {
	Pipeline   string         `json:"pipeline" yaml:"pipeline"`
	State      pipeline.State `json:"state" yaml:"state"`
	Stages     []Stage        `json:"stages" yaml:"stages"`
	Executions []Execution    `json:"executions" yaml:"executions"`
}

// Fetch reads the current stage states and the last limit executions of the
// pipeline named name.
func Fetch(ctx context.Context, client API, name string, limit int32) (Report, error) {
	report := Report{Pipeline: name}

	state, err := client.GetPipelineState(ctx, &codepipeline.GetPipelineStateInput{Name: awsv2.String(name)})
	if err != nil {
		return report, fmt.Errorf("failed to get state of pipeline %s: %w", name, err)
	}

	var results []pipeline.StageResult
	for _, s := range state.StageStates {
		stage := Stage{Name: awsv2.ToString(s.StageName)}
		if s.LatestExecution != nil {
			stage.Status = string(s.LatestExecution.Status)
		}
		for _, a := range s.ActionStates {
			stage.Action = awsv2.ToString(a.ActionName)
			if e := a.LatestExecution; e != nil {
				stage.Summary = awsv2.ToString(e.Summary)
				if e.LastStatusChange != nil {
					stage.Changed = *e.LastStatusChange
				}
			}
		}
		report.Stages = append(report.Stages, stage)
		results = append(results, pipeline.StageResult{Stage: stage.Name, Status: stage.Status})
	}
	report.State = pipeline.Outcome(results)

	if limit > 0 {
		execs, err := client.ListPipelineExecutions(ctx, &codepipeline.ListPipelineExecutionsInput{
			PipelineName: awsv2.String(name),
			MaxResults:   awsv2.Int32(limit),
		})
		if err != nil {
			return report, fmt.Errorf("failed to list executions of pipeline %s: %w", name, err)
		}
		for _, e := range execs.PipelineExecutionSummaries {
			report.Executions = append(report.Executions, execution(e))
		}
	}

	log.Debugf("pipeline status: name=%s state=%s stages=%d executions=%d", name, report.State, len(report.Stages), len(report.Executions))
	return report, nil
}

func execution(e types.PipelineExecutionSummary) Execution {
	out := Execution{
		ID:     awsv2.ToString(e.PipelineExecutionId),
		Status: string(e.Status),
	}
	if e.StartTime != nil {
		out.Started = *e.StartTime
	}
	for _, r := range e.SourceRevisions {
		if awsv2.ToString(r.ActionName) == pipeline.SourceActionName {
			out.Revision = shortRevision(awsv2.ToString(r.RevisionId))
		}
	}
	return out
}

func shortRevision(id string) string {
	if len(id) > 7 {
		return id[:7]
	}
	return id
}

// Ago renders t relative to now, or "-" for the zero time.
func Ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.RelTime(t, now(), "ago", "from now")
}

// StageRows flattens the stages for tabular output.
func (r Report) StageRows() []map[string]any {
	rows := make([]map[string]any, 0, len(r.Stages))
	for _, s := range r.Stages {
		rows = append(rows, map[string]any{
			"stage":   s.Name,
			"status":  s.Status,
			"action":  s.Action,
			"changed": Ago(s.Changed),
			"summary": s.Summary,
		})
	}
	return rows
}

// ExecutionRows flattens the executions for tabular output.
func (r Report) ExecutionRows() []map[string]any {
	rows := make([]map[string]any, 0, len(r.Executions))
	for _, e := range r.Executions {
		rows = append(rows, map[string]any{
			"id":       e.ID,
			"status":   e.Status,
			"revision": e.Revision,
			"started":  Ago(e.Started),
		})
	}
	return rows
}

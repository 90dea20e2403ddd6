// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package buildspec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/log"
)

// ErrStepFailed wraps the error of the step that ended a run.
var ErrStepFailed = errors.New("build step failed")

// Status is the outcome of one step.
type Status string

const (
	StatusSucceeded Status = "Succeeded"
	StatusFailed    Status = "Failed"
	StatusSkipped   Status = "Skipped"
)

// StepResult records what happened to a step.
type StepResult struct {
	Name     string        `json:"name" yaml:"name"`
	Phase    Phase         `json:"phase" yaml:"phase"`
	Status   Status        `json:"status" yaml:"status"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// ExecFunc runs a single shell command.
type ExecFunc func(ctx context.Context, dir string, env []string, stdout, stderr io.Writer, command string) error

// Runner rehearses a Spec on the local machine.
type Runner struct {
	Dir    string
	Env    map[string]string
	Stdout io.Writer
	Stderr io.Writer
	// Exec defaults to running the command with sh -c.
	Exec ExecFunc
}

// Run executes the steps phase by phase in declaration order. The first
// failing command aborts the run; every later step is reported as skipped.
func (r *Runner) Run(ctx context.Context, spec Spec) ([]StepResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	execFn := r.Exec
	if execFn == nil {
		execFn = shellExec
	}
	stdout, stderr := r.Stdout, r.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	env := r.environ(spec)

	steps := spec.Ordered()
	results := make([]StepResult, 0, len(steps))
	var runErr error

	for _, step := range steps {
		result := StepResult{Name: step.Name, Phase: step.Phase}
		if runErr != nil {
			result.Status = StatusSkipped
			results = append(results, result)
			continue
		}

		start := time.Now()
		for _, command := range step.Commands {
			if err := ctx.Err(); err != nil {
				runErr = fmt.Errorf("%w: %s: %w", ErrStepFailed, step.Name, err)
				break
			}
			log.Debugf("running step=%s command=%q", step.Name, command)
			if err := execFn(ctx, r.Dir, env, stdout, stderr, command); err != nil {
				runErr = fmt.Errorf("%w: %s: %w", ErrStepFailed, step.Name, err)
				break
			}
		}
		result.Duration = time.Since(start)

		if runErr != nil {
			result.Status = StatusFailed
			result.Error = runErr.Error()
			log.Debugf("step failed: step=%s err=%v", step.Name, runErr)
		} else {
			result.Status = StatusSucceeded
		}
		results = append(results, result)
	}

	return results, runErr
}

// environ layers the build spec's plain variables and the runner's overrides on
// top of the process environment.
func (r *Runner) environ(spec Spec) []string {
	env := os.Environ()
	keys := make([]string, 0, len(spec.Variables))
	for k := range spec.Variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+spec.Variables[k])
	}

	keys = keys[:0]
	for k := range r.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+r.Env[k])
	}
	return env
}

func shellExec(ctx context.Context, dir string, env []string, stdout, stderr io.Writer, command string) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

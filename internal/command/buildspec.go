// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/buildspec"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/log"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/meta"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/output"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/synth"
)

var stepColumns = []output.Column{
	{Key: "step", Title: "STEP"},
	{Key: "phase", Title: "PHASE"},
	{Key: "status", Title: "STATUS"},
	{Key: "duration", Title: "DURATION"},
	{Key: "error", Title: "ERROR"},
}

var checkColumns = []output.Column{
	{Key: "check", Title: "CHECK"},
	{Key: "result", Title: "RESULT"},
}

// commandOutput runs a command in dir and returns its stdout. Tests replace it.
var commandOutput = func(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	c := exec.CommandContext(ctx, name, args...)
	c.Dir = dir
	var stderr bytes.Buffer
	c.Stderr = &stderr
	out, err := c.Output()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// runnerExec runs rehearsal commands; nil means a real shell. Tests replace it.
var runnerExec buildspec.ExecFunc

func buildspecCommandAction(ctx context.Context, cmd *cli.Command) error {
	s, err := loadStack(cmd)
	if err != nil {
		return err
	}
	spec := synth.BuildSpec(s)

	switch {
	case cmd.Bool("check"):
		return releaseCheck(ctx, cmd)
	case cmd.Bool("run"):
		return rehearse(ctx, cmd, spec)
	default:
		body, err := spec.Render()
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(writer(cmd), body)
		return err
	}
}

// rehearse runs the build steps against a local checkout.
func rehearse(ctx context.Context, cmd *cli.Command, spec buildspec.Spec) error {
	skip := cmd.StringSlice("skip")
	steps := spec.Steps[:0:0]
	for _, step := range spec.Steps {
		if !slices.Contains(skip, step.Name) {
			steps = append(steps, step)
		}
	}
	spec.Steps = steps

	env := map[string]string{}
	for _, pair := range cmd.StringSlice("env") {
		k, v, _ := strings.Cut(pair, "=")
		env[k] = v
	}

	r := &buildspec.Runner{
		Dir:    cmd.String("dir"),
		Env:    env,
		Stdout: cmd.Root().ErrWriter,
		Stderr: cmd.Root().ErrWriter,
		Exec:   runnerExec,
	}
	if r.Stdout == nil {
		r.Stdout, r.Stderr = os.Stderr, os.Stderr
	}

	results, runErr := r.Run(ctx, spec)
	rows := make([]map[string]any, 0, len(results))
	for _, res := range results {
		rows = append(rows, map[string]any{
			"step":     res.Name,
			"phase":    string(res.Phase),
			"status":   string(res.Status),
			"duration": res.Duration.Round(time.Millisecond).String(),
			"error":    res.Error,
		})
	}
	if err := output.Write(writer(cmd), rows, stepColumns, outputOptions(cmd)); err != nil {
		return err
	}
	return runErr
}

// releaseCheck verifies, without changing anything, that package.json
// carries the latest tagged version and that the version is not already in
// the registry.
func releaseCheck(ctx context.Context, cmd *cli.Command) error {
	dir := cmd.String("dir")

	raw, err := commandOutput(ctx, dir, "git", "tag", "--merged", "HEAD")
	if err != nil {
		return err
	}
	tags := strings.Fields(string(raw))
	want, err := buildspec.VersionFromTags(tags)
	if err != nil {
		return err
	}

	name, err := buildspec.PackageName(dir)
	if err != nil {
		return err
	}
	pkg, err := buildspec.PackageVersion(dir)
	if err != nil {
		return err
	}

	raw, err = commandOutput(ctx, dir, "npm", "view", name, "versions", "--json")
	switch {
	case buildspec.NotInRegistry(raw, err):
		log.Debugf("%s is not in the registry yet", name)
		raw = nil
	case err != nil:
		return fmt.Errorf("failed to list published versions of %s: %w", name, err)
	}
	published, err := buildspec.PublishedVersions(raw)
	if err != nil {
		return err
	}

	versionErr := buildspec.CheckVersion(pkg, tags)
	publishErr := buildspec.CheckPublishable(want, published)
	rows := []map[string]any{
		{"check": "latest tag", "result": want},
		{"check": "package.json", "result": pkg},
		{"check": "version matches tag", "result": checkResult(versionErr)},
		{"check": "published versions", "result": fmt.Sprintf("%d", len(published))},
		{"check": "publishable", "result": checkResult(publishErr)},
	}

	if err := output.Write(writer(cmd), rows, checkColumns, outputOptions(cmd)); err != nil {
		return err
	}
	return errors.Join(versionErr, publishErr)
}

func checkResult(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}

func buildspecCommandBuilder(meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "buildspec",
		Usage:     "print, check or rehearse the release build of a stack",
		UsageText: "npmpipe buildspec [STACK] [--check | --run] [options]",
		ArgsUsage: "[STACK]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "run",
				Usage: "run the steps locally against --dir",
			},
			&cli.BoolFlag{
				Name:  "check",
				Usage: "check the latest tag of --dir is publishable",
			},
			&cli.StringFlag{
				Name:  "dir",
				Usage: "package checkout to check or rehearse in",
				Value: ".",
			},
			&cli.StringSliceFlag{
				Name:  "skip",
				Usage: "step to leave out of a rehearsal, e.g. publish",
			},
			&cli.StringSliceFlag{
				Name:  "env",
				Usage: "KEY=VALUE added to the rehearsal environment",
				Validator: func(values []string) error {
					for _, v := range values {
						if err := FlagValidators(v, EnvPairValidator); err != nil {
							return err
						}
					}
					return nil
				},
			},
		},
		Action: buildspecCommandAction,
		Meta:   meta,
	}).Build()
}

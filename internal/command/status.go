// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/meta"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/output"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/status"
)

var stageColumns = []output.Column{
	{Key: "stage", Title: "STAGE"},
	{Key: "status", Title: "STATUS"},
	{Key: "action", Title: "ACTION"},
	{Key: "changed", Title: "CHANGED"},
	{Key: "summary", Title: "SUMMARY"},
}

var executionColumns = []output.Column{
	{Key: "id", Title: "EXECUTION"},
	{Key: "status", Title: "STATUS"},
	{Key: "revision", Title: "REVISION"},
	{Key: "started", Title: "STARTED"},
}

func statusCommandAction(ctx context.Context, cmd *cli.Command) error {
	s, err := loadStack(cmd)
	if err != nil {
		return err
	}
	cfg, err := awsConfig(ctx, cmd, s)
	if err != nil {
		return err
	}

	report, err := status.Fetch(ctx, newServices(cfg).CodePipeline, s.PipelineName, int32(cmd.Int("limit")))
	if err != nil {
		return err
	}

	w := writer(cmd)
	opts := outputOptions(cmd)
	switch opts.Format {
	case output.FormatJSON, output.FormatYAML:
		return output.Write(w, []map[string]any{{
			"pipeline":   report.Pipeline,
			"state":      string(report.State),
			"stages":     report.Stages,
			"executions": report.Executions,
		}}, nil, opts)
	}

	fmt.Fprintf(w, "%s (%s)\n\n", report.Pipeline, report.State)
	if err := output.Write(w, report.StageRows(), stageColumns, opts); err != nil {
		return err
	}
	if len(report.Executions) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	return output.Write(w, report.ExecutionRows(), executionColumns, opts)
}

func statusCommandBuilder(meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "status",
		Usage:     "show where the release pipeline of a stack stands",
		UsageText: "npmpipe status [STACK] [options]",
		ArgsUsage: "[STACK]",
		AWS:       true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "recent executions to list, 0 for none",
				Value: 5,
			},
		},
		Action: statusCommandAction,
		Meta:   meta,
	}).Build()
}

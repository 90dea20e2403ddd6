// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/iam"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/meta"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/output"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/synth"
)

var auditColumns = []output.Column{
	{Key: "policy", Title: "POLICY"},
	{Key: "sid", Title: "SID"},
	{Key: "message", Title: "FINDING"},
}

var actionColumns = []output.Column{
	{Key: "policy", Title: "POLICY"},
	{Key: "action", Title: "ACTION"},
}

func auditCommandAction(ctx context.Context, cmd *cli.Command) error {
	var body []byte
	if path := cmd.String("template"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read template: %w", err)
		}
		body = b
	} else {
		s, err := loadStack(cmd)
		if err != nil {
			return err
		}
		tmpl, err := synth.Synthesize(s)
		if err != nil {
			return err
		}
		if body, err = tmpl.JSON(); err != nil {
			return err
		}
	}

	w := writer(cmd)
	opts := outputOptions(cmd)

	if cmd.Bool("actions") {
		var rows []map[string]any
		for _, policy := range []string{synth.BuildRolePolicyID, synth.PipelineRolePolicyID} {
			for _, a := range iam.TemplateActions(body, policy) {
				rows = append(rows, map[string]any{"policy": policy, "action": a})
			}
		}
		return output.Write(w, rows, actionColumns, opts)
	}

	findings, err := iam.AuditTemplate(body)
	if err != nil {
		return err
	}
	if len(findings) == 0 && (opts.Format == output.FormatText || opts.Format == "") {
		fmt.Fprintln(w, "No least-privilege findings.")
		return nil
	}

	rows := make([]map[string]any, 0, len(findings))
	for _, f := range findings {
		rows = append(rows, map[string]any{"policy": f.Policy, "sid": f.Sid, "message": f.Message})
	}
	if err := output.Write(w, rows, auditColumns, opts); err != nil {
		return err
	}
	if len(findings) > 0 {
		return fmt.Errorf("%d least-privilege finding(s)", len(findings))
	}
	return nil
}

func auditCommandBuilder(meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "audit",
		Usage:     "check the pipeline's IAM policies for least privilege",
		UsageText: "npmpipe audit [STACK] [options]",
		ArgsUsage: "[STACK]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "template",
				Usage: "audit a rendered template file instead of a stack",
			},
			&cli.BoolFlag{
				Name:  "actions",
				Usage: "list the actions each role is granted",
			},
		},
		Action: auditCommandAction,
		Meta:   meta,
	}).Build()
}

// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/meta"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/output"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/stackfile"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/synth"
)

func synthCommandAction(ctx context.Context, cmd *cli.Command) error {
	stacks, err := loadStacks(cmd)
	if err != nil {
		return err
	}

	// With --dir every stack, or the named one, is written to disk.
	if dir := cmd.String("dir"); dir != "" {
		targets := stacks
		if name := cmd.Args().First(); name != "" {
			s, err := stackfile.Find(stacks, name)
			if err != nil {
				return err
			}
			targets = []stackfile.Stack{s}
		}
		paths, err := synth.SynthesizeAll(ctx, targets, dir)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintln(writer(cmd), p)
		}
		return nil
	}

	s, err := selectStack(cmd, stacks)
	if err != nil {
		return err
	}
	tmpl, err := synth.Synthesize(s)
	if err != nil {
		return err
	}

	var body []byte
	if cmd.String("output") == output.FormatYAML {
		body, err = tmpl.YAML()
	} else {
		body, err = tmpl.JSON()
	}
	if err != nil {
		return err
	}
	_, err = writer(cmd).Write(body)
	return err
}

func synthCommandBuilder(meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "synth",
		Usage:     "synthesize the CloudFormation template of a stack",
		UsageText: "npmpipe synth [STACK] [options]",
		ArgsUsage: "[STACK]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "write <stack>.template.json files into this directory",
			},
		},
		Action: synthCommandAction,
		Meta:   meta,
	}).Build()
}

// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/cacheutil"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/deploy"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/differ"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/log"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/meta"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/stackfile"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/synth"
)

// emptyTemplate stands in for a stack that has never been deployed.
var emptyTemplate = []byte("{}")

func diffCommandAction(ctx context.Context, cmd *cli.Command) error {
	s, err := loadStack(cmd)
	if err != nil {
		return err
	}
	tmpl, err := synth.Synthesize(s)
	if err != nil {
		return err
	}
	body, err := tmpl.JSON()
	if err != nil {
		return err
	}

	deployed, err := deployedTemplate(ctx, cmd, s)
	if err != nil {
		return err
	}

	_, err = differ.Diff(writer(cmd), deployed, body, differ.Options{
		Ignore:   cmd.StringSlice("ignore"),
		Coloring: cmd.Bool("color"),
	})
	return err
}

// deployedTemplate returns the live template of s, or the copy cached by the
// last deploy when --offline is set.
func deployedTemplate(ctx context.Context, cmd *cli.Command, s stackfile.Stack) ([]byte, error) {
	cfg, err := awsConfig(ctx, cmd, s)
	if err != nil {
		return nil, err
	}

	if cmd.Bool("offline") {
		entry, ok := cacheutil.Read(cacheutil.TemplatesDir, templateCacheKey(cfg, s))
		if !ok {
			log.Warnf("no cached template for %s in %s, comparing against an empty one", s.StackName, cfg.Region)
			return emptyTemplate, nil
		}
		return entry.Data, nil
	}
	d := &deploy.Deployer{CloudFormation: newServices(cfg).CloudFormation}
	body, err := d.Fetch(ctx, s.StackName)
	if errors.Is(err, deploy.ErrNotDeployed) {
		log.Warnf("stack %s is not deployed, comparing against an empty template", s.StackName)
		return emptyTemplate, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deployed template: %w", err)
	}
	return body, nil
}

func diffCommandBuilder(meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "diff",
		Usage:     "compare the deployed template of a stack with a fresh synthesis",
		UsageText: "npmpipe diff [STACK] [options]",
		ArgsUsage: "[STACK]",
		AWS:       true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "offline",
				Usage: "compare with the template cached by the last deploy",
			},
			&cli.StringSliceFlag{
				Name:  "ignore",
				Usage: "top-level template key to leave out, e.g. Description",
			},
		},
		Action: diffCommandAction,
		Meta:   meta,
	}).Build()
}

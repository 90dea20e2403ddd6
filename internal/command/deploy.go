// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/aws"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/cacheutil"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/config"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/deploy"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/log"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/meta"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/output"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/secret"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/stackfile"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/synth"
)

var deployColumns = []output.Column{
	{Key: "stack", Title: "STACK"},
	{Key: "operation", Title: "OPERATION"},
	{Key: "status", Title: "STATUS"},
	{Key: "pipeline", Title: "PIPELINE"},
}

func deployCommandAction(ctx context.Context, cmd *cli.Command) error {
	stacks, err := loadStacks(cmd)
	if err != nil {
		return err
	}
	if !cmd.Bool("all") {
		s, err := selectStack(cmd, stacks)
		if err != nil {
			return err
		}
		stacks = []stackfile.Stack{s}
	}

	if !confirmed(cmd, stacks) {
		return ErrCancelled
	}

	var rows []map[string]any
	for _, s := range stacks {
		res, err := deployStack(ctx, cmd, s)
		if err != nil {
			// Report what already went out before failing.
			_ = output.Write(writer(cmd), rows, deployColumns, outputOptions(cmd))
			return fmt.Errorf("%s: %w", s.Name, err)
		}
		rows = append(rows, map[string]any{
			"stack":     res.StackName,
			"operation": string(res.Operation),
			"status":    res.Status,
			"pipeline":  res.Outputs[synth.OutputPipelineName],
		})
	}
	return output.Write(writer(cmd), rows, deployColumns, outputOptions(cmd))
}

func deployStack(ctx context.Context, cmd *cli.Command, s stackfile.Stack) (deploy.Result, error) {
	tmpl, err := synth.Synthesize(s)
	if err != nil {
		return deploy.Result{}, err
	}
	body, err := tmpl.JSON()
	if err != nil {
		return deploy.Result{}, err
	}

	cfg, err := awsConfig(ctx, cmd, s)
	if err != nil {
		return deploy.Result{}, err
	}
	svc := newServices(cfg)

	if err := aws.CheckAccount(ctx, svc.STS, s.Account); err != nil {
		return deploy.Result{}, err
	}
	if !cmd.Bool("no-preflight") {
		if err := deploy.Preflight(ctx, secret.NewResolver(svc.SecretsManager), synth.Secrets(s)...); err != nil {
			return deploy.Result{}, err
		}
	}

	d := &deploy.Deployer{
		CloudFormation: svc.CloudFormation,
		S3:             svc.S3,
		StagingBucket:  cmd.String("staging-bucket"),
		MaxWait:        cmd.Duration("wait"),
	}
	res, err := d.Deploy(ctx, s.StackName, body, map[string]string{
		"npmpipe:stack":      s.Name,
		"npmpipe:repository": s.RepositoryID(),
	})
	if err != nil {
		return res, err
	}

	if err := cacheutil.Write(cacheutil.TemplatesDir, templateCacheKey(cfg, s), body); err != nil {
		log.WithError(err).Warnf("failed to cache template of %s", s.StackName)
	}
	return res, nil
}

// confirmed asks before touching AWS. Without a terminal, or with --yes or
// confirm: false in the config file, it does not ask.
func confirmed(cmd *cli.Command, stacks []stackfile.Stack) bool {
	if cmd.Bool("yes") || !isTerminal() {
		return true
	}
	if ask, _ := config.GetBool("confirm", true); !ask {
		return true
	}

	in := cmd.Root().Reader
	if in == nil {
		in = os.Stdin
	}
	return prompt(in, writer(cmd), stacks)
}

func prompt(in io.Reader, out io.Writer, stacks []stackfile.Stack) bool {
	names := make([]string, 0, len(stacks))
	for _, s := range stacks {
		names = append(names, s.StackName)
	}
	fmt.Fprintf(out, "Deploy %s? [y/N] ", strings.Join(names, ", "))
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// stagingBucketFlag reads deploy.staging_bucket from the config file.
func stagingBucketFlag(path string) *cli.StringFlag {
	flag := &cli.StringFlag{
		Name:    "staging-bucket",
		Usage:   "bucket oversized templates are uploaded to",
		Sources: cli.NewValueSourceChain(cli.EnvVar("NPMPIPE_STAGING_BUCKET")),
	}
	if path != "" {
		appendConfigSources("deploy", path, "staging_bucket", &flag.Sources)
	}
	return flag
}

func deployCommandBuilder(meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "deploy",
		Usage:     "create or update the pipeline stack of a stack",
		UsageText: "npmpipe deploy [STACK | --all] [options]",
		ArgsUsage: "[STACK]",
		AWS:       true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "deploy every declared stack",
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "do not ask for confirmation",
			},
			&cli.BoolFlag{
				Name:  "no-preflight",
				Usage: "skip checking that the secrets exist",
			},
			stagingBucketFlag(meta.ConfigFile),
			&cli.DurationFlag{
				Name:  "wait",
				Usage: "longest time to wait for the stack to settle",
				Value: deploy.DefaultMaxWait,
			},
		},
		Action: deployCommandAction,
		Meta:   meta,
	}).Build()
}

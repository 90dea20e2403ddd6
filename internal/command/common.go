// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/aws"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/cacheutil"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/deploy"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/log"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/meta"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/output"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/secret"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/stackfile"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/status"
)

// ErrCancelled is returned when the stack picker is dismissed.
var ErrCancelled = errors.New("cancelled")

// isTerminal reports whether stdin is interactive. Tests replace it.
var isTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// pick chooses one of names interactively. Tests replace it.
var pick = pickStack

// services are the AWS clients the commands talk to.
type services struct {
	CloudFormation deploy.CloudFormationAPI
	CodePipeline   status.API
	S3             deploy.UploadAPI
	SecretsManager secret.DescribeAPI
	STS            aws.CallerAPI
}

// newServices builds the clients from cfg. Tests replace it.
var newServices = func(cfg awsv2.Config) services {
	c := aws.NewClients(cfg)
	return services{
		CloudFormation: c.CloudFormation,
		CodePipeline:   c.CodePipeline,
		S3:             c.S3,
		SecretsManager: c.SecretsManager,
		STS:            c.STS,
	}
}

// GetMeta returns the meta.Meta stored in the command's Metadata. If missing
// or of an unexpected type, it returns the zero value.
func GetMeta(cmd *cli.Command) meta.Meta {
	if cmd == nil || cmd.Metadata == nil {
		return meta.Meta{}
	}
	if m, ok := cmd.Metadata["meta"].(meta.Meta); ok {
		return m
	}
	return meta.Meta{}
}

// writer is where command output goes.
func writer(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func outputOptions(cmd *cli.Command) output.Options {
	return output.Options{
		Format:  cmd.String("output"),
		Titles:  cmd.Bool("titles"),
		Color:   cmd.Bool("color"),
		Padding: cmd.Int("padding"),
		Sort:    cmd.String("sort"),
		Filter:  cmd.String("filter"),
	}
}

func loadStacks(cmd *cli.Command) ([]stackfile.Stack, error) {
	path := cmd.String("file")
	if sd := GetMeta(cmd).StartingDir; sd != "" && !filepath.IsAbs(path) {
		path = filepath.Join(sd, path)
	}
	stacks, err := stackfile.Load(path)
	if err != nil {
		return nil, err
	}
	if len(stacks) == 0 {
		return nil, fmt.Errorf("no stacks declared in %s", path)
	}
	return stacks, nil
}

// selectStack returns the stack named by the first argument. With no
// argument, a lone stack is used as is and several are offered in a picker
// when stdin is a terminal.
func selectStack(cmd *cli.Command, stacks []stackfile.Stack) (stackfile.Stack, error) {
	if name := cmd.Args().First(); name != "" {
		return stackfile.Find(stacks, name)
	}
	if len(stacks) == 1 {
		return stacks[0], nil
	}

	names := stackfile.Names(stacks)
	if !isTerminal() {
		return stackfile.Stack{}, fmt.Errorf("%d stacks declared, name one of: %s", len(stacks), strings.Join(names, ", "))
	}

	name, err := pick(names)
	if err != nil {
		return stackfile.Stack{}, err
	}
	if name == "" {
		return stackfile.Stack{}, ErrCancelled
	}
	log.Debugf("stack picked: %s", name)
	return stackfile.Find(stacks, name)
}

// loadStack is loadStacks followed by selectStack.
func loadStack(cmd *cli.Command) (stackfile.Stack, error) {
	stacks, err := loadStacks(cmd)
	if err != nil {
		return stackfile.Stack{}, err
	}
	return selectStack(cmd, stacks)
}

// awsConfig loads AWS config for s. --region wins over the stack's region.
func awsConfig(ctx context.Context, cmd *cli.Command, s stackfile.Stack) (awsv2.Config, error) {
	var opts []aws.Option
	if p := cmd.String("profile"); p != "" {
		opts = append(opts, aws.WithProfile(p))
	}
	region := cmd.String("region")
	if region == "" {
		region = s.Region
	}
	if region != "" {
		opts = append(opts, aws.WithRegion(region))
	}

	cfg, err := aws.LoadAWSConfig(ctx, opts...)
	if err != nil {
		return awsv2.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// templateCacheKey keys a deployed template by the region the SDK resolved
// for s, which may come from --region, the stack, AWS_REGION or a profile.
func templateCacheKey(cfg awsv2.Config, s stackfile.Stack) string {
	return cacheutil.TemplateKey(cfg.Region, s.StackName)
}

// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	altsrc "github.com/urfave/cli-altsrc/v3"
	yaml "github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/stackfile"
)

// NewGlobalFlags returns the flags every subcommand accepts. ns is the
// subcommand name and path the user config file; when path is set, values are
// also read from ns.<flag> and <flag> in that file.
func NewGlobalFlags(ns string, path string) (flags []cli.Flag) {
	file := &cli.StringFlag{
		Name:    "file",
		Aliases: []string{"f"},
		Usage:   "stack file declaring the pipelines",
		Value:   stackfile.DefaultFile,
		Sources: cli.NewValueSourceChain(cli.EnvVar("NPMPIPE_FILE")),
	}
	output := &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "output format",
		Value:   "text",
		Validator: func(value string) error {
			return FlagValidators(value, OutputValidator)
		},
	}
	color := &cli.BoolFlag{
		Name:    "color",
		Aliases: []string{"c"},
		Usage:   "enable colored text output",
		Value:   false,
	}
	titles := &cli.BoolFlag{
		Name:    "titles",
		Aliases: []string{"t"},
		Usage:   "show titles with text output",
		Value:   false,
	}
	padding := &cli.IntFlag{
		Name:  "padding",
		Usage: "spaces between text output columns",
		Value: 2,
	}
	filter := &cli.StringFlag{
		Name:    "filter",
		Aliases: []string{"F"},
		Usage:   "comma-separated filters applied to the results, e.g. branch=main",
	}
	sort := &cli.StringFlag{
		Name:    "sort",
		Aliases: []string{"s"},
		Usage:   "comma-separated list of columns to sort the results by",
	}

	if path != "" {
		file = NameSpacedValueChainFlagFromConfigFile(ns, path, file)
		output = NameSpacedValueChainFlagFromConfigFile(ns, path, output)
		appendConfigSources(ns, path, color.Name, &color.Sources)
		appendConfigSources(ns, path, titles.Name, &titles.Sources)
	}

	flags = []cli.Flag{file, output, color, titles, padding, filter, sort}
	return
}

// NewAWSFlags returns the flags of commands that call AWS.
func NewAWSFlags(ns string, path string) []cli.Flag {
	profile := &cli.StringFlag{
		Name:    "profile",
		Aliases: []string{"p"},
		Usage:   "AWS shared config profile. Defaults to the AWS_PROFILE chain",
		Sources: cli.NewValueSourceChain(cli.EnvVar("NPMPIPE_PROFILE")),
	}
	region := &cli.StringFlag{
		Name:    "region",
		Aliases: []string{"r"},
		Usage:   "AWS region. Overrides the stack's region",
		Sources: cli.NewValueSourceChain(cli.EnvVar("NPMPIPE_REGION")),
	}

	if path != "" {
		profile = NameSpacedValueChainFlagFromConfigFile(ns, path, profile)
		region = NameSpacedValueChainFlagFromConfigFile(ns, path, region)
	}
	return []cli.Flag{profile, region}
}

// NameSpacedValueChainFlagFromConfigFile adds namespaced and global config file
// sources to the given flag's Sources chain.
func NameSpacedValueChainFlagFromConfigFile(ns string, path string, flag *cli.StringFlag) *cli.StringFlag {
	appendConfigSources(ns, path, flag.Name, &flag.Sources)
	return flag
}

func appendConfigSources(ns string, path string, name string, chain *cli.ValueSourceChain) {
	if ns != "" {
		chain.Chain = append(chain.Chain, yaml.YAML(ns+"."+name, altsrc.StringSourcer(path)))
	}
	chain.Chain = append(chain.Chain, yaml.YAML(name, altsrc.StringSourcer(path)))
}

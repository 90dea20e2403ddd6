// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/meta"
)

// CommandBuilder constructs a subcommand with the global flags, and the AWS
// flags when the command talks to AWS, wired to the user config file.
type CommandBuilder struct {
	Name      string
	Usage     string
	UsageText string
	ArgsUsage string
	Flags     []cli.Flag
	AWS       bool
	Action    func(context.Context, *cli.Command) error
	Meta      meta.Meta
}

// Build returns a configured cli.Command from the builder.
func (b *CommandBuilder) Build() *cli.Command {
	flags := append(b.Flags, NewGlobalFlags(b.Name, b.Meta.ConfigFile)...)
	if b.AWS {
		flags = append(flags, NewAWSFlags(b.Name, b.Meta.ConfigFile)...)
	}
	return &cli.Command{
		Name:      b.Name,
		Usage:     b.Usage,
		UsageText: b.UsageText,
		ArgsUsage: b.ArgsUsage,
		Metadata: map[string]any{
			"meta": b.Meta,
		},
		Flags:  flags,
		Action: b.Action,
	}
}

// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/config"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/log"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/meta"
)

func InitApp(ctx context.Context, args []string) (*cli.Command, error) {
	sd, _ := os.Getwd()

	// The arg[1] immediately following the binary (arg[0]) is the npmpipe
	// subcommand and also represents the namespace key to be used when
	// retrieving config values. arg[1] could be -h/--help, so ignore it if it
	// appears to be a flag.
	var ns string
	if len(args) > 1 && !strings.HasPrefix(args[1], "-") {
		ns = args[1]
	}

	// A missing config file is fine; every flag has a default.
	cfg, err := config.Load(ns)
	if err != nil {
		log.Debugf("no config loaded: %v", err)
	}
	cfgFile, _ := config.File()

	meta := meta.Meta{
		Args:        args,
		Config:      cfg,
		ConfigFile:  cfgFile,
		Context:     ctx,
		StartingDir: sd,
	}

	app := &cli.Command{
		Name:  "npmpipe",
		Usage: "release pipelines for npm packages on AWS CodePipeline",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "version",
				Aliases:     []string{"v"},
				Usage:       "npmpipe version info",
				HideDefault: true,
			},
		},
	}

	app.Commands = append(app.Commands, commands(meta)...)

	// Make sure flags are sorted for the --help text.
	for _, cmd := range app.Commands {
		sort.Slice(cmd.Flags, func(i, j int) bool {
			return cmd.Flags[i].Names()[0] < cmd.Flags[j].Names()[0]
		})
	}

	return app, nil
}

func commands(m meta.Meta) []*cli.Command {
	return []*cli.Command{
		lsCommandBuilder(m),
		synthCommandBuilder(m),
		auditCommandBuilder(m),
		buildspecCommandBuilder(m),
		diffCommandBuilder(m),
		deployCommandBuilder(m),
		statusCommandBuilder(m),
		completionCommandBuilder(m),
	}
}

// RepeatableFlags returns every spelling (--name and -n) of the flags that
// accumulate values when given more than once.
func RepeatableFlags() map[string]bool {
	names := map[string]bool{}
	for _, cmd := range commands(meta.Meta{}) {
		for _, f := range cmd.Flags {
			if _, ok := f.(*cli.StringSliceFlag); !ok {
				continue
			}
			for _, n := range f.Names() {
				if len(n) == 1 {
					names["-"+n] = true
				} else {
					names["--"+n] = true
				}
			}
		}
	}
	return names
}

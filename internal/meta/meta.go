// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

// Package meta carries the runtime state shared by every command.
package meta

import (
	"context"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/config"
)

// Meta contains runtime metadata shared by commands. It carries CLI arguments,
// loaded configuration, context, the path of the user config file altsrc
// flags read from, and the starting working directory.
type Meta struct {
	Args        []string
	Config      config.Type
	ConfigFile  string
	Context     context.Context
	StartingDir string
}


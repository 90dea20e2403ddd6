// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/meta"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/output"
)

var lsColumns = []output.Column{
	{Key: "name", Title: "NAME"},
	{Key: "repository", Title: "REPOSITORY"},
	{Key: "branch", Title: "BRANCH"},
	{Key: "stack", Title: "STACK"},
	{Key: "pipeline", Title: "PIPELINE"},
	{Key: "registry", Title: "REGISTRY"},
	{Key: "region", Title: "REGION"},
}

func lsCommandAction(ctx context.Context, cmd *cli.Command) error {
	stacks, err := loadStacks(cmd)
	if err != nil {
		return err
	}

	rows := make([]map[string]any, 0, len(stacks))
	for _, s := range stacks {
		rows = append(rows, map[string]any{
			"name":       s.Name,
			"repository": s.RepositoryID(),
			"branch":     s.Branch,
			"stack":      s.StackName,
			"pipeline":   s.PipelineName,
			"registry":   s.Registry.Domain + "/" + s.Registry.Repository,
			"namespaces": s.Registry.Namespaces,
			"region":     s.Region,
		})
	}
	return output.Write(writer(cmd), rows, lsColumns, outputOptions(cmd))
}

func lsCommandBuilder(meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "ls",
		Usage:     "list the stacks declared in the stack file",
		UsageText: "npmpipe ls [options]",
		Action:    lsCommandAction,
		Meta:      meta,
	}).Build()
}

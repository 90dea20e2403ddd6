// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

// Command docsgen writes a markdown page per npmpipe subcommand into
// <docs>/commands, built from the live command tree.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/command"
)

type Flag struct {
	ID          string
	Syntax      string
	Description string
}

type TemplateData struct {
	ID          string
	IDUpper     string
	Short       string
	Usage       string
	Flags       []Flag
	Date        string
	Version     string
}

const pageTemplate = `# npmpipe {{ .ID }}

{{ .Short }}

## Usage

    {{ .Usage }}

## Flags

| Flag | Description |
| ---- | ----------- |
{{- range .Flags }}
| ` + "`{{ .Syntax }}`" + ` | {{ .Description }} |
{{- end }}

_npmpipe {{ .Version }}, generated {{ .Date }}_
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: docsgen DOCS_DIR")
		os.Exit(1)
	}
	if err := generate(os.Args[1], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func generate(docs string, progress io.Writer) error {
	app, err := command.InitApp(context.Background(), []string{"npmpipe"})
	if err != nil {
		return err
	}
	tmpl := template.Must(template.New("page").Parse(pageTemplate))

	folder := filepath.Join(docs, "commands")
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return err
	}

	version := getVersion()
	for _, sub := range app.Commands {
		path := filepath.Join(folder, sub.Name+".md")
		fmt.Fprintln(progress, "Generating", path)

		file, err := os.Create(path)
		if err != nil {
			return err
		}
		err = tmpl.Execute(file, pageData(sub, version))
		file.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func pageData(sub *cli.Command, version string) TemplateData {
	data := TemplateData{
		ID:      sub.Name,
		IDUpper: strings.ToUpper(sub.Name),
		Short:   sub.Usage,
		Usage:   sub.UsageText,
		Date:    time.Now().Format("January 2, 2006"),
		Version: version,
	}
	for _, f := range sub.Flags {
		data.Flags = append(data.Flags, flagDoc(f))
	}
	return data
}

func flagDoc(f cli.Flag) Flag {
	names := f.Names()
	syntax := make([]string, 0, len(names))
	for _, n := range names {
		if len(n) == 1 {
			syntax = append(syntax, "-"+n)
		} else {
			syntax = append(syntax, "--"+n)
		}
	}
	doc := Flag{ID: names[0], Syntax: strings.Join(syntax, ", ")}
	if u, ok := f.(interface{ GetUsage() string }); ok {
		doc.Description = u.GetUsage()
	}
	return doc
}

// getVersion returns the version string from git tags, stripping the leading
// "v" prefix. Falls back to "dev" if git describe fails.
func getVersion() string {
	out, err := exec.Command("git", "describe", "--tags", "--abbrev=0").Output()
	if err != nil {
		return "dev"
	}

	version := strings.TrimSpace(string(out))
	return strings.TrimPrefix(version, "v")
}

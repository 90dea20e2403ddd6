// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"os"
	"reflect"
	"strconv"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/lipgloss/v2/table"
	"gopkg.in/yaml.v2"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/config"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/filters"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/log"
)

// Formats accepted by --output.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatRaw  = "raw"
)

// Formats lists every accepted format.
var Formats = []string{FormatText, FormatJSON, FormatYAML, FormatRaw}

// Column selects one key of each row for the text table.
type Column struct {
	Key   string
	Title string
}

// Options control rendering. They mirror the global output flags.
type Options struct {
	Format  string
	Titles  bool
	Color   bool
	Padding int
	// Sort is a comma separated list of keys; prefix - for descending and !
	// for case-sensitive.
	Sort string
	// Filter is a --filter expression applied before sorting.
	Filter string
	Header string
	Footer string
}

// Write renders rows in the requested format.
func Write(w io.Writer, rows []map[string]any, cols []Column, opts Options) error {
	if w == nil {
		w = os.Stdout
	}
	if opts.Filter != "" {
		filtered, err := filters.FilterRows(rows, opts.Filter)
		if err != nil {
			return err
		}
		rows = filtered
	}
	if opts.Sort != "" {
		SortDataset(rows, opts.Sort)
	}

	switch opts.Format {
	case FormatRaw:
		b, err := json.Marshal(rows)
		if err != nil {
			return fmt.Errorf("failed to marshal rows: %w", err)
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case FormatJSON:
		b, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal rows: %w", err)
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case FormatYAML:
		b, err := yaml.Marshal(rows)
		if err != nil {
			return fmt.Errorf("failed to marshal rows: %w", err)
		}
		_, err = w.Write(b)
		return err
	case FormatText, "":
		TableWriter(w, rows, cols, opts)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", opts.Format)
	}
}

// InterfaceToString converts supported primitive or composite values to a
// string. A custom empty value may be provided.
func InterfaceToString(value any, emptyValue ...string) string {
	if len(emptyValue) == 0 {
		emptyValue = []string{""}
	}

	if value == nil || reflect.ValueOf(value).IsZero() {
		return emptyValue[0]
	}

	switch value := value.(type) {
	case string:
		return value
	case int:
		return strconv.Itoa(value)
	case float64:
		return fmt.Sprintf("%.0f", value)
	case bool:
		return strconv.FormatBool(value)
	case fmt.Stringer:
		return value.String()
	default:
		jsonBytes, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(jsonBytes)
	}
}

// TableWriter renders rows in tabular form honoring color, titles and padding
// options.
func TableWriter(w io.Writer, rows []map[string]any, cols []Column, opts Options) {
	if len(rows) == 0 {
		return
	}

	var (
		headerStyle  = lipgloss.NewStyle().Align(lipgloss.Left).Bold(true)
		cellStyle    = lipgloss.NewStyle().Padding(0, 0).Align(lipgloss.Left)
		evenRowStyle = cellStyle
		oddRowStyle  = cellStyle
	)

	if opts.Color {
		headerColor, evenColor, oddColor := getColors("colors")

		headerStyle = headerStyle.Foreground(headerColor)
		evenRowStyle = evenRowStyle.Foreground(evenColor)
		oddRowStyle = oddRowStyle.Foreground(oddColor)
	}

	var cells [][]string
	for _, row := range rows {
		line := make([]string, 0, len(cols))
		for _, c := range cols {
			line = append(line, InterfaceToString(row[c.Key], "-"))
		}
		cells = append(cells, line)
	}

	if opts.Header != "" {
		fmt.Fprintln(w, headerStyle.Render(opts.Header))
	}

	pad := opts.Padding
	if pad <= 0 {
		pad = 2
	}
	t := table.New().
		BorderBottom(false).
		BorderTop(false).
		BorderLeft(false).
		BorderRight(false).
		Border(lipgloss.HiddenBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			var style lipgloss.Style
			switch {
			case row == table.HeaderRow:
				style = headerStyle
			case row%2 == 0:
				style = evenRowStyle
			default:
				style = oddRowStyle
			}

			if col > 0 {
				style = style.PaddingLeft(pad)
			}

			return style
		}).
		Headers().
		Rows(cells...)

	if opts.Titles {
		headers := make([]string, 0, len(cols))
		for _, c := range cols {
			title := c.Title
			if title == "" {
				title = c.Key
			}
			headers = append(headers, title)
		}

		// https://github.com/charmbracelet/lipgloss/issues/261
		t = t.Headers(headers...).BorderHeader(false)
	}
	fmt.Fprintln(w, t)

	if opts.Footer != "" {
		fmt.Fprintln(w, headerStyle.Render(opts.Footer))
	}
}

// getColors returns configured color values for table rendering. Each color is
// selected based on terminal background color and brightness so that we can
// make sure output is reasonably visible for all(?) terminal themes.
func getColors(key string) (header, even, odd color.Color) {
	isDark := lipgloss.HasDarkBackground(os.Stdin, os.Stdout)

	resolveColor := func(key string, light string, dark string) color.Color {
		colorCfg, err := config.GetString(key)
		if err == nil {
			return lipgloss.Color(colorCfg)
		}

		if isDark {
			return lipgloss.Color(dark)
		}
		return lipgloss.Color(light)
	}

	header = resolveColor(key+".title", "#b08800", "#f6be00")
	even = resolveColor(key+".even", "#333333", "#ffffff")
	odd = resolveColor(key+".odd", "#0088a0", "#00c8f0")
	log.Debugf("colors resolved: dark=%t", isDark)

	return
}

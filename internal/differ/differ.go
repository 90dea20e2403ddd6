// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package differ

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
	"gopkg.in/yaml.v3"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/log"
)

// Identical is printed when there is nothing to show.
const Identical = "The templates are identical."

// Options tune the rendering.
type Options struct {
	// Ignore lists top-level template keys left out of the comparison,
	// e.g. Description.
	Ignore   []string
	Coloring bool
}

// Diff compares the deployed template with the synthesized one and writes an
// ASCII delta to w. It reports whether the templates differ. Deployed
// templates may be JSON or YAML.
func Diff(w io.Writer, deployed, synthesized []byte, opts Options) (bool, error) {
	log.Debugf("differ: len(deployed)=%d len(synthesized)=%d", len(deployed), len(synthesized))

	left, err := normalize(deployed, opts.Ignore)
	if err != nil {
		return false, fmt.Errorf("failed to read deployed template: %w", err)
	}
	right, err := normalize(synthesized, opts.Ignore)
	if err != nil {
		return false, fmt.Errorf("failed to read synthesized template: %w", err)
	}

	delta := gojsondiff.New().CompareObjects(left, right)
	if !delta.Modified() {
		fmt.Fprintln(w, Identical)
		return false, nil
	}

	config := formatter.AsciiFormatterConfig{
		ShowArrayIndex: false,
		Coloring:       opts.Coloring,
	}
	out, err := formatter.NewAsciiFormatter(left, config).Format(delta)
	if err != nil {
		return true, fmt.Errorf("failed to format delta: %w", err)
	}
	fmt.Fprintln(w, out)
	return true, nil
}

// normalize decodes a template into generic JSON values. YAML input is
// round-tripped through JSON so both sides carry the same value types.
func normalize(doc []byte, ignore []string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(doc, &out); err != nil {
		var y map[string]any
		if yerr := yaml.Unmarshal(doc, &y); yerr != nil {
			return nil, err
		}
		b, jerr := json.Marshal(y)
		if jerr != nil {
			return nil, jerr
		}
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, err
		}
	}
	if out == nil {
		out = map[string]any{}
	}
	for _, key := range ignore {
		delete(out, key)
	}
	return out, nil
}

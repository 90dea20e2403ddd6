// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

type sortKey struct {
	column        string
	descending    bool
	caseSensitive bool
}

// parseSortKeys splits a --sort value. A leading - sorts descending and a
// leading ! compares case-sensitively; both may be combined as -!name.
func parseSortKeys(spec string) []sortKey {
	var keys []sortKey
	for _, raw := range strings.Split(spec, ",") {
		raw = strings.TrimSpace(raw)
		var k sortKey
		if rest, ok := strings.CutPrefix(raw, "-"); ok {
			k.descending, raw = true, rest
		}
		if rest, ok := strings.CutPrefix(raw, "!"); ok {
			k.caseSensitive, raw = true, rest
		}
		if raw == "" {
			continue
		}
		k.column = raw
		keys = append(keys, k)
	}
	return keys
}

// SortDataset orders rows in place by a comma separated list of columns.
// Numbers, durations and times compare by value, everything else as text.
func SortDataset(rows []map[string]any, spec string) {
	keys := parseSortKeys(spec)
	if len(keys) == 0 {
		return
	}

	slices.SortStableFunc(rows, func(a, b map[string]any) int {
		for _, k := range keys {
			c := compareValues(a[k.column], b[k.column], k.caseSensitive)
			if c == 0 {
				continue
			}
			if k.descending {
				return -c
			}
			return c
		}
		return 0
	})
}

func compareValues(a, b any, caseSensitive bool) int {
	if x, ok := numeric(a); ok {
		if y, ok := numeric(b); ok {
			return cmp.Compare(x, y)
		}
	}
	if x, ok := a.(time.Time); ok {
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	}

	x, y := InterfaceToString(a), InterfaceToString(b)
	if !caseSensitive {
		x, y = strings.ToLower(x), strings.ToLower(y)
	}
	return strings.Compare(x, y)
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case time.Duration:
		return float64(n), true
	}
	return 0, false
}

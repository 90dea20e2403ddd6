// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package filters narrows command output rows with --filter expressions.
//
// Filters are key-operator-target expressions joined by a delimiter (default
// comma, NPMPIPE_FILTER_DELIM overrides it). Keys are dot paths into a row,
// with [n] selecting an array element.
//
// Operators, each negatable with a leading !:
//
//   - = : exact match
//   - ~ : case-insensitive match
//   - ^ : prefix match
//   - < : less than (numeric when the value is a number)
//   - > : greater than (numeric when the value is a number)
//   - @ : contains, substring for strings and membership for lists
//   - / : regular expression match
//
// Examples:
//
//   - "branch=main" : stacks releasing from main
//   - "registry!=" : stacks that publish to CodeArtifact
//   - "status/^(Failed|Stopped)$" : failed stages
//   - "stages[1].status=Succeeded" : pipelines whose build stage succeeded
package filters

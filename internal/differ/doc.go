// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package differ computes and renders differences between the deployed and
// the freshly synthesized version of a stack's template.
package differ

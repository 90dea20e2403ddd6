// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package aws loads AWS SDK configuration and builds the service clients the
// deploy, status and secret lookups run against.
package aws

// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package synth turns a stack definition into a CloudFormation template. The
// template holds the artifact bucket, the build and pipeline roles with their
// policies, the CodeBuild project running the release build, and the
// two-stage pipeline triggered by pushes to the stack's branch.
//
// Secrets never appear in a template. The GitHub token reaches the build as a
// Secrets Manager environment variable and the connection ARN is a dynamic
// reference resolved by CloudFormation at deploy time.
package synth

// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package stackfile loads the HCL file that declares deployment instances of
// the npm release pipeline. Each stack block binds one GitHub repository,
// branch and registry to one CloudFormation stack:
//
//	stack "gen3-aws-config" {
//	  owner   = "AustralianBioCommons"
//	  repo    = "gen3-aws-config"
//	  branch  = "main"
//	  account = env("CDK_DEFAULT_ACCOUNT")
//	  region  = env("CDK_DEFAULT_REGION", "ap-southeast-2")
//
//	  registry {
//	    domain     = "biocommons"
//	    repository = "npm"
//	    namespaces = ["biocommons"]
//	  }
//	}
//
// Expressions may call env, coalesce, format, join, lower, replace and upper.
package stackfile

// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package config provides loading and typed accessors for npmpipe's user
// preferences. The file is a YAML document named npmpipe.yaml in the user's
// configuration directory (os.UserConfigDir), or whatever NPMPIPE_CFG_FILE
// points at.
//
// Keys are dotted paths. A command namespace ("deploy", "status") is tried
// first so per-command overrides win over top-level values:
//
//	region: ap-southeast-2
//	deploy:
//	  region: us-east-1
package config

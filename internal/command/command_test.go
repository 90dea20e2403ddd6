// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package command

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/config"
)

const stacksFile = "testdata/npmpipe.hcl"

// isolate keeps the developer's config, cache and AWS setup out of a test.
func isolate(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Setenv("NPMPIPE_CACHE_DIR", t.TempDir())
	t.Setenv("NPMPIPE_CACHE", "")
	t.Setenv("AWS_CONFIG_FILE", home+"/aws-config")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", home+"/aws-credentials")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIDTEST")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	for _, name := range []string{"NPMPIPE_CFG_FILE", "NPMPIPE_FILE", "NPMPIPE_PROFILE", "NPMPIPE_REGION", "NPMPIPE_STAGING_BUCKET", "AWS_PROFILE", "AWS_REGION"} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}

	config.Config = config.Type{}
	t.Cleanup(func() { config.Config = config.Type{} })

	prevTerminal := isTerminal
	isTerminal = func() bool { return false }
	t.Cleanup(func() { isTerminal = prevTerminal })
}

// run executes npmpipe with args and returns what it wrote.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	argv := append([]string{"npmpipe"}, args...)
	app, err := InitApp(context.Background(), argv)
	require.NoError(t, err)

	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = io.Discard
	err = app.Run(context.Background(), argv)
	return out.String(), err
}

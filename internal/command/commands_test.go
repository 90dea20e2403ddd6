// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package command

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/buildspec"
)

func decodeRows(t *testing.T, out string) []map[string]any {
	t.Helper()
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows), out)
	return rows
}

func TestLs(t *testing.T) {
	isolate(t)

	out, err := run(t, "ls", "--file", stacksFile, "-o", "json")
	require.NoError(t, err)
	rows := decodeRows(t, out)
	require.Len(t, rows, 2)
	assert.Equal(t, "gen3-aws-config", rows[0]["name"])
	assert.Equal(t, "AustralianBioCommons/gen3-aws-config", rows[0]["repository"])
	assert.Equal(t, "biocommons/npm", rows[0]["registry"])
	assert.Equal(t, "npm-codepipeline-plain", rows[1]["stack"])
	assert.Equal(t, "npm-publish-my-repo-name", rows[1]["pipeline"])
	assert.Equal(t, "biocommons/npm-private", rows[1]["registry"])
	assert.Equal(t, []any{"biocommons", "gen3"}, rows[1]["namespaces"])

	out, err = run(t, "ls", "--file", stacksFile, "--titles", "--sort=-name")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Less(t, strings.Index(out, "plain"), strings.Index(out, "gen3-aws-config"))
}

func TestLs_Filter(t *testing.T) {
	isolate(t)

	out, err := run(t, "ls", "--file", stacksFile, "-o", "json", "--filter", "registry=biocommons/npm")
	require.NoError(t, err)
	rows := decodeRows(t, out)
	require.Len(t, rows, 1)
	assert.Equal(t, "gen3-aws-config", rows[0]["name"])
}

func TestLs_Errors(t *testing.T) {
	isolate(t)

	_, err := run(t, "ls", "--file", "testdata/missing.hcl")
	assert.ErrorContains(t, err, "failed to read stack file")

	_, err = run(t, "ls", "--file", stacksFile, "-o", "xml")
	assert.Error(t, err)
}

func TestSynth(t *testing.T) {
	isolate(t)

	out, err := run(t, "synth", "gen3-aws-config", "--file", stacksFile)
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)))
	assert.Contains(t, out, "AWS::CodePipeline::Pipeline")
	assert.Contains(t, out, "AustralianBioCommons/gen3-aws-config")

	out, err = run(t, "synth", "plain", "--file", stacksFile, "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "AWSTemplateFormatVersion:")
	assert.Contains(t, out, "CODEBUILD_CLONE_REF")
	assert.Contains(t, out, "npm-private")

	_, err = run(t, "synth", "--file", stacksFile)
	assert.ErrorContains(t, err, "2 stacks declared")

	out, err = run(t, "synth", "--file", "testdata/single.hcl")
	require.NoError(t, err)
	assert.Contains(t, out, "AustralianBioCommons/only-package")
}

func TestSynth_Dir(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	out, err := run(t, "synth", "--file", stacksFile, "--dir", dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "npm-codepipeline-gen3-aws-config.template.json"),
		filepath.Join(dir, "npm-codepipeline-plain.template.json"),
	}, strings.Fields(out))

	out, err = run(t, "synth", "plain", "--file", stacksFile, "-d", dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "npm-codepipeline-plain.template.json")}, strings.Fields(out))
}

func TestAudit(t *testing.T) {
	isolate(t)

	out, err := run(t, "audit", "gen3-aws-config", "--file", stacksFile)
	require.NoError(t, err)
	assert.Equal(t, "No least-privilege findings.\n", out)

	out, err = run(t, "audit", "gen3-aws-config", "--file", stacksFile, "--actions", "-o", "json")
	require.NoError(t, err)
	var pipelineActions []any
	for _, row := range decodeRows(t, out) {
		if row["policy"] == "PipelineRolePolicy" {
			pipelineActions = append(pipelineActions, row["action"])
		}
	}
	assert.Contains(t, pipelineActions, "codebuild:StartBuild")
}

func TestAudit_TemplateFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "loose.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "Resources": {
    "BuildRolePolicy": {
      "Type": "AWS::IAM::Policy",
      "Properties": {"PolicyDocument": {"Statement": [
        {"Sid": "Everything", "Effect": "Allow", "Action": "s3:*", "Resource": "*"}
      ]}}
    }
  }
}`), 0o600))

	out, err := run(t, "audit", "--template", path, "-o", "json")
	assert.ErrorContains(t, err, "2 least-privilege finding(s)")
	rows := decodeRows(t, out)
	require.Len(t, rows, 2)
	assert.Equal(t, "Everything", rows[0]["sid"])

	_, err = run(t, "audit", "--template", filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorContains(t, err, "failed to read template")
}

func TestBuildspec_Render(t *testing.T) {
	isolate(t)

	out, err := run(t, "buildspec", "gen3-aws-config", "--file", stacksFile)
	require.NoError(t, err)
	assert.Contains(t, out, "version: 0.2")
	assert.Contains(t, out, "npm version from-git --allow-same-version --no-git-tag-version")
	assert.Contains(t, out, "npm publish")
}

func TestBuildspec_Run(t *testing.T) {
	isolate(t)

	var ran []string
	var env []string
	runnerExec = func(_ context.Context, _ string, e []string, _, _ io.Writer, command string) error {
		ran = append(ran, command)
		env = e
		if command == "npm run build" {
			return errors.New("exit status 1")
		}
		return nil
	}
	t.Cleanup(func() { runnerExec = nil })

	out, err := run(t, "buildspec", "plain", "--file", stacksFile, "--run",
		"--dir", t.TempDir(), "--skip", buildspec.StepCheckout, "--env", "CI=true", "-o", "json")
	assert.ErrorIs(t, err, buildspec.ErrStepFailed)
	assert.Contains(t, env, "CI=true")
	assert.NotContains(t, ran, "npm publish")

	status := map[string]any{}
	for _, row := range decodeRows(t, out) {
		status[row["step"].(string)] = row["status"]
	}
	assert.NotContains(t, status, buildspec.StepCheckout)
	assert.Equal(t, "Succeeded", status[buildspec.StepInstall])
	assert.Equal(t, "Failed", status[buildspec.StepCompile])
	assert.Equal(t, "Skipped", status[buildspec.StepPublish])
}

func TestBuildspec_RunRejectsBadEnv(t *testing.T) {
	isolate(t)
	_, err := run(t, "buildspec", "plain", "--file", stacksFile, "--run", "--env", "NOVALUE")
	assert.ErrorContains(t, err, "is not KEY=VALUE")
}

// releaseRepo is a git checkout whose merged tags end at v1.2.0, plus a
// v3.0.0 tag on a branch HEAD never merged.
func releaseRepo(t *testing.T, version string) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	t.Setenv("GIT_CONFIG_GLOBAL", filepath.Join(dir, ".gitconfig"))
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	for _, args := range [][]string{
		{"init", "-q", "-b", "main"},
		{"commit", "-q", "--allow-empty", "-m", "one"},
		{"tag", "v1.0.0"},
		{"checkout", "-q", "-b", "next"},
		{"commit", "-q", "--allow-empty", "-m", "unreleased"},
		{"tag", "v3.0.0"},
		{"checkout", "-q", "main"},
		{"commit", "-q", "--allow-empty", "-m", "two"},
		{"tag", "v1.2.0"},
	} {
		c := exec.Command("git", append([]string{"-c", "user.name=t", "-c", "user.email=t@example.com"}, args...)...)
		c.Dir = dir
		out, err := c.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"),
		[]byte(`{"name": "@biocommons/gen3-aws-config", "version": "`+version+`"}`), 0o600))
	return dir
}

func TestBuildspec_Check(t *testing.T) {
	tests := []struct {
		name      string
		version   string
		published string
		npmErr    error
		wantErr   []error
		results   map[string]string
	}{
		{
			name:      "new version",
			version:   "1.2.0",
			published: `["1.0.0","1.1.0"]`,
			results:   map[string]string{"version matches tag": "ok", "publishable": "ok", "published versions": "2"},
		},
		{
			name:    "never published",
			version: "1.2.0",
			npmErr:  errors.New("npm view: exit status 1: npm error code E404"),
			results: map[string]string{"publishable": "ok", "published versions": "0"},
		},
		{
			name:      "already published",
			version:   "1.2.0",
			published: `["1.0.0","1.2.0"]`,
			wantErr:   []error{buildspec.ErrAlreadyPublished},
			results:   map[string]string{"version matches tag": "ok"},
		},
		{
			name:      "package.json behind the tag",
			version:   "1.0.0",
			published: `["1.0.0"]`,
			wantErr:   []error{buildspec.ErrVersionMismatch},
			results:   map[string]string{"package.json": "1.0.0", "publishable": "ok"},
		},
		{
			name:      "stale and published",
			version:   "3.0.0",
			published: `["1.2.0"]`,
			wantErr:   []error{buildspec.ErrVersionMismatch, buildspec.ErrAlreadyPublished},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			dir := releaseRepo(t, tt.version)

			prev := commandOutput
			t.Cleanup(func() { commandOutput = prev })
			var npmArgs []string
			commandOutput = func(ctx context.Context, d string, name string, args ...string) ([]byte, error) {
				if name == "git" {
					return prev(ctx, d, name, args...)
				}
				assert.Equal(t, dir, d)
				npmArgs = append([]string{name}, args...)
				return []byte(tt.published), tt.npmErr
			}

			out, err := run(t, "buildspec", "gen3-aws-config", "--file", stacksFile, "--check", "--dir", dir, "-o", "json")
			if len(tt.wantErr) == 0 {
				require.NoError(t, err)
			}
			for _, want := range tt.wantErr {
				assert.ErrorIs(t, err, want)
			}

			results := map[string]any{}
			for _, row := range decodeRows(t, out) {
				results[row["check"].(string)] = row["result"]
			}
			assert.Equal(t, "1.2.0", results["latest tag"])
			for check, want := range tt.results {
				assert.Equal(t, want, results[check], check)
			}
			assert.Equal(t, []string{"npm", "view", "@biocommons/gen3-aws-config", "versions", "--json"}, npmArgs)
		})
	}
}

func TestBuildspec_CheckRegistryFailure(t *testing.T) {
	isolate(t)
	dir := releaseRepo(t, "1.2.0")

	prev := commandOutput
	t.Cleanup(func() { commandOutput = prev })
	commandOutput = func(ctx context.Context, d string, name string, args ...string) ([]byte, error) {
		if name == "git" {
			return prev(ctx, d, name, args...)
		}
		return nil, errors.New("npm view: exit status 1: npm error code E401")
	}

	out, err := run(t, "buildspec", "gen3-aws-config", "--file", stacksFile, "--check", "--dir", dir)
	assert.ErrorContains(t, err, "failed to list published versions")
	assert.ErrorContains(t, err, "E401")
	assert.NotContains(t, out, "ok")
}

func TestCompletion(t *testing.T) {
	isolate(t)

	out, err := run(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "complete -F _npmpipe npmpipe")

	out, err = run(t, "completion", "zsh")
	require.NoError(t, err)
	assert.Contains(t, out, "#compdef npmpipe")

	t.Setenv("SHELL", "/bin/fish")
	_, err = run(t, "completion")
	assert.ErrorContains(t, err, "usage: npmpipe completion")
}

func TestRepeatableFlags(t *testing.T) {
	got := RepeatableFlags()
	for _, name := range []string{"--skip", "--env", "--ignore"} {
		assert.True(t, got[name], name)
	}
	for _, name := range []string{"--output", "-o", "--region", "--sort", "--file"} {
		assert.False(t, got[name], name)
	}
}

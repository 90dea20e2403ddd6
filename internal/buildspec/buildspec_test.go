// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package buildspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func gen3Options() NpmOptions {
	return NpmOptions{
		RepositoryID: "AustralianBioCommons/gen3-aws-config",
		GitUserName:  "release-bot",
		GitUserEmail: "bot@example.org",
		Registry:     &Registry{Domain: "biocommons", Repository: "npm"},
	}
}

func stepNames(steps []Step) []string {
	names := make([]string, 0, len(steps))
	for _, s := range steps {
		names = append(names, s.Name)
	}
	return names
}

func TestNpmRelease_StepOrder(t *testing.T) {
	spec := NpmRelease(gen3Options())

	assert.Equal(t, []string{
		StepIdentity,
		StepCheckout,
		StepInstall,
		StepCompile,
		StepReleasePR,
		StepGitHubRelease,
		StepVersion,
		StepPrepare,
		StepRegistryLogin,
		StepPublish,
	}, stepNames(spec.Ordered()))
}

func TestNpmRelease_WithoutRegistry(t *testing.T) {
	opts := gen3Options()
	opts.Registry = nil
	spec := NpmRelease(opts)

	names := stepNames(spec.Ordered())
	assert.NotContains(t, names, StepRegistryLogin)
	assert.Len(t, names, 9)
	assert.Equal(t, StepPublish, names[len(names)-1])
}

func TestNpmRelease_Commands(t *testing.T) {
	commands := NpmRelease(gen3Options()).Commands()

	assert.Equal(t, `git config --global user.name "release-bot"`, commands[0])
	assert.Equal(t, "git checkout $CODEBUILD_RESOLVED_SOURCE_VERSION", commands[2])
	assert.Equal(t, "npm ci", commands[3])
	assert.Contains(t, commands, "npx release-please release-pr --token=$GITHUB_TOKEN --repo-url=AustralianBioCommons/gen3-aws-config")
	assert.Contains(t, commands, "npx release-please github-release --token=$GITHUB_TOKEN --repo-url=AustralianBioCommons/gen3-aws-config")
	assert.Contains(t, commands, "aws codeartifact login --tool npm --domain biocommons --domain-owner $AWS_ACCOUNT_ID --repository npm")
	assert.Equal(t, "npm publish", commands[len(commands)-1])
}

func TestRender(t *testing.T) {
	out, err := NpmRelease(gen3Options()).Render()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))

	assert.Equal(t, "0.2", doc["version"])
	env := doc["env"].(map[string]any)
	assert.Equal(t, "yes", env["git-credential-helper"])

	phases := doc["phases"].(map[string]any)
	assert.NotContains(t, phases, "pre_build")

	install := phases["install"].(map[string]any)
	assert.Equal(t, "ABORT", install["on-failure"])
	assert.Equal(t, map[string]any{"nodejs": "20"}, install["runtime-versions"])
	assert.Len(t, install["commands"], 4)

	build := phases["build"].(map[string]any)
	assert.Equal(t, "ABORT", build["on-failure"])
	assert.Len(t, build["commands"], 7)
	assert.NotContains(t, build, "runtime-versions")
}

func TestRender_TokenNeverInlined(t *testing.T) {
	out, err := NpmRelease(gen3Options()).Render()
	require.NoError(t, err)
	assert.NotContains(t, out, "secretsmanager")
	assert.Contains(t, out, "$GITHUB_TOKEN")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr string
	}{
		{name: "empty", spec: Spec{}, wantErr: "no steps"},
		{name: "unknown phase", spec: Spec{Steps: []Step{{Name: "x", Phase: "post_build", Commands: []string{"true"}}}}, wantErr: "unknown phase"},
		{name: "no commands", spec: Spec{Steps: []Step{{Name: "x", Phase: PhaseBuild}}}, wantErr: "no commands"},
		{name: "blank command", spec: Spec{Steps: []Step{{Name: "x", Phase: PhaseBuild, Commands: []string{" "}}}}, wantErr: "empty command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			assert.ErrorContains(t, err, tt.wantErr)
			_, err = tt.spec.Render()
			assert.Error(t, err)
		})
	}
}

func TestOrdered_PhaseBeforeDeclaration(t *testing.T) {
	spec := Spec{Steps: []Step{
		{Name: "b1", Phase: PhaseBuild, Commands: []string{"true"}},
		{Name: "p1", Phase: PhasePreBuild, Commands: []string{"true"}},
		{Name: "i1", Phase: PhaseInstall, Commands: []string{"true"}},
		{Name: "b2", Phase: PhaseBuild, Commands: []string{"true"}},
	}}

	assert.Equal(t, []string{"i1", "p1", "b1", "b2"}, stepNames(spec.Ordered()))
}

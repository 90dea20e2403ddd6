// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package synth

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/iam"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/stackfile"
)

const stacksHCL = `
stack "gen3-aws-config" {
  owner  = "AustralianBioCommons"
  repo   = "gen3-aws-config"
  branch = "main"

  registry {
    domain     = "biocommons"
    repository = "npm"
    namespaces = ["biocommons"]
  }
}

stack "plain" {
  owner  = "AustralianBioCommons"
  repo   = "my-repo-name"
  branch = "release"

  registry {
    domain       = "biocommons"
    domain_owner = "222222222222"
    repository   = "npm-private"
    namespaces   = ["biocommons", "gen3"]
  }
}
`

func loadStack(t *testing.T, name string) stackfile.Stack {
	t.Helper()
	stacks, err := stackfile.Parse([]byte(stacksHCL), "test.hcl")
	require.NoError(t, err)
	s, err := stackfile.Find(stacks, name)
	require.NoError(t, err)
	return s
}

func query(t *testing.T, tmpl *Template, path string) string {
	t.Helper()
	r, err := tmpl.Query(path)
	require.NoError(t, err)
	require.True(t, r.Exists(), "nothing at %s", path)
	return r.String()
}

func queryStrings(t *testing.T, tmpl *Template, path string) []string {
	t.Helper()
	r, err := tmpl.Query(path)
	require.NoError(t, err)
	var out []string
	for _, e := range r.Array() {
		out = append(out, e.String())
	}
	return out
}

func TestSynthesize_SourceAndTrigger(t *testing.T) {
	tmpl, err := Synthesize(loadStack(t, "gen3-aws-config"))
	require.NoError(t, err)

	source := "Resources.Pipeline.Properties.Stages.0.Actions.0."
	assert.Equal(t, "AustralianBioCommons/gen3-aws-config", query(t, tmpl, source+"Configuration.FullRepositoryId"))
	assert.Equal(t, "main", query(t, tmpl, source+"Configuration.BranchName"))
	assert.Equal(t, "CODEBUILD_CLONE_REF", query(t, tmpl, source+"Configuration.OutputArtifactFormat"))
	assert.Equal(t, "{{resolve:secretsmanager:codestar-connection-arn}}", query(t, tmpl, source+"Configuration.ConnectionArn"))
	assert.Equal(t, "CodeStarSourceConnection", query(t, tmpl, source+"ActionTypeId.Provider"))

	assert.Equal(t, "V2", query(t, tmpl, "Resources.Pipeline.Properties.PipelineType"))
	assert.Equal(t, []string{"main"}, queryStrings(t, tmpl, "Resources.Pipeline.Properties.Triggers.0.GitConfiguration.Push.0.Branches.Includes"))
	assert.Equal(t, "GitHub_Source", query(t, tmpl, "Resources.Pipeline.Properties.Triggers.0.GitConfiguration.SourceActionName"))
}

func TestSynthesize_TwoStagesInOrder(t *testing.T) {
	tmpl, err := Synthesize(loadStack(t, "gen3-aws-config"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Source", "Build"}, queryStrings(t, tmpl, "Resources.Pipeline.Properties.Stages.#.Name"))
	assert.Equal(t, "1", query(t, tmpl, "Resources.Pipeline.Properties.Stages.1.Actions.#"))
	assert.Equal(t, "SourceOutput", query(t, tmpl, "Resources.Pipeline.Properties.Stages.0.Actions.0.OutputArtifacts.0.Name"))
	assert.Equal(t, "SourceOutput", query(t, tmpl, "Resources.Pipeline.Properties.Stages.1.Actions.0.InputArtifacts.0.Name"))
	assert.Equal(t, "BuildProject", query(t, tmpl, "Resources.Pipeline.Properties.Stages.1.Actions.0.Configuration.ProjectName.Ref"))
}

func TestSynthesize_BuildProject(t *testing.T) {
	tmpl, err := Synthesize(loadStack(t, "gen3-aws-config"))
	require.NoError(t, err)

	project := "Resources.BuildProject.Properties."
	assert.Equal(t, "npm-publish-gen3-aws-config-build", query(t, tmpl, project+"Name"))
	assert.Equal(t, "CODEPIPELINE", query(t, tmpl, project+"Source.Type"))
	assert.Equal(t, stackfile.DefaultBuildImage, query(t, tmpl, project+"Environment.Image"))

	token := project + `Environment.EnvironmentVariables.#(Name=="GITHUB_TOKEN").`
	assert.Equal(t, "SECRETS_MANAGER", query(t, tmpl, token+"Type"))
	assert.Equal(t, "github-token", query(t, tmpl, token+"Value"))

	body := query(t, tmpl, project+"Source.BuildSpec")
	assert.Contains(t, body, "on-failure: ABORT")
	assert.Contains(t, body, "--repo-url=AustralianBioCommons/gen3-aws-config")
	assert.Contains(t, body, "aws codeartifact login --tool npm --domain biocommons")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(body), "- npm publish"))
}

func TestSynthesize_BuildRoleActions(t *testing.T) {
	tests := []struct {
		stack string
		want  []string
	}{
		{
			stack: "gen3-aws-config",
			want: []string{
				"codeartifact:GetAuthorizationToken",
				"codeartifact:GetRepositoryEndpoint",
				"codeartifact:ListPackages",
				"codeartifact:PublishPackageVersion",
				"codeartifact:PutPackageMetadata",
				"codeartifact:ReadFromRepository",
				"codestar-connections:UseConnection",
				"logs:CreateLogGroup",
				"logs:CreateLogStream",
				"logs:PutLogEvents",
				"s3:GetBucketLocation",
				"s3:GetObject",
				"s3:GetObjectVersion",
				"s3:PutObject",
				"secretsmanager:DescribeSecret",
				"secretsmanager:GetSecretValue",
				"sts:GetServiceBearerToken",
			},
		},
	}
	// Both stacks need the same actions; only the resources differ.
	tests = append(tests, struct {
		stack string
		want  []string
	}{stack: "plain", want: tests[0].want})

	for _, tt := range tests {
		t.Run(tt.stack, func(t *testing.T) {
			tmpl, err := Synthesize(loadStack(t, tt.stack))
			require.NoError(t, err)
			b, err := tmpl.JSON()
			require.NoError(t, err)

			extra, missing := iam.CompareActions(iam.TemplateActions(b, BuildRolePolicyID), tt.want)
			assert.Empty(t, extra)
			assert.Empty(t, missing)

			findings, err := iam.AuditTemplate(b)
			require.NoError(t, err)
			assert.Empty(t, findings)
		})
	}
}

func TestSynthesize_ReleaseBranchAndPrivateRegistry(t *testing.T) {
	tmpl, err := Synthesize(loadStack(t, "plain"))
	require.NoError(t, err)

	assert.Equal(t, "CODEBUILD_CLONE_REF", query(t, tmpl, "Resources.Pipeline.Properties.Stages.0.Actions.0.Configuration.OutputArtifactFormat"))
	assert.Equal(t, []string{"release"}, queryStrings(t, tmpl, "Resources.Pipeline.Properties.Triggers.0.GitConfiguration.Push.0.Branches.Includes"))
	assert.Contains(t, query(t, tmpl, "Resources.BuildProject.Properties.Source.BuildSpec"), "--domain-owner 222222222222")
}

func TestSynthesize_RejectsUnreleasableStacks(t *testing.T) {
	zip := false
	zipSource := loadStack(t, "gen3-aws-config")
	zipSource.FullClone = &zip
	_, err := Synthesize(zipSource)
	assert.ErrorIs(t, err, stackfile.ErrZipSource)

	noRegistry := loadStack(t, "gen3-aws-config")
	noRegistry.Registry = nil
	_, err = Synthesize(noRegistry)
	assert.ErrorContains(t, err, "Registry")
}

func TestSynthesize_Outputs(t *testing.T) {
	tmpl, err := Synthesize(loadStack(t, "gen3-aws-config"))
	require.NoError(t, err)

	assert.Equal(t, "Pipeline", query(t, tmpl, "Outputs.PipelineName.Value.Ref"))
	assert.Equal(t, "BuildProject", query(t, tmpl, "Outputs.BuildProjectName.Value.Ref"))
	assert.Equal(t, []string{"BuildRole", "Arn"}, queryStrings(t, tmpl, "Outputs.BuildRoleArn.Value.Fn::GetAtt"))
}

func TestTemplate_YAML(t *testing.T) {
	tmpl, err := Synthesize(loadStack(t, "gen3-aws-config"))
	require.NoError(t, err)

	y, err := tmpl.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(y), "AWSTemplateFormatVersion:")
	assert.Contains(t, string(y), "PipelineType: V2")
	assert.Contains(t, string(y), "Fn::GetAtt:")
}

func TestSynthesizeAll(t *testing.T) {
	stacks, err := stackfile.Parse([]byte(stacksHCL), "test.hcl")
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "out")
	paths, err := SynthesizeAll(context.Background(), stacks, dir)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	assert.Equal(t, filepath.Join(dir, "npm-codepipeline-gen3-aws-config.template.json"), paths[0])
	assert.Equal(t, filepath.Join(dir, "npm-codepipeline-plain.template.json"), paths[1])

	for _, p := range paths {
		b, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.True(t, json.Valid(b), p)
	}
}

func TestSynthesizeAll_Cancelled(t *testing.T) {
	stacks, err := stackfile.Parse([]byte(stacksHCL), "test.hcl")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = SynthesizeAll(ctx, stacks, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
}

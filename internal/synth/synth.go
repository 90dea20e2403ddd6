// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package synth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/buildspec"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/iam"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/log"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/pipeline"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/secret"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/stackfile"
)

// Logical IDs of the synthesized resources.
const (
	ArtifactBucketID     = "ArtifactBucket"
	BuildRoleID          = "BuildRole"
	BuildRolePolicyID    = "BuildRolePolicy"
	PipelineRoleID       = "PipelineRole"
	PipelineRolePolicyID = "PipelineRolePolicy"
	BuildProjectID       = "BuildProject"
	PipelineID           = "Pipeline"
)

// Logical IDs of the secret references.
const (
	GitHubTokenRef = "GithubToken"
	ConnectionRef  = "CodeStarConnection"
)

// Output keys.
const (
	OutputPipelineName = "PipelineName"
	OutputProjectName  = "BuildProjectName"
	OutputBuildRoleARN = "BuildRoleArn"
)

// Secrets returns the two secret references a stack depends on, token first.
func Secrets(s stackfile.Stack) []secret.Reference {
	return []secret.Reference{
		secret.New(GitHubTokenRef, s.Secrets.GitHubToken),
		secret.New(ConnectionRef, s.Secrets.Connection),
	}
}

// ProjectName is the CodeBuild project name for a stack.
func ProjectName(s stackfile.Stack) string {
	return s.PipelineName + "-build"
}

// BuildSpec is the release build spec for a stack.
func BuildSpec(s stackfile.Stack) buildspec.Spec {
	opts := buildspec.NpmOptions{
		RepositoryID: s.RepositoryID(),
		GitUserName:  s.Git.UserName,
		GitUserEmail: s.Git.UserEmail,
	}
	if s.Registry != nil {
		opts.Registry = &buildspec.Registry{
			Domain:      s.Registry.Domain,
			DomainOwner: s.Registry.DomainOwner,
			Repository:  s.Registry.Repository,
		}
	}
	return buildspec.NpmRelease(opts)
}

// BuildPolicy is the policy attached to the build role.
func BuildPolicy(s stackfile.Stack) iam.PolicyDocument {
	refs := Secrets(s)
	doc := iam.NewDocument(
		iam.SecretRead(refs...),
		iam.BuildLogs(ProjectName(s)),
		iam.ArtifactBucket(getAtt(ArtifactBucketID, "Arn")),
		iam.UseConnection(refs[1].DynamicReference()),
	)
	if r := s.Registry; r != nil {
		doc.Add(iam.ServiceBearerToken(), iam.RegistryToken(r.Domain, r.DomainOwner))
		doc.Add(iam.RegistryPublish(r.Domain, r.DomainOwner, r.Repository, r.Namespaces)...)
	}
	return doc
}

// PipelinePolicy is the policy attached to the pipeline role.
func PipelinePolicy(s stackfile.Stack) iam.PolicyDocument {
	return iam.NewDocument(
		iam.ArtifactBucket(getAtt(ArtifactBucketID, "Arn")),
		iam.UseConnection(Secrets(s)[1].DynamicReference()),
		iam.StartBuild(getAtt(BuildProjectID, "Arn")),
	)
}

// Pipeline is the pipeline model for a stack.
func Pipeline(s stackfile.Stack) pipeline.Pipeline {
	return pipeline.New(s.PipelineName,
		pipeline.SourceAction{
			ConnectionARN: Secrets(s)[1].DynamicReference(),
			RepositoryID:  s.RepositoryID(),
			Branch:        s.Branch,
			FullClone:     s.CloneFull(),
		},
		pipeline.BuildAction{Project: ref(BuildProjectID)},
	)
}

// Synthesize builds the template for one stack. The stack, the build spec,
// the pipeline shape and both policies are checked before anything is
// rendered.
func Synthesize(s stackfile.Stack) (*Template, error) {
	if err := s.Check(); err != nil {
		return nil, err
	}
	spec := BuildSpec(s)
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("stack %s: %w", s.Name, err)
	}
	body, err := spec.Render()
	if err != nil {
		return nil, fmt.Errorf("stack %s: %w", s.Name, err)
	}

	p := Pipeline(s)
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("stack %s: %w", s.Name, err)
	}

	buildPolicy := BuildPolicy(s)
	pipelinePolicy := PipelinePolicy(s)
	var findings []string
	for _, f := range append(iam.Audit(BuildRolePolicyID, buildPolicy), iam.Audit(PipelineRolePolicyID, pipelinePolicy)...) {
		findings = append(findings, f.String())
	}
	if len(findings) > 0 {
		return nil, fmt.Errorf("stack %s: least-privilege audit failed: %s", s.Name, strings.Join(findings, "; "))
	}

	t := newTemplate(fmt.Sprintf("npm release pipeline for %s (%s)", s.RepositoryID(), s.Branch))

	t.add(ArtifactBucketID, Resource{
		Type: "AWS::S3::Bucket",
		Properties: map[string]any{
			"BucketEncryption": map[string]any{
				"ServerSideEncryptionConfiguration": []any{
					map[string]any{"ServerSideEncryptionByDefault": map[string]any{"SSEAlgorithm": "AES256"}},
				},
			},
			"PublicAccessBlockConfiguration": map[string]any{
				"BlockPublicAcls":       true,
				"BlockPublicPolicy":     true,
				"IgnorePublicAcls":      true,
				"RestrictPublicBuckets": true,
			},
		},
	})

	t.add(BuildRoleID, role(iam.AssumeRole("codebuild.amazonaws.com")))
	t.add(BuildRolePolicyID, policy(s.PipelineName+"-build", BuildRoleID, buildPolicy))
	t.add(PipelineRoleID, role(iam.AssumeRole("codepipeline.amazonaws.com")))
	t.add(PipelineRolePolicyID, policy(s.PipelineName+"-pipeline", PipelineRoleID, pipelinePolicy))

	t.add(BuildProjectID, Resource{
		Type:      "AWS::CodeBuild::Project",
		DependsOn: []string{BuildRolePolicyID},
		Properties: map[string]any{
			"Name":        ProjectName(s),
			"ServiceRole": getAtt(BuildRoleID, "Arn"),
			"Source":      map[string]any{"Type": "CODEPIPELINE", "BuildSpec": body},
			"Artifacts":   map[string]any{"Type": "CODEPIPELINE"},
			"Environment": map[string]any{
				"Type":                 "LINUX_CONTAINER",
				"ComputeType":          "BUILD_GENERAL1_SMALL",
				"Image":                s.BuildImage,
				"EnvironmentVariables": environment(s),
			},
		},
	})

	t.add(PipelineID, Resource{
		Type:      "AWS::CodePipeline::Pipeline",
		DependsOn: []string{PipelineRolePolicyID},
		Properties: map[string]any{
			"Name":          s.PipelineName,
			"PipelineType":  "V2",
			"RoleArn":       getAtt(PipelineRoleID, "Arn"),
			"ArtifactStore": map[string]any{"Type": "S3", "Location": ref(ArtifactBucketID)},
			"Stages":        stages(p),
			"Triggers": []any{map[string]any{
				"ProviderType": "CodeStarSourceConnection",
				"GitConfiguration": map[string]any{
					"SourceActionName": pipeline.SourceActionName,
					"Push": []any{map[string]any{
						"Branches": map[string]any{"Includes": []string{s.Branch}},
					}},
				},
			}},
		},
	})

	t.Outputs[OutputPipelineName] = Output{Description: "Release pipeline", Value: ref(PipelineID)}
	t.Outputs[OutputProjectName] = Output{Description: "Release build project", Value: ref(BuildProjectID)}
	t.Outputs[OutputBuildRoleARN] = Output{Description: "Role the release build runs as", Value: getAtt(BuildRoleID, "Arn")}

	log.Debugf("template synthesized: stack=%s resources=%d", s.Name, len(t.Resources))
	return t, nil
}

// SynthesizeAll writes <dir>/<stack name>.template.json for every stack and
// returns the paths in stack order.
func SynthesizeAll(ctx context.Context, stacks []stackfile.Stack, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	paths := make([]string, len(stacks))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, s := range stacks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := Synthesize(s)
			if err != nil {
				return err
			}
			b, err := t.JSON()
			if err != nil {
				return err
			}
			path := filepath.Join(dir, s.StackName+".template.json")
			if err := os.WriteFile(path, b, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func role(trust iam.PolicyDocument) Resource {
	return Resource{
		Type:       "AWS::IAM::Role",
		Properties: map[string]any{"AssumeRolePolicyDocument": trust},
	}
}

func policy(name, roleID string, doc iam.PolicyDocument) Resource {
	return Resource{
		Type: "AWS::IAM::Policy",
		Properties: map[string]any{
			"PolicyName":     name,
			"PolicyDocument": doc,
			"Roles":          []any{ref(roleID)},
		},
	}
}

func environment(s stackfile.Stack) []any {
	return []any{
		map[string]any{
			"Name":  buildspec.TokenVariable,
			"Type":  "SECRETS_MANAGER",
			"Value": s.Secrets.GitHubToken,
		},
		map[string]any{
			"Name":  buildspec.AccountVariable,
			"Type":  "PLAINTEXT",
			"Value": map[string]any{"Ref": "AWS::AccountId"},
		},
	}
}

func stages(p pipeline.Pipeline) []any {
	out := make([]any, 0, len(p.Stages))
	for _, stage := range p.Stages {
		actions := make([]any, 0, len(stage.Actions))
		for _, a := range stage.Actions {
			action := map[string]any{
				"Name":          a.Name(),
				"ActionTypeId":  a.Type(),
				"Configuration": a.Configuration(),
				"RunOrder":      1,
			}
			if in := artifacts(a.Inputs()); len(in) > 0 {
				action["InputArtifacts"] = in
			}
			if out := artifacts(a.Outputs()); len(out) > 0 {
				action["OutputArtifacts"] = out
			}
			actions = append(actions, action)
		}
		out = append(out, map[string]any{"Name": stage.Name, "Actions": actions})
	}
	return out
}

func artifacts(names []string) []any {
	out := make([]any, 0, len(names))
	for _, n := range names {
		out = append(out, map[string]string{"Name": n})
	}
	return out
}

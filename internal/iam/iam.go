// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

// Package iam builds the policy statements granted to the pipeline's roles and
// audits them against the least-privilege boundary of the release build.
package iam

import (
	"github.com/AustralianBioCommons/npm-codepipeline/internal/secret"
)

// PolicyVersion is the IAM policy language version.
const PolicyVersion = "2012-10-17"

// Effect is Allow or Deny. Only Allow is ever granted.
type Effect string

const (
	Allow Effect = "Allow"
	Deny  Effect = "Deny"
)

// Resource values are either ARN strings or CloudFormation intrinsic maps.
type Resource = any

// Statement is one (effect, actions, resources, conditions) tuple.
type Statement struct {
	Sid       string                       `json:"Sid,omitempty" yaml:"Sid,omitempty"`
	Effect    Effect                       `json:"Effect" yaml:"Effect"`
	Principal map[string]string            `json:"Principal,omitempty" yaml:"Principal,omitempty"`
	Action    []string                     `json:"Action" yaml:"Action"`
	Resource  []Resource                   `json:"Resource,omitempty" yaml:"Resource,omitempty"`
	Condition map[string]map[string]string `json:"Condition,omitempty" yaml:"Condition,omitempty"`
}

// PolicyDocument is the union of statements attached to a role.
type PolicyDocument struct {
	Version   string      `json:"Version" yaml:"Version"`
	Statement []Statement `json:"Statement" yaml:"Statement"`
}

// NewDocument returns a document holding statements.
func NewDocument(statements ...Statement) PolicyDocument {
	return PolicyDocument{Version: PolicyVersion, Statement: statements}
}

// Add appends statements. Documents only grow.
func (d *PolicyDocument) Add(statements ...Statement) {
	d.Statement = append(d.Statement, statements...)
}

// Actions returns every action granted, in statement order.
func (d PolicyDocument) Actions() []string {
	var actions []string
	for _, s := range d.Statement {
		actions = append(actions, s.Action...)
	}
	return actions
}

// AssumeRole is the trust policy letting service assume a role.
func AssumeRole(service string) PolicyDocument {
	return NewDocument(Statement{
		Effect:    Allow,
		Principal: map[string]string{"Service": service},
		Action:    []string{"sts:AssumeRole"},
	})
}

// SecretRead lets the holder read the named secrets.
func SecretRead(refs ...secret.Reference) Statement {
	resources := make([]Resource, 0, len(refs))
	for _, r := range refs {
		resources = append(resources, r.ARNPattern())
	}
	return Statement{
		Sid:      "ReadSecrets",
		Effect:   Allow,
		Action:   []string{"secretsmanager:GetSecretValue", "secretsmanager:DescribeSecret"},
		Resource: resources,
	}
}

// ServiceBearerToken lets the holder request a bearer token, but only for
// CodeArtifact. It is the one statement allowed a wildcard resource.
func ServiceBearerToken() Statement {
	return Statement{
		Sid:      ServiceBearerTokenSid,
		Effect:   Allow,
		Action:   []string{"sts:GetServiceBearerToken"},
		Resource: []Resource{"*"},
		Condition: map[string]map[string]string{
			"StringEquals": {"sts:AWSServiceName": "codeartifact.amazonaws.com"},
		},
	}
}

// ServiceBearerTokenSid identifies the scoped wildcard statement.
const ServiceBearerTokenSid = "CodeArtifactBearerToken"

// RegistryToken lets the holder obtain a CodeArtifact authorization token for
// domain.
func RegistryToken(domain, owner string) Statement {
	return Statement{
		Sid:      "CodeArtifactAuthorizationToken",
		Effect:   Allow,
		Action:   []string{"codeartifact:GetAuthorizationToken"},
		Resource: []Resource{sub("arn:${AWS::Partition}:codeartifact:${AWS::Region}:" + accountOr(owner) + ":domain/" + domain)},
	}
}

// RegistryPublish lets the holder read the repository and publish npm packages
// under each namespace. Namespaces are npm scopes without the @.
func RegistryPublish(domain, owner, repository string, namespaces []string) []Statement {
	account := accountOr(owner)
	repoARN := sub("arn:${AWS::Partition}:codeartifact:${AWS::Region}:" + account + ":repository/" + domain + "/" + repository)

	packages := make([]Resource, 0, len(namespaces))
	for _, ns := range namespaces {
		packages = append(packages, sub("arn:${AWS::Partition}:codeartifact:${AWS::Region}:"+account+":package/"+domain+"/"+repository+"/npm/"+ns+"/*"))
	}

	statements := []Statement{{
		Sid:      "CodeArtifactRepository",
		Effect:   Allow,
		Action:   []string{"codeartifact:GetRepositoryEndpoint", "codeartifact:ReadFromRepository"},
		Resource: []Resource{repoARN},
	}}
	if len(packages) > 0 {
		statements = append(statements, Statement{
			Sid:      "CodeArtifactPublish",
			Effect:   Allow,
			Action:   []string{"codeartifact:ListPackages", "codeartifact:PublishPackageVersion", "codeartifact:PutPackageMetadata"},
			Resource: packages,
		})
	}
	return statements
}

// BuildLogs lets CodeBuild write its log group.
func BuildLogs(projectName any) Statement {
	return Statement{
		Sid:    "BuildLogs",
		Effect: Allow,
		Action: []string{"logs:CreateLogGroup", "logs:CreateLogStream", "logs:PutLogEvents"},
		Resource: []Resource{
			map[string]any{"Fn::Sub": []any{
				"arn:${AWS::Partition}:logs:${AWS::Region}:${AWS::AccountId}:log-group:/aws/codebuild/${Project}",
				map[string]any{"Project": projectName},
			}},
			map[string]any{"Fn::Sub": []any{
				"arn:${AWS::Partition}:logs:${AWS::Region}:${AWS::AccountId}:log-group:/aws/codebuild/${Project}:*",
				map[string]any{"Project": projectName},
			}},
		},
	}
}

// ArtifactBucket grants object access to the pipeline's artifact bucket.
// bucketARN is usually a GetAtt on the bucket resource.
func ArtifactBucket(bucketARN any) Statement {
	return Statement{
		Sid:    "ArtifactBucket",
		Effect: Allow,
		Action: []string{"s3:GetObject", "s3:GetObjectVersion", "s3:GetBucketLocation", "s3:PutObject"},
		Resource: []Resource{
			bucketARN,
			map[string]any{"Fn::Join": []any{"", []any{bucketARN, "/*"}}},
		},
	}
}

// UseConnection lets the holder use the CodeStar connection.
func UseConnection(connectionARN any) Statement {
	return Statement{
		Sid:      "UseConnection",
		Effect:   Allow,
		Action:   []string{"codestar-connections:UseConnection"},
		Resource: []Resource{connectionARN},
	}
}

// StartBuild lets CodePipeline run and poll the build project.
func StartBuild(projectARN any) Statement {
	return Statement{
		Sid:      "StartBuild",
		Effect:   Allow,
		Action:   []string{"codebuild:BatchGetBuilds", "codebuild:StartBuild"},
		Resource: []Resource{projectARN},
	}
}

func sub(s string) map[string]any {
	return map[string]any{"Fn::Sub": s}
}

func accountOr(owner string) string {
	if owner != "" {
		return owner
	}
	return "${AWS::AccountId}"
}

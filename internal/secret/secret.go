// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

// Package secret names the pre-existing Secrets Manager secrets the pipeline
// depends on. Values are never read: templates carry dynamic references and
// IAM grants carry partial ARNs, and the preflight lookup only describes.
package secret

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/log"
)

// ErrNotFound is returned by Resolve when no secret carries the name.
var ErrNotFound = errors.New("secret not found")

// Reference is a secret looked up by name.
type Reference struct {
	// LogicalID names the reference inside a template, e.g. GithubToken.
	LogicalID string
	// Name is the Secrets Manager secret name, e.g. github-token.
	Name string
}

// New returns a Reference.
func New(logicalID, name string) Reference {
	return Reference{LogicalID: logicalID, Name: name}
}

// DynamicReference is the CloudFormation form resolved at deploy time.
func (r Reference) DynamicReference() string {
	return "{{resolve:secretsmanager:" + r.Name + "}}"
}

// ARNPattern matches the secret's ARN when only its name is known. Secrets
// Manager appends a dash and six random characters to every ARN.
func (r Reference) ARNPattern() map[string]any {
	return map[string]any{
		"Fn::Sub": "arn:${AWS::Partition}:secretsmanager:${AWS::Region}:${AWS::AccountId}:secret:" + r.Name + "-??????",
	}
}

func (r Reference) String() string {
	return r.LogicalID + "(" + r.Name + ")"
}

// DescribeAPI is the slice of the Secrets Manager client Resolve needs.
type DescribeAPI interface {
	DescribeSecret(ctx context.Context, in *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error)
}

// Resolver checks that referenced secrets exist.
type Resolver struct {
	client DescribeAPI
}

// NewResolver returns a Resolver backed by client.
func NewResolver(client DescribeAPI) *Resolver {
	return &Resolver{client: client}
}

// Resolve returns the full ARN of the secret named by ref. Secrets scheduled
// for deletion count as missing.
func (r *Resolver) Resolve(ctx context.Context, ref Reference) (string, error) {
	out, err := r.client.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{
		SecretId: aws.String(ref.Name),
	})
	if err != nil {
		var nf *types.ResourceNotFoundException
		if errors.As(err, &nf) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, ref.Name)
		}
		return "", fmt.Errorf("failed to describe secret %s: %w", ref.Name, err)
	}

	if out.DeletedDate != nil {
		return "", fmt.Errorf("%w: %s is scheduled for deletion", ErrNotFound, ref.Name)
	}

	arn := aws.ToString(out.ARN)
	log.Debugf("secret resolved: ref=%s arn=%s", ref, arn)
	return arn, nil
}

// ResolveAll resolves each reference in order and stops at the first failure.
func (r *Resolver) ResolveAll(ctx context.Context, refs ...Reference) (map[string]string, error) {
	arns := make(map[string]string, len(refs))
	for _, ref := range refs {
		arn, err := r.Resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		arns[ref.LogicalID] = arn
	}
	return arns, nil
}

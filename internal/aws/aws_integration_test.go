// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

//go:build integration
// +build integration

package aws

import (
	"context"
	"os"
	"testing"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIntegration_DescribeSecret looks up the GitHub token secret by name in
// the account the ambient credentials point at. Set NPMPIPE_IT_SECRET to the
// secret name.
func TestIntegration_DescribeSecret(t *testing.T) {
	name := os.Getenv("NPMPIPE_IT_SECRET")
	if name == "" {
		t.Skip("NPMPIPE_IT_SECRET not set")
	}

	cfg, err := LoadAWSConfig(context.Background())
	require.NoError(t, err)

	out, err := NewClients(cfg).SecretsManager.DescribeSecret(context.Background(), &secretsmanager.DescribeSecretInput{
		SecretId: awsv2.String(name),
	})
	require.NoError(t, err)
	assert.Contains(t, awsv2.ToString(out.ARN), ":secret:"+name+"-")
}

// TestIntegration_ValidateTemplate asks CloudFormation to validate a minimal
// template.
func TestIntegration_ValidateTemplate(t *testing.T) {
	cfg, err := LoadAWSConfig(context.Background())
	require.NoError(t, err)

	_, err = NewClients(cfg).CloudFormation.ValidateTemplate(context.Background(), &cloudformation.ValidateTemplateInput{
		TemplateBody: awsv2.String(`{"Resources":{"Bucket":{"Type":"AWS::S3::Bucket"}}}`),
	})
	assert.NoError(t, err)
}

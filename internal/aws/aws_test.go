// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package aws

import (
	"context"
	"errors"
	"testing"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps the developer's shared config out of the test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("AWS_CONFIG_FILE", t.TempDir()+"/config")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", t.TempDir()+"/credentials")
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_DEFAULT_REGION", "")
}

func TestOptions(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		profile string
		region  string
	}{
		{name: "none"},
		{name: "profile", opts: []Option{WithProfile("biocommons")}, profile: "biocommons"},
		{name: "region", opts: []Option{WithRegion("ap-southeast-2")}, region: "ap-southeast-2"},
		{
			name:    "last wins",
			opts:    []Option{WithRegion("us-east-1"), WithProfile("a"), WithRegion("ap-southeast-2")},
			profile: "a",
			region:  "ap-southeast-2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var o options
			for _, opt := range tt.opts {
				opt(&o)
			}
			assert.Equal(t, tt.profile, o.profile)
			assert.Equal(t, tt.region, o.region)
		})
	}
}

func TestWithRetryer(t *testing.T) {
	var o options
	WithRetryer(func() awsv2.Retryer { return retry.NewStandard() })(&o)

	require.NotNil(t, o.retryer)
	assert.NotNil(t, o.retryer())
}

func TestLoadAWSConfig_WithRegion(t *testing.T) {
	isolate(t)

	cfg, err := LoadAWSConfig(context.Background(), WithRegion("ap-southeast-2"))
	require.NoError(t, err)
	assert.Equal(t, "ap-southeast-2", cfg.Region)
}

func TestLoadAWSConfig_UnknownProfile(t *testing.T) {
	isolate(t)

	_, err := LoadAWSConfig(context.Background(), WithProfile("npmpipe-no-such-profile"))
	assert.Error(t, err)
}

func TestNewClients(t *testing.T) {
	isolate(t)

	cfg, err := LoadAWSConfig(context.Background(), WithRegion("ap-southeast-2"))
	require.NoError(t, err)

	c := NewClients(cfg)
	assert.NotNil(t, c.CloudFormation)
	assert.NotNil(t, c.CodePipeline)
	assert.NotNil(t, c.S3)
	assert.NotNil(t, c.SecretsManager)
	assert.Equal(t, "ap-southeast-2", c.S3.Options().Region)
}

type fakeCaller struct {
	account string
	err     error
	calls   int
}

func (f *fakeCaller) GetCallerIdentity(_ context.Context, _ *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &sts.GetCallerIdentityOutput{Account: awsv2.String(f.account)}, nil
}

func TestCheckAccount(t *testing.T) {
	tests := []struct {
		name    string
		caller  *fakeCaller
		account string
		wantErr string
		calls   int
	}{
		{name: "unchecked", caller: &fakeCaller{account: "111111111111"}},
		{name: "match", caller: &fakeCaller{account: "111111111111"}, account: "111111111111", calls: 1},
		{name: "mismatch", caller: &fakeCaller{account: "222222222222"}, account: "111111111111", wantErr: "account 222222222222", calls: 1},
		{name: "sts error", caller: &fakeCaller{err: errors.New("expired")}, account: "111111111111", wantErr: "expired", calls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckAccount(context.Background(), tt.caller, tt.account)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.calls, tt.caller.calls)
		})
	}
}

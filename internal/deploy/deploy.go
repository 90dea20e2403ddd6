// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

// Package deploy provisions synthesized templates as CloudFormation stacks.
package deploy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/log"
	"github.com/AustralianBioCommons/npm-codepipeline/internal/secret"
)

// MaxTemplateBody is the largest template CloudFormation accepts inline.
const MaxTemplateBody = 51200

// DefaultMaxWait bounds how long Deploy waits for a stack to settle.
const DefaultMaxWait = 30 * time.Minute

var (
	// ErrNotDeployed is returned for stacks that do not exist.
	ErrNotDeployed = errors.New("stack not deployed")
	// ErrNoStaging is returned when a template is too large to send inline
	// and no staging bucket is configured.
	ErrNoStaging = errors.New("template exceeds inline limit and no staging bucket is set")
)

// Operation is what Deploy did.
type Operation string

const (
	Created   Operation = "created"
	Updated   Operation = "updated"
	Unchanged Operation = "unchanged"
)

// CloudFormationAPI is the slice of the CloudFormation client used here.
type CloudFormationAPI interface {
	cloudformation.DescribeStacksAPIClient
	CreateStack(ctx context.Context, in *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	UpdateStack(ctx context.Context, in *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error)
	GetTemplate(ctx context.Context, in *cloudformation.GetTemplateInput, optFns ...func(*cloudformation.Options)) (*cloudformation.GetTemplateOutput, error)
}

// UploadAPI stages oversized templates.
type UploadAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// SecretResolver checks that the pipeline's secrets exist.
type SecretResolver interface {
	ResolveAll(ctx context.Context, refs ...secret.Reference) (map[string]string, error)
}

// Deployer creates or updates stacks.
type Deployer struct {
	CloudFormation CloudFormationAPI
	// S3 and StagingBucket are only needed for oversized templates.
	S3            UploadAPI
	StagingBucket string
	MaxWait       time.Duration
}

// Result reports one deployment.
type Result struct {
	StackName string            `json:"stack_name" yaml:"stack_name"`
	Operation Operation         `json:"operation" yaml:"operation"`
	Status    string            `json:"status" yaml:"status"`
	Outputs   map[string]string `json:"outputs" yaml:"outputs"`
}

// Preflight resolves every secret by name so a missing one fails before
// CloudFormation is touched.
func Preflight(ctx context.Context, r SecretResolver, refs ...secret.Reference) error {
	arns, err := r.ResolveAll(ctx, refs...)
	if err != nil {
		return fmt.Errorf("preflight failed: %w", err)
	}
	log.Debugf("preflight passed: secrets=%d", len(arns))
	return nil
}

// Deploy creates stackName from body, or updates it when it exists, and
// waits for the stack to settle. An update with no changes is not an error.
func (d *Deployer) Deploy(ctx context.Context, stackName string, body []byte, tags map[string]string) (Result, error) {
	res := Result{StackName: stackName}

	current, err := d.describe(ctx, stackName)
	exists := err == nil
	if err != nil && !errors.Is(err, ErrNotDeployed) {
		return res, err
	}
	if exists && current.StackStatus == types.StackStatusRollbackComplete {
		return res, fmt.Errorf("stack %s is %s and must be deleted before it can be deployed", stackName, current.StackStatus)
	}

	templateBody, templateURL, err := d.stage(ctx, stackName, body)
	if err != nil {
		return res, err
	}

	token := "npmpipe-" + uuid.NewString()
	cfnTags := toTags(tags)
	maxWait := d.MaxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	describe := &cloudformation.DescribeStacksInput{StackName: awsv2.String(stackName)}

	if !exists {
		log.Infof("creating stack %s", stackName)
		_, err := d.CloudFormation.CreateStack(ctx, &cloudformation.CreateStackInput{
			StackName:          awsv2.String(stackName),
			TemplateBody:       templateBody,
			TemplateURL:        templateURL,
			Capabilities:       []types.Capability{types.CapabilityCapabilityNamedIam},
			ClientRequestToken: awsv2.String(token),
			Tags:               cfnTags,
		})
		if err != nil {
			return res, fmt.Errorf("failed to create stack %s: %w", stackName, err)
		}
		if err := cloudformation.NewStackCreateCompleteWaiter(d.CloudFormation).Wait(ctx, describe, maxWait); err != nil {
			return res, fmt.Errorf("stack %s did not finish creating: %w", stackName, err)
		}
		res.Operation = Created
	} else {
		log.Infof("updating stack %s", stackName)
		_, err := d.CloudFormation.UpdateStack(ctx, &cloudformation.UpdateStackInput{
			StackName:          awsv2.String(stackName),
			TemplateBody:       templateBody,
			TemplateURL:        templateURL,
			Capabilities:       []types.Capability{types.CapabilityCapabilityNamedIam},
			ClientRequestToken: awsv2.String(token),
			Tags:               cfnTags,
		})
		switch {
		case isNoUpdates(err):
			log.Infof("stack %s is up to date", stackName)
			res.Operation = Unchanged
		case err != nil:
			return res, fmt.Errorf("failed to update stack %s: %w", stackName, err)
		default:
			if err := cloudformation.NewStackUpdateCompleteWaiter(d.CloudFormation).Wait(ctx, describe, maxWait); err != nil {
				return res, fmt.Errorf("stack %s did not finish updating: %w", stackName, err)
			}
			res.Operation = Updated
		}
	}

	final, err := d.describe(ctx, stackName)
	if err != nil {
		return res, err
	}
	res.Status = string(final.StackStatus)
	res.Outputs = Outputs(final)
	return res, nil
}

// Fetch returns the template body of a deployed stack as originally
// submitted.
func (d *Deployer) Fetch(ctx context.Context, stackName string) ([]byte, error) {
	out, err := d.CloudFormation.GetTemplate(ctx, &cloudformation.GetTemplateInput{
		StackName:     awsv2.String(stackName),
		TemplateStage: types.TemplateStageOriginal,
	})
	if err != nil {
		if isMissing(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotDeployed, stackName)
		}
		return nil, fmt.Errorf("failed to fetch template of %s: %w", stackName, err)
	}
	return []byte(awsv2.ToString(out.TemplateBody)), nil
}

// Outputs flattens a stack's outputs into key/value pairs.
func Outputs(s types.Stack) map[string]string {
	out := make(map[string]string, len(s.Outputs))
	for _, o := range s.Outputs {
		out[awsv2.ToString(o.OutputKey)] = awsv2.ToString(o.OutputValue)
	}
	return out
}

func (d *Deployer) describe(ctx context.Context, stackName string) (types.Stack, error) {
	out, err := d.CloudFormation.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: awsv2.String(stackName),
	})
	if err != nil {
		if isMissing(err) {
			return types.Stack{}, fmt.Errorf("%w: %s", ErrNotDeployed, stackName)
		}
		return types.Stack{}, fmt.Errorf("failed to describe stack %s: %w", stackName, err)
	}
	if len(out.Stacks) == 0 {
		return types.Stack{}, fmt.Errorf("%w: %s", ErrNotDeployed, stackName)
	}
	return out.Stacks[0], nil
}

// stage returns either the inline body or the URL of an uploaded copy.
func (d *Deployer) stage(ctx context.Context, stackName string, body []byte) (*string, *string, error) {
	if len(body) <= MaxTemplateBody {
		return awsv2.String(string(body)), nil, nil
	}
	if d.S3 == nil || d.StagingBucket == "" {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrNoStaging, len(body))
	}

	key := fmt.Sprintf("npmpipe/%s/%s.template.json", stackName, uuid.NewString())
	_, err := d.S3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      awsv2.String(d.StagingBucket),
		Key:         awsv2.String(key),
		Body:        bytes.NewReader(body),
		ContentType: awsv2.String("application/json"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stage template in s3://%s/%s: %w", d.StagingBucket, key, err)
	}
	log.Debugf("template staged: bucket=%s key=%s bytes=%d", d.StagingBucket, key, len(body))
	return nil, awsv2.String(fmt.Sprintf("https://%s.s3.amazonaws.com/%s", d.StagingBucket, key)), nil
}

func toTags(tags map[string]string) []types.Tag {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]types.Tag, 0, len(keys))
	for _, k := range keys {
		out = append(out, types.Tag{Key: awsv2.String(k), Value: awsv2.String(tags[k])})
	}
	return out
}

func isNoUpdates(err error) bool {
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "ValidationError" &&
		strings.Contains(ae.ErrorMessage(), "No updates are to be performed")
}

func isMissing(err error) bool {
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "ValidationError" &&
		strings.Contains(ae.ErrorMessage(), "does not exist")
}

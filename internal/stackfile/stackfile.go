// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package stackfile

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/AustralianBioCommons/npm-codepipeline/internal/log"
)

// DefaultFile is the stack file looked up in the working directory.
const DefaultFile = "npmpipe.hcl"

const (
	DefaultBranch       = "main"
	DefaultBuildImage   = "aws/codebuild/standard:7.0"
	DefaultTokenSecret  = "github-token"
	DefaultConnSecret   = "codestar-connection-arn"
	DefaultGitUserName  = "npmpipe-release-bot"
	DefaultGitUserEmail = "npmpipe-release-bot@users.noreply.github.com"
)

// ErrNoStack is returned when a named stack is not declared.
var ErrNoStack = errors.New("no such stack")

// ErrZipSource rejects full_clone = false.
var ErrZipSource = errors.New("full_clone = false leaves the build without git history")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Stack is one deployment instance of the pipeline.
type Stack struct {
	Name         string    `hcl:"name,label" validate:"required"`
	Owner        string    `hcl:"owner" validate:"required"`
	Repo         string    `hcl:"repo" validate:"required"`
	Branch       string    `hcl:"branch,optional" validate:"required"`
	Account      string    `hcl:"account,optional" validate:"omitempty,len=12,numeric"`
	Region       string    `hcl:"region,optional"`
	StackName    string    `hcl:"stack_name,optional"`
	PipelineName string    `hcl:"pipeline_name,optional"`
	BuildImage   string    `hcl:"build_image,optional" validate:"required"`
	FullClone    *bool     `hcl:"full_clone,optional"`
	Secrets      *Secrets  `hcl:"secrets,block"`
	Registry     *Registry `hcl:"registry,block" validate:"required"`
	Git          *Git      `hcl:"git,block"`
}

// Secrets names the two pre-existing Secrets Manager secrets.
type Secrets struct {
	GitHubToken string `hcl:"github_token,optional" validate:"required"`
	Connection  string `hcl:"connection,optional" validate:"required"`
}

// Registry is the CodeArtifact repository the package is published to.
type Registry struct {
	Domain      string   `hcl:"domain" validate:"required"`
	DomainOwner string   `hcl:"domain_owner,optional" validate:"omitempty,len=12,numeric"`
	Repository  string   `hcl:"repository" validate:"required"`
	Namespaces  []string `hcl:"namespaces,optional" validate:"min=1,dive,required"`
}

// Git is the identity automated release commits are authored with.
type Git struct {
	UserName  string `hcl:"user_name,optional" validate:"required"`
	UserEmail string `hcl:"user_email,optional" validate:"required,email"`
}

type file struct {
	Stacks []Stack `hcl:"stack,block"`
}

// Load parses and validates the stack file at path.
func Load(path string) ([]Stack, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stack file: %w", err)
	}
	return Parse(src, path)
}

// Parse decodes HCL source. filename is used in diagnostics only.
func Parse(src []byte, filename string) ([]Stack, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %s", filename, diags.Error())
	}

	var decoded file
	if diags := gohcl.DecodeBody(f.Body, evalContext(), &decoded); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode %s: %s", filename, diags.Error())
	}

	seen := make(map[string]bool, len(decoded.Stacks))
	for i := range decoded.Stacks {
		s := &decoded.Stacks[i]
		if seen[s.Name] {
			return nil, fmt.Errorf("%s: stack %q declared twice", filename, s.Name)
		}
		seen[s.Name] = true

		s.applyDefaults()
		if err := s.Check(); err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		log.Debugf("stack loaded: name=%s repo=%s branch=%s", s.Name, s.RepositoryID(), s.Branch)
	}

	return decoded.Stacks, nil
}

// Find returns the stack named name.
func Find(stacks []Stack, name string) (Stack, error) {
	for _, s := range stacks {
		if s.Name == name {
			return s, nil
		}
	}
	return Stack{}, fmt.Errorf("%w: %s", ErrNoStack, name)
}

// Names lists stack names in declaration order.
func Names(stacks []Stack) []string {
	names := make([]string, 0, len(stacks))
	for _, s := range stacks {
		names = append(names, s.Name)
	}
	return names
}

func (s *Stack) applyDefaults() {
	if s.Branch == "" {
		s.Branch = DefaultBranch
	}
	if s.BuildImage == "" {
		s.BuildImage = DefaultBuildImage
	}
	if s.FullClone == nil {
		fullClone := true
		s.FullClone = &fullClone
	}
	if s.Secrets == nil {
		s.Secrets = &Secrets{}
	}
	if s.Secrets.GitHubToken == "" {
		s.Secrets.GitHubToken = DefaultTokenSecret
	}
	if s.Secrets.Connection == "" {
		s.Secrets.Connection = DefaultConnSecret
	}
	if s.Git == nil {
		s.Git = &Git{}
	}
	if s.Git.UserName == "" {
		s.Git.UserName = DefaultGitUserName
	}
	if s.Git.UserEmail == "" {
		s.Git.UserEmail = DefaultGitUserEmail
	}
	if s.StackName == "" {
		s.StackName = "npm-codepipeline-" + slug.Make(s.Name)
	}
	if s.PipelineName == "" {
		s.PipelineName = "npm-publish-" + slug.Make(s.Repo)
	}
}

// RepositoryID is the owner/repo identifier CodeStar connections expect.
func (s Stack) RepositoryID() string {
	return s.Owner + "/" + s.Repo
}

// CloneFull reports whether the source action should hand CodeBuild a full
// git clone instead of a zip snapshot.
func (s Stack) CloneFull() bool {
	return s.FullClone == nil || *s.FullClone
}

// Check validates a stack that already has its defaults applied. The
// release steps check out the triggering commit and read tag history, so a
// zip snapshot source is rejected, and publishing needs a registry.
func (s Stack) Check() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("stack %q: %w", s.Name, err)
	}
	if !s.CloneFull() {
		return fmt.Errorf("stack %q: %w", s.Name, ErrZipSource)
	}
	return nil
}

// evalContext exposes the functions stack files may call.
func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{},
		Functions: map[string]function.Function{
			"env":      EnvFunc,
			"coalesce": stdlib.CoalesceFunc,
			"format":   stdlib.FormatFunc,
			"join":     stdlib.JoinFunc,
			"lower":    stdlib.LowerFunc,
			"replace":  stdlib.ReplaceFunc,
			"upper":    stdlib.UpperFunc,
		},
	}
}

// EnvFunc reads an environment variable. An optional second argument is
// returned when the variable is unset.
var EnvFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "name", Type: cty.String},
	},
	VarParam: &function.Parameter{Name: "default", Type: cty.String},
	Type:     function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		if v, ok := os.LookupEnv(args[0].AsString()); ok {
			return cty.StringVal(v), nil
		}
		if len(args) > 1 {
			return args[1], nil
		}
		return cty.StringVal(""), nil
	},
})

// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package buildspec

import (
	"fmt"
	"strconv"
)

// Names of the release steps, in the order they run.
const (
	StepIdentity      = "configure-git-identity"
	StepCheckout      = "checkout-resolved-commit"
	StepInstall       = "install-dependencies"
	StepCompile       = "build-package"
	StepReleasePR     = "release-pr"
	StepGitHubRelease = "github-release"
	StepVersion       = "version-from-git"
	StepPrepare       = "prepare"
	StepRegistryLogin = "registry-login"
	StepPublish       = "publish"
)

// TokenVariable is the environment variable the GitHub token is injected as.
const TokenVariable = "GITHUB_TOKEN"

// AccountVariable carries the account id when no registry owner is set.
const AccountVariable = "AWS_ACCOUNT_ID"

// NpmOptions parameterizes NpmRelease.
type NpmOptions struct {
	// RepositoryID is owner/repo, handed to release-please.
	RepositoryID string
	GitUserName  string
	GitUserEmail string
	// NodeVersion is the nodejs runtime version, "20" when empty.
	NodeVersion string
	// Registry, when set, logs npm into CodeArtifact before publishing.
	Registry *Registry
}

// Registry is the CodeArtifact repository npm publishes to.
type Registry struct {
	Domain      string
	DomainOwner string
	Repository  string
}

// NpmRelease returns the tag-driven release sequence: identity, exact
// checkout, deterministic install, build, release PR, GitHub release, version
// from the latest tag, prepare, publish.
func NpmRelease(opts NpmOptions) Spec {
	node := opts.NodeVersion
	if node == "" {
		node = "20"
	}
	releasePlease := func(sub string) string {
		return fmt.Sprintf("npx release-please %s --token=$%s --repo-url=%s", sub, TokenVariable, opts.RepositoryID)
	}

	steps := []Step{
		{
			Name:  StepIdentity,
			Phase: PhaseInstall,
			Commands: []string{
				"git config --global user.name " + strconv.Quote(opts.GitUserName),
				"git config --global user.email " + strconv.Quote(opts.GitUserEmail),
			},
		},
		{
			Name:     StepCheckout,
			Phase:    PhaseInstall,
			Commands: []string{"git checkout $CODEBUILD_RESOLVED_SOURCE_VERSION"},
		},
		{Name: StepInstall, Phase: PhaseInstall, Commands: []string{"npm ci"}},
		{Name: StepCompile, Phase: PhaseBuild, Commands: []string{"npm run build"}},
		{Name: StepReleasePR, Phase: PhaseBuild, Commands: []string{releasePlease("release-pr")}},
		{Name: StepGitHubRelease, Phase: PhaseBuild, Commands: []string{releasePlease("github-release")}},
		// release-please has usually bumped package.json already, so the
		// version may not change.
		{Name: StepVersion, Phase: PhaseBuild, Commands: []string{"npm version from-git --allow-same-version --no-git-tag-version"}},
		{Name: StepPrepare, Phase: PhaseBuild, Commands: []string{"npm run prepare"}},
	}

	// Login rewrites the npm registry, so it goes after everything that
	// fetches from the public registry.
	if r := opts.Registry; r != nil {
		owner := r.DomainOwner
		if owner == "" {
			owner = "$" + AccountVariable
		}
		steps = append(steps, Step{
			Name:  StepRegistryLogin,
			Phase: PhaseBuild,
			Commands: []string{
				fmt.Sprintf("aws codeartifact login --tool npm --domain %s --domain-owner %s --repository %s", r.Domain, owner, r.Repository),
			},
		})
	}

	steps = append(steps, Step{Name: StepPublish, Phase: PhaseBuild, Commands: []string{"npm publish"}})

	return Spec{
		RuntimeVersions:     map[string]string{"nodejs": node},
		GitCredentialHelper: true,
		Steps:               steps,
	}
}

// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package buildspec

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/mod/semver"
)

var (
	// ErrNoVersionTag is returned when no tag looks like a release.
	ErrNoVersionTag = errors.New("no version tag")
	// ErrAlreadyPublished is returned when the version exists in the registry.
	ErrAlreadyPublished = errors.New("version already published")
	ErrVersionMismatch  = errors.New("package version does not match latest tag")
)

// tagRegex accepts v1.2.3, 1.2.3 and release-please component tags such as
// my-lib-v1.2.3, with an optional pre-release suffix. The shortest component
// prefix wins, and none at all is tried first, so v1.2.3-1.0.0 stays whole.
var tagRegex = regexp.MustCompile(`^(?:.+?-)??v?(\d+\.\d+\.\d+(?:-[0-9A-Za-z.-]+)?)$`)

// ParseTag returns the bare version carried by tag.
func ParseTag(tag string) (string, bool) {
	m := tagRegex.FindStringSubmatch(strings.TrimSpace(tag))
	if m == nil || !semver.IsValid("v"+m[1]) {
		return "", false
	}
	return m[1], true
}

// VersionFromTags returns the highest release version among tags, which is
// what `npm version from-git` stamps when the newest tag is the release tag.
func VersionFromTags(tags []string) (string, error) {
	best := ""
	for _, tag := range tags {
		v, ok := ParseTag(tag)
		if !ok {
			continue
		}
		if best == "" || semver.Compare("v"+v, "v"+best) > 0 {
			best = v
		}
	}
	if best == "" {
		return "", ErrNoVersionTag
	}
	return best, nil
}

// CheckPublishable rejects a version that is already in published. Registries
// refuse duplicate versions, so a re-run on an old tag must not look like a
// successful publish.
func CheckPublishable(version string, published []string) error {
	for _, p := range published {
		if strings.TrimPrefix(p, "v") == strings.TrimPrefix(version, "v") {
			return fmt.Errorf("%w: %s", ErrAlreadyPublished, version)
		}
	}
	return nil
}

// PackageVersion reads the version field of dir/package.json.
func PackageVersion(dir string) (string, error) {
	return packageField(dir, "version")
}

// PackageName reads the name field of dir/package.json.
func PackageName(dir string) (string, error) {
	return packageField(dir, "name")
}

func packageField(dir, field string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return "", fmt.Errorf("failed to read package.json: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		return "", fmt.Errorf("package.json is not valid JSON")
	}
	v := gjson.GetBytes(raw, field)
	if !v.Exists() || v.String() == "" {
		return "", fmt.Errorf("package.json has no %s", field)
	}
	return v.String(), nil
}

// PublishedVersions parses the output of `npm view <pkg> versions --json`,
// which is an array, or a bare string when only one version exists.
func PublishedVersions(raw []byte) ([]string, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("npm view output is not valid JSON")
	}
	r := gjson.ParseBytes(raw)
	if r.Type == gjson.String {
		return []string{r.String()}, nil
	}
	var out []string
	for _, v := range r.Array() {
		out = append(out, v.String())
	}
	return out, nil
}

// NotInRegistry reports whether a failed `npm view` means the package has
// never been published, as opposed to a network or authentication failure.
func NotInRegistry(stdout []byte, err error) bool {
	if err == nil {
		return false
	}
	if gjson.GetBytes(stdout, "error.code").String() == "E404" {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "E404") || strings.Contains(msg, "is not in this registry") ||
		strings.Contains(msg, "is not in the npm registry")
}

// CheckVersion reports whether the stamped package version matches the
// latest release tag.
func CheckVersion(pkgVersion string, tags []string) error {
	want, err := VersionFromTags(tags)
	if err != nil {
		return err
	}
	if strings.TrimPrefix(pkgVersion, "v") != want {
		return fmt.Errorf("%w: package.json has %s, latest tag is %s", ErrVersionMismatch, pkgVersion, want)
	}
	return nil
}

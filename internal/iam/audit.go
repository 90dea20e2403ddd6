// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package iam

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Finding is one least-privilege violation.
type Finding struct {
	Policy  string `json:"policy" yaml:"policy"`
	Sid     string `json:"sid" yaml:"sid"`
	Message string `json:"message" yaml:"message"`
}

func (f Finding) String() string {
	return fmt.Sprintf("%s/%s: %s", f.Policy, f.Sid, f.Message)
}

// auditStatement is the view of a statement the rules need; it is filled from
// either a Statement or a rendered template.
type auditStatement struct {
	Sid        string
	Actions    []string
	Wildcard   bool
	ServiceTag string
}

// Audit checks doc. No action may contain a wildcard, and the only statement
// allowed a "*" resource is the bearer token statement, which must be pinned
// to CodeArtifact with its condition.
func Audit(policy string, doc PolicyDocument) []Finding {
	statements := make([]auditStatement, 0, len(doc.Statement))
	for _, s := range doc.Statement {
		as := auditStatement{Sid: s.Sid, Actions: s.Action}
		for _, r := range s.Resource {
			if str, ok := r.(string); ok && str == "*" {
				as.Wildcard = true
			}
		}
		if c, ok := s.Condition["StringEquals"]; ok {
			as.ServiceTag = c["sts:AWSServiceName"]
		}
		statements = append(statements, as)
	}
	return audit(policy, statements)
}

// AuditTemplate audits every AWS::IAM::Policy resource in a rendered
// CloudFormation template.
func AuditTemplate(templateJSON []byte) ([]Finding, error) {
	if !gjson.ValidBytes(templateJSON) {
		return nil, fmt.Errorf("template is not valid JSON")
	}

	var findings []Finding
	policies := 0
	gjson.GetBytes(templateJSON, "Resources").ForEach(func(logicalID, resource gjson.Result) bool {
		if resource.Get("Type").String() != "AWS::IAM::Policy" {
			return true
		}
		policies++

		var statements []auditStatement
		resource.Get("Properties.PolicyDocument.Statement").ForEach(func(_, s gjson.Result) bool {
			as := auditStatement{
				Sid:        s.Get("Sid").String(),
				Actions:    stringsOf(s.Get("Action")),
				ServiceTag: s.Get(`Condition.StringEquals.sts:AWSServiceName`).String(),
			}
			for _, r := range stringsOf(s.Get("Resource")) {
				if r == "*" {
					as.Wildcard = true
				}
			}
			statements = append(statements, as)
			return true
		})

		findings = append(findings, audit(logicalID.String(), statements)...)
		return true
	})

	if policies == 0 {
		return nil, fmt.Errorf("template has no AWS::IAM::Policy resources")
	}
	return findings, nil
}

// TemplateActions returns the sorted, distinct actions granted by the policy
// resource logicalID in a rendered template.
func TemplateActions(templateJSON []byte, logicalID string) []string {
	path := "Resources." + gjson.Escape(logicalID) + ".Properties.PolicyDocument.Statement.#.Action"
	var actions []string
	for _, a := range gjson.GetBytes(templateJSON, path).Array() {
		actions = append(actions, stringsOf(a)...)
	}
	return distinct(actions)
}

// CompareActions reports actions granted but not wanted, and wanted but not
// granted.
func CompareActions(granted, want []string) (extra, missing []string) {
	g := make(map[string]bool, len(granted))
	for _, a := range granted {
		g[a] = true
	}
	w := make(map[string]bool, len(want))
	for _, a := range want {
		w[a] = true
		if !g[a] {
			missing = append(missing, a)
		}
	}
	for _, a := range granted {
		if !w[a] {
			extra = append(extra, a)
		}
	}
	return distinct(extra), distinct(missing)
}

func audit(policy string, statements []auditStatement) []Finding {
	var findings []Finding
	add := func(sid, format string, args ...any) {
		findings = append(findings, Finding{Policy: policy, Sid: sid, Message: fmt.Sprintf(format, args...)})
	}

	for _, s := range statements {
		for _, a := range s.Actions {
			if strings.Contains(a, "*") {
				add(s.Sid, "wildcard action %q", a)
			}
		}

		if !s.Wildcard {
			continue
		}
		if len(s.Actions) != 1 || s.Actions[0] != "sts:GetServiceBearerToken" {
			add(s.Sid, "wildcard resource granted to %v", s.Actions)
			continue
		}
		if s.ServiceTag != "codeartifact.amazonaws.com" {
			add(s.Sid, "bearer token not restricted to codeartifact.amazonaws.com")
		}
	}
	return findings
}

// stringsOf reads a string or an array of strings. Intrinsic objects are
// skipped since they never carry a wildcard.
func stringsOf(r gjson.Result) []string {
	if r.IsArray() {
		var out []string
		for _, e := range r.Array() {
			if e.Type == gjson.String {
				out = append(out, e.String())
			}
		}
		return out
	}
	if r.Type == gjson.String {
		return []string{r.String()}
	}
	return nil
}

func distinct(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

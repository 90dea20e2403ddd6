// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package filters

import (
	"embed"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

//go:embed testdata/*.yaml
var testDataFS embed.FS

type testBuildFiltersCase struct {
	Name      string   `yaml:"name"`
	Spec      string   `yaml:"spec"`
	Delimiter string   `yaml:"delimiter"`
	Want      []Filter `yaml:"want"`
	WantCount int      `yaml:"wantCount"`
}

type testCheckStringOperandCase struct {
	Name   string `yaml:"name"`
	Value  string `yaml:"value"`
	Filter Filter `yaml:"filter"`
	Want   bool   `yaml:"want"`
}

type testCheckNumericOperandCase struct {
	Name   string  `yaml:"name"`
	Value  float64 `yaml:"value"`
	Filter Filter  `yaml:"filter"`
	Want   bool    `yaml:"want"`
}

type testCheckContainsOperandCase struct {
	Name   string      `yaml:"name"`
	Value  interface{} `yaml:"value"`
	Filter Filter      `yaml:"filter"`
	Want   bool        `yaml:"want"`
}

type testFilterRowsCase struct {
	Name      string   `yaml:"name"`
	Spec      string   `yaml:"spec"`
	WantNames []string `yaml:"wantNames"`
}

// loadTestData loads test data from embedded YAML files.
func loadTestData(filename string, v interface{}) error {
	data, err := testDataFS.ReadFile("testdata/" + filename)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}

func TestBuildFilters(t *testing.T) {
	var tests []testBuildFiltersCase
	require.NoError(t, loadTestData("build_filters.yaml", &tests))

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			t.Setenv("NPMPIPE_FILTER_DELIM", tt.Delimiter)

			got := BuildFilters(tt.Spec)
			assert.Len(t, got, tt.WantCount)
			for i, filter := range tt.Want {
				assert.Equal(t, filter.Key, got[i].Key)
				assert.Equal(t, filter.Operand, got[i].Operand)
				assert.Equal(t, filter.Value, got[i].Value)
				assert.Equal(t, filter.Negate, got[i].Negate)
			}
		})
	}
}

func TestCheckStringOperand(t *testing.T) {
	var tests []testCheckStringOperandCase
	require.NoError(t, loadTestData("check_string_operand.yaml", &tests))

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			assert.Equal(t, tt.Want, checkStringOperand(tt.Value, tt.Filter))
		})
	}
}

func TestCheckNumericOperand(t *testing.T) {
	var tests []testCheckNumericOperandCase
	require.NoError(t, loadTestData("check_numeric_operand.yaml", &tests))

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			assert.Equal(t, tt.Want, checkNumericOperand(tt.Value, tt.Filter))
		})
	}
}

func TestCheckContainsOperand(t *testing.T) {
	var tests []testCheckContainsOperandCase
	require.NoError(t, loadTestData("check_contains_operand.yaml", &tests))

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			assert.Equal(t, tt.Want, checkContainsOperand(tt.Value, tt.Filter))
		})
	}
}

func TestToFloat64(t *testing.T) {
	for _, v := range []any{float64(2), float32(2), 2, int32(2), int64(2), uint(2), uint32(2), uint64(2)} {
		got, ok := toFloat64(v)
		assert.True(t, ok, "%T", v)
		assert.Equal(t, float64(2), got)
	}
	_, ok := toFloat64("2")
	assert.False(t, ok)
}

func TestDrill(t *testing.T) {
	doc := `{"name":"gen3","stages":[{"status":"Succeeded"},{"status":"Failed"}],"one":[{"k":"v"}],"outputs":{"PipelineName":"p"}}`

	tests := []struct {
		path string
		want string
	}{
		{path: "name", want: "gen3"},
		{path: "stages[1].status", want: "Failed"},
		{path: "stages[0].status", want: "Succeeded"},
		{path: "one.k", want: "v"},
		{path: "outputs.PipelineName", want: "p"},
		{path: "stages[5].status", want: ""},
		{path: "bad path!", want: ""},
		{path: "missing", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, drill(doc, tt.path).String())
		})
	}
	assert.True(t, drill(doc, "stages").IsArray())
}

func TestFilterRows(t *testing.T) {
	var tests []testFilterRowsCase
	require.NoError(t, loadTestData("filter_rows.yaml", &tests))

	rows := []map[string]any{
		{
			"name": "gen3-aws-config", "branch": "main", "registry": "biocommons/npm", "full_clone": true,
			"executions": 1, "namespaces": []string{"biocommons"},
			"stages": []map[string]any{{"status": "Succeeded"}, {"status": "Succeeded"}},
		},
		{
			"name": "my-repo-name", "branch": "main", "registry": "", "full_clone": true,
			"executions": 3, "namespaces": []string{},
			"stages": []map[string]any{{"status": "Succeeded"}, {"status": "InProgress"}},
		},
		{
			"name": "release-only", "branch": "release", "registry": "", "full_clone": false,
			"executions": 0, "namespaces": []string{},
			"stages": []map[string]any{{"status": "Succeeded"}, {"status": "Failed"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			got, err := FilterRows(rows, tt.Spec)
			require.NoError(t, err)
			names := []string{}
			for _, r := range got {
				names = append(names, r["name"].(string))
			}
			assert.Equal(t, tt.WantNames, names)
		})
	}
}

func TestFilterRows_Unmarshalable(t *testing.T) {
	_, err := FilterRows([]map[string]any{{"bad": make(chan int)}}, "name=x")
	assert.Error(t, err)
}

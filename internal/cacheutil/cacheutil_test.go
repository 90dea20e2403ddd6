// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package cacheutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDir(t *testing.T) {
	custom := t.TempDir()
	t.Setenv("NPMPIPE_CACHE_DIR", custom)
	got, ok := Dir()
	assert.True(t, ok)
	assert.Equal(t, custom, got)

	t.Setenv("NPMPIPE_CACHE_DIR", "")
	if got, ok := Dir(); ok {
		assert.True(t, filepath.IsAbs(got))
		assert.Equal(t, "npmpipe", filepath.Base(got))
	}
}

func TestEnabled(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"", true},
		{"1", true},
		{"true", true},
		{"0", false},
		{"false", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("NPMPIPE_CACHE", tt.value)
			assert.Equal(t, tt.want, Enabled())
		})
	}
}

func TestEnsureBaseDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "cache")
	t.Setenv("NPMPIPE_CACHE_DIR", base)
	t.Setenv("NPMPIPE_CACHE", "")

	got, ok, err := EnsureBaseDir()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, base, got)
	assert.DirExists(t, base)

	t.Setenv("NPMPIPE_CACHE", "0")
	_, ok, err = EnsureBaseDir()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteRead(t *testing.T) {
	t.Setenv("NPMPIPE_CACHE_DIR", t.TempDir())
	t.Setenv("NPMPIPE_CACHE", "")

	key := TemplateKey("ap-southeast-2", "npm-codepipeline-gen3-aws-config")
	_, ok := Read(TemplatesDir, key)
	assert.False(t, ok)

	require.NoError(t, Write(TemplatesDir, key, []byte("{\"Resources\":{}}\n")))
	e, ok := Read(TemplatesDir, key)
	require.True(t, ok)
	assert.Equal(t, key, e.Key)
	assert.Equal(t, `{"Resources":{}}`, string(e.Data))
	assert.Len(t, e.EncodedKey, 64)
	assert.False(t, e.Modified.IsZero())

	info, err := os.Stat(e.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, Write(TemplatesDir, key, []byte("{}")))
	e, _ = Read(TemplatesDir, key)
	assert.Equal(t, "{}", string(e.Data))

	_, ok = Read(TemplatesDir, TemplateKey("us-east-1", "npm-codepipeline-gen3-aws-config"))
	assert.False(t, ok)
}

func TestWriteRead_Disabled(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NPMPIPE_CACHE_DIR", dir)
	t.Setenv("NPMPIPE_CACHE", "false")

	require.NoError(t, Write(TemplatesDir, "k", []byte("x")))
	_, ok := Read(TemplatesDir, "k")
	assert.False(t, ok)
	assert.NoDirExists(t, filepath.Join(dir, TemplatesDir))
}

func TestPurge(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NPMPIPE_CACHE_DIR", dir)
	t.Setenv("NPMPIPE_CACHE", "")

	require.NoError(t, Write(TemplatesDir, "old", []byte("x")))
	require.NoError(t, Write(TemplatesDir, "new", []byte("y")))
	old, _ := Read(TemplatesDir, "old")
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old.Path, past, past))

	require.NoError(t, Purge(0))
	assert.FileExists(t, old.Path)

	require.NoError(t, Purge(24))
	assert.NoFileExists(t, old.Path)
	_, ok := Read(TemplatesDir, "new")
	assert.True(t, ok)
}

func TestEncodeKey(t *testing.T) {
	assert.Equal(t, encodeKey("a/b"), encodeKey("a/b"))
	assert.NotEqual(t, encodeKey("a/b"), encodeKey("a/c"))
	assert.Regexp(t, `^[0-9a-f]{64}$`, encodeKey("ap-southeast-2/stack"))
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	require.NoError(t, WriteDefaultConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "default_palette: Gray")

	// The written file is parseable YAML.
	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal(data, &parsed))
	assert.Contains(t, parsed, "processing")

	// Refuses to clobber an existing config.
	assert.Error(t, WriteDefaultConfig(path))
}

func TestSaveMacroPath(t *testing.T) {
	t.Run("creates the file when missing", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, SaveMacroPath(path, "/logs/processing.log"))

		var parsed map[string]map[string]string
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NoError(t, yaml.Unmarshal(data, &parsed))
		assert.Equal(t, "/logs/processing.log", parsed["macro"]["path"])
	})

	t.Run("preserves comments and other sections", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		existing := "# my tweaks\nexport:\n  dir: /data/out\nmacro:\n  auto_reload: false\n"
		require.NoError(t, os.WriteFile(path, []byte(existing), 0600))

		require.NoError(t, SaveMacroPath(path, "/logs/new.log"))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		text := string(data)
		assert.Contains(t, text, "# my tweaks")
		assert.Contains(t, text, "dir: /data/out")
		assert.Contains(t, text, "auto_reload: false")
		assert.Contains(t, text, "path: /logs/new.log")
	})

	t.Run("overwrites an existing value", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, SaveMacroPath(path, "/logs/a.log"))
		require.NoError(t, SaveMacroPath(path, "/logs/b.log"))

		var parsed map[string]map[string]string
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NoError(t, yaml.Unmarshal(data, &parsed))
		assert.Equal(t, "/logs/b.log", parsed["macro"]["path"])
	})
}

func TestSaveExportDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, SaveExportDir(path, "/data/out"))

	var parsed map[string]map[string]string
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(data, &parsed))
	assert.Equal(t, "/data/out", parsed["export"]["dir"])
}

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsWithNoFile(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.ConnectRetryMax)
	assert.Equal(t, 10*time.Second, cfg.DialTimeout)
}

func TestLoadConfigFromTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := "connect_retry_max = 9\ndial_timeout = \"30s\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.ConnectRetryMax)
	assert.Equal(t, 30*time.Second, cfg.DialTimeout)
}

func TestLoadConfigRejectsMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoadConfigEnvOverridesFileValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("connect_retry_max = 9\n"), 0o644))

	t.Setenv("RPCSESSION_DEMO_CONNECT_RETRY_MAX", "2")
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.ConnectRetryMax)
}

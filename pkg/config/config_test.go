package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-dev/screenlens/pkg/config"
)

func TestLoadWritesDefaultsOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	store, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, store.Get().RetentionDays)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "Load must persist defaults on first run")
}

func TestLoadClampsRetentionDays(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"retention_days": 400, "capture_interval": 5, "summary_interval": 15}`), 0o600))

	store, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30, store.Get().RetentionDays)
}

func TestLoadRejectsNonPositiveCaptureInterval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"capture_interval": 0, "summary_interval": 15}`), 0o600))

	_, err := config.Load(path)
	assert.ErrorIs(t, err, config.ErrInvalidValue)
}

func TestUpdatePersistsAndRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	store, err := config.Load(path)
	require.NoError(t, err)

	next := store.Get()
	next.LLMProvider = "claude"
	next.RetentionDays = 3
	require.NoError(t, store.Update(next))

	reloaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "claude", reloaded.Get().LLMProvider)
	assert.Equal(t, 3, reloaded.Get().RetentionDays)
}

func TestLoadProviderProfilesMissingFileIsNotError(t *testing.T) {
	profiles, err := config.LoadProviderProfiles(filepath.Join(t.TempDir(), "providers.yaml"))
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

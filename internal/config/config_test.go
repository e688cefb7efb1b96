package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mdouchement/modelshuttle/internal/config"
	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv(config.EnvStore, "")
	t.Setenv(config.EnvSweep, "")
	t.Setenv(config.EnvToken, "")
	t.Setenv(config.EnvDatabase, "")
	os.Unsetenv(config.EnvDatabase)

	p := filepath.Join(t.TempDir(), "modelshuttle.toml")
	require.NoError(t, os.WriteFile(p, []byte(`
store = "/srv/models"
verbose = true

[server]
listen = "0.0.0.0:8080"

[sweep]
specification = "@every 30m"
max_age = "2h"
`), 0o644))

	cfg, err := config.Load(p)
	require.NoError(t, err)
	assert.Equal(t, "/srv/models", cfg.Store)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Listen)
	assert.Equal(t, "@every 30m", cfg.Sweep.Specification)
	assert.Equal(t, 2*time.Hour, cfg.Sweep.MaxAge.Duration)
	assert.NotEmpty(t, cfg.Database, "default kept")
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv(config.EnvStore, "/mnt/models")
	t.Setenv(config.EnvDatabase, "")
	t.Setenv(config.EnvSweep, "@daily")
	t.Setenv(config.EnvToken, "secret")

	p := filepath.Join(t.TempDir(), "modelshuttle.toml")
	require.NoError(t, os.WriteFile(p, []byte(`store = "/srv/models"`), 0o644))

	cfg, err := config.Load(p)
	require.NoError(t, err)
	assert.Equal(t, "/mnt/models", cfg.Store)
	assert.Empty(t, cfg.Database, "journal disabled")
	assert.Equal(t, "@daily", cfg.Sweep.Specification)
	assert.Equal(t, "secret", cfg.Server.Token)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err, "an explicit file must exist")

	p := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(p, []byte(`store = `), 0o644))
	_, err = config.Load(p)
	assert.Error(t, err)
}

func TestDiscoverStore(t *testing.T) {
	homedir.DisableCache = true
	defer func() { homedir.DisableCache = false }()

	t.Setenv(config.EnvRuntime, "/data/ollama")
	assert.Equal(t, "/data/ollama", config.DiscoverStore())

	home := t.TempDir()
	t.Setenv(config.EnvRuntime, "")
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".ollama", "manifests"), 0o755))
	assert.Equal(t, filepath.Join(home, ".ollama"), config.DiscoverStore(), "oldest layout")

	require.NoError(t, os.MkdirAll(filepath.Join(home, ".ollama", "models"), 0o755))
	assert.Equal(t, filepath.Join(home, ".ollama", "models"), config.DiscoverStore())
}

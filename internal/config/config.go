// Package config loads the modelshuttle settings: defaults, then the TOML file, then the environment.
// Command line flags are applied last by the caller.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

// Environment variables.
const (
	EnvConfig   = "MODELSHUTTLE_CONFIG"
	EnvStore    = "MODELSHUTTLE_STORE"
	EnvRuntime  = "OLLAMA_MODELS"
	EnvDatabase = "MODELSHUTTLE_DATABASE"
	EnvSweep    = "MODELSHUTTLE_SWEEP"
	EnvToken    = "MODELSHUTTLE_TOKEN"
)

// A Config holds the settings of modelshuttle.
type Config struct {
	// Store is the root of the model store.
	Store string `toml:"store"`
	// Database is the transfer journal, empty to disable it.
	Database string `toml:"database"`
	Verbose  bool   `toml:"verbose"`

	Server Server `toml:"server"`
	Sweep  Sweep  `toml:"sweep"`
}

// Server holds the HTTP API settings.
type Server struct {
	Listen string `toml:"listen"`
	Token  string `toml:"token"`
}

// Sweep holds the sweeper settings.
type Sweep struct {
	Specification string   `toml:"specification"`
	MaxAge        Duration `toml:"max_age"`
}

// A Duration is a time.Duration decoded from its string form.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) (err error) {
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the default settings.
func Default() Config {
	return Config{
		Store:    DiscoverStore(),
		Database: expand("~/.modelshuttle.db"),
		Server: Server{
			Listen: "localhost:11500",
		},
		Sweep: Sweep{
			Specification: "@every 1h",
			MaxAge:        Duration{Duration: time.Hour},
		},
	}
}

// Load returns the default settings overridden by the file at path, if it exists, and the environment.
// An empty path means $MODELSHUTTLE_CONFIG or ~/.modelshuttle.toml.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	explicit := path != ""
	if !explicit {
		path = "~/.modelshuttle.toml"
	}

	path = expand(path)
	if _, err := os.Stat(path); err == nil || explicit {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "could not load %s", path)
		}
	}

	cfg.applyEnv()
	cfg.Store = expand(cfg.Store)
	cfg.Database = expand(cfg.Database)
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvStore); v != "" {
		c.Store = v
	}
	if v, ok := os.LookupEnv(EnvDatabase); ok {
		c.Database = v
	}
	if v := os.Getenv(EnvSweep); v != "" {
		c.Sweep.Specification = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		c.Server.Token = v
	}
}

// DiscoverStore returns the store used by the model runtime:
// $OLLAMA_MODELS, else ~/.ollama/models, else ~/.ollama for the oldest layout.
func DiscoverStore() string {
	if v := os.Getenv(EnvRuntime); v != "" {
		return expand(v)
	}

	home, err := homedir.Dir()
	if err != nil {
		return filepath.Join(".ollama", "models")
	}

	models := filepath.Join(home, ".ollama", "models")
	if _, err := os.Stat(models); err == nil {
		return models
	}
	if _, err := os.Stat(filepath.Join(home, ".ollama", "manifests")); err == nil {
		return filepath.Join(home, ".ollama")
	}
	return models
}

func expand(path string) string {
	if p, err := homedir.Expand(path); err == nil {
		return p
	}
	return path
}

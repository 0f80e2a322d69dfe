// Package config loads the recstore configuration file.
//
// The file format follows the extension: .yaml/.yml is read with yaml.v3,
// .toml with BurntSushi/toml. Both use the same snake_case keys.
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/recstore/internal/ir"
	"github.com/roach88/recstore/internal/storage"
)

// EnvStorageURL overrides storage.url when set.
const EnvStorageURL = "RECSTORE_STORAGE_URL"

// Supported storage backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config holds all recstore configuration.
type Config struct {
	Storage   StorageConfig    `yaml:"storage" toml:"storage"`
	Log       LogConfig        `yaml:"log" toml:"log"`
	Resources []ResourceConfig `yaml:"resources" toml:"resources"`
}

// StorageConfig selects and tunes the backend.
type StorageConfig struct {
	Backend      string `yaml:"backend" toml:"backend"`               // memory | redis | sqlite
	URL          string `yaml:"url" toml:"url"`                       // redis:// URL or SQLite file path
	MaxFetchSize int    `yaml:"max_fetch_size" toml:"max_fetch_size"` // GetAll row cap
	PoolSize     int    `yaml:"pool_size" toml:"pool_size"`           // redis connections, 0 = client default
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// ResourceConfig declares a collection. Empty reserved field names fall
// back to the conventional ones.
type ResourceConfig struct {
	Name          string   `yaml:"name" toml:"name"`
	IDField       string   `yaml:"id_field" toml:"id_field"`
	ModifiedField string   `yaml:"modified_field" toml:"modified_field"`
	DeletedField  string   `yaml:"deleted_field" toml:"deleted_field"`
	DeletedValue  any      `yaml:"deleted_value" toml:"deleted_value"`
	UniqueFields  []string `yaml:"unique_fields" toml:"unique_fields"`
}

// Default returns the configuration used when no file is given: an
// in-memory store with info logging.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:      BackendMemory,
			MaxFetchSize: storage.DefaultMaxFetchSize,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults, applies the environment and validates
// the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parse config %s: unknown key %q", path, undecoded[0].String())
		}
	default:
		return nil, fmt.Errorf("config %s: unsupported extension %q (want .yaml, .yml or .toml)", path, ext)
	}

	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides using lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if url, ok := lookup(EnvStorageURL); ok && url != "" {
		c.Storage.URL = url
	}
}

// Validate reports the first inconsistency in c.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendRedis, BackendSQLite:
		if c.Storage.URL == "" {
			return fmt.Errorf("storage.url is required for the %s backend", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("storage.backend %q: must be one of memory, redis, sqlite", c.Storage.Backend)
	}
	if c.Storage.MaxFetchSize < 0 {
		return fmt.Errorf("storage.max_fetch_size must not be negative")
	}
	if c.Storage.PoolSize < 0 {
		return fmt.Errorf("storage.pool_size must not be negative")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}

	seen := map[string]bool{}
	for i, rc := range c.Resources {
		if seen[rc.Name] {
			return fmt.Errorf("resources[%d]: duplicate name %q", i, rc.Name)
		}
		seen[rc.Name] = true
		if err := rc.Resource().Validate(); err != nil {
			return fmt.Errorf("resources[%d]: %w", i, err)
		}
	}
	return nil
}

// SlogLevel parses the configured level ("" means info).
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", l.Level, err)
	}
	return level, nil
}

// Resource converts the declaration into a descriptor.
func (rc ResourceConfig) Resource() *ir.Resource {
	r := ir.DefaultResource(rc.Name)
	if rc.IDField != "" {
		r.IDField = rc.IDField
	}
	if rc.ModifiedField != "" {
		r.ModifiedField = rc.ModifiedField
	}
	if rc.DeletedField != "" {
		r.DeletedField = rc.DeletedField
	}
	if rc.DeletedValue != nil {
		r.DeletedValue = rc.DeletedValue
	}
	r.UniqueFields = append([]string(nil), rc.UniqueFields...)
	return r
}

// Resource returns the declared descriptor for name, or the conventional
// one if name is not declared.
func (c *Config) Resource(name string) *ir.Resource {
	for _, rc := range c.Resources {
		if rc.Name == name {
			return rc.Resource()
		}
	}
	return ir.DefaultResource(name)
}

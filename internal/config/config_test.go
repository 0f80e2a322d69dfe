package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "recstore.yaml", `
storage:
  backend: redis
  url: redis://localhost:6379/2
  pool_size: 8
log:
  level: debug
resources:
  - name: contact
    unique_fields: [phone, email]
  - name: legacy
    id_field: _id
    modified_field: _ts
    deleted_field: _gone
    deleted_value: "yes"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "redis://localhost:6379/2", cfg.Storage.URL)
	assert.Equal(t, 8, cfg.Storage.PoolSize)
	assert.Equal(t, 10000, cfg.Storage.MaxFetchSize, "default kept")

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	contact := cfg.Resource("contact")
	assert.Equal(t, "id", contact.IDField)
	assert.Equal(t, []string{"phone", "email"}, contact.UniqueFields)

	legacy := cfg.Resource("legacy")
	assert.Equal(t, "_id", legacy.IDField)
	assert.Equal(t, "_ts", legacy.ModifiedField)
	assert.Equal(t, "_gone", legacy.DeletedField)
	assert.Equal(t, "yes", legacy.DeletedValue)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "recstore.toml", `
[storage]
backend = "sqlite"
url = "/var/lib/recstore/data.db"
max_fetch_size = 500

[[resources]]
name = "article"
unique_fields = ["slug"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/recstore/data.db", cfg.Storage.URL)
	assert.Equal(t, 500, cfg.Storage.MaxFetchSize)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, []string{"slug"}, cfg.Resource("article").UniqueFields)
}

func TestLoad_EnvOverridesURL(t *testing.T) {
	t.Setenv(EnvStorageURL, "/tmp/override.db")
	path := writeConfig(t, "recstore.yml", "storage:\n  backend: sqlite\n  url: /tmp/file.db\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.Storage.URL)
}

func TestLoad_EnvSatisfiesRequiredURL(t *testing.T) {
	t.Setenv(EnvStorageURL, "redis://cache:6379/0")
	path := writeConfig(t, "recstore.yaml", "storage:\n  backend: redis\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis://cache:6379/0", cfg.Storage.URL)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"unknown extension", "recstore.json", `{}`, "unsupported extension"},
		{"unknown yaml key", "recstore.yaml", "storage:\n  backend: memory\n  colour: red\n", "colour"},
		{"unknown toml key", "recstore.toml", "[storage]\nbackend = \"memory\"\ncolour = \"red\"\n", "colour"},
		{"bad backend", "recstore.yaml", "storage:\n  backend: mongo\n", "storage.backend"},
		{"missing url", "recstore.toml", "[storage]\nbackend = \"sqlite\"\n", "storage.url"},
		{"negative fetch size", "recstore.yaml", "storage:\n  max_fetch_size: -1\n", "max_fetch_size"},
		{"negative pool", "recstore.yaml", "storage:\n  pool_size: -3\n", "pool_size"},
		{"bad level", "recstore.yaml", "log:\n  level: loud\n", "log.level"},
		{"duplicate resource", "recstore.yaml", "resources:\n  - name: a\n  - name: a\n", "duplicate"},
		{"reserved unique field", "recstore.yaml", "resources:\n  - name: a\n    unique_fields: [id]\n", "unique field"},
		{"dotted unique field", "recstore.yaml", "resources:\n  - name: a\n    unique_fields: [a.b]\n", "invalid unique field name"},
		{"unnamed resource", "recstore.yaml", "resources:\n  - unique_fields: [x]\n", "empty name"},
		{"malformed", "recstore.yaml", "storage: [\n", "parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvStorageURL, "")
			_, err := Load(writeConfig(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Empty(t, cfg.Resources)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.Storage.URL = "keep"

	cfg.ApplyEnv(func(string) (string, bool) { return "", false })
	assert.Equal(t, "keep", cfg.Storage.URL)

	cfg.ApplyEnv(func(key string) (string, bool) {
		if key == EnvStorageURL {
			return "new", true
		}
		return "", false
	})
	assert.Equal(t, "new", cfg.Storage.URL)
}

func TestResource_UndeclaredFallsBack(t *testing.T) {
	cfg := Default()
	r := cfg.Resource("note")
	assert.Equal(t, "note", r.Name)
	assert.Equal(t, "deleted", r.DeletedField)
	assert.Equal(t, true, r.DeletedValue)
}

func TestResourceConfig_CopiesUniqueFields(t *testing.T) {
	rc := ResourceConfig{Name: "a", UniqueFields: []string{"x"}}
	r := rc.Resource()
	r.UniqueFields[0] = "changed"
	assert.Equal(t, "x", rc.UniqueFields[0])
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := LogConfig{Level: tt.in}.SlogLevel()
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

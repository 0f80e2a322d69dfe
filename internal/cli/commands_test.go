package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recstore/internal/config"
	"github.com/roach88/recstore/internal/ir"
	"github.com/roach88/recstore/internal/storage"
	"github.com/roach88/recstore/internal/storage/sqlite"
	"github.com/roach88/recstore/internal/testutil"
)

// writeConfig writes a YAML config for backend/url and returns its path.
func writeConfig(t *testing.T, backend, url string) string {
	t.Helper()
	t.Setenv(config.EnvStorageURL, "")
	path := filepath.Join(t.TempDir(), "recstore.yaml")
	content := fmt.Sprintf("storage:\n  backend: %s\n  url: %q\n", backend, url)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// seedSQLite creates a database holding live records a, b, c (stamps 1000
// to 1002) and the tombstone of d (stamp 1004) for tenant alice, and
// returns a config pointing at it.
func seedSQLite(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "recstore.db")

	s, err := sqlite.Open(dbPath, storage.Options{
		Clock: testutil.NewManualClock(1000).Now,
		IDs:   storage.NewFixedGenerator("a", "b", "c", "d"),
	})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.EnsureSchema(ctx))

	r := ir.DefaultResource("article")
	for _, rec := range []ir.Record{
		{"title": "alpha", "n": 1},
		{"title": "beta", "n": 5},
		{"title": "gamma", "n": 9},
		{"title": "delta", "n": 12},
	} {
		_, err := s.Create(ctx, r, "alice", rec)
		require.NoError(t, err)
	}
	_, err = s.Delete(ctx, r, "alice", "d")
	require.NoError(t, err)

	return writeConfig(t, "sqlite", dbPath)
}

// listIDs runs list in JSON format and returns the ids and total.
func listIDs(t *testing.T, cfg string, args ...string) ([]string, int) {
	t.Helper()
	code, stdout, stderr := run(t, append([]string{"--config", cfg, "--format", "json", "list", "article", "--tenant", "alice"}, args...)...)
	require.Equal(t, ExitSuccess, code, "stdout: %s\nstderr: %s", stdout, stderr)

	var resp struct {
		Status string     `json:"status"`
		Data   ListResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Equal(t, "ok", resp.Status)

	ids := []string{}
	for _, rec := range resp.Data.Records {
		ids = append(ids, rec["id"].(string))
	}
	return ids, resp.Data.Total
}

func TestMigrate(t *testing.T) {
	cfg := writeConfig(t, "sqlite", filepath.Join(t.TempDir(), "new.db"))

	code, stdout, _ := run(t, "--config", cfg, "migrate")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "Schema ready (sqlite)\n", stdout)

	code, _, _ = run(t, "--config", cfg, "migrate")
	assert.Equal(t, ExitSuccess, code, "migrate is idempotent")
}

func TestMigrate_UnopenableStorage(t *testing.T) {
	cfg := writeConfig(t, "sqlite", filepath.Join(t.TempDir(), "missing", "dir", "r.db"))

	code, stdout, _ := run(t, "--config", cfg, "migrate")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stdout, "Error [E003]")
}

func TestPing(t *testing.T) {
	code, stdout, _ := run(t, "ping")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "memory: ok\n", stdout)

	code, stdout, _ = run(t, "--format", "json", "ping")
	require.Equal(t, ExitSuccess, code)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"backend": "memory", "ok": true}, resp.Data)
}

func TestPing_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := writeConfig(t, "redis", "redis://"+mr.Addr()+"/0")

	code, stdout, _ := run(t, "--config", cfg, "ping")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "redis: ok\n", stdout)

	mr.Close()
	code, stdout, _ = run(t, "--config", cfg, "ping")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stdout, "Error [E003]")
}

func TestFlush(t *testing.T) {
	cfg := seedSQLite(t)

	code, stdout, _ := run(t, "--config", cfg, "flush")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stdout, "--yes")

	ids, _ := listIDs(t, cfg)
	assert.Len(t, ids, 3, "nothing flushed without --yes")

	code, stdout, _ = run(t, "--config", cfg, "flush", "--yes")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "Flushed sqlite storage\n", stdout)

	ids, total := listIDs(t, cfg, "--include-deleted")
	assert.Empty(t, ids)
	assert.Equal(t, 0, total)
}

func TestTimestamp(t *testing.T) {
	cfg := seedSQLite(t)

	code, stdout, _ := run(t, "--config", cfg, "timestamp", "article", "--tenant", "alice")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "1004\n", stdout)

	code, stdout, _ = run(t, "--config", cfg, "--format", "json", "timestamp", "article", "-t", "alice")
	require.Equal(t, ExitSuccess, code)
	assert.JSONEq(t, `{"status":"ok","data":{"resource":"article","tenant":"alice","timestamp":1004}}`, stdout)
}

func TestTimestamp_EmptyTenant(t *testing.T) {
	code, stdout, _ := run(t, "timestamp", "article", "--tenant", "")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stdout, "Error [E001]")
}

func TestList(t *testing.T) {
	cfg := seedSQLite(t)

	tests := []struct {
		name      string
		args      []string
		wantIDs   []string
		wantTotal int
	}{
		{"all live", nil, []string{"a", "b", "c"}, 3},
		{"include deleted", []string{"--include-deleted"}, []string{"a", "b", "c", "d"}, 3},
		{"min filter", []string{"--filter", "min_n=5"}, []string{"b", "c"}, 2},
		{"equality", []string{"-f", "title=beta"}, []string{"b"}, 1},
		{"in set", []string{"--filter", "in_id=a,c"}, []string{"a", "c"}, 2},
		{"exclude set", []string{"--filter", "exclude_title=alpha,gamma"}, []string{"b"}, 1},
		{"combined", []string{"-f", "gt_n=1", "-f", "lt_n=9"}, []string{"b"}, 1},
		{"sort descending", []string{"--sort", "-n"}, []string{"c", "b", "a"}, 3},
		{"limit keeps total", []string{"--sort", "-n", "--limit", "2"}, []string{"c", "b"}, 3},
		{"deleted only", []string{"--include-deleted", "--filter", "deleted=true"}, []string{"d"}, 0},
		{"no match", []string{"--filter", "title=zeta"}, []string{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, total := listIDs(t, cfg, tt.args...)
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.wantTotal, total)
		})
	}
}

func TestList_AfterResumesPage(t *testing.T) {
	cfg := seedSQLite(t)

	ids, _ := listIDs(t, cfg, "--sort", "n", "--limit", "2")
	require.Equal(t, []string{"a", "b"}, ids)

	ids, _ = listIDs(t, cfg, "--sort", "n", "--limit", "2", "--after", `{"id":"b","n":5,"last_modified":1001}`)
	assert.Equal(t, []string{"c"}, ids)
}

func TestList_TextOutput(t *testing.T) {
	cfg := seedSQLite(t)

	code, stdout, _ := run(t, "--config", cfg, "list", "article", "--tenant", "alice", "--filter", "title=alpha")
	require.Equal(t, ExitSuccess, code)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `{"id":"a","last_modified":1000,"n":1,"title":"alpha"}`, lines[0])
	assert.Equal(t, "(1 shown, 1 total)", lines[1])
}

func TestList_Errors(t *testing.T) {
	cfg := seedSQLite(t)

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
	}{
		{"malformed filter", []string{"--filter", "title"}, ExitCommandError, "want [op_]field=value"},
		{"invalid field", []string{"--filter", "bad field=1"}, ExitCommandError, "Error [E004]"},
		{"bad after", []string{"--after", "{"}, ExitCommandError, "--after"},
		{"after on marker", []string{"--sort", "deleted", "--after", `{"id":"a"}`}, ExitCommandError, "tombstone marker"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--config", cfg, "list", "article", "--tenant", "alice"}, tt.args...)
			code, stdout, _ := run(t, args...)
			assert.Equal(t, tt.wantCode, code)
			assert.Contains(t, stdout, tt.wantOut)
		})
	}
}

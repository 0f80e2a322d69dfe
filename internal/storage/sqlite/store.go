package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/roach88/recstore/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Empty database, schema.sql not applied yet
// 1 - records, tombstones, timestamps and their stamp indexes
const currentSchemaVersion = 1

const backendName = "sqlite"

// Store is the SQLite storage backend.
//
// Thread-safety: safe for concurrent use. Several Stores (or processes) may
// share one database file.
type Store struct {
	db   *sql.DB
	opts storage.Options
}

var (
	_ storage.Storage           = (*Store)(nil)
	_ storage.SchemaInitializer = (*Store)(nil)
)

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas; the schema is applied by EnsureSchema.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - immediate transactions, so writers queue instead of deadlocking
func Open(path string, opts storage.Options) (*Store, error) {
	opts = opts.WithDefaults()

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, classify(fmt.Errorf("failed to connect to database: %w", err))
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	opts.Logger.Debug("opened sqlite storage", "path", path)
	return &Store{db: db, opts: opts}, nil
}

// dsn adds the connection parameters go-sqlite3 understands to path.
func dsn(path string) string {
	params := url.Values{}
	params.Set("_txlock", "immediate")
	params.Set("_busy_timeout", "5000")
	return "file:" + path + "?" + params.Encode()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// EnsureSchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.checkEncoding(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return classify(fmt.Errorf("failed to execute schema: %w", err))
	}
	if err := s.runMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	s.opts.Logger.Debug("sqlite schema ready", "version", currentSchemaVersion)
	return nil
}

// checkEncoding refuses databases whose text encoding is not UTF-8: the
// canonical JSON in the data column must compare bytewise.
func (s *Store) checkEncoding(ctx context.Context) error {
	var name string
	if err := s.db.QueryRowContext(ctx, "PRAGMA encoding").Scan(&name); err != nil {
		return classify(fmt.Errorf("get encoding: %w", err))
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return fmt.Errorf("unknown database encoding %q: %w", name, err)
	}
	if enc != unicode.UTF8 {
		return fmt.Errorf("database encoding is %q, expected UTF-8", name)
	}
	return nil
}

// runMigrations records the schema version in user_version. schema.sql
// always builds the current layout, so there is nothing to upgrade yet;
// databases written by a newer recstore are refused.
func (s *Store) runMigrations(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if version == currentSchemaVersion {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping runs a trivial query.
func (s *Store) Ping(ctx context.Context) bool {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		s.opts.Logger.Warn("sqlite ping failed", "error", err)
		return false
	}
	return true
}

// Flush empties every table.
func (s *Store) Flush(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"records", "tombstones", "timestamps"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("flush %s: %w", table, err)
			}
		}
		s.opts.Logger.Debug("flushed sqlite storage")
		return nil
	})
}

// withTx runs fn in an immediate transaction and commits if fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// classify wraps connectivity failures as BackendUnavailableError. Other
// errors pass through.
func classify(err error) error {
	if err == nil || storage.IsUnavailable(err) {
		return err
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrNomem, sqlite3.ErrNotADB:
			return storage.Unavailable(backendName, err)
		}
	}
	if errors.Is(err, sql.ErrConnDone) {
		return storage.Unavailable(backendName, err)
	}
	return err
}

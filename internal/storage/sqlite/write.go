package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/recstore/internal/clock"
	"github.com/roach88/recstore/internal/ir"
	"github.com/roach88/recstore/internal/querysql"
	"github.com/roach88/recstore/internal/storage"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Create stores a new record.
func (s *Store) Create(ctx context.Context, r *ir.Resource, tenant string, record ir.Record) (ir.Record, error) {
	content, id, explicit, err := storage.PrepareCreate(r, tenant, s.opts.IDs, record)
	if err != nil {
		return nil, err
	}

	var out ir.Record
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if explicit {
			existing, err := s.get(ctx, tx, r, tenant, id)
			if err == nil {
				return storage.NewUnicityError(r.IDField, existing)
			}
			if !storage.IsNotFound(err) {
				return err
			}
		}
		if err := s.checkUnicity(ctx, tx, r, tenant, id, content); err != nil {
			return err
		}
		rec, err := s.put(ctx, tx, r, tenant, id, content)
		if err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update replaces or creates record id.
func (s *Store) Update(ctx context.Context, r *ir.Resource, tenant, id string, record ir.Record) (ir.Record, error) {
	content, err := storage.PrepareUpdate(r, tenant, id, record)
	if err != nil {
		return nil, err
	}

	var out ir.Record
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.checkUnicity(ctx, tx, r, tenant, id, content); err != nil {
			return err
		}
		rec, err := s.put(ctx, tx, r, tenant, id, content)
		if err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete replaces a live record with its tombstone.
func (s *Store) Delete(ctx context.Context, r *ir.Resource, tenant, id string) (ir.Record, error) {
	if err := storage.CheckScope(r, tenant); err != nil {
		return nil, err
	}

	var out ir.Record
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM records
			WHERE tenant_id = ? AND resource_name = ? AND id = ?
		`, tenant, r.Name, id)
		if err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		if n == 0 {
			return storage.NewNotFound(id)
		}

		stamp, err := s.bump(ctx, tx, r, tenant)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tombstones (id, tenant_id, resource_name, last_modified)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(tenant_id, resource_name, id) DO UPDATE SET last_modified = excluded.last_modified
		`, id, tenant, r.Name, stamp)
		if err != nil {
			return fmt.Errorf("write tombstone: %w", err)
		}
		out = r.Tombstone(id, stamp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// put stamps and upserts content under id, reviving a tombstone if needed.
func (s *Store) put(ctx context.Context, tx *sql.Tx, r *ir.Resource, tenant, id string, content ir.Record) (ir.Record, error) {
	data, err := ir.MarshalRecord(content)
	if err != nil {
		return nil, err
	}
	stamp, err := s.bump(ctx, tx, r, tenant)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (id, tenant_id, resource_name, last_modified, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, resource_name, id) DO UPDATE SET
			last_modified = excluded.last_modified,
			data = excluded.data
	`, id, tenant, r.Name, stamp, string(data))
	if err != nil {
		return nil, fmt.Errorf("write record: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM tombstones
		WHERE tenant_id = ? AND resource_name = ? AND id = ?
	`, tenant, r.Name, id)
	if err != nil {
		return nil, fmt.Errorf("drop tombstone: %w", err)
	}

	return r.Live(content, id, stamp), nil
}

// bump issues the next collection stamp inside tx. The immediate
// transaction holds the write lock, so read-then-write is atomic.
func (s *Store) bump(ctx context.Context, tx *sql.Tx, r *ir.Resource, tenant string) (int64, error) {
	last, err := lastStamp(ctx, tx, r, tenant)
	if err != nil {
		return 0, err
	}
	next := clock.Next(last, s.opts.Clock())

	_, err = tx.ExecContext(ctx, `
		INSERT INTO timestamps (tenant_id, resource_name, last_modified)
		VALUES (?, ?, ?)
		ON CONFLICT(tenant_id, resource_name) DO UPDATE SET last_modified = excluded.last_modified
	`, tenant, r.Name, next)
	if err != nil {
		return 0, fmt.Errorf("write timestamp: %w", err)
	}
	return next, nil
}

// lastStamp returns the last issued stamp of a collection, 0 if none.
func lastStamp(ctx context.Context, q querier, r *ir.Resource, tenant string) (int64, error) {
	var last int64
	err := q.QueryRowContext(ctx, `
		SELECT last_modified FROM timestamps
		WHERE tenant_id = ? AND resource_name = ?
	`, tenant, r.Name).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read timestamp: %w", err)
	}
	return last, nil
}

// checkUnicity looks for a live record other than id holding any unique
// value of content. Fields are checked in declaration order.
func (s *Store) checkUnicity(ctx context.Context, tx *sql.Tx, r *ir.Resource, tenant, id string, content ir.Record) error {
	compiler := querysql.NewCompiler(r)
	for _, cond := range storage.UniqueConditions(r, content) {
		query, params, err := compiler.CompileConflict(tenant, id, cond)
		if err != nil {
			return fmt.Errorf("compile unicity check: %w", err)
		}
		var (
			otherID string
			stamp   int64
			data    string
		)
		err = tx.QueryRowContext(ctx, query, params...).Scan(&otherID, &stamp, &data)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return fmt.Errorf("unicity check: %w", err)
		}
		conflicting, err := decodeLive(r, otherID, stamp, data)
		if err != nil {
			return err
		}
		return storage.NewUnicityError(cond.Field, conflicting)
	}
	return nil
}

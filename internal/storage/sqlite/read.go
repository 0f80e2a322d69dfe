package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/recstore/internal/ir"
	"github.com/roach88/recstore/internal/queryir"
	"github.com/roach88/recstore/internal/querysql"
	"github.com/roach88/recstore/internal/storage"
)

// CollectionTimestamp returns the last stamp of the collection, or the
// current time if it was never written.
func (s *Store) CollectionTimestamp(ctx context.Context, r *ir.Resource, tenant string) (int64, error) {
	if err := storage.CheckScope(r, tenant); err != nil {
		return 0, err
	}
	last, err := lastStamp(ctx, s.db, r, tenant)
	if err != nil {
		return 0, classify(err)
	}
	if last == 0 {
		return s.opts.Clock(), nil
	}
	return last, nil
}

// Get returns a live record.
func (s *Store) Get(ctx context.Context, r *ir.Resource, tenant, id string) (ir.Record, error) {
	if err := storage.CheckScope(r, tenant); err != nil {
		return nil, err
	}
	rec, err := s.get(ctx, s.db, r, tenant, id)
	if err != nil {
		return nil, classify(err)
	}
	return rec, nil
}

func (s *Store) get(ctx context.Context, q querier, r *ir.Resource, tenant, id string) (ir.Record, error) {
	var (
		stamp int64
		data  string
	)
	err := q.QueryRowContext(ctx, `
		SELECT last_modified, data FROM records
		WHERE tenant_id = ? AND resource_name = ? AND id = ?
	`, tenant, r.Name, id).Scan(&stamp, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NewNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return decodeLive(r, id, stamp, data)
}

// GetAll runs q as a single compiled statement.
func (s *Store) GetAll(ctx context.Context, r *ir.Resource, tenant string, q queryir.Query) ([]ir.Record, int, error) {
	if err := storage.PrepareQuery(r, tenant, q); err != nil {
		return nil, 0, err
	}

	query, params, err := querysql.NewCompiler(r).CompileGetAll(tenant, q, s.opts.MaxFetchSize)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, 0, classify(fmt.Errorf("get all: %w", err))
	}
	defer rows.Close()

	records := []ir.Record{}
	total := 0
	for rows.Next() {
		var (
			count   int
			id      sql.NullString
			stamp   sql.NullInt64
			deleted sql.NullInt64
			data    sql.NullString
		)
		if err := rows.Scan(&count, &id, &stamp, &deleted, &data); err != nil {
			return nil, 0, fmt.Errorf("get all: scan: %w", err)
		}
		total = count
		if !id.Valid {
			// Empty page: the row only carries the count.
			continue
		}
		if deleted.Int64 == 1 {
			records = append(records, r.Tombstone(id.String, stamp.Int64))
			continue
		}
		rec, err := decodeLive(r, id.String, stamp.Int64, data.String)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify(fmt.Errorf("get all: %w", err))
	}
	return records, total, nil
}

// decodeLive rebuilds a live record from its columns.
func decodeLive(r *ir.Resource, id string, stamp int64, data string) (ir.Record, error) {
	content, err := ir.UnmarshalRecord([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("record %q: %w", id, err)
	}
	return r.Live(content, id, stamp), nil
}

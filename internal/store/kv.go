package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/missionz/internal/kv"
)

// KV is a kv.Store kept in the kv_entries table of the local database.
type KV struct {
	db *sql.DB
	b  *entsql.DialectBuilder
}

var _ kv.Store = (*KV)(nil)

func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	query, args := s.b.Select(colValue).
		From(s.b.Table(tableKV)).
		Where(entsql.EQ(colKey, key)).
		Query()

	var v []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}
	return v, nil
}

func (s *KV) Set(ctx context.Context, key string, value []byte) error {
	query, args := s.b.Insert(tableKV).
		Columns(colKey, colValue, colUpdatedAt).
		Values(key, value, time.Now().UnixMilli()).
		OnConflict(
			entsql.ConflictColumns(colKey),
			entsql.ResolveWithNewValues(),
		).
		Query()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

func (s *KV) Delete(ctx context.Context, key string) error {
	query, args := s.b.Delete(tableKV).Where(entsql.EQ(colKey, key)).Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

func (s *KV) DeletePrefix(ctx context.Context, prefix string) error {
	query, args := s.b.Delete(tableKV).Where(entsql.HasPrefix(colKey, prefix)).Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("kv delete prefix %s: %w", prefix, err)
	}
	return nil
}

// Close is a no-op; the database is owned by the Store.
func (s *KV) Close() error {
	return nil
}

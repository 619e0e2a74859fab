package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const schemaKV = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
)`

const (
	queryGet    = `SELECT value, expires_at FROM kv WHERE key = ?`
	queryUpsert = `INSERT INTO kv (key, value, expires_at) VALUES (:key, :value, :expires_at)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`
	queryDelete = `DELETE FROM kv WHERE key = ?`
)

type kvRow struct {
	Key       string `db:"key"`
	Value     []byte `db:"value"`
	ExpiresAt int64  `db:"expires_at"` // unix nanoseconds, 0 means never
}

// SQLite is a Store in a single SQLite file.
type SQLite struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLite opens (and if needed creates) the database at path. Use
// ":memory:" for a throwaway database.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schemaKV); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating kv table: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var row kvRow
	err := s.db.GetContext(ctx, &row, queryGet, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get %s: %w", key, err)
	}
	if row.ExpiresAt != 0 && s.now().UnixNano() >= row.ExpiresAt {
		if _, err := s.db.ExecContext(ctx, queryDelete, key); err != nil {
			return nil, fmt.Errorf("sqlite expire %s: %w", key, err)
		}
		return nil, ErrNotFound
	}
	return row.Value, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if value == nil {
		value = []byte{}
	}
	row := kvRow{Key: key, Value: value}
	if ttl > 0 {
		row.ExpiresAt = s.now().Add(ttl).UnixNano()
	}
	if _, err := s.db.NamedExecContext(ctx, queryUpsert, row); err != nil {
		return fmt.Errorf("sqlite set %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, queryDelete, key); err != nil {
		return fmt.Errorf("sqlite delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }

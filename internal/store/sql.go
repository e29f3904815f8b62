package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"smartlauncher/internal/storage"
)

// SQLBackend keeps entries in the kv_entries table (sqlite3, mysql or postgres).
type SQLBackend struct {
	db *sql.DB
	q  sqlQueries
}

type sqlQueries struct {
	get, del, keys, upsert string
}

// NewSQLBackend expects db to be migrated with storage.Migrate.
func NewSQLBackend(db *sql.DB, driver string) *SQLBackend {
	return &SQLBackend{db: db, q: sqlQueries{
		get:    storage.Rebind(driver, `SELECT v FROM kv_entries WHERE k = ?`),
		del:    storage.Rebind(driver, `DELETE FROM kv_entries WHERE k = ?`),
		keys:   storage.Rebind(driver, `SELECT k FROM kv_entries WHERE k LIKE ? ESCAPE '!'`),
		upsert: storage.Upsert(driver),
	}}
}

func (b *SQLBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := b.db.QueryRowContext(ctx, b.q.get, key).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("select entry: %w", err)
	}
	return v, nil
}

func (b *SQLBackend) Set(ctx context.Context, key string, value []byte, _ time.Time) error {
	if _, err := b.db.ExecContext(ctx, b.q.upsert, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return nil
}

func (b *SQLBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, b.q.del, key); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

func (b *SQLBackend) Pop(ctx context.Context, key string) (value []byte, err error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = tx.QueryRowContext(ctx, b.q.get, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("select entry: %w", err)
	}
	res, err := tx.ExecContext(ctx, b.q.del, key)
	if err != nil {
		return nil, fmt.Errorf("delete entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("entry rows affected: %w", err)
	}
	if affected == 0 {
		// a concurrent reader consumed it first
		err = ErrKeyNotFound
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit pop: %w", err)
	}
	return value, nil
}

func (b *SQLBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, b.q.keys, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (b *SQLBackend) Close() error {
	return b.db.Close()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`)
	return r.Replace(s)
}

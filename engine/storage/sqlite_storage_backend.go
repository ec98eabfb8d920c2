package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS downloads (
	key        TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	mime       TEXT NOT NULL DEFAULT '',
	stored_at  INTEGER NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
)`

// sqliteStorageBackend keeps entries in a single table of a SQLite database.
type sqliteStorageBackend struct {
	db *sql.DB
}

var _ storageBackend = &sqliteStorageBackend{}

func newSQLiteStorageBackend(path string) (*sqliteStorageBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite store: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &sqliteStorageBackend{db: db}, nil
}

func (b *sqliteStorageBackend) get(ctx context.Context, key string) (*Entry, error) {
	var (
		entry     Entry
		storedAt  int64
		expiresAt int64
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT data, mime, stored_at, expires_at FROM downloads WHERE key = ?`, key,
	).Scan(&entry.Data, &entry.Mime, &storedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query download: %w", err)
	}
	if expiresAt > 0 && time.Now().UnixNano() > expiresAt {
		if _, err := b.db.ExecContext(ctx, `DELETE FROM downloads WHERE key = ?`, key); err != nil {
			return nil, fmt.Errorf("delete expired download: %w", err)
		}
		return nil, ErrNotFound
	}
	entry.StoredAt = time.Unix(0, storedAt)
	return &entry, nil
}

func (b *sqliteStorageBackend) set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).UnixNano()
	}
	data := entry.Data
	if data == nil {
		data = []byte{}
	}
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO downloads (key, data, mime, stored_at, expires_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, mime = excluded.mime,
			stored_at = excluded.stored_at, expires_at = excluded.expires_at`,
		key, data, entry.Mime, entry.StoredAt.UnixNano(), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("store download: %w", err)
	}
	return nil
}

func (b *sqliteStorageBackend) delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM downloads WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete download: %w", err)
	}
	return nil
}

func (b *sqliteStorageBackend) clear(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM downloads`); err != nil {
		return fmt.Errorf("clear downloads: %w", err)
	}
	return nil
}

func (b *sqliteStorageBackend) close() error {
	return b.db.Close()
}

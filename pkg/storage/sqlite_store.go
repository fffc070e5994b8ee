package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/finverse/finverse/pkg/domain"
)

// SQLiteStore is a ClientStore backed by a SQLite database file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func sqliteDSN(path string) string {
	return path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(10000)"
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	migrateDB, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}
	if err := RunMigrations(migrateDB); err != nil {
		_ = migrateDB.Close()
		return nil, fmt.Errorf("migrate storage db: %w", err)
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping storage db: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Get reads one value.
func (s *SQLiteStore) Get(ctx context.Context, clientID, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM client_values WHERE client_id = ? AND key = ?`,
		clientID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s/%s", domain.ErrKeyNotFound, clientID, key)
	}
	if err != nil {
		return "", fmt.Errorf("get %s/%s: %w", clientID, key, err)
	}
	return value, nil
}

// Set upserts one value.
func (s *SQLiteStore) Set(ctx context.Context, clientID, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_values (client_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (client_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, clientID, key, value, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", clientID, key, err)
	}
	return nil
}

// Delete removes one value.
func (s *SQLiteStore) Delete(ctx context.Context, clientID, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM client_values WHERE client_id = ? AND key = ?`, clientID, key,
	); err != nil {
		return fmt.Errorf("delete %s/%s: %w", clientID, key, err)
	}
	return nil
}

// All lists a client's values ordered by key.
func (s *SQLiteStore) All(ctx context.Context, clientID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, updated_at FROM client_values WHERE client_id = ? ORDER BY key`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", clientID, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			updated string
		)
		if err := rows.Scan(&e.Key, &e.Value, &updated); err != nil {
			return nil, fmt.Errorf("scan %s: %w", clientID, err)
		}
		e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

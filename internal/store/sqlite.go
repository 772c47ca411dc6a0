package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	namespace TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (namespace, key)
);
CREATE INDEX IF NOT EXISTS idx_kv_namespace ON kv(namespace);
`

// SQLiteProvider backs every namespace with one local SQLite file. This is
// the deployment default; values are optionally encrypted at rest.
type SQLiteProvider struct {
	db        *sql.DB
	encryptor *encryptor
}

func NewSQLiteProvider(path string) (*SQLiteProvider, error) {
	if len(path) == 0 || path[0] == '\x00' {
		return nil, fmt.Errorf("invalid store path")
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create store file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close store file: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping store: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	enc, err := newEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &SQLiteProvider{db: db, encryptor: enc}, nil
}

func (p *SQLiteProvider) Namespace(name string) Store {
	return &sqliteStore{provider: p, namespace: name}
}

func (p *SQLiteProvider) Close() error {
	return p.db.Close()
}

type sqliteStore struct {
	provider  *SQLiteProvider
	namespace string
}

func (s *sqliteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var stored string
	err := retryOnLock(ctx, "get", func() error {
		row := s.provider.db.QueryRowContext(ctx,
			`SELECT value FROM kv WHERE namespace = ? AND key = ?`, s.namespace, key)
		return row.Scan(&stored)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s/%s: %w", s.namespace, key, err)
	}

	value, err := s.provider.encryptor.open(stored)
	if err != nil {
		return "", false, fmt.Errorf("failed to decrypt %s/%s: %w", s.namespace, key, err)
	}
	return value, true, nil
}

func (s *sqliteStore) Set(ctx context.Context, key, value string) error {
	sealed, err := s.provider.encryptor.seal(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt %s/%s: %w", s.namespace, key, err)
	}

	err = retryOnLock(ctx, "set", func() error {
		_, execErr := s.provider.db.ExecContext(ctx, `
			INSERT INTO kv (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			s.namespace, key, sealed, time.Now().UTC())
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", s.namespace, key, err)
	}
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, key string) error {
	err := retryOnLock(ctx, "delete", func() error {
		_, execErr := s.provider.db.ExecContext(ctx,
			`DELETE FROM kv WHERE namespace = ? AND key = ?`, s.namespace, key)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", s.namespace, key, err)
	}
	return nil
}

func (s *sqliteStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := retryOnLock(ctx, "list", func() error {
		rows, queryErr := s.provider.db.QueryContext(ctx, `
			SELECT key FROM kv WHERE namespace = ? AND key LIKE ? || '%' ORDER BY key`,
			s.namespace, prefix)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()

		keys = keys[:0]
		for rows.Next() {
			var key string
			if scanErr := rows.Scan(&key); scanErr != nil {
				return scanErr
			}
			keys = append(keys, key)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s/%s*: %w", s.namespace, prefix, err)
	}
	return keys, nil
}

const (
	lockRetryAttempts = 3
	lockRetryBackoff  = 50 * time.Millisecond
)

// retryOnLock retries the operation on transient SQLite lock errors. Other
// errors are returned as-is; the services treat them per their own failure
// semantics (fallback session, swallowed usage log, and so on).
func retryOnLock(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= lockRetryAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isLockError(err) || attempt == lockRetryAttempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * lockRetryBackoff):
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", operation, lockRetryAttempts, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

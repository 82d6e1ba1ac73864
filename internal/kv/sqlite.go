package kv

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on kv.seq for change polling
const currentSchemaVersion = 1

// SQLite is a file-backed domain that several processes can share.
// Uses WAL mode so pollers can read while another process writes.
type SQLite struct {
	db *sql.DB

	mu       sync.Mutex
	contexts map[string]*SQLiteContext
}

// OpenSQLite creates or opens a SQLite-backed domain at path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db, contexts: make(map[string]*SQLiteContext)}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Context returns the Storage handle for the named execution context.
// The handle only reports changes written after it was created.
func (s *SQLite) Context(ctx context.Context, name string) (*SQLiteContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contexts[name]; ok {
		return c, nil
	}

	seq, err := s.currentSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("context %s: %w", name, err)
	}
	c := &SQLiteContext{domain: s, name: name, lastSeen: seq}
	s.contexts[name] = c
	return c, nil
}

// Keys returns all live keys in lexical order.
func (s *SQLite) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM kv
		WHERE value IS NOT NULL
		ORDER BY key ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

func (s *SQLite) currentSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, "SELECT seq FROM kv_clock WHERE id = 1").Scan(&seq); err != nil {
		return 0, fmt.Errorf("read clock: %w", err)
	}
	return seq, nil
}

// write stores value (nil writes a tombstone). Unchanged values are skipped
// and report changed=false.
func (s *SQLite) write(ctx context.Context, origin, key string, value []byte) (changed bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var existing []byte
	err = tx.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if value == nil {
			return false, nil
		}
	case err != nil:
		return false, fmt.Errorf("read existing: %w", err)
	default:
		if value == nil && existing == nil {
			return false, nil
		}
		if value != nil && existing != nil && bytes.Equal(existing, value) {
			return false, nil
		}
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, "UPDATE kv_clock SET seq = seq + 1 WHERE id = 1 RETURNING seq").Scan(&seq); err != nil {
		return false, fmt.Errorf("advance clock: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv (key, value, origin, seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			origin = excluded.origin,
			seq = excluded.seq
	`, key, value, origin, seq)
	if err != nil {
		return false, fmt.Errorf("upsert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
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

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the seq index used by change polling.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_kv_seq ON kv(seq)`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// SQLiteContext is one execution context's handle on a SQLite domain.
// It implements Storage; external changes are delivered by Poll or Follow.
type SQLiteContext struct {
	domain   *SQLite
	name     string
	watchers watcherSet

	pollMu   sync.Mutex
	lastSeen int64
}

var _ Storage = (*SQLiteContext)(nil)

// Name implements Storage.
func (c *SQLiteContext) Name() string { return c.name }

// Set implements Storage.
func (c *SQLiteContext) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	if _, err := c.domain.write(ctx, c.name, key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Get implements Storage.
func (c *SQLiteContext) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := c.domain.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	if value == nil {
		return nil, false, nil
	}
	return value, true, nil
}

// Delete implements Storage.
func (c *SQLiteContext) Delete(ctx context.Context, key string) error {
	if _, err := c.domain.write(ctx, c.name, key, nil); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Watch implements Storage.
func (c *SQLiteContext) Watch(fn ChangeFunc) func() {
	return c.watchers.add(fn)
}

// Poll delivers every change written by other contexts since the previous
// poll, in seq order. Returns the number of changes delivered.
func (c *SQLiteContext) Poll(ctx context.Context) (int, error) {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	rows, err := c.domain.db.QueryContext(ctx, `
		SELECT key, value, origin, seq
		FROM kv
		WHERE seq > ?
		ORDER BY seq ASC
	`, c.lastSeen)
	if err != nil {
		return 0, fmt.Errorf("poll: %w", err)
	}

	var changes []Change
	for rows.Next() {
		var ch Change
		if err := rows.Scan(&ch.Key, &ch.Value, &ch.Origin, &ch.Seq); err != nil {
			rows.Close()
			return 0, fmt.Errorf("poll scan: %w", err)
		}
		changes = append(changes, ch)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("poll iterate: %w", err)
	}
	rows.Close()

	delivered := 0
	for _, ch := range changes {
		c.lastSeen = ch.Seq
		if ch.Origin == c.name {
			continue
		}
		c.watchers.notify(ch)
		delivered++
	}
	return delivered, nil
}

// Follow polls every interval until ctx is cancelled.
// Poll errors are logged and polling continues.
func (c *SQLiteContext) Follow(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := c.Poll(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("storage poll failed", "context", c.name, "error", err)
			}
		}
	}
}

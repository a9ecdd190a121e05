package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteBackend implements Backend using SQLite for persistence. It opens
// the database in WAL mode with a single connection, since SQLite supports
// one writer at a time.
type SQLiteBackend struct {
	db        *sql.DB
	dbPath    string
	closeOnce sync.Once

	saveStmt    *sql.Stmt
	deleteStmt  *sql.Stmt
	listStmt    *sql.Stmt
	cleanupStmt *sql.Stmt
}

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteBackend creates a SQLite backend with default settings.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{
		DBPath:      dbPath,
		BusyTimeout: 5 * time.Second,
	})
}

// NewSQLiteBackendWithConfig creates a SQLite backend with custom configuration.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		cfg.DBPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	backend := &SQLiteBackend{
		db:     db,
		dbPath: cfg.DBPath,
	}

	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := backend.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return backend, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS admission_blocks (
		ip TEXT PRIMARY KEY,
		blocked_until INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_blocked_until ON admission_blocks(blocked_until);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteBackend) prepareStatements() error {
	var err error

	s.saveStmt, err = s.db.Prepare(`
		INSERT INTO admission_blocks (ip, blocked_until, reason, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (ip) DO UPDATE SET
			blocked_until = excluded.blocked_until,
			reason = excluded.reason,
			created_at = excluded.created_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save statement: %w", err)
	}

	s.deleteStmt, err = s.db.Prepare(`DELETE FROM admission_blocks WHERE ip = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	s.listStmt, err = s.db.Prepare(`
		SELECT ip, blocked_until, reason, created_at
		FROM admission_blocks
		WHERE blocked_until > ?
		ORDER BY ip
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare list statement: %w", err)
	}

	s.cleanupStmt, err = s.db.Prepare(`DELETE FROM admission_blocks WHERE blocked_until <= ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare cleanup statement: %w", err)
	}

	return nil
}

// Save inserts or replaces the block for an IP.
func (s *SQLiteBackend) Save(ctx context.Context, block *Block) error {
	if block == nil {
		return fmt.Errorf("block cannot be nil")
	}
	if block.IP == "" {
		return fmt.Errorf("ip cannot be empty")
	}

	createdAt := block.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.saveStmt.ExecContext(ctx,
		block.IP,
		block.BlockedUntil.UnixMilli(),
		block.Reason,
		createdAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save block: %w", err)
	}

	return nil
}

// Delete removes the block for an IP.
func (s *SQLiteBackend) Delete(ctx context.Context, ip string) error {
	if ip == "" {
		return fmt.Errorf("ip cannot be empty")
	}

	if _, err := s.deleteStmt.ExecContext(ctx, ip); err != nil {
		return fmt.Errorf("failed to delete block: %w", err)
	}

	return nil
}

// ListActive returns every block that is still in force at now.
func (s *SQLiteBackend) ListActive(ctx context.Context, now time.Time) ([]*Block, error) {
	rows, err := s.listStmt.QueryContext(ctx, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []*Block
	for rows.Next() {
		var (
			ip           string
			blockedUntil int64
			reason       string
			createdAt    int64
		)

		if err := rows.Scan(&ip, &blockedUntil, &reason, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		blocks = append(blocks, &Block{
			IP:           ip,
			BlockedUntil: time.UnixMilli(blockedUntil),
			Reason:       reason,
			CreatedAt:    time.UnixMilli(createdAt),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return blocks, nil
}

// Cleanup removes blocks that expired at or before now.
func (s *SQLiteBackend) Cleanup(ctx context.Context, now time.Time) (int, error) {
	result, err := s.cleanupStmt.ExecContext(ctx, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(deleted), nil
}

// Ping verifies the database connection.
func (s *SQLiteBackend) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases any resources held by the backend. It is idempotent.
func (s *SQLiteBackend) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{s.saveStmt, s.deleteStmt, s.listStmt, s.cleanupStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}

		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

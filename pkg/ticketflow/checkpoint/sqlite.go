package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists checkpoints to SQLite.
// Active and archived checkpoints live in separate tables; the UNIQUE
// constraint on active ticket_id enforces at most one active checkpoint
// per ticket, and a version column implements optimistic concurrency.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// NewSQLiteStore creates a new SQLite checkpoint store.
// The path should be a file path (e.g., "./ticketflow.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return NewSQLiteStoreFromDB(db)
}

// NewSQLiteStoreFromDB creates a store over an existing database handle,
// so the queue and checkpoint store can share one file.
func NewSQLiteStoreFromDB(db *sql.DB) (*SQLiteStore, error) {
	// One connection: SQLite serializes writes anyway, and a ":memory:"
	// DSN would otherwise give each pooled connection its own database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints_active (
			ticket_id TEXT NOT NULL PRIMARY KEY,
			version INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			data BLOB NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("create active table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints_archive (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticket_id TEXT NOT NULL,
			archived_at TEXT NOT NULL,
			data BLOB NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("create archive table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_checkpoints_archive_ticket
		ON checkpoints_archive(ticket_id)
	`); err != nil {
		return nil, fmt.Errorf("create archive index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, ticketID string) (*Checkpoint, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM checkpoints_active WHERE ticket_id = ?
	`, ticketID).Scan(&data)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return decode(data)
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := s.check(); err != nil {
		return err
	}

	expected := cp.Version
	cp.Version++
	cp.UpdatedAt = time.Now().UTC()

	data, err := encode(cp)
	if err != nil {
		cp.Version--
		return fmt.Errorf("serialize checkpoint: %w", err)
	}

	if expected == 0 {
		// INSERT OR IGNORE + RowsAffected detects a create collision
		// without racing a separate existence check.
		res, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO checkpoints_active (ticket_id, version, updated_at, data)
			VALUES (?, ?, ?, ?)
		`, cp.TicketID, cp.Version, cp.UpdatedAt.Format(time.RFC3339Nano), data)
		if err != nil {
			cp.Version--
			return fmt.Errorf("create checkpoint: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			cp.Version--
			return fmt.Errorf("create checkpoint: %w", err)
		}
		if n == 0 {
			cp.Version--
			return ErrConcurrencyConflict
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE checkpoints_active
		SET version = ?, updated_at = ?, data = ?
		WHERE ticket_id = ? AND version = ?
	`, cp.Version, cp.UpdatedAt.Format(time.RFC3339Nano), data, cp.TicketID, expected)
	if err != nil {
		cp.Version--
		return fmt.Errorf("update checkpoint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		cp.Version--
		return fmt.Errorf("update checkpoint: %w", err)
	}
	if n == 0 {
		cp.Version--
		return ErrConcurrencyConflict
	}
	return nil
}

// Archive implements Store.
func (s *SQLiteStore) Archive(ctx context.Context, ticketID string) error {
	if err := s.check(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive: %w", err)
	}
	defer tx.Rollback()

	var data []byte
	err = tx.QueryRowContext(ctx, `
		SELECT data FROM checkpoints_active WHERE ticket_id = ?
	`, ticketID).Scan(&data)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load for archive: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO checkpoints_archive (ticket_id, archived_at, data)
		VALUES (?, ?, ?)
	`, ticketID, time.Now().UTC().Format(time.RFC3339Nano), data); err != nil {
		return fmt.Errorf("insert archive: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM checkpoints_active WHERE ticket_id = ?
	`, ticketID); err != nil {
		return fmt.Errorf("delete active: %w", err)
	}

	return tx.Commit()
}

// ListArchived implements Store.
func (s *SQLiteStore) ListArchived(ctx context.Context, ticketID string) ([]*Checkpoint, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM checkpoints_archive
		WHERE ticket_id = ?
		ORDER BY id
	`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list archived: %w", err)
	}
	defer rows.Close()

	var out []*Checkpoint
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan archived: %w", err)
		}
		cp, err := decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived: %w", err)
	}
	return out, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

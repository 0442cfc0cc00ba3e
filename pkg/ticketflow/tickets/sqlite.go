package tickets

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists tickets to SQLite.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// NewSQLiteStore creates a new SQLite ticket store.
// The path should be a file path (e.g., "./ticketflow.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return NewSQLiteStoreFromDB(db)
}

// NewSQLiteStoreFromDB creates a store over an existing database handle,
// so tickets, checkpoints, and the queue can share one file.
func NewSQLiteStoreFromDB(db *sql.DB) (*SQLiteStore, error) {
	// One connection: SQLite serializes writes anyway, and a ":memory:"
	// DSN would otherwise give each pooled connection its own database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tickets (
			id TEXT NOT NULL PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			created_at TEXT NOT NULL,
			data BLOB NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("create tickets table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_tickets_tenant
		ON tickets(tenant_id, created_at)
	`); err != nil {
		return nil, fmt.Errorf("create tickets index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, t *Ticket) error {
	if err := s.check(); err != nil {
		return err
	}

	data, err := encodeTicket(t)
	if err != nil {
		return fmt.Errorf("serialize ticket: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tickets (id, tenant_id, stage, created_at, data)
		VALUES (?, ?, ?, ?, ?)
	`, t.ID, t.TenantID, string(t.Stage), ts(t.CreatedAt), data)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Ticket, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM tickets WHERE id = ?
	`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return decodeTicket(data)
}

// SetStage implements Store.
func (s *SQLiteStore) SetStage(ctx context.Context, id string, stage Stage) error {
	if err := s.check(); err != nil {
		return err
	}

	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	t.Stage = stage
	t.UpdatedAt = time.Now().UTC()

	data, err := encodeTicket(t)
	if err != nil {
		return fmt.Errorf("serialize ticket: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET stage = ?, data = ? WHERE id = ?
	`, string(stage), data, id)
	if err != nil {
		return fmt.Errorf("update ticket stage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ticket stage: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByTenant implements Store.
func (s *SQLiteStore) ListByTenant(ctx context.Context, tenantID string) ([]*Ticket, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM tickets
		WHERE tenant_id = ?
		ORDER BY created_at
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var out []*Ticket
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		t, err := decodeTicket(data)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tickets: %w", err)
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

// Fixed-width timestamps so lexical order matches time order.
func ts(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteQueue persists work items to SQLite.
// Lease acquisition runs in a transaction so concurrent schedulers never
// lease the same item; lease checks on Acknowledge, Release, and RenewLease
// use owner plus expiry in the WHERE clause.
type SQLiteQueue struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// NewSQLiteQueue creates a new SQLite work queue.
// The path should be a file path (e.g., "./ticketflow.db") or ":memory:" for testing.
func NewSQLiteQueue(path string) (*SQLiteQueue, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return NewSQLiteQueueFromDB(db)
}

// NewSQLiteQueueFromDB creates a queue over an existing database handle,
// so the queue and checkpoint store can share one file.
func NewSQLiteQueueFromDB(db *sql.DB) (*SQLiteQueue, error) {
	// One connection: SQLite serializes writes anyway, and a ":memory:"
	// DSN would otherwise give each pooled connection its own database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS work_items (
			id TEXT NOT NULL PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			enqueued_at TEXT NOT NULL,
			visible_after TEXT NOT NULL,
			lease_owner TEXT NOT NULL DEFAULT '',
			lease_expires_at TEXT NOT NULL DEFAULT '',
			data BLOB NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("create work_items table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_work_items_eligible
		ON work_items(visible_after, lease_expires_at, tenant_id)
	`); err != nil {
		return nil, fmt.Errorf("create work_items index: %w", err)
	}

	return &SQLiteQueue{db: db}, nil
}

// Enqueue implements Queue.
func (q *SQLiteQueue) Enqueue(ctx context.Context, item *WorkItem) error {
	if err := q.check(); err != nil {
		return err
	}

	data, err := encodeItem(item)
	if err != nil {
		return fmt.Errorf("serialize work item: %w", err)
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO work_items (id, tenant_id, enqueued_at, visible_after, data)
		VALUES (?, ?, ?, ?, ?)
	`, item.ID, item.TenantID, ts(item.EnqueuedAt), ts(item.VisibleAfter), data)
	if err != nil {
		return fmt.Errorf("enqueue work item: %w", err)
	}
	return nil
}

// LeaseBatch implements Queue.
func (q *SQLiteQueue) LeaseBatch(ctx context.Context, opts LeaseOptions) ([]*WorkItem, error) {
	if err := q.check(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	expiry := now.Add(opts.LeaseDuration)

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin lease: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT id, data FROM work_items
		WHERE visible_after <= ?
		  AND (lease_owner = '' OR lease_expires_at <= ?)
	`
	args := []any{ts(now), ts(now)}
	if len(opts.ExcludeTenants) > 0 {
		query += fmt.Sprintf(" AND tenant_id NOT IN (%s)",
			strings.TrimRight(strings.Repeat("?,", len(opts.ExcludeTenants)), ","))
		for _, t := range opts.ExcludeTenants {
			args = append(args, t)
		}
	}
	query += " ORDER BY enqueued_at LIMIT ?"
	args = append(args, opts.MaxItems)

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select eligible items: %w", err)
	}

	var leased []*WorkItem
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan work item: %w", err)
		}
		item, err := decodeItem(data)
		if err != nil {
			rows.Close()
			return nil, err
		}
		leased = append(leased, item)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate eligible items: %w", err)
	}
	rows.Close()

	for _, item := range leased {
		item.LeaseOwner = opts.Owner
		item.LeaseExpiresAt = expiry
		item.Attempts++

		data, err := encodeItem(item)
		if err != nil {
			return nil, fmt.Errorf("serialize work item: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE work_items
			SET lease_owner = ?, lease_expires_at = ?, data = ?
			WHERE id = ?
		`, opts.Owner, ts(expiry), data, item.ID); err != nil {
			return nil, fmt.Errorf("lease work item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit lease: %w", err)
	}
	return leased, nil
}

// Acknowledge implements Queue.
func (q *SQLiteQueue) Acknowledge(ctx context.Context, itemID, owner string) error {
	if err := q.check(); err != nil {
		return err
	}

	res, err := q.db.ExecContext(ctx, `
		DELETE FROM work_items
		WHERE id = ? AND lease_owner = ? AND lease_expires_at > ?
	`, itemID, owner, ts(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("acknowledge work item: %w", err)
	}
	return q.leaseResult(ctx, res, itemID)
}

// Release implements Queue.
func (q *SQLiteQueue) Release(ctx context.Context, itemID, owner string) error {
	if err := q.check(); err != nil {
		return err
	}

	res, err := q.db.ExecContext(ctx, `
		UPDATE work_items
		SET lease_owner = '', lease_expires_at = ''
		WHERE id = ? AND lease_owner = ? AND lease_expires_at > ?
	`, itemID, owner, ts(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("release work item: %w", err)
	}
	return q.leaseResult(ctx, res, itemID)
}

// RenewLease implements Queue.
func (q *SQLiteQueue) RenewLease(ctx context.Context, itemID, owner string, d time.Duration) error {
	if err := q.check(); err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := q.db.ExecContext(ctx, `
		UPDATE work_items
		SET lease_expires_at = ?
		WHERE id = ? AND lease_owner = ? AND lease_expires_at > ?
	`, ts(now.Add(d)), itemID, owner, ts(now))
	if err != nil {
		return fmt.Errorf("renew lease: %w", err)
	}
	return q.leaseResult(ctx, res, itemID)
}

// Close implements Queue.
func (q *SQLiteQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	return q.db.Close()
}

// leaseResult distinguishes a missing item from a lost lease when a
// guarded write affected no rows.
func (q *SQLiteQueue) leaseResult(ctx context.Context, res sql.Result, itemID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = q.db.QueryRowContext(ctx, `
		SELECT 1 FROM work_items WHERE id = ?
	`, itemID).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check work item: %w", err)
	}
	return ErrLeaseExpired
}

func (q *SQLiteQueue) check() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrStoreClosed
	}
	return nil
}

// RFC 3339 with fixed-width nanoseconds so lexical order matches time order.
func ts(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

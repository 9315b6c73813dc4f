package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_records (
    id TEXT PRIMARY KEY,
    request_id TEXT NOT NULL,
    time TIMESTAMP NOT NULL,
    deployment TEXT NOT NULL,
    operation TEXT NOT NULL,
    project TEXT,
    outcome TEXT NOT NULL,
    status INTEGER NOT NULL,
    upstream_index INTEGER NOT NULL,
    attempts INTEGER NOT NULL,
    streamed BOOLEAN NOT NULL,
    first_byte_ms INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    bytes_relayed INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_time ON audit_records(time);
CREATE INDEX IF NOT EXISTS idx_audit_deployment ON audit_records(deployment);
CREATE INDEX IF NOT EXISTS idx_audit_project ON audit_records(project);
`

// Store persists audit records in a SQLite database.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the audit database at path.
func OpenStore(path string, busyTimeout time.Duration) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)",
		path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids lock churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Insert writes one record, assigning an ID when the record has none.
func (s *Store) Insert(ctx context.Context, r *Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_records (
			id, request_id, time, deployment, operation, project,
			outcome, status, upstream_index, attempts, streamed,
			first_byte_ms, duration_ms, bytes_relayed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RequestID, r.Time.UTC(), r.Deployment, r.Operation, r.Project,
		r.Outcome, r.Status, r.UpstreamIndex, r.Attempts, r.Streamed,
		r.FirstByteMillis, r.DurationMillis, r.BytesRelayed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// Query returns records matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter Filter) ([]*Record, error) {
	query := `
		SELECT id, request_id, time, deployment, operation, project,
		       outcome, status, upstream_index, attempts, streamed,
		       first_byte_ms, duration_ms, bytes_relayed
		FROM audit_records WHERE 1=1`
	var args []any

	if filter.Deployment != "" {
		query += " AND deployment = ?"
		args = append(args, filter.Deployment)
	}
	if filter.Project != "" {
		query += " AND project = ?"
		args = append(args, filter.Project)
	}
	if !filter.Since.IsZero() {
		query += " AND time >= ?"
		args = append(args, filter.Since.UTC())
	}
	query += " ORDER BY time DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		r := &Record{}
		if err := rows.Scan(
			&r.ID, &r.RequestID, &r.Time, &r.Deployment, &r.Operation, &r.Project,
			&r.Outcome, &r.Status, &r.UpstreamIndex, &r.Attempts, &r.Streamed,
			&r.FirstByteMillis, &r.DurationMillis, &r.BytesRelayed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Filter narrows a Query.
type Filter struct {
	Deployment string
	Project    string
	Since      time.Time
	Limit      int
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_records").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count audit records: %w", err)
	}
	return n, nil
}

// DeleteOlderThan removes records with time before cutoff and returns the
// number removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM audit_records WHERE time < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit records: %w", err)
	}
	return result.RowsAffected()
}

// DeleteOldestBeyond keeps at most max records, removing the oldest
// overflow, and returns the number removed.
func (s *Store) DeleteOldestBeyond(ctx context.Context, max int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM audit_records WHERE id IN (
			SELECT id FROM audit_records ORDER BY time DESC LIMIT -1 OFFSET ?
		)`, max)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit records: %w", err)
	}
	return result.RowsAffected()
}

// Ping verifies the database is reachable. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

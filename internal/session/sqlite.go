package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite via modernc.org/sqlite
// (pure Go, no cgo).
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the history database. Use ":memory:"
// for testing.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping database: %w", err)
	}

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS scans (
			scan_id     TEXT PRIMARY KEY,
			hostname    TEXT NOT NULL,
			status      TEXT NOT NULL,
			start_utc   TEXT NOT NULL,
			record_json TEXT NOT NULL
		);
	`
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create table: %w", err)
	}

	createIndexSQL := `
		CREATE INDEX IF NOT EXISTS idx_scans_start_utc ON scans(start_utc);
	`
	if _, err := db.Exec(createIndexSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save inserts or replaces one history record.
func (s *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	if rec.ScanID == "" {
		return fmt.Errorf("history: record has no scan id")
	}
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("history: marshal record: %w", err)
	}

	query := `
		INSERT INTO scans (scan_id, hostname, status, start_utc, record_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(scan_id) DO UPDATE SET
			hostname    = excluded.hostname,
			status      = excluded.status,
			start_utc   = excluded.start_utc,
			record_json = excluded.record_json
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ScanID,
		rec.Hostname,
		rec.Status,
		rec.StartUTC.UTC().Format(time.RFC3339Nano),
		string(recordJSON),
	)
	if err != nil {
		return fmt.Errorf("history: save record: %w", err)
	}
	return nil
}

// Get retrieves one record by scan id. Returns (nil, nil) when absent.
func (s *SQLiteStore) Get(ctx context.Context, scanID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT record_json FROM scans WHERE scan_id = ?`, scanID)

	var recordJSON string
	if err := row.Scan(&recordJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("history: scan row: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
		return nil, fmt.Errorf("history: unmarshal record: %w", err)
	}
	return &rec, nil
}

// List returns records newest first. limit <= 0 means all.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*Record, error) {
	query := `SELECT record_json FROM scans ORDER BY start_utc DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, fmt.Errorf("history: scan row: %w", err)
		}
		var rec Record
		if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
			return nil, fmt.Errorf("history: unmarshal record: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate rows: %w", err)
	}
	return records, nil
}

// Delete removes a record by scan id.
func (s *SQLiteStore) Delete(ctx context.Context, scanID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM scans WHERE scan_id = ?`, scanID); err != nil {
		return fmt.Errorf("history: delete record: %w", err)
	}
	return nil
}

// Cleanup removes records older than maxAge. It returns the number of
// deleted records.
func (s *SQLiteStore) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339Nano)

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM scans WHERE start_utc < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history: cleanup records: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("history: rows affected: %w", err)
	}
	return deleted, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

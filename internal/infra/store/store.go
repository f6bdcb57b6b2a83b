// Package store persists a fetch-history log to SQLite purely for
// operator visibility: one row per completed fetch task, written after
// the core strategy has already computed its next delay. The core
// scheduling algorithm never reads this log back — losing it changes
// nothing about how the harvester behaves, only what an operator can
// see after the fact.
//
// A single *sql.DB is wrapped in a small struct, migrations run as a
// slice of plain CREATE TABLE statements, and timestamps are stored as
// RFC3339 text.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/harvestnet/reharvest/internal/domain"
)

// DB wraps a SQLite connection holding the fetch-history log.
type DB struct {
	db *sql.DB
}

// migrations returns the schema statements, executed in order at Open.
func migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS fetch_history (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			url        TEXT NOT NULL,
			timestamp  TEXT NOT NULL,
			delay_sec  REAL NOT NULL DEFAULT 0,
			similarity REAL NOT NULL DEFAULT 0,
			estimate   REAL NOT NULL DEFAULT 0,
			clamped    REAL NOT NULL DEFAULT 0,
			body_bytes INTEGER NOT NULL DEFAULT 0,
			failed     INTEGER NOT NULL DEFAULT 0,
			reason     TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fetch_history_url ON fetch_history(url, timestamp)`,
	}
}

// Open creates (or attaches to) the SQLite file at path and applies
// migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db := &DB{db: sqlDB}
	for _, stmt := range migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("store: migrate: %w", err)
		}
	}
	return db, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error {
	return db.db.Close()
}

// Record appends one fetch outcome to the log.
func (db *DB) Record(r domain.FetchRecord) error {
	failedInt := 0
	if r.Failed {
		failedInt = 1
	}
	_, err := db.db.Exec(`
		INSERT INTO fetch_history
			(url, timestamp, delay_sec, similarity, estimate, clamped, body_bytes, failed, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.URL, r.Timestamp.Format(time.RFC3339), r.DelaySec, r.Similarity, r.Estimate, r.Clamped, r.BodyBytes, failedInt, r.Reason)
	return err
}

// RecentForURL returns the most recent rows for url, newest first, capped
// at limit — used only by the admin surface, never by the scheduler.
func (db *DB) RecentForURL(url string, limit int) ([]domain.FetchRecord, error) {
	rows, err := db.db.Query(`
		SELECT url, timestamp, delay_sec, similarity, estimate, clamped, body_bytes, failed, reason
		FROM fetch_history WHERE url = ? ORDER BY timestamp DESC, id DESC LIMIT ?
	`, url, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// RecentAll returns the most recent rows across all URLs, newest first.
func (db *DB) RecentAll(limit int) ([]domain.FetchRecord, error) {
	rows, err := db.db.Query(`
		SELECT url, timestamp, delay_sec, similarity, estimate, clamped, body_bytes, failed, reason
		FROM fetch_history ORDER BY timestamp DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]domain.FetchRecord, error) {
	var out []domain.FetchRecord
	for rows.Next() {
		var r domain.FetchRecord
		var ts string
		var failedInt int
		if err := rows.Scan(&r.URL, &ts, &r.DelaySec, &r.Similarity, &r.Estimate, &r.Clamped, &r.BodyBytes, &failedInt, &r.Reason); err != nil {
			return nil, err
		}
		r.Timestamp, _ = time.Parse(time.RFC3339, ts)
		r.Failed = failedInt == 1
		out = append(out, r)
	}
	return out, rows.Err()
}

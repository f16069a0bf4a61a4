// Package db provides PostgreSQL persistence for scan results.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/zombar/linkray/models"
)

// DB wraps the database connection and provides data access methods.
type DB struct {
	conn *sql.DB
}

// Config contains database configuration.
type Config struct {
	DSN string // PostgreSQL connection string
}

// New opens a connection, verifies it and runs pending migrations.
func New(config Config) (*DB, error) {
	conn, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying connection for metrics collection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// GetScan returns the newest scan for a fingerprint, or nil when none
// exists or none is younger than maxAge. A non-empty ownerID scopes the
// lookup to that owner's rows; anonymous lookups match any row.
func (db *DB) GetScan(ctx context.Context, urlHash, ownerID string, maxAge time.Duration) (*models.Scan, error) {
	query := `
		SELECT id, COALESCE(owner_id, ''), url_hash, url, summary, risk_score,
		       COALESCE(reason, ''), category, tags, screenshot_url, created_at
		FROM linkray_scans
		WHERE url_hash = $1
	`
	args := []any{urlHash}

	if ownerID != "" {
		query += fmt.Sprintf(" AND owner_id = $%d", len(args)+1)
		args = append(args, ownerID)
	}
	if maxAge > 0 {
		query += fmt.Sprintf(" AND created_at > $%d", len(args)+1)
		args = append(args, time.Now().UTC().Add(-maxAge))
	}
	query += " ORDER BY created_at DESC LIMIT 1"

	row := db.conn.QueryRowContext(ctx, query, args...)
	scan, err := scanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query scan: %w", err)
	}
	return scan, nil
}

// UpsertScan inserts a scan or replaces the existing row for the same
// (owner_id, url_hash) pair. The row's ID survives replacement; CreatedAt is
// reset to now. Both are written back to the passed scan.
func (db *DB) UpsertScan(ctx context.Context, scan *models.Scan) error {
	if scan.OwnerID == "" {
		return fmt.Errorf("cannot persist scan without owner")
	}
	if scan.ID == "" {
		scan.ID = uuid.New().String()
	}

	tagsJSON, err := json.Marshal(scan.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `
		INSERT INTO linkray_scans (id, owner_id, url_hash, url, summary, risk_score, reason, category, tags, screenshot_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (owner_id, url_hash) DO UPDATE SET
			url = excluded.url,
			summary = excluded.summary,
			risk_score = excluded.risk_score,
			reason = excluded.reason,
			category = excluded.category,
			tags = excluded.tags,
			screenshot_url = excluded.screenshot_url,
			created_at = NOW()
		RETURNING id, created_at
	`

	err = db.conn.QueryRowContext(ctx, query,
		scan.ID,
		scan.OwnerID,
		scan.URLHash,
		scan.URL,
		scan.Summary,
		scan.RiskScore,
		nullable(scan.Reason),
		scan.Category,
		string(tagsJSON),
		scan.ScreenshotURL,
	).Scan(&scan.ID, &scan.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert scan: %w", err)
	}

	return nil
}

// ListRecent returns stored scans newest first. A non-empty ownerID scopes
// the listing to that owner.
func (db *DB) ListRecent(ctx context.Context, ownerID string, limit int) ([]*models.Scan, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, COALESCE(owner_id, ''), url_hash, url, summary, risk_score,
		       COALESCE(reason, ''), category, tags, screenshot_url, created_at
		FROM linkray_scans
	`
	args := []any{}
	if ownerID != "" {
		query += " WHERE owner_id = $1"
		args = append(args, ownerID)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent scans: %w", err)
	}
	defer rows.Close()

	var scans []*models.Scan
	for rows.Next() {
		scan, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		scans = append(scans, scan)
	}
	return scans, rows.Err()
}

// CountScans returns the total number of stored scans. Used by the health
// endpoint as a liveness probe against the database.
func (db *DB) CountScans(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM linkray_scans").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count scans: %w", err)
	}
	return count, nil
}

// DeleteScan removes a scan owned by ownerID. Returns sql.ErrNoRows when no
// matching row exists.
func (db *DB) DeleteScan(ctx context.Context, id, ownerID string) error {
	result, err := db.conn.ExecContext(ctx,
		"DELETE FROM linkray_scans WHERE id = $1 AND owner_id = $2", id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete scan: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(row rowScanner) (*models.Scan, error) {
	var scan models.Scan
	var tagsJSON string

	err := row.Scan(
		&scan.ID,
		&scan.OwnerID,
		&scan.URLHash,
		&scan.URL,
		&scan.Summary,
		&scan.RiskScore,
		&scan.Reason,
		&scan.Category,
		&tagsJSON,
		&scan.ScreenshotURL,
		&scan.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &scan.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	if scan.Tags == nil {
		scan.Tags = []string{}
	}

	return &scan, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

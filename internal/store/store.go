// Package store is the sqlite ledger of fetched snapshots, diffs and
// generated reports.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// SnapshotRecord is one captured snapshot.
type SnapshotRecord struct {
	Key        string
	Name       string
	CapturedAt time.Time
	Encoding   string
	SHA256     string
	Size       int64
	RunID      string
}

// DiffRecord is one written diff artifact.
type DiffRecord struct {
	Key          string
	Name         string
	FromName     string
	ToName       string
	GeneratedAt  time.Time
	ChangedLines int
	Pruned       int
	RunID        string
}

// ReportRecord is one generated change report.
type ReportRecord struct {
	ID            int64
	Key           string
	DiffName      string
	GlobalSummary string
	TotalTokens   int
	Cost          float64
	Batches       int
	Skipped       int
	GeneratedAt   time.Time
	RunID         string
}

// KeyStats aggregates the ledger for one document key.
type KeyStats struct {
	Key          string
	Snapshots    int
	Diffs        int
	Reports      int
	LastCaptured time.Time
	TotalTokens  int
	Cost         float64
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ContentHash returns the hex SHA-256 of body.
func ContentHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// RecordSnapshot inserts rec, replacing an earlier row with the same name.
func (s *Store) RecordSnapshot(ctx context.Context, rec SnapshotRecord) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if strings.TrimSpace(rec.Key) == "" {
		return errors.New("key is required")
	}
	if strings.TrimSpace(rec.Name) == "" {
		return errors.New("name is required")
	}
	if rec.CapturedAt.IsZero() {
		return errors.New("captured_at is required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (key, name, captured_at, encoding, sha256, size, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			key = excluded.key,
			captured_at = excluded.captured_at,
			encoding = excluded.encoding,
			sha256 = excluded.sha256,
			size = excluded.size,
			run_id = excluded.run_id
	`,
		rec.Key,
		rec.Name,
		formatTime(rec.CapturedAt),
		rec.Encoding,
		rec.SHA256,
		rec.Size,
		rec.RunID,
	)
	if err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}
	return nil
}

// RecordDiff inserts rec, replacing an earlier row with the same name.
func (s *Store) RecordDiff(ctx context.Context, rec DiffRecord) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if strings.TrimSpace(rec.Key) == "" {
		return errors.New("key is required")
	}
	if strings.TrimSpace(rec.Name) == "" {
		return errors.New("name is required")
	}
	if rec.GeneratedAt.IsZero() {
		return errors.New("generated_at is required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO diffs (key, name, from_name, to_name, generated_at, changed_lines, pruned, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			from_name = excluded.from_name,
			to_name = excluded.to_name,
			generated_at = excluded.generated_at,
			changed_lines = excluded.changed_lines,
			pruned = excluded.pruned,
			run_id = excluded.run_id
	`,
		rec.Key,
		rec.Name,
		rec.FromName,
		rec.ToName,
		formatTime(rec.GeneratedAt),
		rec.ChangedLines,
		rec.Pruned,
		rec.RunID,
	)
	if err != nil {
		return fmt.Errorf("record diff: %w", err)
	}
	return nil
}

// RecordReport inserts rec and returns its row id.
func (s *Store) RecordReport(ctx context.Context, rec ReportRecord) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	if strings.TrimSpace(rec.Key) == "" {
		return 0, errors.New("key is required")
	}
	if rec.GeneratedAt.IsZero() {
		return 0, errors.New("generated_at is required")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (key, diff_name, global_summary, total_tokens, cost, batches, skipped, generated_at, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Key,
		rec.DiffName,
		rec.GlobalSummary,
		rec.TotalTokens,
		rec.Cost,
		rec.Batches,
		rec.Skipped,
		formatTime(rec.GeneratedAt),
		rec.RunID,
	)
	if err != nil {
		return 0, fmt.Errorf("record report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("report id: %w", err)
	}
	return id, nil
}

// Snapshots returns the recorded snapshots of key, newest first.
func (s *Store) Snapshots(ctx context.Context, key string, limit int) ([]SnapshotRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, name, captured_at, encoding, sha256, size, run_id
		FROM snapshots
		WHERE key = ?
		ORDER BY captured_at DESC, name DESC
		LIMIT ?
	`, key, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("get snapshots: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []SnapshotRecord
	for rows.Next() {
		var (
			rec      SnapshotRecord
			captured string
		)
		if err := rows.Scan(&rec.Key, &rec.Name, &captured, &rec.Encoding, &rec.SHA256, &rec.Size, &rec.RunID); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if rec.CapturedAt, err = parseTime(captured); err != nil {
			return nil, fmt.Errorf("parse captured_at: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// Diffs returns the recorded diffs of key, newest first.
func (s *Store) Diffs(ctx context.Context, key string, limit int) ([]DiffRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, name, from_name, to_name, generated_at, changed_lines, pruned, run_id
		FROM diffs
		WHERE key = ?
		ORDER BY generated_at DESC, name DESC
		LIMIT ?
	`, key, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("get diffs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []DiffRecord
	for rows.Next() {
		var (
			rec       DiffRecord
			generated string
		)
		if err := rows.Scan(&rec.Key, &rec.Name, &rec.FromName, &rec.ToName, &generated, &rec.ChangedLines, &rec.Pruned, &rec.RunID); err != nil {
			return nil, fmt.Errorf("scan diff: %w", err)
		}
		if rec.GeneratedAt, err = parseTime(generated); err != nil {
			return nil, fmt.Errorf("parse generated_at: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diffs: %w", err)
	}
	return out, nil
}

// LatestReports returns the newest reports, optionally filtered by key.
func (s *Store) LatestReports(ctx context.Context, key string, limit int) ([]ReportRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}

	query := `
		SELECT id, key, diff_name, global_summary, total_tokens, cost, batches, skipped, generated_at, run_id
		FROM reports`
	var args []any
	if key != "" {
		query += " WHERE key = ?"
		args = append(args, key)
	}
	query += " ORDER BY generated_at DESC, id DESC LIMIT ?"
	args = append(args, sqlLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get reports: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []ReportRecord
	for rows.Next() {
		var (
			rec       ReportRecord
			generated string
		)
		if err := rows.Scan(&rec.ID, &rec.Key, &rec.DiffName, &rec.GlobalSummary, &rec.TotalTokens,
			&rec.Cost, &rec.Batches, &rec.Skipped, &generated, &rec.RunID); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		if rec.GeneratedAt, err = parseTime(generated); err != nil {
			return nil, fmt.Errorf("parse generated_at: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return out, nil
}

// Stats returns per-key counts, ordered by key.
func (s *Store) Stats(ctx context.Context) ([]KeyStats, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT k.key,
			(SELECT COUNT(*) FROM snapshots WHERE key = k.key),
			(SELECT COUNT(*) FROM diffs WHERE key = k.key),
			(SELECT COUNT(*) FROM reports WHERE key = k.key),
			COALESCE((SELECT MAX(captured_at) FROM snapshots WHERE key = k.key), ''),
			COALESCE((SELECT SUM(total_tokens) FROM reports WHERE key = k.key), 0),
			COALESCE((SELECT SUM(cost) FROM reports WHERE key = k.key), 0)
		FROM (
			SELECT key FROM snapshots
			UNION SELECT key FROM diffs
			UNION SELECT key FROM reports
		) k
		ORDER BY k.key
	`)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []KeyStats
	for rows.Next() {
		var (
			st       KeyStats
			captured string
		)
		if err := rows.Scan(&st.Key, &st.Snapshots, &st.Diffs, &st.Reports, &captured, &st.TotalTokens, &st.Cost); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		if st.LastCaptured, err = parseTime(captured); err != nil {
			return nil, fmt.Errorf("parse captured_at: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return out, nil
}

// PruneOld deletes ledger rows older than retainDays and returns how many went.
func (s *Store) PruneOld(ctx context.Context, retainDays int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	if retainDays <= 0 {
		return 0, errors.New("retain days must be positive")
	}

	cutoff := formatTime(time.Now().AddDate(0, 0, -retainDays))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}

	var total int64
	for _, q := range []string{
		"DELETE FROM snapshots WHERE captured_at < ?",
		"DELETE FROM diffs WHERE generated_at < ?",
		"DELETE FROM reports WHERE generated_at < ?",
	} {
		res, err := tx.ExecContext(ctx, q, cutoff)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("prune: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return total, nil
}

func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return time.Time{}.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}

// Package sqlite implements the scan ledger on SQLite via the
// single-writer transaction worker.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	dbpkg "github.com/tapgate/tapgate/server/internal/db"
	"github.com/tapgate/tapgate/server/internal/tapgate/store"
	"github.com/tapgate/tapgate/server/internal/tapgate/types"
)

type ScanStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewScanStore(db *sql.DB, writer *dbpkg.Worker) *ScanStore {
	return &ScanStore{db: db, writer: writer}
}

func (s *ScanStore) Append(ctx context.Context, rec types.ScanRecord) error {
	scannedMs := rec.ScannedAt.UTC().UnixMilli()
	createdMs := time.Now().UTC().UnixMilli()

	var verified int
	if rec.Verified {
		verified = 1
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO scans(scan_id, uid, campaign_id, scanned_at_ms, checksum, verified, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?);
`, rec.ScanID, rec.UID, rec.CampaignID, scannedMs, rec.Checksum, verified, createdMs)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrDuplicateScanID
			}
			return fmt.Errorf("Append insert: %w", err)
		}
		return nil
	})
}

func (s *ScanStore) Get(ctx context.Context, scanID string) (*types.ScanRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT scan_id, uid, campaign_id, scanned_at_ms, checksum, verified
FROM scans
WHERE scan_id = ?;
`, scanID)

	rec, err := scanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &rec, nil
}

func (s *ScanStore) Query(ctx context.Context, f store.ScanFilter) ([]types.ScanRecord, error) {
	where, args := filterClause(f)

	q := `
SELECT scan_id, uid, campaign_id, scanned_at_ms, checksum, verified
FROM scans` + where + `
ORDER BY scanned_at_ms DESC, rowid DESC`

	if f.Limit > 0 {
		q += "\nLIMIT ?"
		args = append(args, f.Limit)
		if f.Offset > 0 {
			q += " OFFSET ?"
			args = append(args, f.Offset)
		}
	} else if f.Offset > 0 {
		// SQLite requires a LIMIT before OFFSET; -1 means unlimited.
		q += "\nLIMIT -1 OFFSET ?"
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, q+";", args...)
	if err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}
	defer rows.Close()

	var out []types.ScanRecord
	for rows.Next() {
		rec, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("Query scan row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Query rows: %w", err)
	}
	return out, nil
}

func (s *ScanStore) Count(ctx context.Context, f store.ScanFilter) (int, error) {
	where, args := filterClause(f)

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM scans"+where+";", args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return n, nil
}

func (s *ScanStore) LastScan(ctx context.Context, uid string) (*types.ScanRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT scan_id, uid, campaign_id, scanned_at_ms, checksum, verified
FROM scans
WHERE uid = ?
ORDER BY scanned_at_ms DESC, rowid DESC
LIMIT 1;
`, uid)

	rec, err := scanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LastScan: %w", err)
	}
	return &rec, nil
}

func (s *ScanStore) CountForDay(ctx context.Context, uid string, day time.Time) (int, error) {
	start, end := store.DayBounds(day)

	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM scans
WHERE uid = ? AND scanned_at_ms >= ? AND scanned_at_ms < ?;
`, uid, start.UnixMilli(), end.UnixMilli()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountForDay: %w", err)
	}
	return n, nil
}

func (s *ScanStore) Stats(ctx context.Context, now time.Time) (types.ScanStats, error) {
	todayStart, todayEnd := store.DayBounds(now)
	yesterdayStart := todayStart.Add(-24 * time.Hour)

	var (
		stats  types.ScanStats
		lastMs sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT
  COUNT(*),
  COUNT(DISTINCT uid),
  SUM(CASE WHEN scanned_at_ms >= ? AND scanned_at_ms < ? THEN 1 ELSE 0 END),
  SUM(CASE WHEN scanned_at_ms >= ? AND scanned_at_ms < ? THEN 1 ELSE 0 END),
  MAX(scanned_at_ms)
FROM scans;
`,
		todayStart.UnixMilli(), todayEnd.UnixMilli(),
		yesterdayStart.UnixMilli(), todayStart.UnixMilli(),
	).Scan(&stats.TotalScans, &stats.UniqueUIDs, &nullIntScanner{&stats.TodayScans}, &nullIntScanner{&stats.YesterdayScans}, &lastMs)
	if err != nil {
		return types.ScanStats{}, fmt.Errorf("Stats: %w", err)
	}

	if lastMs.Valid {
		t := time.UnixMilli(lastMs.Int64).UTC()
		stats.LastScanAt = &t
	}
	return stats, nil
}

func (s *ScanStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM scans
WHERE scanned_at_ms < ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}

// filterClause builds the WHERE clause shared by Query and Count.
func filterClause(f store.ScanFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.UID != "" {
		conds = append(conds, "uid = ?")
		args = append(args, f.UID)
	}
	if f.CampaignID != "" {
		conds = append(conds, "campaign_id = ?")
		args = append(args, f.CampaignID)
	}
	if f.Start != nil {
		conds = append(conds, "scanned_at_ms >= ?")
		args = append(args, f.Start.UTC().UnixMilli())
	}
	if f.End != nil {
		conds = append(conds, "scanned_at_ms <= ?")
		args = append(args, f.End.UTC().UnixMilli())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "\nWHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(r rowScanner) (types.ScanRecord, error) {
	var (
		rec       types.ScanRecord
		scannedMs int64
		verified  int
	)
	if err := r.Scan(&rec.ScanID, &rec.UID, &rec.CampaignID, &scannedMs, &rec.Checksum, &verified); err != nil {
		return types.ScanRecord{}, err
	}
	rec.ScannedAt = time.UnixMilli(scannedMs).UTC()
	rec.Verified = verified == 1
	return rec, nil
}

// nullIntScanner treats SUM(...) over an empty table (NULL) as zero.
type nullIntScanner struct {
	dst *int
}

func (n *nullIntScanner) Scan(src any) error {
	if src == nil {
		*n.dst = 0
		return nil
	}
	switch v := src.(type) {
	case int64:
		*n.dst = int(v)
	default:
		return fmt.Errorf("unexpected count type %T", src)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tapgate/tapgate/server/internal/tapgate/integrity"
)

type SeedDevOptions struct {
	// ScanSecret must match the server's configured secret so the seeded
	// checksum survives re-validation.
	ScanSecret string
}

// SeedDev inserts a demo scan so the read-side endpoints show data on a
// fresh dev database.  Idempotent: the fixed scan_id makes reseeding a
// no-op.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	const (
		scanID     = "seed-demo-scan-001"
		uid        = "DEMO0001CARD"
		campaignID = "DEMO01"
	)

	scannedAt := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	checksum := integrity.Seal(uid, scannedAt, campaignID, opt.ScanSecret)
	nowMs := time.Now().UTC().UnixMilli()

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO scans(
  scan_id, uid, campaign_id, scanned_at_ms, checksum, verified, created_at_ms
) VALUES (?, ?, ?, ?, ?, 1, ?);
`, scanID, uid, campaignID, scannedAt.UnixMilli(), checksum, nowMs); err != nil {
		return fmt.Errorf("seed demo scan: %w", err)
	}

	return nil
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/tapgate/tapgate/server/internal/tapgate/types"
)

// ErrDuplicateScanID is returned by Append when the scan_id already exists.
// A blind retry of a failed admission with a fresh scan_id is safe;
// retrying with the same scan_id is rejected rather than duplicated.
var ErrDuplicateScanID = errors.New("scan_id already exists")

// ScanFilter narrows Query and Count.  Zero values mean "no filter".
// Start and End are inclusive bounds on the admission timestamp.
type ScanFilter struct {
	UID        string
	CampaignID string
	Start      *time.Time
	End        *time.Time
	Limit      int
	Offset     int
}

// ScanStore is the scan ledger: an append-only store of admitted scans
// with ordered, filterable reads.  Every read is a snapshot consistent
// with all appends that completed before the read started.
type ScanStore interface {
	// Append durably persists a record.  Fails with ErrDuplicateScanID
	// if the scan_id is already present.
	Append(ctx context.Context, rec types.ScanRecord) error

	// Get returns the record with the given scan_id, or nil if absent.
	Get(ctx context.Context, scanID string) (*types.ScanRecord, error)

	// Query returns matching records ordered by timestamp descending.
	// Limit/Offset apply after filtering.
	Query(ctx context.Context, f ScanFilter) ([]types.ScanRecord, error)

	// Count returns the number of records matching the filter,
	// ignoring Limit/Offset.
	Count(ctx context.Context, f ScanFilter) (int, error)

	// LastScan returns the most recent record for a uid, or nil if the
	// uid has never been admitted.
	LastScan(ctx context.Context, uid string) (*types.ScanRecord, error)

	// CountForDay counts records for a uid whose timestamp falls within
	// the UTC calendar day containing day.
	CountForDay(ctx context.Context, uid string, day time.Time) (int, error)

	// Stats aggregates the whole ledger; today/yesterday are the UTC
	// calendar days relative to now.
	Stats(ctx context.Context, now time.Time) (types.ScanStats, error)

	// PruneOlderThan deletes records admitted before cutoff and returns
	// the number of rows deleted.  Only the retention pruner calls this;
	// the admission core never deletes.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// DayBounds returns the inclusive start and exclusive end of the UTC
// calendar day containing t.
func DayBounds(t time.Time) (start, end time.Time) {
	u := t.UTC()
	start = time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

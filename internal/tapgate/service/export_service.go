package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tapgate/tapgate/server/internal/tapgate/store"
	"github.com/tapgate/tapgate/server/internal/tapgate/types"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// CSVHeader is the fixed export header.  Fields are rendered as literal
// text with no quoting: uids and campaign tags cannot contain commas,
// timestamps are fixed-format and checksums are hex.
const CSVHeader = "Scan ID,UID,Campaign ID,Timestamp,Checksum,Verified"

// ExportService is the read side: stats, filtered listing and CSV
// projection, all derived purely from ledger reads.
type ExportService struct {
	store store.ScanStore

	// now is replaceable in tests.
	now func() time.Time
}

func NewExportService(st store.ScanStore) *ExportService {
	return &ExportService{store: st, now: time.Now}
}

// Logs returns a page of matching records, most recent first, plus
// pagination metadata.
func (s *ExportService) Logs(ctx context.Context, f store.ScanFilter) (types.LogPage, error) {
	if f.Limit <= 0 {
		f.Limit = defaultLogLimit
	}
	if f.Limit > maxLogLimit {
		f.Limit = maxLogLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	total, err := s.store.Count(ctx, f)
	if err != nil {
		return types.LogPage{}, fmt.Errorf("count logs: %w", err)
	}

	scans, err := s.store.Query(ctx, f)
	if err != nil {
		return types.LogPage{}, fmt.Errorf("query logs: %w", err)
	}

	return types.LogPage{
		Scans:   scans,
		Total:   total,
		Limit:   f.Limit,
		Offset:  f.Offset,
		HasMore: f.Offset+len(scans) < total,
	}, nil
}

// Stats aggregates the whole ledger as of now (UTC days).
func (s *ExportService) Stats(ctx context.Context) (types.ScanStats, error) {
	stats, err := s.store.Stats(ctx, s.now().UTC())
	if err != nil {
		return types.ScanStats{}, fmt.Errorf("ledger stats: %w", err)
	}
	return stats, nil
}

// ExportCSV renders every record of the given UTC calendar day (optionally
// narrowed to one campaign) as CSV text, most recent first.  A zero day
// means the current day.
func (s *ExportService) ExportCSV(ctx context.Context, day time.Time, campaignID string) (string, error) {
	if day.IsZero() {
		day = s.now().UTC()
	}
	start, end := store.DayBounds(day)
	endIncl := end.Add(-time.Millisecond)

	scans, err := s.store.Query(ctx, store.ScanFilter{
		CampaignID: strings.TrimSpace(campaignID),
		Start:      &start,
		End:        &endIncl,
	})
	if err != nil {
		return "", fmt.Errorf("query export: %w", err)
	}

	var b strings.Builder
	b.WriteString(CSVHeader)
	b.WriteByte('\n')
	for _, rec := range scans {
		b.WriteString(strings.Join([]string{
			rec.ScanID,
			rec.UID,
			rec.CampaignID,
			rec.ScannedAt.UTC().Format(time.RFC3339),
			rec.Checksum,
			strconv.FormatBool(rec.Verified),
		}, ","))
		b.WriteByte('\n')
	}
	return b.String(), nil
}

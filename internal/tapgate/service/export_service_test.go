package service_test

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tapgate/tapgate/server/internal/tapgate/integrity"
	"github.com/tapgate/tapgate/server/internal/tapgate/service"
	"github.com/tapgate/tapgate/server/internal/tapgate/store"
	"github.com/tapgate/tapgate/server/internal/tapgate/store/memory"
	"github.com/tapgate/tapgate/server/internal/tapgate/types"
)

// seedScan appends a sealed record with the given admission time.
func seedScan(t *testing.T, st *memory.ScanStore, id, uid, campaignID string, at time.Time) {
	t.Helper()
	at = at.UTC().Truncate(time.Second)
	err := st.Append(context.Background(), types.ScanRecord{
		ScanID:     id,
		UID:        uid,
		CampaignID: campaignID,
		ScannedAt:  at,
		Checksum:   integrity.Seal(uid, at, campaignID, testSecret),
		Verified:   true,
	})
	if err != nil {
		t.Fatalf("seedScan %s: %v", id, err)
	}
}

func TestLogs_PaginationMetadata(t *testing.T) {
	st := memory.NewScanStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		seedScan(t, st, fmt.Sprintf("scan-%d", i), "TEST12345678", "DEMO01", base.Add(time.Duration(i)*time.Hour))
	}

	svc := service.NewExportService(st)
	page, err := svc.Logs(context.Background(), store.ScanFilter{Limit: 3, Offset: 3})
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}

	if page.Total != 7 {
		t.Errorf("expected total=7, got %d", page.Total)
	}
	if page.Limit != 3 || page.Offset != 3 {
		t.Errorf("expected limit=3 offset=3 echoed back, got %d/%d", page.Limit, page.Offset)
	}
	if len(page.Scans) != 3 {
		t.Fatalf("expected 3 scans, got %d", len(page.Scans))
	}
	if !page.HasMore {
		t.Error("expected hasMore=true with one record left")
	}

	// Most recent first: offset 3 of 7 descending is scan-3, scan-2, scan-1.
	got := []string{page.Scans[0].ScanID, page.Scans[1].ScanID, page.Scans[2].ScanID}
	want := []string{"scan-3", "scan-2", "scan-1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestLogs_DefaultLimitApplied(t *testing.T) {
	st := memory.NewScanStore()
	svc := service.NewExportService(st)

	page, err := svc.Logs(context.Background(), store.ScanFilter{})
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if page.Limit != 50 {
		t.Errorf("expected default limit 50, got %d", page.Limit)
	}
	if page.HasMore {
		t.Error("expected hasMore=false on an empty ledger")
	}
}

func TestLogs_ReadIdempotent(t *testing.T) {
	st := memory.NewScanStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		seedScan(t, st, fmt.Sprintf("scan-%d", i), "TEST12345678", "DEMO01", base.Add(time.Duration(i)*time.Hour))
	}
	svc := service.NewExportService(st)

	f := store.ScanFilter{UID: "TEST12345678", Limit: 10}
	first, err := svc.Logs(context.Background(), f)
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	_, _ = svc.Stats(context.Background())
	second, err := svc.Logs(context.Background(), f)
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("identical queries around a read-only operation returned different results")
	}
}

func TestStats_Aggregates(t *testing.T) {
	st := memory.NewScanStore()
	now := time.Now().UTC()

	seedScan(t, st, "s-today-1", "CARD0001AAAA", "DEMO01", now.Add(-time.Hour))
	seedScan(t, st, "s-today-2", "CARD0002BBBB", "DEMO01", now.Add(-2*time.Hour))
	seedScan(t, st, "s-yesterday", "CARD0001AAAA", "DEMO01", now.Add(-24*time.Hour))
	seedScan(t, st, "s-old", "CARD0003CCCC", "DEMO02", now.Add(-20*24*time.Hour))

	svc := service.NewExportService(st)
	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}

	if stats.TotalScans != 4 {
		t.Errorf("expected totalScans=4, got %d", stats.TotalScans)
	}
	if stats.UniqueUIDs != 3 {
		t.Errorf("expected uniqueUids=3, got %d", stats.UniqueUIDs)
	}
	if stats.LastScanAt == nil {
		t.Fatal("expected lastScanAt to be set")
	}
	wantLast := now.Add(-time.Hour).Truncate(time.Second)
	if !stats.LastScanAt.Equal(wantLast) {
		t.Errorf("expected lastScanAt=%v, got %v", wantLast, stats.LastScanAt)
	}
	// -1h/-2h may fall on the previous UTC day right after midnight, so
	// only the combined count is stable here; the day-bucket split is
	// covered with fixed timestamps in the sqlite store tests.
	if stats.TodayScans+stats.YesterdayScans != 3 {
		t.Errorf("expected 3 scans across today+yesterday, got %d+%d",
			stats.TodayScans, stats.YesterdayScans)
	}
}

func TestExportCSV_ShapeAndFiltering(t *testing.T) {
	st := memory.NewScanStore()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	seedScan(t, st, "in-day-1", "TEST12345678", "DEMO01", day.Add(9*time.Hour))
	seedScan(t, st, "in-day-2", "CARD0001AAAA", "DEMO02", day.Add(10*time.Hour))
	seedScan(t, st, "other-day", "TEST12345678", "DEMO01", day.Add(30*time.Hour))

	svc := service.NewExportService(st)
	out, err := svc.ExportCSV(context.Background(), day, "")
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if lines[0] != "Scan ID,UID,Campaign ID,Timestamp,Checksum,Verified" {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}

	// Most recent first.
	if !strings.HasPrefix(lines[1], "in-day-2,CARD0001AAAA,DEMO02,2026-03-01T10:00:00Z,") {
		t.Errorf("unexpected first row: %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "in-day-1,TEST12345678,DEMO01,2026-03-01T09:00:00Z,") {
		t.Errorf("unexpected second row: %q", lines[2])
	}
	for _, line := range lines[1:] {
		if !strings.HasSuffix(line, ",true") {
			t.Errorf("expected verified=true column, got %q", line)
		}
		if len(strings.Split(line, ",")) != 6 {
			t.Errorf("expected 6 columns, got %q", line)
		}
	}

	// Campaign filter narrows to one row.
	out, err = svc.ExportCSV(context.Background(), day, "DEMO01")
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	lines = strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "in-day-1,") {
		t.Errorf("expected only the DEMO01 row, got %q", out)
	}
}

func TestExportCSV_EmptyDay_HeaderOnly(t *testing.T) {
	svc := service.NewExportService(memory.NewScanStore())

	out, err := svc.ExportCSV(context.Background(), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), "")
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	if out != service.CSVHeader+"\n" {
		t.Errorf("expected header only, got %q", out)
	}
}

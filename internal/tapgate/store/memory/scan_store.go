// Package memory holds an in-memory scan ledger for tests and dev
// environments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tapgate/tapgate/server/internal/tapgate/store"
	"github.com/tapgate/tapgate/server/internal/tapgate/types"
)

type ScanStore struct {
	mu    sync.RWMutex
	scans []types.ScanRecord
	ids   map[string]struct{}
}

func NewScanStore() *ScanStore {
	return &ScanStore{ids: make(map[string]struct{})}
}

func (s *ScanStore) Append(_ context.Context, rec types.ScanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[rec.ScanID]; ok {
		return store.ErrDuplicateScanID
	}
	s.ids[rec.ScanID] = struct{}{}
	s.scans = append(s.scans, rec)
	return nil
}

func (s *ScanStore) Get(_ context.Context, scanID string) (*types.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.scans {
		if s.scans[i].ScanID == scanID {
			cp := s.scans[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *ScanStore) Query(_ context.Context, f store.ScanFilter) ([]types.ScanRecord, error) {
	s.mu.RLock()
	matched := s.filtered(f)
	s.mu.RUnlock()

	// Most recent first; later appends win ties.
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].ScannedAt.After(matched[j].ScannedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (s *ScanStore) Count(_ context.Context, f store.ScanFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filtered(f)), nil
}

func (s *ScanStore) LastScan(_ context.Context, uid string) (*types.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *types.ScanRecord
	for i := range s.scans {
		rec := s.scans[i]
		if rec.UID != uid {
			continue
		}
		if last == nil || rec.ScannedAt.After(last.ScannedAt) {
			cp := rec
			last = &cp
		}
	}
	return last, nil
}

func (s *ScanStore) CountForDay(_ context.Context, uid string, day time.Time) (int, error) {
	start, end := store.DayBounds(day)

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rec := range s.scans {
		if rec.UID != uid {
			continue
		}
		t := rec.ScannedAt.UTC()
		if !t.Before(start) && t.Before(end) {
			n++
		}
	}
	return n, nil
}

func (s *ScanStore) Stats(_ context.Context, now time.Time) (types.ScanStats, error) {
	todayStart, todayEnd := store.DayBounds(now)
	yesterdayStart := todayStart.Add(-24 * time.Hour)

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := types.ScanStats{}
	uids := make(map[string]struct{})
	var last time.Time

	for _, rec := range s.scans {
		stats.TotalScans++
		uids[rec.UID] = struct{}{}

		t := rec.ScannedAt.UTC()
		switch {
		case !t.Before(todayStart) && t.Before(todayEnd):
			stats.TodayScans++
		case !t.Before(yesterdayStart) && t.Before(todayStart):
			stats.YesterdayScans++
		}
		if t.After(last) {
			last = t
		}
	}

	stats.UniqueUIDs = len(uids)
	if !last.IsZero() {
		stats.LastScanAt = &last
	}
	return stats, nil
}

func (s *ScanStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.scans[:0]
	var deleted int64
	for _, rec := range s.scans {
		if rec.ScannedAt.UTC().Before(cutoff.UTC()) {
			delete(s.ids, rec.ScanID)
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	s.scans = kept
	return deleted, nil
}

// filtered returns a copy of the records matching f (Limit/Offset
// excluded).  Callers must hold at least a read lock.
func (s *ScanStore) filtered(f store.ScanFilter) []types.ScanRecord {
	var out []types.ScanRecord
	for _, rec := range s.scans {
		if f.UID != "" && rec.UID != f.UID {
			continue
		}
		if f.CampaignID != "" && rec.CampaignID != f.CampaignID {
			continue
		}
		t := rec.ScannedAt.UTC()
		if f.Start != nil && t.Before(f.Start.UTC()) {
			continue
		}
		if f.End != nil && t.After(f.End.UTC()) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

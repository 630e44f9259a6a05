package service

import (
	"context"
	"fmt"
	"time"

	"github.com/tapgate/tapgate/server/internal/tapgate/types"
)

// Stable outcome codes surfaced to callers.
const (
	CodeCooldownActive     = "COOLDOWN_ACTIVE"
	CodeDailyLimitExceeded = "DAILY_LIMIT_EXCEEDED"
	CodeChecksumMismatch   = "CHECKSUM_MISMATCH"
	CodeScanNotFound       = "SCAN_NOT_FOUND"
)

// HistoryReader is the slice of the ledger the fraud policy reads.
type HistoryReader interface {
	LastScan(ctx context.Context, uid string) (*types.ScanRecord, error)
	CountForDay(ctx context.Context, uid string, day time.Time) (int, error)
}

// Decision is the outcome of a fraud policy evaluation.  When Admit is
// false, Code names the reason and the relevant policy parameters are set.
type Decision struct {
	Admit bool
	Code  string

	// CooldownMinutes is the configured window (not the elapsed time)
	// when Code is COOLDOWN_ACTIVE.
	CooldownMinutes int

	// DailyCount/DailyLimit are set when Code is DAILY_LIMIT_EXCEEDED.
	DailyCount int
	DailyLimit int
}

// FraudPolicy decides whether a uid may be admitted right now, given its
// scan history.  The cooldown check runs strictly before the daily-limit
// check: a request violating both reports COOLDOWN_ACTIVE.
type FraudPolicy struct {
	// Cooldown is the minimum gap between two admitted scans of the
	// same uid.
	Cooldown time.Duration

	// DailyLimit caps admitted scans per uid per UTC calendar day.
	// 0 disables the check.
	DailyLimit int
}

// Evaluate inspects history for uid as of now.  Storage read failures
// propagate as errors; they are never folded into a decision.
func (p FraudPolicy) Evaluate(ctx context.Context, uid string, now time.Time, history HistoryReader) (Decision, error) {
	last, err := history.LastScan(ctx, uid)
	if err != nil {
		return Decision{}, fmt.Errorf("read last scan: %w", err)
	}

	if last != nil && p.Cooldown > 0 {
		// Strict less-than: a scan exactly at the boundary is admitted.
		if now.Sub(last.ScannedAt) < p.Cooldown {
			return Decision{
				Code:            CodeCooldownActive,
				CooldownMinutes: int(p.Cooldown / time.Minute),
			}, nil
		}
	}

	if p.DailyLimit > 0 {
		n, err := history.CountForDay(ctx, uid, now)
		if err != nil {
			return Decision{}, fmt.Errorf("count scans for day: %w", err)
		}
		if n >= p.DailyLimit {
			return Decision{
				Code:       CodeDailyLimitExceeded,
				DailyCount: n,
				DailyLimit: p.DailyLimit,
			}, nil
		}
	}

	return Decision{Admit: true}, nil
}

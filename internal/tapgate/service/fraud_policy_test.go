package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tapgate/tapgate/server/internal/tapgate/service"
	"github.com/tapgate/tapgate/server/internal/tapgate/types"
)

// fakeHistory is a canned HistoryReader for driving the policy directly.
type fakeHistory struct {
	last     *types.ScanRecord
	lastErr  error
	count    int
	countErr error
}

func (f *fakeHistory) LastScan(context.Context, string) (*types.ScanRecord, error) {
	return f.last, f.lastErr
}

func (f *fakeHistory) CountForDay(context.Context, string, time.Time) (int, error) {
	return f.count, f.countErr
}

var policyNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func defaultPolicy() service.FraudPolicy {
	return service.FraudPolicy{Cooldown: 5 * time.Minute, DailyLimit: 100}
}

func TestEvaluate_NoHistory_Admits(t *testing.T) {
	dec, err := defaultPolicy().Evaluate(context.Background(), "TEST12345678", policyNow, &fakeHistory{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !dec.Admit {
		t.Errorf("expected admit for uid with no history, got %+v", dec)
	}
}

func TestEvaluate_RecentScan_CooldownReject(t *testing.T) {
	h := &fakeHistory{last: &types.ScanRecord{
		UID:       "TEST12345678",
		ScannedAt: policyNow.Add(-2 * time.Minute),
	}}

	dec, err := defaultPolicy().Evaluate(context.Background(), "TEST12345678", policyNow, h)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if dec.Admit {
		t.Fatal("expected cooldown rejection")
	}
	if dec.Code != service.CodeCooldownActive {
		t.Errorf("expected code COOLDOWN_ACTIVE, got %q", dec.Code)
	}
	// The configured window is reported, not the elapsed time.
	if dec.CooldownMinutes != 5 {
		t.Errorf("expected cooldownMinutes=5, got %d", dec.CooldownMinutes)
	}
}

func TestEvaluate_ExactBoundary_Admits(t *testing.T) {
	// elapsed == window is not blocked (strict less-than).
	h := &fakeHistory{last: &types.ScanRecord{
		UID:       "TEST12345678",
		ScannedAt: policyNow.Add(-5 * time.Minute),
	}}

	dec, err := defaultPolicy().Evaluate(context.Background(), "TEST12345678", policyNow, h)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !dec.Admit {
		t.Errorf("expected admit at the exact cooldown boundary, got %+v", dec)
	}
}

func TestEvaluate_DailyLimitReached_Rejects(t *testing.T) {
	h := &fakeHistory{
		last: &types.ScanRecord{
			UID:       "TEST12345678",
			ScannedAt: policyNow.Add(-time.Hour),
		},
		count: 100,
	}

	dec, err := defaultPolicy().Evaluate(context.Background(), "TEST12345678", policyNow, h)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if dec.Admit {
		t.Fatal("expected daily-limit rejection")
	}
	if dec.Code != service.CodeDailyLimitExceeded {
		t.Errorf("expected code DAILY_LIMIT_EXCEEDED, got %q", dec.Code)
	}
	if dec.DailyCount != 100 || dec.DailyLimit != 100 {
		t.Errorf("expected count=100 limit=100, got count=%d limit=%d", dec.DailyCount, dec.DailyLimit)
	}
}

func TestEvaluate_CooldownCheckedBeforeDailyLimit(t *testing.T) {
	// Violates both: cooldown wins.
	h := &fakeHistory{
		last: &types.ScanRecord{
			UID:       "TEST12345678",
			ScannedAt: policyNow.Add(-time.Minute),
		},
		count: 100,
	}

	dec, err := defaultPolicy().Evaluate(context.Background(), "TEST12345678", policyNow, h)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if dec.Code != service.CodeCooldownActive {
		t.Errorf("expected COOLDOWN_ACTIVE when both checks fail, got %q", dec.Code)
	}
}

func TestEvaluate_ZeroDailyLimit_DisablesCheck(t *testing.T) {
	p := service.FraudPolicy{Cooldown: 5 * time.Minute}
	h := &fakeHistory{count: 9999}

	dec, err := p.Evaluate(context.Background(), "TEST12345678", policyNow, h)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !dec.Admit {
		t.Errorf("expected admit with daily limit disabled, got %+v", dec)
	}
}

func TestEvaluate_ReadErrors_Propagate(t *testing.T) {
	boom := errors.New("disk on fire")

	_, err := defaultPolicy().Evaluate(context.Background(), "TEST12345678", policyNow,
		&fakeHistory{lastErr: boom})
	if !errors.Is(err, boom) {
		t.Errorf("expected LastScan error to propagate, got %v", err)
	}

	_, err = defaultPolicy().Evaluate(context.Background(), "TEST12345678", policyNow,
		&fakeHistory{countErr: boom})
	if !errors.Is(err, boom) {
		t.Errorf("expected CountForDay error to propagate, got %v", err)
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tapgate/tapgate/server/internal/metrics"
	"github.com/tapgate/tapgate/server/internal/tapgate/integrity"
	"github.com/tapgate/tapgate/server/internal/tapgate/store"
	"github.com/tapgate/tapgate/server/internal/tapgate/types"
)

var (
	ErrMissingUID        = errors.New("uid is required")
	ErrMissingCampaignID = errors.New("campaignId is required")
	ErrInvalidUIDFormat  = errors.New("uid must be 8-16 alphanumeric characters")
	ErrMissingScanID     = errors.New("scanId is required")
)

// ScanService runs the admission pipeline: validation, fraud policy,
// integrity checksum, durable append.  A per-uid lock is held across
// evaluate+append so concurrent admissions for one uid cannot both pass
// the cooldown check against a stale read.
type ScanService struct {
	store   store.ScanStore
	policy  FraudPolicy
	secret  string
	logger  zerolog.Logger
	metrics metrics.Recorder
	locks   *uidLocks

	// now is replaceable in tests.
	now func() time.Time
}

func NewScanService(st store.ScanStore, policy FraudPolicy, secret string, logger zerolog.Logger, rec metrics.Recorder) *ScanService {
	return &ScanService{
		store:   st,
		policy:  policy,
		secret:  secret,
		logger:  logger,
		metrics: rec,
		locks:   newUIDLocks(),
		now:     time.Now,
	}
}

// Admit validates the request, evaluates the fraud policy against the
// uid's history, and appends a sealed record.  Policy rejections are
// routine outcomes returned in the response, not errors; storage failures
// are returned as errors and must not be read as decisions.
func (s *ScanService) Admit(ctx context.Context, req types.ScanRequest) (types.ScanResponse, error) {
	uid := strings.TrimSpace(req.UID)
	campaignID := strings.TrimSpace(req.CampaignID)

	if uid == "" {
		return types.ScanResponse{}, ErrMissingUID
	}
	if campaignID == "" {
		return types.ScanResponse{}, ErrMissingCampaignID
	}
	if !ValidUID(uid) {
		return types.ScanResponse{}, ErrInvalidUIDFormat
	}

	unlock := s.locks.lock(uid)
	defer unlock()

	// Whole-second precision so the RFC3339 text sealed into the checksum
	// is reproducible from the stored timestamp.
	now := s.now().UTC().Truncate(time.Second)

	dec, err := s.policy.Evaluate(ctx, uid, now, s.store)
	if err != nil {
		return types.ScanResponse{}, fmt.Errorf("evaluate fraud policy: %w", err)
	}
	if !dec.Admit {
		s.metrics.IncScanRejected(dec.Code)
		s.logger.Info().Str("uid", uid).Str("code", dec.Code).Msg("scan rejected")
		return rejectionResponse(dec), nil
	}

	rec := types.ScanRecord{
		ScanID:     uuid.NewString(),
		UID:        uid,
		CampaignID: campaignID,
		ScannedAt:  now,
		Checksum:   integrity.Seal(uid, now, campaignID, s.secret),
		Verified:   true,
	}

	if err := s.store.Append(ctx, rec); err != nil {
		return types.ScanResponse{}, fmt.Errorf("append scan: %w", err)
	}

	s.metrics.IncScanAdmitted()
	s.logger.Info().
		Str("scanId", rec.ScanID).
		Str("uid", uid).
		Str("campaignId", campaignID).
		Msg("scan admitted")

	return types.ScanResponse{OK: true, Scan: &rec}, nil
}

// Verify re-validates a stored scan's checksum.  A mismatch indicates
// tampering or corruption and is reported distinctly from "not found" and
// storage errors.
func (s *ScanService) Verify(ctx context.Context, scanID string) (types.VerifyResponse, error) {
	scanID = strings.TrimSpace(scanID)
	if scanID == "" {
		return types.VerifyResponse{}, ErrMissingScanID
	}

	rec, err := s.store.Get(ctx, scanID)
	if err != nil {
		return types.VerifyResponse{}, fmt.Errorf("load scan: %w", err)
	}
	if rec == nil {
		return types.VerifyResponse{
			OK:      false,
			ScanID:  scanID,
			Code:    CodeScanNotFound,
			Message: "no scan with that id",
		}, nil
	}

	if !integrity.Verify(rec.UID, rec.ScannedAt, rec.CampaignID, rec.Checksum, s.secret) {
		s.logger.Warn().Str("scanId", scanID).Msg("checksum mismatch on re-validation")
		return types.VerifyResponse{
			OK:      false,
			ScanID:  scanID,
			Code:    CodeChecksumMismatch,
			Message: "stored checksum does not match record contents",
		}, nil
	}

	return types.VerifyResponse{OK: true, ScanID: scanID, Valid: true}, nil
}

func rejectionResponse(dec Decision) types.ScanResponse {
	resp := types.ScanResponse{
		OK:   false,
		Code: dec.Code,
	}
	switch dec.Code {
	case CodeCooldownActive:
		resp.CooldownMinutes = dec.CooldownMinutes
		resp.Message = fmt.Sprintf("uid scanned within the last %d minutes", dec.CooldownMinutes)
	case CodeDailyLimitExceeded:
		resp.DailyCount = dec.DailyCount
		resp.DailyLimit = dec.DailyLimit
		resp.Message = fmt.Sprintf("daily scan limit reached (%d of %d)", dec.DailyCount, dec.DailyLimit)
	}
	return resp
}

package types

import "time"

// ScanRecord is the unit of truth in the scan ledger.  Records are created
// exactly once by the admission pipeline and never mutated.
//
// JSON field names are camelCase because the kiosk wire contract predates
// this server.
type ScanRecord struct {
	ScanID     string    `json:"scanId"`
	UID        string    `json:"uid"`
	CampaignID string    `json:"campaignId"`
	ScannedAt  time.Time `json:"timestamp"`
	Checksum   string    `json:"checksum"`
	Verified   bool      `json:"verified"`
}

// ScanRequest is an admission request from a kiosk.  The admission time is
// taken from the server clock on arrival.
type ScanRequest struct {
	UID        string `json:"uid"`
	CampaignID string `json:"campaignId"`
}

// ScanResponse is the admission outcome.  On success Scan is set; on a
// policy rejection or validation failure Code carries a stable
// machine-readable string and the policy parameters are filled in so the
// caller can decide whether and when to retry.
type ScanResponse struct {
	OK      bool        `json:"ok"`
	Scan    *ScanRecord `json:"scan,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`

	// COOLDOWN_ACTIVE: the configured window, not the elapsed time.
	CooldownMinutes int `json:"cooldownMinutes,omitempty"`

	// DAILY_LIMIT_EXCEEDED: the configured limit and the count at
	// rejection time.
	DailyLimit int `json:"limit,omitempty"`
	DailyCount int `json:"count,omitempty"`
}

// VerifyRequest asks for re-validation of a stored scan's checksum.
type VerifyRequest struct {
	ScanID string `json:"scanId"`
}

type VerifyResponse struct {
	OK      bool   `json:"ok"`
	ScanID  string `json:"scanId"`
	Valid   bool   `json:"valid"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// LogPage is a filtered listing plus pagination metadata.
type LogPage struct {
	Scans   []ScanRecord `json:"scans"`
	Total   int          `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
	HasMore bool         `json:"hasMore"`
}

// ScanStats is the five-field aggregate over the whole ledger.
// Today/yesterday are UTC calendar days.
type ScanStats struct {
	TotalScans     int        `json:"totalScans"`
	TodayScans     int        `json:"todayScans"`
	YesterdayScans int        `json:"yesterdayScans"`
	UniqueUIDs     int        `json:"uniqueUids"`
	LastScanAt     *time.Time `json:"lastScanAt"`
}

// Package integrity computes the tamper-evident checksum stamped on every
// admitted scan.
package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Timestamp layout fed to the checksum.  Admission truncates timestamps to
// whole seconds, so formatting a stored timestamp always reproduces the
// exact string that was sealed.
const timeLayout = time.RFC3339

// Seal computes the keyed checksum binding uid, timestamp and campaign
// together.  The three fields are concatenated in that fixed order with no
// separators: the timestamp is fixed-format and uid is constrained
// alphanumeric, so the fields never need disambiguation.
func Seal(uid string, ts time.Time, campaignID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(uid))
	mac.Write([]byte(ts.UTC().Format(timeLayout)))
	mac.Write([]byte(campaignID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the checksum and compares in constant time.
func Verify(uid string, ts time.Time, campaignID, checksum, secret string) bool {
	want := Seal(uid, ts, campaignID, secret)
	return hmac.Equal([]byte(want), []byte(checksum))
}

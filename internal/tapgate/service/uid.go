package service

const (
	minUIDLen = 8
	maxUIDLen = 16
)

// ValidUID reports whether a scan identifier is acceptable: 8-16
// characters, ASCII letters and digits only.  Case is preserved, never
// folded.
func ValidUID(uid string) bool {
	if len(uid) < minUIDLen || len(uid) > maxUIDLen {
		return false
	}
	for i := 0; i < len(uid); i++ {
		c := uid[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		default:
			return false
		}
	}
	return true
}

package acquire

import "unicode/utf8"

// Truncate cuts s to at most limit runes. Text at or below the limit is
// returned unchanged.
func Truncate(s string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i], true
		}
		n++
	}
	return s, false
}

package debuglog

import "unicode/utf8"

// truncateString truncates a string to the specified maximum length.
// If the string is longer than maxLength, it will be truncated and "...truncated" will be appended.
func truncateString(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}

	const ellipsis = "...truncated"

	if maxLength <= len(ellipsis) {
		return trimToRune(s, maxLength)
	}

	return trimToRune(s, maxLength-len(ellipsis)) + ellipsis
}

// trimToRune cuts s to at most n bytes without splitting a UTF-8 sequence.
func trimToRune(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Limits applied to records submitted over the admin API.
const (
	DefaultMaxCallerLength  = 256
	DefaultMaxMessageLength = 8192
	DefaultMaxDepth         = 10
	DefaultMaxKeyLength     = 64
	DefaultMaxStringLength  = 2048
)

// Caller locations look like "path/to/file.php:42" or "Class::method".
var callerRegex = regexp.MustCompile(`^[a-zA-Z0-9_./\\:@<>-]+$`)

// ErrInputTooLong indicates the input string exceeds the maximum allowed length.
var ErrInputTooLong = errors.New("input exceeds maximum length")

// ErrInvalidChars indicates the input string contains disallowed characters.
var ErrInvalidChars = errors.New("input contains invalid characters")

// ErrMaxDepthExceeded indicates the nested structure exceeds the maximum allowed depth.
var ErrMaxDepthExceeded = errors.New("maximum nesting depth exceeded")

// IsValidCaller checks a caller location. An empty caller is allowed and
// is logged as unknown.
func IsValidCaller(caller string, maxLength int) error {
	if caller == "" {
		return nil
	}
	if len(caller) > maxLength {
		return fmt.Errorf("%w: got %d, max %d", ErrInputTooLong, len(caller), maxLength)
	}
	if !callerRegex.MatchString(caller) {
		return fmt.Errorf("%w: caller must be a file:line or symbol name", ErrInvalidChars)
	}
	return nil
}

// SanitizeString drops non-printable characters other than space and line
// breaks, trims whitespace and truncates to maxLength bytes on a rune
// boundary. Line breaks are kept; the encoder escapes them.
func SanitizeString(s string, maxLength int) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\r' || (unicode.IsPrint(r) && r != '\uFFFD') {
			return r
		}
		return -1
	}, s)
	if len(s) > maxLength {
		cut := maxLength
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}

// SanitizeMapRecursively sanitizes keys and string values within a nested map.
// It limits nesting depth and key/string lengths.
func SanitizeMapRecursively(data map[string]interface{}, maxDepth, currentDepth, maxKeyLength, maxStringLength int) (map[string]interface{}, error) {
	if currentDepth > maxDepth {
		return nil, ErrMaxDepthExceeded
	}
	if data == nil {
		return nil, nil
	}

	sanitizedMap := make(map[string]interface{}, len(data))
	for key, value := range data {
		sanitizedKey := SanitizeString(key, maxKeyLength)
		if sanitizedKey == "" {
			continue
		}

		switch v := value.(type) {
		case string:
			sanitizedMap[sanitizedKey] = SanitizeString(v, maxStringLength)
		case map[string]interface{}:
			nestedMap, err := SanitizeMapRecursively(v, maxDepth, currentDepth+1, maxKeyLength, maxStringLength)
			if err != nil {
				return nil, fmt.Errorf("error sanitizing nested map under key '%s': %w", sanitizedKey, err)
			}
			sanitizedMap[sanitizedKey] = nestedMap
		case []interface{}:
			sanitizedSlice, err := SanitizeSliceRecursively(v, maxDepth, currentDepth+1, maxKeyLength, maxStringLength)
			if err != nil {
				return nil, fmt.Errorf("error sanitizing slice under key '%s': %w", sanitizedKey, err)
			}
			sanitizedMap[sanitizedKey] = sanitizedSlice
		default:
			// numbers, booleans and nulls pass through
			sanitizedMap[sanitizedKey] = v
		}
	}
	return sanitizedMap, nil
}

// SanitizeSliceRecursively sanitizes elements within a slice, similar to map sanitization.
func SanitizeSliceRecursively(data []interface{}, maxDepth, currentDepth, maxKeyLength, maxStringLength int) ([]interface{}, error) {
	if currentDepth > maxDepth {
		return nil, ErrMaxDepthExceeded
	}
	if data == nil {
		return nil, nil
	}

	sanitizedSlice := make([]interface{}, len(data))
	for i, item := range data {
		switch v := item.(type) {
		case string:
			sanitizedSlice[i] = SanitizeString(v, maxStringLength)
		case map[string]interface{}:
			nestedMap, err := SanitizeMapRecursively(v, maxDepth, currentDepth+1, maxKeyLength, maxStringLength)
			if err != nil {
				return nil, fmt.Errorf("error sanitizing map in slice index %d: %w", i, err)
			}
			sanitizedSlice[i] = nestedMap
		case []interface{}:
			nestedSlice, err := SanitizeSliceRecursively(v, maxDepth, currentDepth+1, maxKeyLength, maxStringLength)
			if err != nil {
				return nil, fmt.Errorf("error sanitizing nested slice in slice index %d: %w", i, err)
			}
			sanitizedSlice[i] = nestedSlice
		default:
			sanitizedSlice[i] = v
		}
	}
	return sanitizedSlice, nil
}

// SanitizePayload sanitizes a decoded JSON value of any shape using the
// default limits.
func SanitizePayload(v interface{}) (interface{}, error) {
	switch p := v.(type) {
	case string:
		return SanitizeString(p, DefaultMaxMessageLength), nil
	case map[string]interface{}:
		return SanitizeMapRecursively(p, DefaultMaxDepth, 0, DefaultMaxKeyLength, DefaultMaxStringLength)
	case []interface{}:
		return SanitizeSliceRecursively(p, DefaultMaxDepth, 0, DefaultMaxKeyLength, DefaultMaxStringLength)
	default:
		return v, nil
	}
}

package debuglog

import (
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// TimestampLayout is the layout of the leading timestamp of every line.
	TimestampLayout = "2006-01-02 15:04:05"

	// UnserializablePlaceholder replaces payloads that cannot be rendered.
	UnserializablePlaceholder = "<unserializable payload>"

	// MaxPayloadDepth bounds nesting; anything deeper, including a map that
	// contains itself, renders as the placeholder.
	MaxPayloadDepth = 32

	// NewlineEscape replaces line breaks inside a payload.
	NewlineEscape = `\n`

	unknownCaller = "unknown"
)

var newlineReplacer = strings.NewReplacer("\r\n", NewlineEscape, "\n", NewlineEscape, "\r", NewlineEscape)

// Encoder turns records into single lines.
type Encoder struct {
	// MaxLineBytes truncates the payload text when positive.
	MaxLineBytes int
}

// Encode renders a record with the default encoder.
func Encode(record Record) string {
	return Encoder{}.Encode(record)
}

// Encode renders record as "[time] [LEVEL] [caller] payload\n". The result
// never contains a newline other than the terminating one.
func (e Encoder) Encode(record Record) string {
	caller := record.Caller
	if caller == "" {
		caller = unknownCaller
	}

	text := toLineText(RenderPayload(record.Payload))
	if e.MaxLineBytes > 0 {
		text = truncateString(text, e.MaxLineBytes)
	}

	var sb strings.Builder
	sb.Grow(len(TimestampLayout) + len(caller) + len(text) + 16)
	sb.WriteByte('[')
	sb.WriteString(record.Time.Format(TimestampLayout))
	sb.WriteString("] [")
	sb.WriteString(record.Level.String())
	sb.WriteString("] [")
	sb.WriteString(toLineText(caller))
	sb.WriteString("] ")
	sb.WriteString(text)
	sb.WriteByte('\n')
	return sb.String()
}

// toLineText escapes line breaks and replaces invalid UTF-8 so the result is
// valid single-line text.
func toLineText(s string) string {
	return strings.ToValidUTF8(newlineReplacer.Replace(s), string(utf8.RuneError))
}

// RenderPayload pretty-prints a payload deterministically. Top-level text is
// returned as is; mapping keys are sorted.
func RenderPayload(p Payload) string {
	if p.kind == KindText {
		return p.text
	}
	var sb strings.Builder
	if !render(&sb, p, 0) {
		return UnserializablePlaceholder
	}
	return sb.String()
}

// render writes p in nested form and reports false when the depth bound is hit.
func render(sb *strings.Builder, p Payload, depth int) bool {
	if depth > MaxPayloadDepth {
		return false
	}

	switch p.kind {
	case KindMapping:
		keys := make([]string, 0, len(p.mapping))
		for k := range p.mapping {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(renderKey(k))
			sb.WriteString(": ")
			if !render(sb, p.mapping[k], depth+1) {
				return false
			}
		}
		sb.WriteByte('}')
	case KindSequence:
		sb.WriteByte('[')
		for i, item := range p.items {
			if i > 0 {
				sb.WriteString(", ")
			}
			if !render(sb, item, depth+1) {
				return false
			}
		}
		sb.WriteByte(']')
	default:
		sb.WriteString(strconv.Quote(p.text))
	}
	return true
}

// renderKey leaves simple identifiers bare and quotes anything else.
func renderKey(k string) string {
	if k == "" {
		return `""`
	}
	for _, r := range k {
		if !(r == '_' || r == '-' || r == '.' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return strconv.Quote(k)
		}
	}
	return k
}

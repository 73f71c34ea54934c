package debuglog

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
)

// PayloadKind tags the variant held by a Payload.
type PayloadKind int

const (
	KindText PayloadKind = iota
	KindMapping
	KindSequence
)

// Payload is the body of a record: a text, a string-keyed mapping or a
// sequence. The zero value is an empty Text.
type Payload struct {
	kind    PayloadKind
	text    string
	mapping map[string]Payload
	items   []Payload
}

// Text wraps a string payload.
func Text(s string) Payload {
	return Payload{kind: KindText, text: s}
}

// Mapping wraps a string-keyed payload. The map is not copied.
func Mapping(m map[string]Payload) Payload {
	return Payload{kind: KindMapping, mapping: m}
}

// Sequence wraps an ordered list of payloads.
func Sequence(items ...Payload) Payload {
	return Payload{kind: KindSequence, items: items}
}

// Kind returns the variant tag.
func (p Payload) Kind() PayloadKind { return p.kind }

// TextValue returns the string of a Text payload.
func (p Payload) TextValue() string { return p.text }

// MappingValue returns the entries of a Mapping payload.
func (p Payload) MappingValue() map[string]Payload { return p.mapping }

// Items returns the elements of a Sequence payload.
func (p Payload) Items() []Payload { return p.items }

// FromValue converts an arbitrary Go value into a Payload. Scalars become
// Text, string-keyed maps become Mapping and slices become Sequence. Other
// values are serialized to JSON first; values that cannot be serialized, or
// that nest deeper than MaxPayloadDepth, become the placeholder text.
func FromValue(v interface{}) Payload {
	return fromValue(v, 0)
}

func fromValue(v interface{}, depth int) Payload {
	if depth > MaxPayloadDepth {
		return Text(UnserializablePlaceholder)
	}

	switch val := v.(type) {
	case nil:
		return Text("null")
	case Payload:
		return val
	case string:
		return Text(val)
	case []byte:
		return Text(string(val))
	case error:
		return safeText(val.Error)
	case fmt.Stringer:
		return safeText(val.String)
	case bool:
		return Text(strconv.FormatBool(val))
	case int:
		return Text(strconv.Itoa(val))
	case int64:
		return Text(strconv.FormatInt(val, 10))
	case float64:
		return Text(strconv.FormatFloat(val, 'f', -1, 64))
	case map[string]interface{}:
		m := make(map[string]Payload, len(val))
		for k, item := range val {
			m[k] = fromValue(item, depth+1)
		}
		return Mapping(m)
	case map[string]string:
		m := make(map[string]Payload, len(val))
		for k, item := range val {
			m[k] = Text(item)
		}
		return Mapping(m)
	case []interface{}:
		items := make([]Payload, len(val))
		for i, item := range val {
			items[i] = fromValue(item, depth+1)
		}
		return Sequence(items...)
	case []string:
		items := make([]Payload, len(val))
		for i, item := range val {
			items[i] = Text(item)
		}
		return Sequence(items...)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint, reflect.Uint8,
		reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Float32:
		return Text(fmt.Sprint(v))
	}

	// Structs, typed maps and slices: normalize through JSON.
	data, err := json.Marshal(v)
	if err != nil {
		return Text(UnserializablePlaceholder)
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return Text(UnserializablePlaceholder)
	}
	return fromValue(generic, depth)
}

// safeText calls a user-supplied Error or String method. A method that
// panics, typically a pointer receiver on a typed nil, yields the placeholder.
func safeText(fn func() string) (p Payload) {
	defer func() {
		if recover() != nil {
			p = Text(UnserializablePlaceholder)
		}
	}()
	return Text(fn())
}

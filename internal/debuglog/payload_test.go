package debuglog

import (
	"errors"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromValue(t *testing.T) {
	type user struct {
		ID    int    `json:"id"`
		Email string `json:"email"`
	}

	tests := []struct {
		name     string
		value    interface{}
		kind     PayloadKind
		rendered string
	}{
		{"String", "plain", KindText, "plain"},
		{"Nil", nil, KindText, "null"},
		{"Int", 42, KindText, "42"},
		{"Bool", true, KindText, "true"},
		{"Error", errors.New("db down"), KindText, "db down"},
		{"Level stringer", WARNING, KindText, "WARNING"},
		{
			"Map",
			map[string]interface{}{"user_id": 1, "action": "login"},
			KindMapping,
			`{action: "login", user_id: "1"}`,
		},
		{
			"Slice",
			[]interface{}{"a", 2.5, map[string]interface{}{"k": "v"}},
			KindSequence,
			`["a", "2.5", {k: "v"}]`,
		},
		{"String slice", []string{"akismet", "jetpack"}, KindSequence, `["akismet", "jetpack"]`},
		{"Struct via JSON", user{ID: 7, Email: "a@b.c"}, KindMapping, `{email: "a@b.c", id: "7"}`},
		{"Unserializable", make(chan int), KindText, UnserializablePlaceholder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := FromValue(tt.value)
			assert.Equal(t, tt.kind, p.Kind())
			assert.Equal(t, tt.rendered, RenderPayload(p))
		})
	}
}

type nilUnsafeError struct{ msg string }

func (e *nilUnsafeError) Error() string { return e.msg }

func TestFromValue_TypedNilMethods(t *testing.T) {
	var u *url.URL
	var e *nilUnsafeError

	tests := []struct {
		name  string
		value interface{}
	}{
		{"Nil stringer", u},
		{"Nil error", e},
		{"Nil error as error", error(e)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Payload
			require.NotPanics(t, func() { p = FromValue(tt.value) })
			assert.Equal(t, UnserializablePlaceholder, RenderPayload(p))
		})
	}
}

func TestLogger_TypedNilInContextDoesNotPanic(t *testing.T) {
	l, _ := openTestLogger(t, testConfig(filepath.Join(t.TempDir(), "logs")))

	assert.NotPanics(t, func() {
		l.Log(NewRecord(INFO, "x", FromValue(map[string]interface{}{"u": (*url.URL)(nil)})))
		l.LogError("x", "nil error", map[string]interface{}{"err": (*nilUnsafeError)(nil)}, nil)
	})

	lines, err := l.Tail(2)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `{u: "`+UnserializablePlaceholder+`"}`)
	assert.Contains(t, lines[1], `err: "`+UnserializablePlaceholder+`"`)
}

func TestFromValue_CyclicMap(t *testing.T) {
	m := map[string]interface{}{}
	m["self"] = m

	p := FromValue(m)
	require.Equal(t, KindMapping, p.Kind())
	assert.Equal(t, UnserializablePlaceholder, RenderPayload(p))
}

func TestPayload_Accessors(t *testing.T) {
	p := Mapping(map[string]Payload{"k": Sequence(Text("a"))})
	require.Equal(t, KindMapping, p.Kind())
	inner := p.MappingValue()["k"]
	require.Equal(t, KindSequence, inner.Kind())
	assert.Equal(t, "a", inner.Items()[0].TextValue())

	var zero Payload
	assert.Equal(t, KindText, zero.Kind())
	assert.Equal(t, "", RenderPayload(zero))
}

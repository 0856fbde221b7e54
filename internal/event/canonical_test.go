package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalSortsKeys(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"zebra": int64(1),
		"alpha": "x",
		"mango": true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"x","mango":true,"zebra":1}`, string(got))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	got, err := MarshalCanonical("<a>&</a>")
	require.NoError(t, err)
	assert.Equal(t, `"<a>&</a>"`, string(got))
}

func TestMarshalCanonicalControlChars(t *testing.T) {
	got, err := MarshalCanonical("a\nb\tc\x01d")
	require.NoError(t, err)
	assert.Equal(t, `"a\nb\tc\u0001d"`, string(got))
}

func TestMarshalCanonicalLineSeparatorsUnescaped(t *testing.T) {
	// RFC 8785: U+2028 and U+2029 must NOT be escaped.
	got, err := MarshalCanonical("a\u2028b\u2029c")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(got))
}

func TestMarshalCanonicalRejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"x": 1.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestMarshalCanonicalRejectsNull(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"x": nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "null is forbidden")
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	// "e" + COMBINING ACUTE ACCENT normalizes to precomposed U+00E9.
	decomposed, err := MarshalCanonical("é")
	require.NoError(t, err)
	precomposed, err := MarshalCanonical("é")
	require.NoError(t, err)
	assert.Equal(t, precomposed, decomposed)
}

func TestMarshalCanonicalNestedDeterminism(t *testing.T) {
	v := map[string]any{
		"outer": map[string]any{"b": int64(2), "a": int64(1)},
		"list":  []any{"x", int64(3), false},
	}
	first, err := MarshalCanonical(v)
	require.NoError(t, err)
	second, err := MarshalCanonical(v)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, `{"list":["x",3,false],"outer":{"a":1,"b":2}}`, string(first))
}

func TestMarshalCanonicalUTF16KeyOrder(t *testing.T) {
	// U+1D306 encodes as a surrogate pair with leading unit 0xD834,
	// which sorts before U+FB01 under UTF-16 code unit ordering even
	// though its UTF-8 bytes sort after.
	got, err := MarshalCanonical(map[string]any{
		"\U0001d306": int64(1),
		"ﬁ":     int64(2),
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001d306\":1,\"ﬁ\":2}", string(got))
}

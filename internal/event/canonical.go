package event

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON for hashing.
// CRITICAL: this is the ONLY serialization that may be used for
// content-derived identity. Regular json.Marshal output is not stable
// enough (map order, HTML escaping) to hash.
//
// Supported input types: string, int, int64, bool, []any, map[string]any.
// Differences from encoding/json:
//  1. Object keys sorted by UTF-16 code units
//  2. No HTML escaping (< > & pass through)
//  3. Strings are NFC normalized
//  4. Floats and nulls are rejected with an error
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := marshalCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshalCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("null is forbidden in canonical JSON")
	case string:
		marshalCanonicalString(buf, val)
		return nil
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
		return nil
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
		return nil
	case bool:
		buf.WriteString(strconv.FormatBool(val))
		return nil
	case []string:
		// Common case for predecessor lists; avoids caller boilerplate.
		arr := make([]any, len(val))
		for i, s := range val {
			arr[i] = s
		}
		return marshalCanonicalArray(buf, arr)
	case []any:
		return marshalCanonicalArray(buf, val)
	case map[string]any:
		return marshalCanonicalObject(buf, val)
	case float32, float64:
		return fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

func marshalCanonicalArray(buf *bytes.Buffer, arr []any) error {
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := marshalCanonical(buf, elem); err != nil {
			return fmt.Errorf("array[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

func marshalCanonicalObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	// CRITICAL: RFC 8785 orders keys by UTF-16 code units, not bytes.
	sort.Slice(keys, func(i, j int) bool {
		return lessUTF16(keys[i], keys[j])
	})

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		marshalCanonicalString(buf, k)
		buf.WriteByte(':')
		if err := marshalCanonical(buf, obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// marshalCanonicalString writes a canonical JSON string literal.
// Only control characters, backslash and quote are escaped; in
// particular <, >, &, U+2028 and U+2029 pass through verbatim, which is
// where encoding/json disagrees with RFC 8785.
func marshalCanonicalString(buf *bytes.Buffer, s string) {
	// NFC normalize at the serialization boundary so visually identical
	// payloads hash identically.
	s = norm.NFC.String(s)

	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

func lessUTF16(a, b string) bool {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}

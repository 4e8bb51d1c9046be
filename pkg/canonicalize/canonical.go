// Package canonicalize produces the canonical JSON form used for snapshot
// hashing of export manifests.
//
// Canonical form rules:
//  1. Object keys are sorted lexicographically at every nesting level.
//  2. No insignificant whitespace.
//  3. ASCII-only output: runes above 0x7E are escaped as \uXXXX.
//  4. Numbers render in their shortest round-trip form; integral values are
//     emitted without a decimal point.
//
// Two logically identical values therefore always serialize to the same
// bytes, and Hash is stable across regenerations of identical state.
package canonicalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"
)

// Marshal returns the canonical JSON representation of v.
//
// v is first marshalled with encoding/json (so struct tags are respected),
// decoded into a generic value with json.Number preserved, then re-emitted
// canonically.
func Marshal(v any) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: pre-marshal failed: %w", err)
	}

	var generic any
	dec := json.NewDecoder(bytes.NewReader(intermediate))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonicalize: intermediate decode failed: %w", err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalString returns the canonical form as a string.
func MarshalString(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Hash returns the lowercase hex SHA-256 of the canonical JSON form of v.
func Hash(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns the lowercase hex SHA-256 of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		return writeNumber(buf, t)
	case string:
		writeString(buf, t)
	case []any:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, k)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonicalize: unsupported type %T", v)
	}
	return nil
}

// writeNumber emits the shortest round-trip form. Integral values within the
// safe integer range are emitted without a decimal point.
func writeNumber(buf *bytes.Buffer, n json.Number) error {
	if i, err := n.Int64(); err == nil {
		buf.WriteString(strconv.FormatInt(i, 10))
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("canonicalize: bad number %q: %w", n.String(), err)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return fmt.Errorf("canonicalize: non-finite number %q", n.String())
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		buf.WriteString(strconv.FormatInt(int64(f), 10))
		return nil
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

const hexDigits = "0123456789abcdef"

// writeString emits a quoted JSON string with ASCII-only output. Control
// characters use their short escapes where JSON defines one, everything else
// below 0x20 and above 0x7E becomes \uXXXX.
func writeString(buf *bytes.Buffer, s string) {
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
			switch {
			case r < 0x20 || r > 0x7E:
				writeEscaped(buf, r)
			default:
				buf.WriteByte(byte(r))
			}
		}
	}
	buf.WriteByte('"')
}

func writeEscaped(buf *bytes.Buffer, r rune) {
	if r == utf8.RuneError {
		// Invalid UTF-8 input bytes decode to RuneError; escape it as-is.
		writeHex16(buf, uint16(r))
		return
	}
	if r <= 0xFFFF {
		writeHex16(buf, uint16(r))
		return
	}
	// Characters outside the BMP become a surrogate pair.
	hi, lo := utf16.EncodeRune(r)
	writeHex16(buf, uint16(hi))
	writeHex16(buf, uint16(lo))
}

func writeHex16(buf *bytes.Buffer, v uint16) {
	buf.WriteString(`\u`)
	buf.WriteByte(hexDigits[v>>12&0xF])
	buf.WriteByte(hexDigits[v>>8&0xF])
	buf.WriteByte(hexDigits[v>>4&0xF])
	buf.WriteByte(hexDigits[v&0xF])
}

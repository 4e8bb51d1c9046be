package canonicalize

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{
			name: "keys sorted",
			in:   map[string]any{"b": 2, "a": 1},
			want: `{"a":1,"b":2}`,
		},
		{
			name: "nested keys sorted",
			in:   map[string]any{"z": map[string]any{"y": "foo", "x": "bar"}, "a": 1},
			want: `{"a":1,"z":{"x":"bar","y":"foo"}}`,
		},
		{
			name: "no whitespace",
			in:   map[string]any{"arr": []any{1, 2, 3}, "s": "x"},
			want: `{"arr":[1,2,3],"s":"x"}`,
		},
		{
			name: "null and bool",
			in:   map[string]any{"n": nil, "t": true, "f": false},
			want: `{"f":false,"n":null,"t":true}`,
		},
		{
			name: "integral float without decimal point",
			in:   map[string]any{"score": 50.0},
			want: `{"score":50}`,
		},
		{
			name: "fractional float shortest form",
			in:   map[string]any{"score": 46.67},
			want: `{"score":46.67}`,
		},
		{
			name: "non-ascii escaped",
			in:   map[string]any{"name": "Zürich"},
			want: `{"name":"Z\u00fcrich"}`,
		},
		{
			name: "astral plane surrogate pair",
			in:   map[string]any{"emoji": "\U0001F680"},
			want: `{"emoji":"\ud83d\ude80"}`,
		},
		{
			name: "control characters",
			in:   map[string]any{"s": "a\nb\tc"},
			want: `{"s":"a\nb\tc"}`,
		},
		{
			name: "html not escaped beyond ascii rule",
			in:   map[string]any{"s": "<script>&"},
			want: `{"s":"<script>&"}`,
		},
		{
			name: "struct respects json tags",
			in: struct {
				B string `json:"b"`
				A string `json:"a"`
			}{B: "2", A: "1"},
			want: `{"a":"1","b":"2"}`,
		},
		{
			name: "empty object",
			in:   map[string]any{},
			want: `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Marshal(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestHashDeterminism(t *testing.T) {
	// Two manifests with identical content but different object identities.
	m1 := map[string]any{
		"ai_system": map[string]any{"name": "credit-scorer", "id": "s-1"},
		"sections":  []any{"ANNEX4.GENERAL", "ANNEX4.RISK_MANAGEMENT"},
	}
	m2 := map[string]any{
		"sections":  []any{"ANNEX4.GENERAL", "ANNEX4.RISK_MANAGEMENT"},
		"ai_system": map[string]any{"id": "s-1", "name": "credit-scorer"},
	}

	h1, err := Hash(m1)
	require.NoError(t, err)
	h2, err := Hash(m2)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHashChangesOnSingleCharacter(t *testing.T) {
	base := map[string]any{"intended_purpose": "screening of job applications"}
	changed := map[string]any{"intended_purpose": "screening of job applicationz"}

	h1, err := Hash(base)
	require.NoError(t, err)
	h2, err := Hash(changed)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestMarshalOutputIsASCII(t *testing.T) {
	out, err := Marshal(map[string]any{"a": "こんにちは", "b": "🚀", "c": "plain"})
	require.NoError(t, err)
	for i := 0; i < len(out); i++ {
		if out[i] > 0x7E {
			t.Fatalf("non-ASCII byte 0x%02x at offset %d in %q", out[i], i, out)
		}
	}
}

func TestCanonicalProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("marshal is deterministic", prop.ForAll(
		func(k1, k2, v string, n int64) bool {
			m := map[string]any{k1: v, k2: n}
			b1, err1 := Marshal(m)
			b2, err2 := Marshal(m)
			return err1 == nil && err2 == nil && string(b1) == string(b2)
		},
		gen.AlphaString(), gen.AlphaString(), gen.AnyString(), gen.Int64(),
	))

	properties.Property("output round-trips as valid JSON", prop.ForAll(
		func(k, v string, n int64) bool {
			b, err := Marshal(map[string]any{k: v, "n": n})
			if err != nil {
				return false
			}
			var check any
			return json.Unmarshal(b, &check) == nil
		},
		gen.AnyString(), gen.AnyString(), gen.Int64(),
	))

	properties.Property("output is ASCII-only", prop.ForAll(
		func(v string) bool {
			b, err := Marshal(map[string]any{"v": v})
			if err != nil {
				return false
			}
			for i := 0; i < len(b); i++ {
				if b[i] > 0x7E {
					return false
				}
			}
			return true
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

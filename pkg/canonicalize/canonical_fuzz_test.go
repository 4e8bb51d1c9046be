package canonicalize

import (
	"encoding/json"
	"testing"
)

func FuzzMarshal(f *testing.F) {
	f.Add([]byte(`{"a":1,"b":2}`))
	f.Add([]byte(`{"z":{"y":"foo","x":"bar"},"a":1}`))
	f.Add([]byte(`{"num":123.456,"bool":true,"null":null}`))
	f.Add([]byte(`{"arr":[3,1,2],"nested":{"deep":{"key":"val"}}}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`{"":"empty_key","a":""}`))
	f.Add([]byte(`{"unicode":"こんにちは","emoji":"🚀"}`))
	f.Add([]byte(`{"escape":"line1\nline2\ttab"}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			t.Skip("invalid JSON input")
			return
		}

		b1, err := Marshal(v)
		if err != nil {
			return
		}
		b2, err := Marshal(v)
		if err != nil {
			t.Fatal("Marshal errored on second call but not first")
		}
		if string(b1) != string(b2) {
			t.Errorf("non-deterministic output:\n  first:  %s\n  second: %s", b1, b2)
		}

		// Canonical output must itself be valid JSON.
		var check any
		if err := json.Unmarshal(b1, &check); err != nil {
			t.Errorf("output is not valid JSON: %s", string(b1))
		}

		// And ASCII-only.
		for i := 0; i < len(b1); i++ {
			if b1[i] > 0x7E {
				t.Errorf("non-ASCII byte at offset %d: %q", i, b1)
				break
			}
		}
	})
}

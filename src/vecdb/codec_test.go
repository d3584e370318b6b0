package vecdb

import (
	"reflect"
	"testing"
)

func TestEncodeMetadataSerializesStructure(t *testing.T) {
	in := map[string]any{
		"tags":   []string{"a", "b"},
		"nested": map[string]any{"k": 1},
		"name":   "plain",
		"count":  3,
		"flag":   true,
		"empty":  nil,
	}
	out := EncodeMetadata(in)
	if out["tags"] != `["a","b"]` {
		t.Errorf("tags = %v", out["tags"])
	}
	if out["nested"] != `{"k":1}` {
		t.Errorf("nested = %v", out["nested"])
	}
	if out["name"] != "plain" || out["count"] != 3 || out["flag"] != true || out["empty"] != nil {
		t.Errorf("scalars mangled: %v", out)
	}
	// Input must not be mutated.
	if _, ok := in["tags"].([]string); !ok {
		t.Error("EncodeMetadata mutated its input")
	}
}

func TestDecodeMetadataPromotesOnlyStructure(t *testing.T) {
	in := map[string]any{
		"tags":     `["a","b"]`,
		"nested":   `{"k":1}`,
		"name":     "plain",
		"numeric":  "42",
		"boolish":  "true",
		"braceish": "{not json",
		"count":    float64(3),
	}
	out := DecodeMetadata(in)
	if !reflect.DeepEqual(out["tags"], []any{"a", "b"}) {
		t.Errorf("tags = %#v", out["tags"])
	}
	if !reflect.DeepEqual(out["nested"], map[string]any{"k": float64(1)}) {
		t.Errorf("nested = %#v", out["nested"])
	}
	// Strings that parse to scalars, or do not parse at all, stay strings.
	for _, key := range []string{"name", "numeric", "boolish", "braceish"} {
		if out[key] != in[key] {
			t.Errorf("%s = %#v, want unchanged", key, out[key])
		}
	}
	if out["count"] != float64(3) {
		t.Errorf("count = %#v", out["count"])
	}
}

func TestCodecRoundTrip(t *testing.T) {
	in := map[string]any{
		"tags":   []any{"x", "y"},
		"nested": map[string]any{"a": map[string]any{"b": "c"}},
		"name":   "plain",
		"pi":     3.14,
	}
	out := DecodeMetadata(EncodeMetadata(in))
	if !reflect.DeepEqual(out, in) {
		t.Fatalf("round trip = %#v, want %#v", out, in)
	}
}

func TestDecodeMetadataNil(t *testing.T) {
	if EncodeMetadata(nil) != nil || DecodeMetadata(nil) != nil {
		t.Fatal("nil in, nil out")
	}
}

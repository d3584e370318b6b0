package vecdb

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// The metadata codec converts structured payload values to and from the flat
// scalar strings the backends can store. Encode serializes every map or slice
// value to canonical JSON text; Decode sniffs string values and promotes them
// back only when parsing yields a map or a slice again. A caller-supplied
// string that happens to be literal JSON container text (say "[1,2]") is
// therefore promoted on read; that ambiguity is inherent to storing structure
// in scalar fields and is accepted rather than masked. Plain strings, numeric
// strings and boolean strings always survive the round trip unchanged.

// EncodeMetadata returns a copy of meta with every map and slice value
// serialized to a JSON string. Scalar values pass through untouched.
func EncodeMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if !isStructured(v) {
			out[k] = v
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			// Unmarshalable value (chan, func, cycle): store its
			// printed form rather than dropping the key.
			out[k] = fmt.Sprint(v)
			continue
		}
		out[k] = string(b)
	}
	return out
}

// DecodeMetadata returns a copy of meta with JSON-encoded structure restored.
// Strings that do not parse back into a map or slice are kept as-is; decode
// never fails.
func DecodeMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if s, ok := v.(string); ok {
			out[k] = decodeScalar(s)
			continue
		}
		out[k] = v
	}
	return out
}

func decodeScalar(s string) any {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return s
	}
	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return s
	}
	switch parsed.(type) {
	case map[string]any, []any:
		return parsed
	}
	return s
}

func isStructured(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return true
	}
	return false
}

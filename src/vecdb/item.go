package vecdb

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Reserved payload keys. Metadata holds the filterable fields; Memory holds
// the document body and is stored verbatim, never run through the codec.
const (
	MetadataKey = "metadata"
	MemoryKey   = "memory"
)

// Item is the generic record exchanged with a vector item store.
type Item struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
	Score   float64        `json:"score,omitempty"`
}

// Metadata returns the payload's metadata sub-map, or nil.
func (it Item) Metadata() map[string]any {
	if it.Payload == nil {
		return nil
	}
	meta, _ := it.Payload[MetadataKey].(map[string]any)
	return meta
}

// Memory returns the payload's document body, or "".
func (it Item) Memory() string {
	if it.Payload == nil {
		return ""
	}
	mem, _ := it.Payload[MemoryKey].(string)
	return mem
}

// ItemFromMap normalizes a loosely-typed map into a canonical Item. It accepts
// the shapes callers hand over the wire: "id" as a string, "vector" as any
// numeric slice, "payload" as a map, "score" as any numeric. Every operation
// normalizes its input through here before proceeding.
func ItemFromMap(raw map[string]any) (Item, error) {
	if raw == nil {
		return Item{}, errors.New("vecdb: nil item map")
	}
	id, ok := raw["id"].(string)
	if !ok || id == "" {
		return Item{}, errors.New("vecdb: item map has no string id")
	}
	item := Item{ID: id}
	if v, ok := raw["vector"]; ok && v != nil {
		vec, err := Float32Slice(v)
		if err != nil {
			return Item{}, fmt.Errorf("vecdb: item %q: %w", id, err)
		}
		item.Vector = vec
	}
	if p, ok := raw["payload"].(map[string]any); ok {
		item.Payload = p
	}
	if s, ok := raw["score"]; ok {
		item.Score = floatFromAny(s)
	}
	return item, nil
}

// Float32Slice coerces any numeric slice representation into []float32.
func Float32Slice(v any) ([]float32, error) {
	switch t := v.(type) {
	case []float32:
		return t, nil
	case []float64:
		out := make([]float32, len(t))
		for i, f := range t {
			out[i] = float32(f)
		}
		return out, nil
	case []any:
		out := make([]float32, len(t))
		for i, e := range t {
			f, ok := numericValue(e)
			if !ok {
				return nil, fmt.Errorf("vector element %d is %T, not numeric", i, e)
			}
			out[i] = float32(f)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported vector type %T", v)
}

func numericValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}

func floatFromAny(v any) float64 {
	f, _ := numericValue(v)
	return f
}

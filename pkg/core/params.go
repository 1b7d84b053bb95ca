package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// CloneParameters returns a deep copy of a parameter mapping.
// Maps and slices are copied recursively; other values are shared.
func CloneParameters(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneParameters(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneParameters(item)
		}
		return out
	default:
		return v
	}
}

// CanonicalParameters normalizes a parameter mapping to its JSON value form:
// numbers become float64, nested maps become map[string]any and slices
// become []any. Two mappings are value-equal iff their canonical forms are
// deeply equal. A nil mapping canonicalizes to an empty one.
func CanonicalParameters(params map[string]any) (map[string]any, error) {
	if len(params) == 0 {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	return out, nil
}

// ParametersEqual reports whether two parameter mappings hold the same
// values. Numbers compare by value (100 equals 100.0) and a nil mapping
// equals an empty one. Mappings that cannot be represented are never equal.
func ParametersEqual(a, b map[string]any) bool {
	ca, err := CanonicalParameters(a)
	if err != nil {
		return false
	}
	cb, err := CanonicalParameters(b)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(ca, cb)
}

// MergeParameters returns a new mapping holding base overlaid with
// overrides at the top level. Neither input is modified.
func MergeParameters(base, overrides map[string]any) map[string]any {
	out := CloneParameters(base)
	if out == nil {
		out = make(map[string]any, len(overrides))
	}
	for k, v := range overrides {
		out[k] = cloneValue(v)
	}
	return out
}

// DecodeParameters parses a JSON object into a parameter mapping. Integral
// numbers decode as int64 and all others as float64, so counts such as
// periods stay usable as integers.
func DecodeParameters(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	if raw == nil {
		return map[string]any{}, nil
	}
	out, err := normalizeNumber(raw)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func normalizeNumber(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("decode parameters: invalid number %q", val.String())
		}
		return f, nil
	case map[string]any:
		for k, item := range val {
			n, err := normalizeNumber(item)
			if err != nil {
				return nil, err
			}
			val[k] = n
		}
		return val, nil
	case []any:
		for i, item := range val {
			n, err := normalizeNumber(item)
			if err != nil {
				return nil, err
			}
			val[i] = n
		}
		return val, nil
	default:
		return v, nil
	}
}

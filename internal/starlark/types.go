// Package starlark provides the sandboxed Starlark runtime used to execute
// financial model code: the capability registry, the modules it exposes,
// call-scoped console capture and Go <-> Starlark value conversion.
package starlark

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.starlark.net/starlark"
)

// GoToStarlark converts a Go value to a Starlark value.
// Supported types: string, bool, signed/unsigned integers, float32/64,
// json.Number, []string, []float64, []int, []any, []map[string]any,
// map[string]any and map[string]string.
func GoToStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case starlark.Value:
		return val, nil

	case string:
		return starlark.String(val), nil

	case bool:
		return starlark.Bool(val), nil

	case int:
		return starlark.MakeInt(val), nil

	case int32:
		return starlark.MakeInt64(int64(val)), nil

	case int64:
		return starlark.MakeInt64(val), nil

	case uint:
		return starlark.MakeUint(val), nil

	case uint64:
		return starlark.MakeUint64(val), nil

	case float32:
		return starlark.Float(val), nil

	case float64:
		return starlark.Float(val), nil

	case json.Number:
		if i, err := val.Int64(); err == nil {
			return starlark.MakeInt64(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val.String(), err)
		}
		return starlark.Float(f), nil

	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil

	case []float64:
		list := make([]starlark.Value, len(val))
		for i, f := range val {
			list[i] = starlark.Float(f)
		}
		return starlark.NewList(list), nil

	case []int:
		list := make([]starlark.Value, len(val))
		for i, n := range val {
			list[i] = starlark.MakeInt(n)
		}
		return starlark.NewList(list), nil

	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := GoToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil

	case []map[string]any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := GoToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil

	case map[string]string:
		dict := starlark.NewDict(len(val))
		for _, k := range sortedKeys(val) {
			if err := dict.SetKey(starlark.String(k), starlark.String(val[k])); err != nil {
				return nil, fmt.Errorf("dict setkey %q: %w", k, err)
			}
		}
		return dict, nil

	case map[string]any:
		dict := starlark.NewDict(len(val))
		// Sorted insertion keeps dict iteration order independent of Go map order.
		for _, k := range sortedKeys(val) {
			sv, err := GoToStarlark(val[k])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, fmt.Errorf("dict setkey %q: %w", k, err)
			}
		}
		return dict, nil

	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// MaxResultDepth bounds how deeply containers may nest in a converted value.
const MaxResultDepth = 1000

// ErrCycle is reported when a value contains itself.
var ErrCycle = errors.New("result contains a cycle")

// ToGo converts a Starlark value back to a Go value.
// Returns: string, int64, float64, bool, []any, map[string]any, or nil.
// DataFrames become a []any of row maps (column name -> value).
// Containers that contain themselves fail with ErrCycle; a value shared by
// several containers converts once per occurrence.
func ToGo(v starlark.Value) (any, error) {
	return newConverter().value(v)
}

// DictToGo converts a Starlark dict with string keys to a Go map.
func DictToGo(d *starlark.Dict) (map[string]any, error) {
	return newConverter().dict(d)
}

// converter tracks the containers on the current path so that a
// self-referencing value fails instead of recursing without end.
type converter struct {
	path map[starlark.Value]bool
}

func newConverter() *converter {
	return &converter{path: make(map[starlark.Value]bool)}
}

// enter marks a container as being converted; leave must follow.
func (c *converter) enter(v starlark.Value) error {
	if c.path[v] {
		return ErrCycle
	}
	if len(c.path) >= MaxResultDepth {
		return fmt.Errorf("result nests deeper than %d levels", MaxResultDepth)
	}
	c.path[v] = true
	return nil
}

func (c *converter) leave(v starlark.Value) {
	delete(c.path, v)
}

func (c *converter) value(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil

	case starlark.String:
		return string(val), nil

	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			// Fallback for very large integers - convert to string
			return val.String(), nil
		}
		return i64, nil

	case starlark.Float:
		return float64(val), nil

	case starlark.Bool:
		return bool(val), nil

	case *DataFrame:
		if err := c.enter(val); err != nil {
			return nil, err
		}
		defer c.leave(val)
		return val.records(c)

	case *starlark.List:
		if err := c.enter(val); err != nil {
			return nil, err
		}
		defer c.leave(val)
		return c.indexed("list", val)

	case starlark.Tuple:
		return c.indexed("tuple", val)

	case *starlark.Set:
		if err := c.enter(val); err != nil {
			return nil, err
		}
		defer c.leave(val)
		result := make([]any, 0, val.Len())
		iter := val.Iterate()
		defer iter.Done()
		var item starlark.Value
		for iter.Next(&item) {
			gv, err := c.value(item)
			if err != nil {
				return nil, fmt.Errorf("set element: %w", err)
			}
			result = append(result, gv)
		}
		return result, nil

	case *starlark.Dict:
		return c.dict(val)

	default:
		// Try to get a string representation
		return val.String(), nil
	}
}

func (c *converter) indexed(kind string, seq starlark.Indexable) ([]any, error) {
	result := make([]any, seq.Len())
	for i := 0; i < seq.Len(); i++ {
		gv, err := c.value(seq.Index(i))
		if err != nil {
			return nil, fmt.Errorf("%s index %d: %w", kind, i, err)
		}
		result[i] = gv
	}
	return result, nil
}

func (c *converter) dict(d *starlark.Dict) (map[string]any, error) {
	if err := c.enter(d); err != nil {
		return nil, err
	}
	defer c.leave(d)
	result := make(map[string]any, d.Len())
	for _, item := range d.Items() {
		key, ok := item[0].(starlark.String)
		if !ok {
			return nil, fmt.Errorf("dict key must be string, got %s", item[0].Type())
		}
		gv, err := c.value(item[1])
		if err != nil {
			return nil, fmt.Errorf("dict key %q: %w", string(key), err)
		}
		result[string(key)] = gv
	}
	return result, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

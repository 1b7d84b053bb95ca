package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/leapstack-labs/finmodel/pkg/core"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ParamOptions are the parameter flags shared by executing commands.
type ParamOptions struct {
	File string
	Set  []string
}

func (o *ParamOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.File, "params", "p", "", "YAML or JSON file with parameters")
	cmd.Flags().StringArrayVar(&o.Set, "set", nil, "Set a parameter (key=value, value parsed as YAML; repeatable)")
}

// Load reads the parameter file, then applies --set overrides. It returns
// nil when neither flag was given.
func (o *ParamOptions) Load() (map[string]any, error) {
	if o.File == "" && len(o.Set) == 0 {
		return nil, nil
	}

	params := map[string]any{}
	if o.File != "" {
		data, err := os.ReadFile(o.File)
		if err != nil {
			return nil, fmt.Errorf("failed to read parameters: %w", err)
		}
		params, err = ParseParameters(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", o.File, err)
		}
	}

	for _, kv := range o.Set {
		key, value, err := ParseAssignment(kv)
		if err != nil {
			return nil, err
		}
		params[key] = value
	}
	return params, nil
}

// ParseParameters decodes a YAML (or JSON) mapping into parameter values
// with the same number types stored parameters use: int64 for integral
// numbers, float64 otherwise.
func ParseParameters(data []byte) (map[string]any, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: invalid parameters: %v", core.ErrInvalidInput, err)
	}
	if raw == nil {
		return map[string]any{}, nil
	}
	if _, ok := raw.(map[string]any); !ok {
		return nil, fmt.Errorf("%w: parameters must be a mapping, got %T", core.ErrInvalidInput, raw)
	}
	return normalize(raw)
}

// ParseAssignment splits key=value and decodes value as a YAML scalar or
// flow collection, so "n=3" yields an int64 and "tags=[a, b]" a list.
func ParseAssignment(kv string) (string, any, error) {
	key, raw, ok := strings.Cut(kv, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, fmt.Errorf("%w: --set expects key=value, got %q", core.ErrInvalidInput, kv)
	}

	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return "", nil, fmt.Errorf("%w: --set %s: %v", core.ErrInvalidInput, key, err)
	}
	if value == nil && strings.TrimSpace(raw) == "" {
		value = ""
	}
	wrapped, err := normalize(map[string]any{key: value})
	if err != nil {
		return "", nil, err
	}
	return key, wrapped[key], nil
}

// normalize round-trips through JSON so YAML-specific types (int, nested
// maps with non-string keys, timestamps) become parameter values.
func normalize(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: parameters must be JSON-representable: %v", core.ErrInvalidInput, err)
	}
	return core.DecodeParameters(data)
}

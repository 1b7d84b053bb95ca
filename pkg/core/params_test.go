package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneParameters_Deep(t *testing.T) {
	orig := map[string]any{
		"rate":  0.05,
		"costs": map[string]any{"rent": 5000},
		"flows": []any{1, 2, map[string]any{"x": 1}},
	}

	clone := CloneParameters(orig)
	clone["costs"].(map[string]any)["rent"] = 1
	clone["flows"].([]any)[2].(map[string]any)["x"] = 99

	assert.Equal(t, 5000, orig["costs"].(map[string]any)["rent"])
	assert.Equal(t, 1, orig["flows"].([]any)[2].(map[string]any)["x"])
	assert.Nil(t, CloneParameters(nil))
}

func TestCanonicalParameters(t *testing.T) {
	tests := []struct {
		name  string
		a, b  map[string]any
		equal bool
	}{
		{
			name:  "int and float compare by value",
			a:     map[string]any{"n": 100},
			b:     map[string]any{"n": 100.0},
			equal: true,
		},
		{
			name:  "nil equals empty",
			a:     nil,
			b:     map[string]any{},
			equal: true,
		},
		{
			name:  "nested difference",
			a:     map[string]any{"costs": map[string]any{"rent": 1}},
			b:     map[string]any{"costs": map[string]any{"rent": 2}},
			equal: false,
		},
		{
			name:  "typed slices normalize",
			a:     map[string]any{"xs": []int{1, 2}},
			b:     map[string]any{"xs": []any{1.0, 2.0}},
			equal: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ca, err := CanonicalParameters(tt.a)
			require.NoError(t, err)
			cb, err := CanonicalParameters(tt.b)
			require.NoError(t, err)
			if tt.equal {
				assert.Equal(t, ca, cb)
			} else {
				assert.NotEqual(t, ca, cb)
			}
		})
	}
}

func TestCanonicalParameters_Unencodable(t *testing.T) {
	_, err := CanonicalParameters(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestMergeParameters_DoesNotMutateInputs(t *testing.T) {
	base := map[string]any{"periods": 36, "rate": 0.05}
	overrides := map[string]any{"periods": 12}

	merged := MergeParameters(base, overrides)

	assert.Equal(t, 12, merged["periods"])
	assert.Equal(t, 0.05, merged["rate"])
	assert.Equal(t, 36, base["periods"], "base must not change")
	assert.Len(t, base, 2)
}

func TestModel_Access(t *testing.T) {
	m := &Model{OwnerID: "alice"}
	assert.True(t, m.CanRead("alice"))
	assert.False(t, m.CanRead("bob"))
	assert.False(t, m.CanWrite("bob"))

	m.IsPublic = true
	assert.True(t, m.CanRead("bob"))
	assert.False(t, m.CanWrite("bob"), "public models are read-only to non-owners")
}

func TestDecodeParameters(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string]any
		wantErr bool
	}{
		{
			name:  "integers stay integral",
			input: `{"periods": 36, "rate": 0.05}`,
			want:  map[string]any{"periods": int64(36), "rate": 0.05},
		},
		{
			name:  "nested values",
			input: `{"costs": {"rent": 5000}, "flows": [1, 2.5]}`,
			want: map[string]any{
				"costs": map[string]any{"rent": int64(5000)},
				"flows": []any{int64(1), 2.5},
			},
		},
		{
			name:  "null object",
			input: `null`,
			want:  map[string]any{},
		},
		{
			name:    "not an object",
			input:   `[1, 2]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeParameters([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParametersEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b map[string]any
		want bool
	}{
		{name: "both nil", want: true},
		{name: "nil and empty", a: nil, b: map[string]any{}, want: true},
		{name: "int and float", a: map[string]any{"n": 100}, b: map[string]any{"n": 100.0}, want: true},
		{name: "int64 and int", a: map[string]any{"n": int64(3)}, b: map[string]any{"n": 3}, want: true},
		{name: "different value", a: map[string]any{"n": 1}, b: map[string]any{"n": 2}, want: false},
		{name: "extra key", a: map[string]any{"n": 1}, b: map[string]any{"n": 1, "m": 2}, want: false},
		{
			name: "nested lists",
			a:    map[string]any{"flows": []any{1, 2}},
			b:    map[string]any{"flows": []float64{1, 2}},
			want: true,
		},
		{
			name: "empty nested map",
			a:    map[string]any{"costs": map[string]any{}},
			b:    map[string]any{"costs": map[string]any{}},
			want: true,
		},
		{name: "unencodable", a: map[string]any{"c": make(chan int)}, b: map[string]any{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParametersEqual(tt.a, tt.b))
		})
	}
}

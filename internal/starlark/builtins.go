package starlark

import (
	"fmt"
	"math"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// DefaultBuiltins is the primitive-operation allowlist: universe builtins
// that stay visible plus the sum and round builtins supplied here.
var DefaultBuiltins = []string{
	"abs", "all", "any", "bool", "dict", "enumerate", "fail", "float",
	"hasattr", "int", "len", "list", "max", "min", "print", "range",
	"repr", "reversed", "round", "set", "sorted", "str", "sum", "tuple",
	"type", "zip",
}

// constants are universe names that are values, not operations.
var constants = map[string]bool{"None": true, "True": true, "False": true}

// extraBuiltins are primitives the Starlark universe lacks.
var extraBuiltins = map[string]*starlark.Builtin{
	"sum":   starlark.NewBuiltin("sum", builtinSum),
	"round": starlark.NewBuiltin("round", builtinRound),
}

// builtinSum implements sum(iterable, start=0).
func builtinSum(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var iterable starlark.Iterable
	var start starlark.Value = starlark.MakeInt(0)
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &iterable, &start); err != nil {
		return nil, err
	}

	acc := start
	err := iterate(thread, iterable, func(x starlark.Value) error {
		var err error
		acc, err = starlark.Binary(syntax.PLUS, acc, x)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return acc, nil
}

// builtinRound implements round(x, ndigits=None) with round-half-to-even.
// Without ndigits it returns an int, otherwise a float.
func builtinRound(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	var ndigits starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "x", &x, "ndigits?", &ndigits); err != nil {
		return nil, err
	}

	f, err := toFloat(x)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}

	if ndigits == starlark.None {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%s: cannot convert %v to int", b.Name(), f)
		}
		return starlark.NumberToInt(starlark.Float(math.RoundToEven(f)))
	}

	n, err := starlark.AsInt32(ndigits)
	if err != nil {
		return nil, fmt.Errorf("%s: ndigits: %w", b.Name(), err)
	}
	scale := math.Pow(10, float64(n))
	scaled := f * scale
	switch {
	case math.IsInf(scale, 1) || math.IsInf(scaled, 0) || math.IsNaN(scaled):
		// More digits than a float64 holds: nothing to round.
		return starlark.Float(f), nil
	case scale == 0:
		return starlark.Float(math.Copysign(0, f)), nil
	}
	return starlark.Float(math.RoundToEven(scaled) / scale), nil
}

// deniedBuiltin shadows a universe builtin that is outside the allowlist.
// Calling it fails with a CapabilityError.
func deniedBuiltin(name string) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, _ *starlark.Builtin, _ starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
		return nil, &CapabilityError{Category: CapabilityBuiltin, Name: name}
	})
}

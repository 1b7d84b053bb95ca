package starlark

import (
	"fmt"
	"math"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

type builtinFunc = func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)

func newNumericModule(maxElements int) *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: ModuleNumeric,
		Members: starlark.StringDict{
			"zeros":  starlark.NewBuiltin("zeros", numericZeros(maxElements)),
			"full":   starlark.NewBuiltin("full", numericFull(maxElements)),
			"arange": starlark.NewBuiltin("arange", numericArange(maxElements)),
			"cumsum": starlark.NewBuiltin("cumsum", numericCumsum),
			"sum":    starlark.NewBuiltin("sum", numericSum),
			"mean":   starlark.NewBuiltin("mean", numericMean),
			"growth": starlark.NewBuiltin("growth", numericGrowth(maxElements)),
		},
	}
}

func checkLength(fn string, n, maxElements int) error {
	if n < 0 {
		return fmt.Errorf("%s: negative length %d", fn, n)
	}
	if n > maxElements {
		return fmt.Errorf("%s: length %d exceeds limit of %d", fn, n, maxElements)
	}
	return nil
}

func numericZeros(maxElements int) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var n int
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &n); err != nil {
			return nil, err
		}
		if err := checkLength(b.Name(), n, maxElements); err != nil {
			return nil, err
		}
		return fill(n, starlark.Float(0)), nil
	}
}

func numericFull(maxElements int) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var n int
		var v starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &n, &v); err != nil {
			return nil, err
		}
		if err := checkLength(b.Name(), n, maxElements); err != nil {
			return nil, err
		}
		return fill(n, v), nil
	}
}

func fill(n int, v starlark.Value) *starlark.List {
	elems := make([]starlark.Value, n)
	for i := range elems {
		elems[i] = v
	}
	return starlark.NewList(elems)
}

// numericArange implements arange(stop) and arange(start, stop, step=1).
// The result holds ints when every argument is an int, floats otherwise.
func numericArange(maxElements int) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var a, c starlark.Value
		var step starlark.Value = starlark.MakeInt(1)
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &a, &c, &step); err != nil {
			return nil, err
		}
		var start, stop starlark.Value = starlark.MakeInt(0), a
		if c != nil {
			start, stop = a, c
		}

		allInts := true
		bounds := make([]float64, 3)
		for i, v := range []starlark.Value{start, stop, step} {
			if _, ok := v.(starlark.Int); !ok {
				allInts = false
			}
			f, err := toFloat(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", b.Name(), err)
			}
			bounds[i] = f
		}
		lo, hi, st := bounds[0], bounds[1], bounds[2]
		if st == 0 {
			return nil, fmt.Errorf("%s: step must not be zero", b.Name())
		}

		n := int(math.Max(0, math.Ceil((hi-lo)/st)))
		if err := checkLength(b.Name(), n, maxElements); err != nil {
			return nil, err
		}
		elems := make([]starlark.Value, n)
		for i := range elems {
			x := lo + float64(i)*st
			if allInts {
				elems[i] = starlark.MakeInt64(int64(x))
			} else {
				elems[i] = starlark.Float(x)
			}
		}
		return starlark.NewList(elems), nil
	}
}

func numericCumsum(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var xs starlark.Iterable
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &xs); err != nil {
		return nil, err
	}
	var out []starlark.Value
	var acc starlark.Value = starlark.MakeInt(0)
	err := iterate(thread, xs, func(x starlark.Value) error {
		var err error
		acc, err = starlark.Binary(syntax.PLUS, acc, x)
		out = append(out, acc)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.NewList(out), nil
}

func numericSum(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return builtinSum(thread, b, args, kwargs)
}

func numericMean(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var xs starlark.Iterable
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &xs); err != nil {
		return nil, err
	}
	fs, err := floatsFrom(thread, b.Name(), xs)
	if err != nil {
		return nil, err
	}
	m, err := mean(b.Name(), fs)
	if err != nil {
		return nil, err
	}
	return starlark.Float(m), nil
}

// numericGrowth implements growth(initial, rate, periods): the series
// initial * (1 + rate) ** t for t in [0, periods).
func numericGrowth(maxElements int) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var initial, rate starlark.Value
		var periods int
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "initial", &initial, "rate", &rate, "periods", &periods); err != nil {
			return nil, err
		}
		if err := checkLength(b.Name(), periods, maxElements); err != nil {
			return nil, err
		}
		x0, err := toFloat(initial)
		if err != nil {
			return nil, fmt.Errorf("%s: initial: %w", b.Name(), err)
		}
		r, err := toFloat(rate)
		if err != nil {
			return nil, fmt.Errorf("%s: rate: %w", b.Name(), err)
		}
		elems := make([]starlark.Value, periods)
		v := x0
		for t := range elems {
			elems[t] = starlark.Float(v)
			v *= 1 + r
		}
		return starlark.NewList(elems), nil
	}
}

func floatsFrom(thread *starlark.Thread, fn string, xs starlark.Iterable) ([]float64, error) {
	var out []float64
	err := iterate(thread, xs, func(x starlark.Value) error {
		f, err := toFloat(x)
		if err != nil {
			return fmt.Errorf("element %d: %w", len(out), err)
		}
		out = append(out, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return out, nil
}

func floatsOf(thread *starlark.Thread, fn string, vs []starlark.Value) ([]float64, error) {
	return floatsFrom(thread, fn, starlark.Tuple(vs))
}

func mean(fn string, xs []float64) (float64, error) {
	if len(xs) == 0 {
		return 0, fmt.Errorf("%s: mean of empty sequence", fn)
	}
	var total float64
	for _, x := range xs {
		total += x
	}
	return total / float64(len(xs)), nil
}

// toFloat converts an int or float to float64.
func toFloat(v starlark.Value) (float64, error) {
	switch x := v.(type) {
	case starlark.Float:
		return float64(x), nil
	case starlark.Int:
		return float64(x.Float()), nil
	}
	return 0, fmt.Errorf("got %s, want float or int", v.Type())
}

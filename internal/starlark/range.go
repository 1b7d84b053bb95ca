package starlark

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// boundedRange is the range builtin exposed to executed code. It behaves
// like the universe range but refuses lengths above the element cap, and
// its iterator charges each element to the thread's meter. Builtins such
// as sum, max or sorted consume ranges entirely in Go, where the
// interpreter would otherwise never see the deadline.
type boundedRange struct {
	start, stop, step, len int
	meter                  *Meter
}

var (
	_ starlark.Indexable  = boundedRange{}
	_ starlark.Sequence   = boundedRange{}
	_ starlark.Comparable = boundedRange{}
	_ starlark.Sliceable  = boundedRange{}
	_ starlark.Container  = boundedRange{}
)

func newRangeBuiltin(maxElements int) *starlark.Builtin {
	return starlark.NewBuiltin("range", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var start, stop, step int
		step = 1
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &start, &stop, &step); err != nil {
			return nil, err
		}
		if len(args) == 1 {
			start, stop = 0, start
		}
		if step == 0 {
			return nil, fmt.Errorf("%s: step argument must not be zero", b.Name())
		}
		n := rangeLen(start, stop, step)
		if n > maxElements {
			return nil, fmt.Errorf("%s: length %d exceeds limit of %d", b.Name(), n, maxElements)
		}
		return boundedRange{start: start, stop: stop, step: step, len: n, meter: MeterOf(thread)}, nil
	})
}

// rangeLen returns the element count of a range; step must be non-zero.
func rangeLen(start, stop, step int) int {
	switch {
	case step > 0 && stop > start:
		return (stop-1-start)/step + 1
	case step < 0 && start > stop:
		return (start-1-stop)/-step + 1
	}
	return 0
}

func (r boundedRange) Len() int                   { return r.len }
func (r boundedRange) Index(i int) starlark.Value { return starlark.MakeInt(r.start + i*r.step) }
func (r boundedRange) Iterate() starlark.Iterator { return &rangeIterator{r: r} }

func (r boundedRange) Slice(start, end, step int) starlark.Value {
	newStart := r.start + r.step*start
	newStop := r.start + r.step*end
	newStep := r.step * step
	return boundedRange{
		start: newStart,
		stop:  newStop,
		step:  newStep,
		len:   rangeLen(newStart, newStop, newStep),
		meter: r.meter,
	}
}

func (r boundedRange) String() string {
	switch {
	case r.step != 1:
		return fmt.Sprintf("range(%d, %d, %d)", r.start, r.stop, r.step)
	case r.start != 0:
		return fmt.Sprintf("range(%d, %d)", r.start, r.stop)
	default:
		return fmt.Sprintf("range(%d)", r.stop)
	}
}

func (r boundedRange) Type() string          { return "range" }
func (r boundedRange) Freeze()               {}
func (r boundedRange) Truth() starlark.Bool  { return r.len > 0 }
func (r boundedRange) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: range") }

func (r boundedRange) CompareSameType(op syntax.Token, y starlark.Value, _ int) (bool, error) {
	other := y.(boundedRange)
	switch op {
	case syntax.EQL:
		return rangeEqual(r, other), nil
	case syntax.NEQ:
		return !rangeEqual(r, other), nil
	}
	return false, fmt.Errorf("%s %s %s not implemented", r.Type(), op, other.Type())
}

// Has implements the in operator without iterating.
func (r boundedRange) Has(y starlark.Value) (bool, error) {
	i, err := starlark.NumberToInt(y)
	if err != nil {
		return false, fmt.Errorf("'in <range>' requires integer as left operand, not %s", y.Type())
	}
	x, ok := i.Int64()
	if !ok || r.len == 0 {
		return false, nil
	}
	delta := x - int64(r.start)
	step := int64(r.step)
	quo, rem := delta/step, delta%step
	return rem == 0 && quo >= 0 && quo < int64(r.len), nil
}

func rangeEqual(x, y boundedRange) bool {
	if x.len != y.len {
		return false
	}
	if x.len == 0 {
		return true
	}
	if x.start != y.start {
		return false
	}
	return x.len == 1 || x.step == y.step
}

// rangeIterator ends early once the meter stops; the interpreter then
// observes the cancelled thread at its next step.
type rangeIterator struct {
	r boundedRange
	i int
}

func (it *rangeIterator) Next(p *starlark.Value) bool {
	if it.i >= it.r.len {
		return false
	}
	if err := it.r.meter.Tick(); err != nil {
		return false
	}
	*p = it.r.Index(it.i)
	it.i++
	return true
}

func (*rangeIterator) Done() {}

package starlark

import (
	"errors"

	"go.starlark.net/starlark"
)

// meterKey is the thread-local key of an execution's Meter.
const meterKey = "finmodel.meter"

// cancelCheckInterval is how many ticks pass between cancellation checks.
const cancelCheckInterval = 256

// Errors reported when a Meter stops Go-side iteration.
var (
	ErrStepBudget  = errors.New("too many steps")
	ErrInterrupted = errors.New("execution interrupted")
)

// Meter charges iteration done in Go on behalf of executed code (builtins
// looping over a range, module aggregations) against the thread's step
// budget, and observes cancellation between interpreter steps. The
// interpreter only checks its budget and cancellation between its own
// steps, so a single builtin call could otherwise run unbounded.
//
// A Meter belongs to one thread and is used from that thread's goroutine.
type Meter struct {
	thread   *starlark.Thread
	maxSteps uint64
	done     <-chan struct{}
	err      error
}

// attachMeter installs a meter on thread. A zero maxSteps means no budget;
// a nil done channel means no cancellation.
func attachMeter(thread *starlark.Thread, maxSteps uint64, done <-chan struct{}) *Meter {
	m := &Meter{thread: thread, maxSteps: maxSteps, done: done}
	thread.SetLocal(meterKey, m)
	return m
}

// MeterOf returns the meter attached to thread, or nil.
func MeterOf(thread *starlark.Thread) *Meter {
	if thread == nil {
		return nil
	}
	m, _ := thread.Local(meterKey).(*Meter)
	return m
}

// Tick charges one step. Once it reports an error the thread is cancelled
// and every later Tick reports the same error.
func (m *Meter) Tick() error {
	if m == nil {
		return nil
	}
	if m.err != nil {
		return m.err
	}
	m.thread.Steps++
	if m.maxSteps > 0 && m.thread.Steps >= m.maxSteps {
		return m.stop(ErrStepBudget)
	}
	if m.done != nil && m.thread.Steps%cancelCheckInterval == 0 {
		select {
		case <-m.done:
			return m.stop(ErrInterrupted)
		default:
		}
	}
	return nil
}

// Err returns the error that stopped the meter, if any.
func (m *Meter) Err() error {
	if m == nil {
		return nil
	}
	return m.err
}

func (m *Meter) stop(err error) error {
	m.err = err
	m.thread.Cancel(err.Error())
	return err
}

// iterate calls fn for every element of iterable, charging one step per
// element. It stops at the first error from fn or from the meter.
func iterate(thread *starlark.Thread, iterable starlark.Iterable, fn func(starlark.Value) error) error {
	m := MeterOf(thread)
	iter := iterable.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		if err := m.Tick(); err != nil {
			return err
		}
		if err := fn(x); err != nil {
			return err
		}
	}
	// A metered iterator ends early instead of failing.
	return m.Err()
}

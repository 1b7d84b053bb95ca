package starlark

import (
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// FileOptions are the dialect options for model code. Top-level control
// flow, while loops and recursion are allowed; the step budget bounds them.
var FileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// ThreadOptions configures a per-execution interpreter thread.
type ThreadOptions struct {
	Name     string
	Console  *Console
	Registry *Registry
	// MaxSteps bounds the number of interpreter steps. Zero means unbounded.
	MaxSteps uint64
	// Done, when closed, stops iteration that runs inside builtins.
	Done <-chan struct{}
}

// NewThread creates a thread for exactly one execution. print goes to the
// console, load resolves only registry modules and a Meter charges
// builtin-side iteration to the same step budget.
func NewThread(opts ThreadOptions) *starlark.Thread {
	thread := &starlark.Thread{
		Name: opts.Name,
		Print: func(_ *starlark.Thread, _ string) {
			// discarded when no console is attached
		},
	}
	if opts.Console != nil {
		thread.Print = opts.Console.Print
	}
	if opts.Registry != nil {
		thread.Load = opts.Registry.Load
	} else {
		thread.Load = func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
			return nil, &CapabilityError{Category: CapabilityModule, Name: module}
		}
	}
	if opts.MaxSteps > 0 {
		thread.SetMaxExecutionSteps(opts.MaxSteps)
	}
	attachMeter(thread, opts.MaxSteps, opts.Done)
	return thread
}

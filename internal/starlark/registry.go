package starlark

import (
	"fmt"
	"sort"

	"github.com/leapstack-labs/finmodel/pkg/core"
	starjson "go.starlark.net/lib/json"
	starmath "go.starlark.net/lib/math"
	startime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Module names in the default capability set.
const (
	ModuleMath    = "math"
	ModuleTime    = "time"
	ModuleJSON    = "json"
	ModuleFrame   = "frame"
	ModuleNumeric = "numeric"
	ModuleFinance = "finance"
	ModuleDates   = "dates"
)

// DefaultModules lists every module the registry knows how to build.
var DefaultModules = []string{
	ModuleDates, ModuleFinance, ModuleFrame, ModuleJSON,
	ModuleMath, ModuleNumeric, ModuleTime,
}

// RegistryOptions selects the capability allowlist.
type RegistryOptions struct {
	// Modules to expose. Empty means DefaultModules.
	Modules []string
	// Builtins to expose. Empty means DefaultBuiltins.
	Builtins []string
	// MaxElements caps sequences built by module functions. Zero means
	// DefaultMaxElements.
	MaxElements int
}

// DefaultMaxElements is the sequence cap used when none is configured.
const DefaultMaxElements = 1_000_000

// Registry is the closed set of modules and primitive operations exposed to
// executed code. It is built once and never changes afterwards.
//
// Name-level allowlisting bounds direct invocation only. It does not stop
// code from reaching functionality through attributes of an allowed value.
// CPU is bounded by the execution engine's deadline and step budget, and
// range lengths by MaxElements. Memory is not bounded in-process: repeated
// string or list concatenation can grow without limit within the step
// budget. Deployments must run the engine under process-level isolation
// with a memory limit.
type Registry struct {
	modules  map[string]*starlarkstruct.Module
	builtins starlark.StringDict
	denied   map[string]bool
	withheld map[string]bool
	bindings starlark.StringDict
}

// hostNames are names that reach the host in general-purpose languages.
// Code that mentions one is asking for a capability, not misspelling a
// variable.
var hostNames = []string{
	"__import__", "compile", "eval", "exec", "exit", "file", "globals",
	"import", "input", "locals", "open", "os", "quit", "socket",
	"subprocess", "sys", "vars",
}

// NewRegistry builds a frozen registry from the given allowlist.
// Unknown module or builtin names are configuration errors.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	if opts.MaxElements <= 0 {
		opts.MaxElements = DefaultMaxElements
	}
	moduleNames := opts.Modules
	if len(moduleNames) == 0 {
		moduleNames = DefaultModules
	}
	builtinNames := opts.Builtins
	if len(builtinNames) == 0 {
		builtinNames = DefaultBuiltins
	}

	r := &Registry{
		modules:  make(map[string]*starlarkstruct.Module, len(moduleNames)),
		builtins: make(starlark.StringDict),
		denied:   make(map[string]bool),
		withheld: make(map[string]bool),
		bindings: make(starlark.StringDict),
	}

	for _, name := range moduleNames {
		mod, err := buildModule(name, opts.MaxElements)
		if err != nil {
			return nil, err
		}
		r.modules[name] = mod
	}

	allowed := make(map[string]bool, len(builtinNames))
	for _, name := range builtinNames {
		_, inUniverse := starlark.Universe[name]
		_, extra := extraBuiltins[name]
		if !inUniverse && !extra {
			return nil, fmt.Errorf("%w: unknown builtin %q", core.ErrConfiguration, name)
		}
		allowed[name] = true
	}

	for name, fn := range extraBuiltins {
		if allowed[name] {
			r.builtins[name] = fn
		}
	}
	if allowed["range"] {
		r.builtins["range"] = newRangeBuiltin(opts.MaxElements)
	}

	// Universe builtins outside the allowlist are shadowed, never removed:
	// starlark.Universe is process-wide state shared by every interpreter.
	for name := range starlark.Universe {
		if constants[name] || allowed[name] {
			continue
		}
		r.builtins[name] = deniedBuiltin(name)
		r.denied[name] = true
	}

	for _, name := range hostNames {
		r.withheld[name] = true
	}
	for _, name := range DefaultModules {
		if _, ok := r.modules[name]; !ok {
			r.withheld[name] = true
		}
	}
	for name := range extraBuiltins {
		if !allowed[name] {
			r.withheld[name] = true
		}
	}
	for name := range r.denied {
		r.withheld[name] = true
	}

	for name, fn := range r.builtins {
		r.bindings[name] = fn
	}
	for name, mod := range r.modules {
		r.bindings[name] = mod
	}
	r.bindings.Freeze()

	return r, nil
}

// Snapshot returns the name -> binding mapping to predeclare for one
// execution. The map is a fresh copy; the values are frozen and shared.
func (r *Registry) Snapshot() starlark.StringDict {
	out := make(starlark.StringDict, len(r.bindings))
	for k, v := range r.bindings {
		out[k] = v
	}
	return out
}

// Load implements the starlark.Thread Load hook. Only registry modules may
// be loaded; anything else fails with a CapabilityError.
func (r *Registry) Load(_ *starlark.Thread, module string) (starlark.StringDict, error) {
	mod, ok := r.modules[module]
	if !ok {
		return nil, &CapabilityError{Category: CapabilityModule, Name: module}
	}
	return mod.Members, nil
}

// Allowed reports whether name is a usable capability: a module or an
// allowlisted builtin.
func (r *Registry) Allowed(name string) bool {
	if _, ok := r.modules[name]; ok {
		return true
	}
	if r.denied[name] {
		return false
	}
	if _, ok := r.builtins[name]; ok {
		return true
	}
	_, universe := starlark.Universe[name]
	return universe
}

// Withheld reports whether name is a capability the registry knows of but
// does not grant: a host facility, an unlisted module or a builtin outside
// the allowlist. Other unbound names are plain mistakes in the code.
func (r *Registry) Withheld(name string) bool {
	return r.withheld[name]
}

// ModuleNames returns the exposed module names, sorted.
func (r *Registry) ModuleNames() []string {
	return sortedKeys(r.modules)
}

// ModuleMembers returns the member names of a module, sorted.
func (r *Registry) ModuleMembers(name string) []string {
	mod, ok := r.modules[name]
	if !ok {
		return nil
	}
	return sortedKeys(mod.Members)
}

// BuiltinNames returns the allowlisted primitive operations, sorted.
func (r *Registry) BuiltinNames() []string {
	var names []string
	for name := range starlark.Universe {
		if constants[name] || r.denied[name] {
			continue
		}
		names = append(names, name)
	}
	for name := range extraBuiltins {
		if _, ok := r.builtins[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// buildModule returns the named module. The standard library modules are
// package-level values with no mutable state; the local ones are frozen here.
func buildModule(name string, maxElements int) (*starlarkstruct.Module, error) {
	var mod *starlarkstruct.Module
	switch name {
	case ModuleMath:
		return starmath.Module, nil
	case ModuleTime:
		return startime.Module, nil
	case ModuleJSON:
		return starjson.Module, nil
	case ModuleFrame:
		mod = newFrameModule(maxElements)
	case ModuleNumeric:
		mod = newNumericModule(maxElements)
	case ModuleFinance:
		mod = newFinanceModule()
	case ModuleDates:
		mod = newDatesModule(maxElements)
	default:
		return nil, fmt.Errorf("%w: unknown module %q", core.ErrConfiguration, name)
	}
	mod.Freeze()
	return mod, nil
}

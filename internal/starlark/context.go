package starlark

import (
	"fmt"

	"go.starlark.net/starlark"
)

// Names bound in every execution namespace besides the registry snapshot.
const (
	ParametersName = "parameters"
	ResultName     = "result"
)

// Namespace is the predeclared environment of a single execution: the
// registry snapshot plus a private copy of the parameters and an empty
// result dict. A Namespace is never shared between executions.
type Namespace struct {
	predeclared starlark.StringDict
	result      *starlark.Dict
}

// NewNamespace builds a fresh namespace. Parameters are converted into new
// Starlark values, so code mutating them cannot reach the caller's map.
func NewNamespace(reg *Registry, params map[string]any) (*Namespace, error) {
	if params == nil {
		params = map[string]any{}
	}
	p, err := GoToStarlark(params)
	if err != nil {
		return nil, fmt.Errorf("convert parameters: %w", err)
	}

	ns := &Namespace{
		predeclared: reg.Snapshot(),
		result:      starlark.NewDict(0),
	}
	ns.predeclared[ParametersName] = p
	ns.predeclared[ResultName] = ns.result
	return ns, nil
}

// Predeclared returns the bindings to pass to the interpreter.
func (ns *Namespace) Predeclared() starlark.StringDict { return ns.predeclared }

// IsPredeclared reports whether name is bound in the namespace.
func (ns *Namespace) IsPredeclared(name string) bool {
	_, ok := ns.predeclared[name]
	return ok
}

// Result reads back the result binding after execution. A global named
// result, if the code assigned one, wins over the predeclared dict. None
// yields an empty map; any other non-dict value is an error.
func (ns *Namespace) Result(globals starlark.StringDict) (map[string]any, error) {
	var v starlark.Value = ns.result
	if g, ok := globals[ResultName]; ok {
		v = g
	}

	switch val := v.(type) {
	case starlark.NoneType:
		return map[string]any{}, nil
	case *starlark.Dict:
		return DictToGo(val)
	default:
		return nil, fmt.Errorf("result must be a dict, got %s", v.Type())
	}
}

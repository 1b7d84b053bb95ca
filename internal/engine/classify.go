package engine

import (
	"errors"
	"fmt"
	"strings"

	starctx "github.com/leapstack-labs/finmodel/internal/starlark"
	"github.com/leapstack-labs/finmodel/pkg/core"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// undefinedPrefix starts every resolver error for an unbound name.
const undefinedPrefix = "undefined: "

// classifyCompileError maps a parse or resolve failure to an error record.
// An unbound name the registry withholds is a capability violation; any
// other unbound name is a mistake in the code and reported as a parse error.
func (e *Engine) classifyCompileError(err error) *core.ErrorRecord {
	var list resolve.ErrorList
	if errors.As(err, &list) {
		for _, item := range list {
			if !strings.HasPrefix(item.Msg, undefinedPrefix) {
				continue
			}
			name, _, _ := strings.Cut(strings.TrimPrefix(item.Msg, undefinedPrefix), " ")
			if !e.registry.Withheld(name) {
				continue
			}
			capErr := &starctx.CapabilityError{Category: starctx.CapabilityName, Name: name}
			return &core.ErrorRecord{
				Kind:    core.ErrorKindCapability,
				Message: fmt.Sprintf("%s: %s", item.Pos, capErr.Error()),
			}
		}
		return &core.ErrorRecord{Kind: core.ErrorKindParse, Message: list.Error()}
	}

	var syn syntax.Error
	if errors.As(err, &syn) {
		return &core.ErrorRecord{Kind: core.ErrorKindParse, Message: syn.Error()}
	}
	return &core.ErrorRecord{Kind: core.ErrorKindParse, Message: err.Error()}
}

// classifyRunError maps an execution failure to an error record.
func (e *Engine) classifyRunError(err error, steps uint64) *core.ErrorRecord {
	rec := &core.ErrorRecord{Kind: core.ErrorKindRuntime, Message: err.Error()}

	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		rec.Message = evalErr.Msg
		rec.Trace = evalErr.Backtrace()
	}

	var capErr *starctx.CapabilityError
	switch {
	case errors.As(err, &capErr):
		rec.Kind = core.ErrorKindCapability
		rec.Message = capErr.Error()
	case steps >= e.maxSteps || errors.Is(err, starctx.ErrStepBudget):
		rec.Kind = core.ErrorKindTimeout
		rec.Message = fmt.Sprintf("execution exceeded the step budget of %d", e.maxSteps)
	}
	return rec
}

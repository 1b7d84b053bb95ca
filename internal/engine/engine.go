// Package engine executes model code in the sandboxed Starlark runtime.
// Every execution gets its own namespace, thread and console, runs under a
// wall-clock deadline and a step budget, and reports failures as data.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	starctx "github.com/leapstack-labs/finmodel/internal/starlark"
	"github.com/leapstack-labs/finmodel/pkg/core"
	"go.starlark.net/starlark"
	"golang.org/x/sync/semaphore"
)

// DefaultFilename names the code in positions and traces when the request
// does not.
const DefaultFilename = "model.star"

// Engine runs model code. It is safe for concurrent use.
//
// Each execution is bounded in time by a wall-clock deadline and a step
// budget that also covers iteration inside builtins. Memory is not bounded
// in-process: code can grow strings or lists geometrically within a small
// step budget. Run the engine under process-level isolation with a memory
// limit when executing untrusted code.
type Engine struct {
	registry       *starctx.Registry
	timeout        time.Duration
	maxSteps       uint64
	maxOutputBytes int
	sem            *semaphore.Weighted
	logger         *slog.Logger
}

// Config holds engine configuration. Limits have no implicit defaults;
// callers pass the values from the configuration layer.
type Config struct {
	// Registry is the capability allowlist exposed to executed code.
	Registry *starctx.Registry
	// Timeout is the wall-clock deadline of one execution.
	Timeout time.Duration
	// MaxSteps is the interpreter step budget of one execution.
	MaxSteps uint64
	// MaxConcurrent bounds how many executions run at once.
	MaxConcurrent int64
	// MaxOutputBytes caps captured console output. Zero means unbounded.
	MaxOutputBytes int
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Validate checks that every limit is set.
func (c Config) Validate() error {
	switch {
	case c.Registry == nil:
		return fmt.Errorf("%w: engine requires a capability registry", core.ErrConfiguration)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: engine timeout must be positive, got %s", core.ErrConfiguration, c.Timeout)
	case c.MaxSteps == 0:
		return fmt.Errorf("%w: engine max steps must be positive", core.ErrConfiguration)
	case c.MaxConcurrent <= 0:
		return fmt.Errorf("%w: engine max concurrent must be positive, got %d", core.ErrConfiguration, c.MaxConcurrent)
	case c.MaxOutputBytes < 0:
		return fmt.Errorf("%w: engine max output bytes must not be negative, got %d", core.ErrConfiguration, c.MaxOutputBytes)
	}
	return nil
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		registry:       cfg.Registry,
		timeout:        cfg.Timeout,
		maxSteps:       cfg.MaxSteps,
		maxOutputBytes: cfg.MaxOutputBytes,
		sem:            semaphore.NewWeighted(cfg.MaxConcurrent),
		logger:         logger,
	}, nil
}

// Registry returns the capability registry the engine exposes.
func (e *Engine) Registry() *starctx.Registry {
	return e.registry
}

// outcome is what the interpreter goroutine reports back.
type outcome struct {
	result map[string]any
	err    error
	steps  uint64
}

// Run executes req.Code with req.Parameters bound as parameters.
//
// Failures of the code itself (syntax, runtime, capability, deadline) are
// reported on the returned result. Only a malformed request returns an
// error, wrapping core.ErrContractViolation.
func (e *Engine) Run(ctx context.Context, req core.ExecutionRequest) (*core.ExecutionResult, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, fmt.Errorf("%w: code is empty", core.ErrContractViolation)
	}
	ns, err := starctx.NewNamespace(e.registry, req.Parameters)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrContractViolation, err)
	}
	filename := req.Filename
	if filename == "" {
		filename = DefaultFilename
	}

	start := time.Now()
	res := e.execute(ctx, filename, req.Code, ns)
	res.Duration = time.Since(start)

	attrs := []any{"filename", filename, "duration", res.Duration, "steps", res.Steps}
	if res.Error != nil {
		attrs = append(attrs, "error_kind", res.Error.Kind)
	}
	e.logger.Debug("execution finished", attrs...)
	return res, nil
}

func (e *Engine) execute(ctx context.Context, filename, code string, ns *starctx.Namespace) *core.ExecutionResult {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// Static validation happens before a slot is taken; nothing runs here.
	_, prog, err := starlark.SourceProgramOptions(starctx.FileOptions, filename, code, ns.IsPredeclared)
	if err != nil {
		return failure(e.classifyCompileError(err))
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return failure(timeoutRecord(ctx, "execution did not start before the deadline"))
	}

	console := starctx.NewConsole(e.maxOutputBytes)
	defer console.Close()

	thread := starctx.NewThread(starctx.ThreadOptions{
		Name:     filename,
		Console:  console,
		Registry: e.registry,
		MaxSteps: e.maxSteps,
		Done:     ctx.Done(),
	})

	// The slot is released by whichever happens first: the interpreter
	// returning or the deadline passing.
	release := sync.OnceFunc(func() { e.sem.Release(1) })

	done := make(chan outcome, 1)
	go func() {
		defer release()
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				out = outcome{err: fmt.Errorf("internal error: %v", r), steps: thread.ExecutionSteps()}
			}
			done <- out
		}()

		globals, err := prog.Init(thread, ns.Predeclared())
		out.steps = thread.ExecutionSteps()
		if err != nil {
			out.err = err
			return
		}
		out.result, out.err = ns.Result(globals)
	}()

	select {
	case out := <-done:
		res := &core.ExecutionResult{
			Result:  out.result,
			Console: console.Close(),
			Steps:   out.steps,
		}
		switch {
		case out.err != nil && ctx.Err() != nil:
			res.Result = nil
			res.Error = timeoutRecord(ctx, fmt.Sprintf("execution exceeded the %s deadline", e.timeout))
		case out.err != nil:
			res.Result = nil
			res.Error = e.classifyRunError(out.err, out.steps)
		}
		if res.Result == nil && res.Error == nil {
			res.Result = map[string]any{}
		}
		return res

	case <-ctx.Done():
		// The interpreter stops at its next step check or meter tick. The
		// slot is released now so a wedged execution cannot starve others.
		thread.Cancel(ctx.Err().Error())
		release()
		e.logger.Warn("execution abandoned at deadline", "filename", filename, "timeout", e.timeout)
		res := failure(timeoutRecord(ctx, fmt.Sprintf("execution exceeded the %s deadline", e.timeout)))
		res.Console = console.Close()
		return res
	}
}

func failure(rec *core.ErrorRecord) *core.ExecutionResult {
	return &core.ExecutionResult{Error: rec}
}

func timeoutRecord(ctx context.Context, msg string) *core.ErrorRecord {
	if errors.Is(ctx.Err(), context.Canceled) {
		msg = "execution cancelled by caller"
	}
	return &core.ErrorRecord{Kind: core.ErrorKindTimeout, Message: msg}
}

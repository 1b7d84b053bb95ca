package starlark

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func execWithThread(t *testing.T, reg *Registry, opts ThreadOptions, code string) error {
	t.Helper()
	ns, err := NewNamespace(reg, nil)
	require.NoError(t, err)
	opts.Name = "test"
	opts.Console = NewConsole(0)
	opts.Registry = reg
	thread := NewThread(opts)
	_, err = starlark.ExecFileOptions(FileOptions, thread, "test.star", code, ns.Predeclared())
	return err
}

func TestMeter_StepBudgetCoversBuiltins(t *testing.T) {
	reg, err := NewRegistry(RegistryOptions{MaxElements: 1 << 40})
	require.NoError(t, err)

	tests := []struct {
		name string
		code string
	}{
		{name: "sum", code: `x = sum(range(1 << 40))`},
		{name: "max", code: `x = max(range(1 << 40))`},
		{name: "all", code: `x = all(range(1, 1 << 40))`},
		{name: "comprehension", code: `x = [i for i in range(1 << 40)]`},
		{name: "numeric sum", code: `x = numeric.sum(range(1 << 40))`},
		{name: "npv", code: `x = finance.npv(0.1, range(1 << 40))`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			err := execWithThread(t, reg, ThreadOptions{MaxSteps: 10_000}, tt.code)
			require.Error(t, err)
			assert.Contains(t, err.Error(), ErrStepBudget.Error())
			assert.Less(t, time.Since(start), 5*time.Second)
		})
	}
}

func TestMeter_DoneStopsBuiltins(t *testing.T) {
	reg, err := NewRegistry(RegistryOptions{MaxElements: 1 << 40})
	require.NoError(t, err)

	done := make(chan struct{})
	close(done)

	start := time.Now()
	err = execWithThread(t, reg, ThreadOptions{Done: done}, `x = sum(range(1 << 40))`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrInterrupted.Error())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestMeter_Tick(t *testing.T) {
	thread := &starlark.Thread{}
	m := attachMeter(thread, 3, nil)
	require.Same(t, m, MeterOf(thread))

	assert.NoError(t, m.Tick())
	assert.NoError(t, m.Tick())
	assert.ErrorIs(t, m.Tick(), ErrStepBudget)
	assert.ErrorIs(t, m.Tick(), ErrStepBudget, "error is sticky")
	assert.ErrorIs(t, m.Err(), ErrStepBudget)

	var none *Meter
	assert.NoError(t, none.Tick())
	assert.Nil(t, MeterOf(&starlark.Thread{}))
}

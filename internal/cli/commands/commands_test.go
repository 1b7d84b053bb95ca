package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs a standalone command with args and returns stdout, stderr.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestNewRunCommand(t *testing.T) {
	cmd := NewRunCommand()

	assert.Equal(t, "run <file>", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")

	for _, flag := range []string{"params", "set", "watch"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestNewModelCommand(t *testing.T) {
	cmd := NewModelCommand()
	assert.Equal(t, "model", cmd.Use)

	subcommands := map[string][]string{
		"create":   {"name", "description", "type", "code-file", "public", "params", "set"},
		"list":     {"type", "limit", "offset"},
		"show":     nil,
		"update":   {"name", "description", "type", "code-file", "public", "message", "params", "set"},
		"delete":   nil,
		"run":      {"version", "params", "set"},
		"versions": nil,
		"version":  nil,
	}
	for name, flags := range subcommands {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		require.Equal(t, name, sub.Name())
		assert.NotEmpty(t, sub.Short, "%s: Short should not be empty", name)
		for _, flag := range flags {
			assert.NotNil(t, sub.Flags().Lookup(flag), "%s: flag %q should exist", name, flag)
		}
	}
}

func TestNewGenerateCommand(t *testing.T) {
	cmd := NewGenerateCommand()

	assert.Equal(t, "generate", cmd.Use)
	assert.Contains(t, cmd.Long, "cash_flow")
	for _, flag := range []string{"type", "prompt", "out", "save", "name", "public", "params", "set"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestRunCommand_Executes(t *testing.T) {
	path := writeFile(t, "sum.star", `
print("adding", parameters["a"], parameters["b"])
result = {"total": parameters["a"] + parameters["b"]}
`)

	out, _, err := execute(t, NewRunCommand(), path, "--set", "a=2", "--set", "b=3")
	require.NoError(t, err)
	assert.Contains(t, out, "adding 2 3")
	assert.Contains(t, out, "- **total**: 5")
	assert.Contains(t, out, "steps)")
}

func TestRunCommand_ParamsFile(t *testing.T) {
	params := writeFile(t, "params.yaml", "rate: 0.5\nbase: 10\n")
	path := writeFile(t, "scale.star", `result = {"scaled": parameters["base"] * parameters["rate"]}`)

	out, _, err := execute(t, NewRunCommand(), path, "--params", params, "--set", "base=20")
	require.NoError(t, err)
	assert.Contains(t, out, "- **scaled**: 10")
}

func TestRunCommand_Table(t *testing.T) {
	path := writeFile(t, "frame.star", `
df = frame.DataFrame({"date": ["2023-01-31", "2023-02-28"], "revenue": [1.5, 2.5]})
result = {"forecast_data": df}
`)

	out, _, err := execute(t, NewRunCommand(), path)
	require.NoError(t, err)
	lower := strings.ToLower(out)
	assert.Contains(t, lower, "forecast_data")
	assert.Contains(t, lower, "revenue")
	assert.Contains(t, out, "2023-02-28")
	assert.Contains(t, out, "2.5")
}

func TestRunCommand_Failure(t *testing.T) {
	tests := []struct {
		name string
		code string
		kind string
	}{
		{name: "runtime", code: "result = {'x': 1 // 0}", kind: "RuntimeFailure"},
		{name: "parse", code: "result = {", kind: "ParseError"},
		{name: "capability", code: "load('os', 'system')\nresult = {}", kind: "CapabilityViolation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "bad.star", tt.code)
			_, errOut, err := execute(t, NewRunCommand(), path)
			require.ErrorIs(t, err, ErrExecutionFailed)
			assert.Contains(t, err.Error(), tt.kind)
			assert.Contains(t, errOut, tt.kind)
		})
	}
}

func TestRunCommand_Stdin(t *testing.T) {
	cmd := NewRunCommand()
	cmd.SetIn(strings.NewReader(`result = {"ok": True}`))

	out, _, err := execute(t, cmd, "-")
	require.NoError(t, err)
	assert.Contains(t, out, "- **ok**: true")
}

func TestRunCommand_Errors(t *testing.T) {
	_, _, err := execute(t, NewRunCommand(), filepath.Join(t.TempDir(), "missing.star"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")

	_, _, err = execute(t, NewRunCommand(), "-", "--watch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--watch")

	path := writeFile(t, "ok.star", "result = {}")
	_, _, err = execute(t, NewRunCommand(), path, "--set", "novalue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key=value")
}

func TestCapabilitiesCommand(t *testing.T) {
	out, _, err := execute(t, NewCapabilitiesCommand())
	require.NoError(t, err)
	for _, want := range []string{"finance", "numeric", "dates", "frame", "timeout", "max_steps"} {
		assert.Contains(t, out, want)
	}
}

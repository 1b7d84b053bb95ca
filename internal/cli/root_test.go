package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/leapstack-labs/finmodel/internal/cli/config"
	"github.com/leapstack-labs/finmodel/internal/cli/testutil"
	"github.com/leapstack-labs/finmodel/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sumModel = `
total = 0
for i in range(parameters["n"]):
    total += parameters["step"]
result = {"total": total}
`

// run executes the root command against a state database as user.
func run(t *testing.T, state, user string, args ...string) (string, string, error) {
	t.Helper()
	t.Cleanup(config.ResetConfig)

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCmd()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{"--state", state, "--user", user}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func decode[T any](t *testing.T, data string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(data), &v), data)
	return v
}

type execOut struct {
	Parameters map[string]any `json:"parameters"`
	Execution  struct {
		Result map[string]any `json:"result"`
		Error  *struct {
			Type string `json:"type"`
		} `json:"error"`
	} `json:"execution"`
}

func TestModelLifecycle(t *testing.T) {
	state, dir := testutil.SetupTestState(t)
	code := testutil.WriteFile(t, dir, "sum.star", sumModel)

	out, _, err := run(t, state, "alice", "model", "create", "-o", "json",
		"--name", "Sum", "--code-file", code, "--set", "n=3", "--set", "step=2")
	require.NoError(t, err)
	created := decode[map[string]any](t, out)
	id := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "alice", created["owner_id"])
	assert.Equal(t, "custom", created["model_type"])

	out, _, err = run(t, state, "alice", "model", "run", id, "-o", "json", "--set", "n=5")
	require.NoError(t, err)
	res := decode[execOut](t, out)
	assert.Nil(t, res.Execution.Error)
	assert.Equal(t, float64(10), res.Execution.Result["total"])

	out, _, err = run(t, state, "alice", "model", "update", id, "-o", "json", "--set", "n=4", "-m", "four steps")
	require.NoError(t, err)
	updated := decode[map[string]any](t, out)
	version := updated["new_version"].(map[string]any)
	assert.Equal(t, float64(2), version["version_number"])
	assert.Equal(t, "four steps", version["description"])
	assert.Equal(t, map[string]any{"n": float64(4), "step": float64(2)}, updated["model"].(map[string]any)["parameters"])

	out, _, err = run(t, state, "alice", "model", "versions", id, "-o", "json")
	require.NoError(t, err)
	assert.Len(t, decode[[]map[string]any](t, out), 2)

	out, _, err = run(t, state, "alice", "model", "run", id, "--version", "1", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, float64(6), decode[execOut](t, out).Execution.Result["total"])

	out, _, err = run(t, state, "alice", "model", "run", id, "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, float64(8), decode[execOut](t, out).Execution.Result["total"])

	_, _, err = run(t, state, "bob", "model", "show", id)
	assert.ErrorIs(t, err, core.ErrForbidden)

	out, _, err = run(t, state, "bob", "model", "list", "-o", "json")
	require.NoError(t, err)
	assert.Empty(t, decode[[]map[string]any](t, out))

	_, _, err = run(t, state, "alice", "model", "update", id, "--public")
	require.NoError(t, err)

	out, _, err = run(t, state, "bob", "model", "run", id, "-o", "json")
	require.NoError(t, err, "public models run for everyone")
	assert.Equal(t, float64(8), decode[execOut](t, out).Execution.Result["total"])

	_, _, err = run(t, state, "bob", "model", "update", id, "--set", "n=1")
	assert.ErrorIs(t, err, core.ErrForbidden)
	_, _, err = run(t, state, "bob", "model", "delete", id)
	assert.ErrorIs(t, err, core.ErrForbidden)

	_, _, err = run(t, state, "alice", "model", "delete", id)
	require.NoError(t, err)
	_, _, err = run(t, state, "alice", "model", "show", id)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestModelUpdate_NoChange(t *testing.T) {
	state, dir := testutil.SetupTestState(t)
	code := testutil.WriteFile(t, dir, "sum.star", sumModel)

	out, _, err := run(t, state, "alice", "model", "create", "-o", "json",
		"--name", "Sum", "--code-file", code, "--set", "n=1", "--set", "step=1")
	require.NoError(t, err)
	id := decode[map[string]any](t, out)["id"].(string)

	out, _, err = run(t, state, "alice", "model", "update", id, "--code-file", code, "--name", "Renamed")
	require.NoError(t, err)
	assert.Contains(t, out, "no new version")
	assert.Contains(t, out, "# Renamed")

	out, _, err = run(t, state, "alice", "model", "versions", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Versions (1)")
	testutil.AssertNoANSI(t, out)
	testutil.AssertValidMarkdown(t, out)
}

func TestGenerate(t *testing.T) {
	state, dir := testutil.SetupTestState(t)

	out, _, err := run(t, state, "alice", "generate", "--type", "revenue",
		"--set", "periods=3", "--set", "churn_rate=0", "--save", "--name", "Revenue", "-o", "json")
	require.NoError(t, err)
	gen := decode[map[string]any](t, out)
	assert.Equal(t, "revenue", gen["model_type"])
	id, _ := gen["model_id"].(string)
	require.NotEmpty(t, id)

	out, _, err = run(t, state, "alice", "model", "run", id, "-o", "json")
	require.NoError(t, err)
	res := decode[execOut](t, out)
	require.Nil(t, res.Execution.Error)
	assert.Len(t, res.Execution.Result["forecast_data"], 3)

	path := dir + "/expense.star"
	out, _, err = run(t, state, "alice", "generate", "--type", "expense", "--out", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")

	out, _, err = run(t, state, "alice", "run", path, "-o", "json")
	require.NoError(t, err)
	assert.Len(t, decode[execOut](t, out).Execution.Result["forecast_data"], 36)

	_, _, err = run(t, state, "alice", "generate", "--save")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestRootFlagsReachEngine(t *testing.T) {
	state, dir := testutil.SetupTestState(t)
	code := testutil.WriteFile(t, dir, "loop.star", `
n = 0
for i in range(1000000):
    n += 1
result = {"n": n}
`)

	out, _, err := run(t, state, "alice", "run", code, "--max-steps", "1000", "-o", "json")
	require.Error(t, err)
	assert.Equal(t, "TimeoutError", decode[execOut](t, out).Execution.Error.Type)

	out, _, err = run(t, state, "alice", "capabilities", "--timeout", "250ms", "-o", "json")
	require.NoError(t, err)
	caps := decode[map[string]any](t, out)
	assert.Equal(t, "250ms", caps["limits"].(map[string]any)["timeout"])
}

func TestInvalidConfig(t *testing.T) {
	state, _ := testutil.SetupTestState(t)

	_, _, err := run(t, state, "alice", "capabilities", "--output", "yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestVersionCommand(t *testing.T) {
	state, _ := testutil.SetupTestState(t)

	out, _, err := run(t, state, "alice", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "finmodel v"+Version)
}

func TestCompletionCommand(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			out, _, err := run(t, t.TempDir()+"/state.db", "alice", "completion", shell)
			require.NoError(t, err)
			assert.Contains(t, out, "finmodel")
		})
	}
}

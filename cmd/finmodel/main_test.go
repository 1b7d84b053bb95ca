// Package main provides tests for the finmodel CLI.
package main

import (
	"bytes"
	"testing"

	"github.com/leapstack-labs/finmodel/internal/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelpCommand(t *testing.T) {
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	for _, expected := range []string{"run", "model", "generate", "capabilities", "version", "completion"} {
		assert.Contains(t, output, expected)
	}
}

func TestVersionFlag(t *testing.T) {
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "finmodel "+cli.Version)
	assert.Contains(t, buf.String(), "Starlark")
}

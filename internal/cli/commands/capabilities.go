package commands

import (
	"strings"

	"github.com/leapstack-labs/finmodel/internal/cli/output"
	"github.com/spf13/cobra"
)

// capabilitiesJSON lists what executed code may use.
type capabilitiesJSON struct {
	Modules  map[string][]string `json:"modules"`
	Builtins []string            `json:"builtins"`
	Limits   limitsJSON          `json:"limits"`
}

type limitsJSON struct {
	Timeout        string `json:"timeout"`
	MaxSteps       uint64 `json:"max_steps"`
	MaxConcurrent  int64  `json:"max_concurrent"`
	MaxOutputBytes int    `json:"max_output_bytes"`
	MaxElements    int    `json:"max_elements"`
}

// NewCapabilitiesCommand creates the capabilities command.
func NewCapabilitiesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "capabilities",
		Aliases: []string{"caps"},
		Short:   "Show the modules, builtins and limits available to model code",
		Long: `List the capability allowlist of the sandbox: the modules predeclared for
model code with their members, the builtin functions, and the execution
limits in effect. Restrict the allowlist with the "capabilities" section of
finmodel.yaml.`,
		Example: `  finmodel capabilities
  finmodel capabilities --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCapabilities(cmd)
		},
	}
}

func runCapabilities(cmd *cobra.Command) error {
	cmdCtx, err := NewCommandContextWithoutStore(cmd)
	if err != nil {
		return err
	}

	reg := cmdCtx.Engine.Registry()
	ec := cmdCtx.Cfg.Engine
	caps := capabilitiesJSON{
		Modules:  make(map[string][]string),
		Builtins: reg.BuiltinNames(),
		Limits: limitsJSON{
			Timeout:        ec.Timeout.String(),
			MaxSteps:       ec.MaxSteps,
			MaxConcurrent:  ec.MaxConcurrent,
			MaxOutputBytes: ec.MaxOutputBytes,
			MaxElements:    ec.MaxElements,
		},
	}
	for _, name := range reg.ModuleNames() {
		caps.Modules[name] = reg.ModuleMembers(name)
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(caps)
	}

	r.Header(1, "Modules")
	rows := make([][]any, 0, len(caps.Modules))
	for _, name := range reg.ModuleNames() {
		rows = append(rows, []any{name, strings.Join(caps.Modules[name], ", ")})
	}
	r.Table([]string{"Module", "Members"}, rows)
	r.Println("")

	r.Header(1, "Builtins")
	r.Println(strings.Join(caps.Builtins, ", "))
	r.Println("")

	r.Header(1, "Limits")
	r.KeyValue([][2]string{
		{"timeout", caps.Limits.Timeout},
		{"max_steps", formatValue(int64(caps.Limits.MaxSteps))},
		{"max_concurrent", formatValue(caps.Limits.MaxConcurrent)},
		{"max_output_bytes", formatValue(int64(caps.Limits.MaxOutputBytes))},
		{"max_elements", formatValue(int64(caps.Limits.MaxElements))},
	})
	return nil
}

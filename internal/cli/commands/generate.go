package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/leapstack-labs/finmodel/internal/cli/output"
	"github.com/leapstack-labs/finmodel/internal/codegen"
	"github.com/leapstack-labs/finmodel/pkg/core"
	"github.com/spf13/cobra"
)

// GenerateOptions holds options for the generate command.
type GenerateOptions struct {
	Type   string
	Prompt string
	Out    string
	Save   bool
	Name   string
	Public bool
	Params ParamOptions
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand() *cobra.Command {
	opts := &GenerateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate model code from a template",
		Long: fmt.Sprintf(`Generate starter code and default parameters for a model type.

Known types: %s. Any other type produces the custom template.
The prompt is kept as a comment at the top of the code. The generated code
is printed, written to a file (--out) or stored as a new model (--save).`,
			strings.Join(codegen.Types(), ", ")),
		Example: `  # Print a revenue model
  finmodel generate --type revenue

  # Save an expense model with adjusted defaults
  finmodel generate --type expense --set inflation_rate=0.04 --save --name "Opex 2025"

  # Write the code to a file for editing
  finmodel generate --type cash_flow --prompt "Runway for seed round" --out runway.star`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Type, "type", "t", core.ModelTypeCustom, "Model type")
	cmd.Flags().StringVar(&opts.Prompt, "prompt", "", "Description of the model")
	cmd.Flags().StringVar(&opts.Out, "out", "", "Write the generated code to this file")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "Store the generated model")
	cmd.Flags().StringVarP(&opts.Name, "name", "n", "", "Name of the stored model (with --save)")
	cmd.Flags().BoolVar(&opts.Public, "public", false, "Make the stored model public (with --save)")
	opts.Params.addFlags(cmd)

	return cmd
}

func runGenerate(cmd *cobra.Command, opts *GenerateOptions) error {
	if opts.Save && strings.TrimSpace(opts.Name) == "" {
		return fmt.Errorf("%w: --save requires --name", core.ErrInvalidInput)
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	params, err := opts.Params.Load()
	if err != nil {
		return err
	}

	gen, err := cmdCtx.Service.Generate(cmd.Context(), core.GenerateRequest{
		ModelType:  opts.Type,
		Prompt:     opts.Prompt,
		Parameters: params,
	})
	if err != nil {
		return err
	}

	if opts.Out != "" {
		if err := os.WriteFile(opts.Out, []byte(gen.Code), 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", opts.Out, err)
		}
	}

	var saved *core.Model
	if opts.Save {
		saved, err = cmdCtx.Service.Create(cmd.Context(), cmdCtx.Cfg.User, &core.Model{
			Name:        opts.Name,
			Description: opts.Prompt,
			ModelType:   gen.ModelType,
			Code:        gen.Code,
			Parameters:  gen.Parameters,
			IsPublic:    opts.Public,
		})
		if err != nil {
			return err
		}
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		out := struct {
			*core.GeneratedModel
			ModelID string `json:"model_id,omitempty"`
		}{GeneratedModel: gen}
		if saved != nil {
			out.ModelID = saved.ID
		}
		return r.JSON(out)
	}

	if opts.Out != "" {
		r.Success(fmt.Sprintf("Wrote %s", opts.Out))
	}
	if saved != nil {
		r.Success(fmt.Sprintf("Created model %s", saved.ID))
		return nil
	}
	if opts.Out != "" {
		return nil
	}

	r.Header(1, fmt.Sprintf("Generated %s model", gen.ModelType))
	renderSource(r, gen.Parameters, gen.Code)
	return nil
}

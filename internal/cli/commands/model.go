package commands

import (
	"fmt"
	"strconv"

	"github.com/leapstack-labs/finmodel/internal/cli/output"
	"github.com/leapstack-labs/finmodel/internal/models"
	"github.com/leapstack-labs/finmodel/pkg/core"
	"github.com/spf13/cobra"
)

// NewModelCommand creates the model command and its subcommands.
func NewModelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "model",
		Aliases: []string{"models"},
		Short:   "Manage stored models and their versions",
		Long: `Create, inspect, update, run and delete stored models.

Every change to a model's code or parameters records a new version. Models
are private to their owner unless marked public; public models can be read
and run by anyone, but only the owner may change or delete them. The acting
user comes from the "user" setting (--user, FINMODEL_USER).`,
	}

	cmd.AddCommand(
		newModelCreateCommand(),
		newModelListCommand(),
		newModelShowCommand(),
		newModelUpdateCommand(),
		newModelDeleteCommand(),
		newModelRunCommand(),
		newModelVersionsCommand(),
		newModelVersionCommand(),
	)
	return cmd
}

// ModelCreateOptions holds options for model create.
type ModelCreateOptions struct {
	Name        string
	Description string
	Type        string
	CodeFile    string
	Public      bool
	Params      ParamOptions
}

func newModelCreateCommand() *cobra.Command {
	opts := &ModelCreateOptions{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Store a new model",
		Example: `  # Create a model from a code file and parameters
  finmodel model create --name "SaaS revenue" --type revenue \
    --code-file revenue.star --params revenue.yaml

  # Create a public model
  finmodel model create --name Costs --code-file costs.star --public`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runModelCreate(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Name, "name", "n", "", "Model name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "Model description")
	cmd.Flags().StringVarP(&opts.Type, "type", "t", core.ModelTypeCustom, "Model type (revenue, expense, cash_flow, custom)")
	cmd.Flags().StringVarP(&opts.CodeFile, "code-file", "f", "", "File with the model code (- for stdin)")
	cmd.Flags().BoolVar(&opts.Public, "public", false, "Make the model readable by everyone")
	opts.Params.addFlags(cmd)
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("code-file")

	return cmd
}

func runModelCreate(cmd *cobra.Command, opts *ModelCreateOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	code, err := readCode(cmd.InOrStdin(), opts.CodeFile)
	if err != nil {
		return err
	}
	params, err := opts.Params.Load()
	if err != nil {
		return err
	}

	m, err := cmdCtx.Service.Create(cmd.Context(), cmdCtx.Cfg.User, &core.Model{
		Name:        opts.Name,
		Description: opts.Description,
		ModelType:   opts.Type,
		Code:        code,
		Parameters:  params,
		IsPublic:    opts.Public,
	})
	if err != nil {
		return err
	}

	if cmdCtx.Renderer.EffectiveMode() != output.ModeJSON {
		cmdCtx.Renderer.Success(fmt.Sprintf("Created model %s", m.ID))
	}
	return renderModel(cmdCtx.Renderer, m, nil)
}

// ModelListOptions holds options for model list.
type ModelListOptions struct {
	Type   string
	Limit  int
	Offset int
}

func newModelListCommand() *cobra.Command {
	opts := &ModelListOptions{}

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List your models and public models",
		Example: `  finmodel model list
  finmodel model list --type revenue --limit 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runModelList(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "Only list models of this type")
	cmd.Flags().IntVar(&opts.Limit, "limit", models.DefaultListLimit, "Maximum number of models")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of models to skip")

	return cmd
}

func runModelList(cmd *cobra.Command, opts *ModelListOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	list, err := cmdCtx.Service.List(cmd.Context(), cmdCtx.Cfg.User, core.ModelFilter{
		ModelType: opts.Type,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	})
	if err != nil {
		return err
	}
	return renderModels(cmdCtx.Renderer, list)
}

func newModelShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "show <id>",
		Aliases: []string{"get"},
		Short:   "Show a model with its current code and parameters",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			m, err := cmdCtx.Service.Get(cmd.Context(), cmdCtx.Cfg.User, args[0])
			if err != nil {
				return err
			}
			return renderModel(cmdCtx.Renderer, m, nil)
		},
	}
}

// ModelUpdateOptions holds options for model update.
type ModelUpdateOptions struct {
	Name        string
	Description string
	Type        string
	CodeFile    string
	Public      bool
	Message     string
	Params      ParamOptions
}

func newModelUpdateCommand() *cobra.Command {
	opts := &ModelUpdateOptions{}

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a model, recording a version when code or parameters change",
		Long: `Apply a partial update to a model you own.

Only the flags you pass are changed. --params replaces the stored
parameters; --set alone changes individual keys of the stored parameters.
A new version is recorded only when the code or the parameters differ
from the latest version.`,
		Example: `  # New code with a version message
  finmodel model update 3f2a... --code-file revenue.star -m "add churn"

  # Change one parameter
  finmodel model update 3f2a... --set churn_rate=0.03

  # Make a model private again
  finmodel model update 3f2a... --public=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModelUpdate(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Name, "name", "n", "", "New model name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "New description")
	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "New model type")
	cmd.Flags().StringVarP(&opts.CodeFile, "code-file", "f", "", "File with the new code (- for stdin)")
	cmd.Flags().BoolVar(&opts.Public, "public", false, "Make the model readable by everyone")
	cmd.Flags().StringVarP(&opts.Message, "message", "m", "", "Description of the new version")
	opts.Params.addFlags(cmd)

	return cmd
}

func runModelUpdate(cmd *cobra.Command, id string, opts *ModelUpdateOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	upd, err := buildUpdate(cmd, opts)
	if err != nil {
		return err
	}

	if len(opts.Params.Set) > 0 && opts.Params.File == "" {
		current, err := cmdCtx.Service.Get(cmd.Context(), cmdCtx.Cfg.User, id)
		if err != nil {
			return err
		}
		upd.Parameters = core.MergeParameters(current.Parameters, upd.Parameters)
	}

	m, v, err := cmdCtx.Service.Update(cmd.Context(), cmdCtx.Cfg.User, id, upd)
	if err != nil {
		return err
	}
	if v == nil && cmdCtx.Renderer.EffectiveMode() != output.ModeJSON {
		cmdCtx.Renderer.Muted("Code and parameters unchanged; no new version")
	}
	return renderModel(cmdCtx.Renderer, m, v)
}

// buildUpdate turns the changed flags into a partial update.
func buildUpdate(cmd *cobra.Command, opts *ModelUpdateOptions) (core.ModelUpdate, error) {
	flags := cmd.Flags()
	upd := core.ModelUpdate{VersionDescription: opts.Message}

	if flags.Changed("name") {
		upd.Name = &opts.Name
	}
	if flags.Changed("description") {
		upd.Description = &opts.Description
	}
	if flags.Changed("type") {
		upd.ModelType = &opts.Type
	}
	if flags.Changed("public") {
		upd.IsPublic = &opts.Public
	}
	if flags.Changed("code-file") {
		code, err := readCode(cmd.InOrStdin(), opts.CodeFile)
		if err != nil {
			return upd, err
		}
		upd.Code = &code
	}

	params, err := opts.Params.Load()
	if err != nil {
		return upd, err
	}
	upd.Parameters = params
	return upd, nil
}

func newModelDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a model and all of its versions",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := cmdCtx.Service.Delete(cmd.Context(), cmdCtx.Cfg.User, args[0]); err != nil {
				return err
			}
			if cmdCtx.Renderer.EffectiveMode() == output.ModeJSON {
				return cmdCtx.Renderer.JSON(map[string]string{"deleted": args[0]})
			}
			cmdCtx.Renderer.Success(fmt.Sprintf("Deleted model %s", args[0]))
			return nil
		},
	}
}

// ModelRunOptions holds options for model run.
type ModelRunOptions struct {
	Version int
	Params  ParamOptions
}

func newModelRunCommand() *cobra.Command {
	opts := &ModelRunOptions{}

	cmd := &cobra.Command{
		Use:   "run <id>",
		Short: "Execute a stored model",
		Long: `Execute a stored model's current code, or one of its versions.

--params and --set override the stored parameters for this run only;
nothing is written back.`,
		Example: `  finmodel model run 3f2a...
  finmodel model run 3f2a... --set periods=12
  finmodel model run 3f2a... --version 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModelRun(cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVar(&opts.Version, "version", 0, "Run this version instead of the current code")
	opts.Params.addFlags(cmd)

	return cmd
}

func runModelRun(cmd *cobra.Command, id string, opts *ModelRunOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	overrides, err := opts.Params.Load()
	if err != nil {
		return err
	}

	var out *models.RunOutput
	if opts.Version > 0 {
		out, err = cmdCtx.Service.RunVersion(cmd.Context(), cmdCtx.Cfg.User, id, opts.Version, overrides)
	} else {
		out, err = cmdCtx.Service.Run(cmd.Context(), cmdCtx.Cfg.User, id, overrides)
	}
	if err != nil {
		return err
	}

	return renderExecution(cmdCtx.Renderer, executionJSON{
		ModelID:    out.Model.ID,
		Version:    opts.Version,
		Parameters: out.Parameters,
		Execution:  out.Execution,
	})
}

func newModelVersionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "versions <id>",
		Aliases: []string{"history"},
		Short:   "List a model's versions",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			list, err := cmdCtx.Service.ListVersions(cmd.Context(), cmdCtx.Cfg.User, args[0])
			if err != nil {
				return err
			}
			return renderVersions(cmdCtx.Renderer, list)
		},
	}
}

func newModelVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version <id> <number>",
		Short: "Show one version of a model",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := strconv.Atoi(args[1])
			if err != nil || number < 1 {
				return fmt.Errorf("%w: version must be a positive number, got %q", core.ErrInvalidInput, args[1])
			}

			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			v, err := cmdCtx.Service.GetVersion(cmd.Context(), cmdCtx.Cfg.User, args[0], number)
			if err != nil {
				return err
			}
			return renderVersion(cmdCtx.Renderer, v)
		},
	}
}

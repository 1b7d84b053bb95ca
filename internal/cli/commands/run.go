package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/finmodel/pkg/core"
	"github.com/spf13/cobra"
)

const watchDebounce = 100 * time.Millisecond

// RunOptions holds options for the run command.
type RunOptions struct {
	Params ParamOptions
	Watch  bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a model file in the sandbox",
		Long: `Execute Starlark model code under the configured limits and print its result.

The code reads its inputs from the predeclared "parameters" mapping and
assigns its output to "result". Parameters come from a YAML or JSON file
(--params) and individual --set assignments, which take precedence.
Use "-" to read the code from stdin.`,
		Example: `  # Run a model file
  finmodel run revenue.star

  # Run with parameters from a file and an override
  finmodel run revenue.star --params params.yaml --set periods=12

  # Re-run whenever the file changes
  finmodel run revenue.star --watch

  # JSON output for scripting
  finmodel run revenue.star --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0], opts)
		},
	}

	opts.Params.addFlags(cmd)
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Re-run when the file changes")

	return cmd
}

func runRun(cmd *cobra.Command, path string, opts *RunOptions) error {
	if opts.Watch && path == "-" {
		return fmt.Errorf("%w: --watch needs a file, not stdin", core.ErrInvalidInput)
	}

	cmdCtx, err := NewCommandContextWithoutStore(cmd)
	if err != nil {
		return err
	}

	params, err := opts.Params.Load()
	if err != nil {
		return err
	}

	execute := func() error {
		code, err := readCode(cmd.InOrStdin(), path)
		if err != nil {
			return err
		}
		res, err := cmdCtx.Engine.Run(cmd.Context(), core.ExecutionRequest{
			Code:       code,
			Parameters: params,
			Filename:   filepath.Base(path),
		})
		if err != nil {
			return err
		}
		return renderExecution(cmdCtx.Renderer, executionJSON{Parameters: params, Execution: res})
	}

	if !opts.Watch {
		return execute()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Editors often replace files on save, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	report := func() {
		if err := execute(); err != nil && !errors.Is(err, ErrExecutionFailed) {
			cmdCtx.Renderer.Error(err.Error())
		}
		cmdCtx.Renderer.Muted(fmt.Sprintf("Watching %s (Ctrl+C to stop)", path))
	}

	report()
	return watchLoop(cmd.Context(), watcher, path, report)
}

// watchLoop calls onChange once per burst of write or create events on
// path until ctx is done.
func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string, onChange func()) error {
	target := filepath.Clean(path)
	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			timer.Reset(watchDebounce)
		case <-timer.C:
			onChange()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

func readCode(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

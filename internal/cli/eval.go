package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/parimoosavi/snaps-monorepo/internal/eval"
	"github.com/parimoosavi/snaps-monorepo/internal/logging"
	"github.com/parimoosavi/snaps-monorepo/internal/project"
)

type evalOptions struct {
	bundle  string
	timeout time.Duration
}

func newEvalCommand() *cobra.Command {
	opts := &evalOptions{}

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Smoke-test a built bundle",
		Long: `Eval loads the built bundle in a node child process with stubbed snap
globals to catch load-time failures, and scans it for dynamic-code
constructs the install-time sandbox would reject.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEval(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.bundle, "bundle", "b", filepath.Join("dist", project.DefaultOutfileName), "bundle file to evaluate")
	f.DurationVar(&opts.timeout, "timeout", eval.DefaultTimeout, "node process timeout")

	return cmd
}

func runEval(cmd *cobra.Command, opts *evalOptions) error {
	if err := project.ValidateFilePath(opts.bundle); err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	err := eval.Evaluate(cmd.Context(), opts.bundle, eval.Options{
		Timeout: opts.timeout,
		Logger:  logging.FromContext(cmd.Context()),
	})
	if err != nil {
		return fmt.Errorf("evaluating %s: %w", opts.bundle, err)
	}

	fmt.Fprintln(cmd.ErrOrStderr(), color.GreenString("Eval success: %s", opts.bundle))

	return nil
}

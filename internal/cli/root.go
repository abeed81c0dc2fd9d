// Package cli implements the cobra command tree for snapcli.
package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/parimoosavi/snaps-monorepo/internal/config"
	"github.com/parimoosavi/snaps-monorepo/internal/logging"
)

// ExitError wraps an error with a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}

	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Execute builds the command tree, runs it, and returns the exit code.
func Execute() int {
	cmd := NewRootCommand()

	if err := cmd.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}

		return 1
	}

	return 0
}

// NewRootCommand constructs the top-level cobra.Command with all
// subcommands attached.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "snapcli",
		Short: "Build, validate, and serve snap projects",
		Long: `snapcli is a build tool for snap projects: JavaScript plugin packages
defined by an entry source file, a snap.manifest.json, and a package.json.

It bundles the entry file and its relative imports into a single artifact,
validates the manifest against the artifact and package metadata, smoke-tests
the artifact, and serves the project locally during development. The watch
command keeps all of that running on every source change.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, cfgFile)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			logger := logging.Setup(cfg)

			ctx := cmd.Context()
			ctx = config.NewContext(ctx, cfg)
			ctx = logging.NewContext(ctx, logger)
			cmd.SetContext(ctx)

			logger.Debug("configuration loaded",
				slog.String("logLevel", cfg.LogLevel),
				slog.String("logFormat", cfg.LogFormat),
			)

			return nil
		},
	}

	// Global persistent flags.
	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: .snapcli.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text, json")
	pf.Bool("no-color", false, "disable colored output")
	pf.BoolP("quiet", "q", false, "suppress non-essential output")

	// Flag parsing errors return exit code 2.
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: 2, Err: err}
	})

	// Register subcommands.
	cmd.AddCommand(
		newVersionCommand(),
		newBuildCommand(),
		newWatchCommand(),
		newManifestCommand(),
		newEvalCommand(),
		newServeCommand(),
		newCompletionCommand(),
	)

	return cmd
}

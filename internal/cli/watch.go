package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/parimoosavi/snaps-monorepo/internal/logging"
	"github.com/parimoosavi/snaps-monorepo/internal/server"
	"github.com/parimoosavi/snaps-monorepo/internal/watch"
)

type watchOptions struct {
	buildOptions

	serve    bool
	port     int
	debounce time.Duration
}

func newWatchCommand() *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild on every source change",
		Long: `Watch runs an initial build and then rebuilds whenever a file under the
entry file's directory tree changes. Build failures are reported per run and
never end the session; the next change triggers a fresh attempt.

With --serve, a local development server for the project directory starts
after the initial build.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, opts)
		},
	}

	registerBuildFlags(cmd, &opts.buildOptions)

	f := cmd.Flags()
	f.BoolVar(&opts.serve, "serve", false, "serve the project directory while watching")
	f.IntVarP(&opts.port, "port", "p", server.DefaultPort, "dev server port")
	f.DurationVar(&opts.debounce, "debounce", 500*time.Millisecond, "quiet period before a change triggers a rebuild")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *watchOptions) error {
	logger := logging.FromContext(cmd.Context())

	p, err := newPipeline(&opts.buildOptions, cmd.ErrOrStderr(), logger)
	if err != nil {
		return err
	}

	watchOpts := watch.DefaultOptions()
	watchOpts.SourcePath = opts.src
	watchOpts.OutDir = opts.dist
	watchOpts.Debounce = opts.debounce
	watchOpts.Logger = logger
	watchOpts.Out = cmd.ErrOrStderr()

	if opts.serve {
		srv := server.New(server.Options{
			Root:   ".",
			Port:   opts.port,
			Logger: logger,
		})

		watchOpts.Serve = func(ctx context.Context) error {
			if err := srv.Start(ctx); err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Serving on http://%s\n", srv.Addr())

			return nil
		}
	}

	runFn := func(ctx context.Context, _ string) error {
		return p.Run(ctx)
	}

	if err := watch.Run(cmd.Context(), watchOpts, runFn); err != nil {
		return err
	}

	return nil
}

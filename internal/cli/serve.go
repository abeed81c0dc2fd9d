package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parimoosavi/snaps-monorepo/internal/logging"
	"github.com/parimoosavi/snaps-monorepo/internal/project"
	"github.com/parimoosavi/snaps-monorepo/internal/server"
)

type serveOptions struct {
	root string
	port int
}

func newServeCommand() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the project directory locally",
		Long: `Serve exposes the project directory over HTTP for local development, with
caching disabled and cross-origin requests allowed so a connecting client
always fetches the latest build. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.root, "root", "r", ".", "directory to serve")
	f.IntVarP(&opts.port, "port", "p", server.DefaultPort, "port to listen on")

	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	if err := project.ValidateDirPath(opts.root, false); err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	srv := server.New(server.Options{
		Root:   opts.root,
		Port:   opts.port,
		Logger: logging.FromContext(cmd.Context()),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.ErrOrStderr(), "Serving %s on http://%s\n", opts.root, srv.Addr())

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("serving %s: %w", opts.root, err)
	}

	return nil
}

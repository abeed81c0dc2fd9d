package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/parimoosavi/snaps-monorepo/internal/logging"
)

func newBuildCommand() *cobra.Command {
	opts := &buildOptions{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Bundle a snap project once",
		Long: `Build bundles the entry source file and its relative imports into a
single artifact in the output directory.

By default the manifest is validated and the bundle is evaluated after a
successful build; disable either with --check-manifest=false or
--eval=false.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, opts)
		},
	}

	registerBuildFlags(cmd, opts)

	return cmd
}

func runBuild(cmd *cobra.Command, opts *buildOptions) error {
	logger := logging.FromContext(cmd.Context())

	p, err := newPipeline(opts, cmd.ErrOrStderr(), logger)
	if err != nil {
		return err
	}

	if err := p.Run(cmd.Context()); err != nil {
		return err
	}

	fmt.Fprintln(cmd.ErrOrStderr(), color.GreenString("Build success: %s", p.OutputPath()))

	return nil
}

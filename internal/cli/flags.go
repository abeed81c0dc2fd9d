package cli

import (
	"github.com/spf13/cobra"

	"github.com/parimoosavi/snaps-monorepo/internal/project"
)

// registerBuildFlags adds the shared bundle pipeline flags to a cobra command.
func registerBuildFlags(cmd *cobra.Command, opts *buildOptions) {
	f := cmd.Flags()
	f.StringVarP(&opts.src, "src", "s", "src/index.js", "entry source file to bundle")
	f.StringVarP(&opts.dist, "dist", "d", "dist", "output directory for build artifacts")
	f.StringVarP(&opts.outfileName, "outfile-name", "n", project.DefaultOutfileName, "output bundle file name")
	f.BoolVar(&opts.checkManifest, "check-manifest", true, "validate snap.manifest.json after each build")
	f.BoolVar(&opts.evalBundle, "eval", true, "evaluate the bundle after each build")
	f.BoolVar(&opts.stripComments, "strip-comments", false, "remove comments from the bundle")
	f.StringArrayVar(&opts.buildOpts, "build-opt", nil, "passthrough build option (key=value)")
}

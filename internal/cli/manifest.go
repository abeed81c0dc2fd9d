package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/parimoosavi/snaps-monorepo/internal/manifest"
)

type manifestOptions struct {
	fix bool
}

func newManifestCommand() *cobra.Command {
	opts := &manifestOptions{}

	cmd := &cobra.Command{
		Use:   "manifest [dir]",
		Short: "Validate snap.manifest.json",
		Long: `Manifest validates the snap.manifest.json in the given project directory
(default ".") against the built bundle and package.json.

With --fix, the derivable fields (source shasum, version, package name) are
recomputed from the project and the manifest is rewritten in place.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			return runManifest(cmd, dir, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.fix, "fix", false, "rewrite derivable manifest fields in place")

	return cmd
}

func runManifest(cmd *cobra.Command, dir string, opts *manifestOptions) error {
	if opts.fix {
		return runManifestFix(cmd, dir)
	}

	result, err := manifest.Check(dir)
	if err != nil {
		return fmt.Errorf("checking manifest: %w", err)
	}

	out := cmd.OutOrStdout()

	if len(result.Findings) == 0 {
		fmt.Fprintln(out, color.GreenString("Manifest is valid"))

		return nil
	}

	fmt.Fprint(out, formatFindings(result))

	if result.HasErrors() {
		return &ExitError{
			Code: 7,
			Err:  fmt.Errorf("manifest validation failed with %d error(s)", len(result.Errors())),
		}
	}

	return nil
}

func runManifestFix(cmd *cobra.Command, dir string) error {
	fixed, err := manifest.Fix(dir)
	if err != nil {
		return fmt.Errorf("fixing manifest: %w", err)
	}

	out := cmd.OutOrStdout()

	if !fixed.Changed {
		fmt.Fprintln(out, "Manifest already up to date")

		return nil
	}

	if err := fixed.Write(dir); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}

	fmt.Fprint(out, fixed.Diff)
	fmt.Fprintln(out, color.GreenString("Manifest updated"))

	return nil
}

// formatFindings renders validation findings, errors first, colored by
// severity.
func formatFindings(result *manifest.Result) string {
	var b strings.Builder

	for _, f := range result.Errors() {
		fmt.Fprintln(&b, color.RedString(f.Error()))
	}

	for _, f := range result.Warnings() {
		fmt.Fprintln(&b, color.YellowString(f.Error()))
	}

	return b.String()
}

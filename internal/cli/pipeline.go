package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/parimoosavi/snaps-monorepo/internal/bundler"
	"github.com/parimoosavi/snaps-monorepo/internal/eval"
	"github.com/parimoosavi/snaps-monorepo/internal/manifest"
	"github.com/parimoosavi/snaps-monorepo/internal/output"
	"github.com/parimoosavi/snaps-monorepo/internal/project"
)

// buildOptions are the flags shared by the build and watch commands.
type buildOptions struct {
	src           string
	dist          string
	outfileName   string
	checkManifest bool
	evalBundle    bool
	stripComments bool
	buildOpts     []string
}

// pipeline is the assembled bundle → manifest → eval sequence for one
// project. It is created once at startup after input validation and then
// run repeatedly (once for build, per event for watch).
type pipeline struct {
	src         string
	projectDir  string
	outputPath  string
	bundleOpts  bundler.Options
	customize   bundler.CustomizeFunc
	checkMan    bool
	evalBundle  bool
	out         io.Writer
	logger      *slog.Logger
}

// newPipeline validates the build inputs and assembles the pipeline.
// All validation failures here are fatal to startup.
func newPipeline(opts *buildOptions, out io.Writer, logger *slog.Logger) (*pipeline, error) {
	name := opts.outfileName
	if name == "" {
		name = project.DefaultOutfileName
	}

	if err := project.ValidateOutfileName(name); err != nil {
		return nil, &ExitError{Code: 2, Err: err}
	}

	if err := project.ValidateFilePath(opts.src); err != nil {
		return nil, &ExitError{Code: 2, Err: err}
	}

	if err := project.ValidateDirPath(opts.dist, true); err != nil {
		return nil, &ExitError{Code: 2, Err: err}
	}

	extra, err := parseBuildOpts(opts.buildOpts)
	if err != nil {
		return nil, &ExitError{Code: 2, Err: err}
	}

	// The project-level customization hook lives next to the manifest.
	projectDir := "."

	snapCfg, found, err := project.LoadSnapConfig(projectDir)
	if err != nil {
		return nil, &ExitError{Code: 2, Err: err}
	}

	if found {
		logger.Debug("loaded project config", slog.String("file", project.ConfigFileName))
	}

	return &pipeline{
		src:        opts.src,
		projectDir: projectDir,
		outputPath: filepath.Join(opts.dist, name),
		bundleOpts: bundler.Options{
			StripComments: opts.stripComments,
			Extra:         extra,
		},
		customize:  snapCfg.Customizer(),
		checkMan:   opts.checkManifest,
		evalBundle: opts.evalBundle,
		out:        out,
		logger:     logger,
	}, nil
}

// Run executes one bundle → (manifest) → (eval) sequence. A failure at any
// step short-circuits the rest of the run.
func (p *pipeline) Run(ctx context.Context) error {
	data, err := bundler.Bundle(ctx, p.src, p.bundleOpts, p.customize)
	if err != nil {
		return fmt.Errorf("bundling %s: %w", p.src, err)
	}

	w := output.NewFileWriter(p.outputPath, output.WithLogger(p.logger))
	if err := w.Write(data); err != nil {
		return fmt.Errorf("writing bundle: %w", err)
	}

	if p.checkMan {
		result, checkErr := manifest.Check(p.projectDir)
		if checkErr != nil {
			return fmt.Errorf("checking manifest: %w", checkErr)
		}

		if result.HasErrors() {
			fmt.Fprint(p.out, formatFindings(result))

			return fmt.Errorf("manifest validation failed with %d error(s)", len(result.Errors()))
		}

		for _, f := range result.Warnings() {
			p.logger.Warn("manifest warning", slog.String("field", f.Field), slog.String("message", f.Message))
		}
	}

	if p.evalBundle {
		if err := eval.Evaluate(ctx, p.outputPath, eval.Options{Logger: p.logger}); err != nil {
			return fmt.Errorf("evaluating bundle: %w", err)
		}
	}

	return nil
}

// OutputPath returns the artifact path the pipeline writes.
func (p *pipeline) OutputPath() string {
	return p.outputPath
}

// parseBuildOpts converts repeated key=value flags into the passthrough
// option map handed to the bundler.
func parseBuildOpts(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	extra := make(map[string]any, len(pairs))

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid build option %q: expected key=value", pair)
		}

		extra[key] = value
	}

	return extra, nil
}

// Package snapcli provides a public Go API for building and validating snap
// projects.
//
// This package exposes the build pipeline as a library, allowing programmatic
// use without the CLI.
//
// Basic usage:
//
//	result, err := snapcli.Build(ctx, "src/index.js")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.OutputPath)
//
// With options:
//
//	result, err := snapcli.Build(ctx, "src/index.js",
//	    snapcli.WithOutDir("build"),
//	    snapcli.WithStripComments(),
//	    snapcli.WithCheckManifest(),
//	)
package snapcli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/parimoosavi/snaps-monorepo/internal/bundler"
	"github.com/parimoosavi/snaps-monorepo/internal/eval"
	"github.com/parimoosavi/snaps-monorepo/internal/manifest"
	"github.com/parimoosavi/snaps-monorepo/internal/output"
	"github.com/parimoosavi/snaps-monorepo/internal/project"
)

// discardLogger returns a logger that discards all output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Option configures the build pipeline.
// Use the With* functions to create Options.
type Option func(*options)

// options holds the internal configuration for the build pipeline.
type options struct {
	// Output placement.
	outDir      string
	outfileName string

	// Bundling.
	stripComments bool
	buildOptions  map[string]any

	// Post-build checks.
	projectDir    string
	checkManifest bool
	evalBundle    bool
	evalTimeout   time.Duration

	logger *slog.Logger
}

// WithOutDir sets the output directory (default: "dist").
func WithOutDir(dir string) Option { return func(o *options) { o.outDir = dir } }

// WithOutfileName sets the bundle file name (default: "bundle.js").
func WithOutfileName(name string) Option { return func(o *options) { o.outfileName = name } }

// WithStripComments removes comments from the bundle.
func WithStripComments() Option { return func(o *options) { o.stripComments = true } }

// WithBuildOptions sets passthrough build options recorded in the bundle
// header.
func WithBuildOptions(opts map[string]any) Option {
	return func(o *options) { o.buildOptions = opts }
}

// WithProjectDir sets the directory holding snap.manifest.json and
// package.json (default: "."). Used by manifest validation.
func WithProjectDir(dir string) Option { return func(o *options) { o.projectDir = dir } }

// WithCheckManifest validates the project manifest after bundling. Findings
// with error severity fail the build.
func WithCheckManifest() Option { return func(o *options) { o.checkManifest = true } }

// WithEval smoke-tests the bundle in a node child process after bundling.
func WithEval() Option { return func(o *options) { o.evalBundle = true } }

// WithEvalTimeout bounds the eval node process (default: 30s).
func WithEvalTimeout(d time.Duration) Option { return func(o *options) { o.evalTimeout = d } }

// WithLogger sets the logger for pipeline diagnostics. Defaults to a logger
// that discards all output.
func WithLogger(logger *slog.Logger) Option { return func(o *options) { o.logger = logger } }

// Result holds the output of a successful build.
type Result struct {
	// OutputPath is the path of the written bundle.
	OutputPath string

	// Bundle is the bundle content.
	Bundle []byte

	// Shasum is the base64-encoded SHA-256 checksum of the bundle, the
	// value the manifest records in source.shasum.
	Shasum string

	// Manifest holds validation findings when manifest checking was
	// enabled, nil otherwise. Error findings fail the build, so a non-nil
	// value here carries warnings at most.
	Manifest *manifest.Result
}

// Build bundles the entry source file at srcPath and its relative imports
// into a single artifact.
//
// Pass no options to use all defaults:
//
//	result, err := snapcli.Build(ctx, "src/index.js")
func Build(ctx context.Context, srcPath string, opts ...Option) (*Result, error) {
	if srcPath == "" {
		return nil, errors.New("source path must not be empty")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	o.applyDefaults()

	if err := project.ValidateOutfileName(o.outfileName); err != nil {
		return nil, err
	}

	if err := project.ValidateFilePath(srcPath); err != nil {
		return nil, err
	}

	if err := project.ValidateDirPath(o.outDir, true); err != nil {
		return nil, err
	}

	snapCfg, _, err := project.LoadSnapConfig(o.projectDir)
	if err != nil {
		return nil, err
	}

	bundleOpts := bundler.Options{
		StripComments: o.stripComments,
		Extra:         o.buildOptions,
	}

	data, err := bundler.Bundle(ctx, srcPath, bundleOpts, snapCfg.Customizer())
	if err != nil {
		return nil, fmt.Errorf("bundling %s: %w", srcPath, err)
	}

	outputPath := filepath.Join(o.outDir, o.outfileName)

	w := output.NewFileWriter(outputPath, output.WithLogger(o.logger))
	if err := w.Write(data); err != nil {
		return nil, fmt.Errorf("writing bundle: %w", err)
	}

	result := &Result{
		OutputPath: outputPath,
		Bundle:     data,
		Shasum:     manifest.Shasum(data),
	}

	if o.checkManifest {
		checked, checkErr := manifest.Check(o.projectDir)
		if checkErr != nil {
			return nil, fmt.Errorf("checking manifest: %w", checkErr)
		}

		if checked.HasErrors() {
			return nil, fmt.Errorf("manifest validation failed with %d error(s)", len(checked.Errors()))
		}

		result.Manifest = checked
	}

	if o.evalBundle {
		evalOpts := eval.Options{
			Timeout: o.evalTimeout,
			Logger:  o.logger,
		}

		if err := eval.Evaluate(ctx, outputPath, evalOpts); err != nil {
			return nil, fmt.Errorf("evaluating bundle: %w", err)
		}
	}

	return result, nil
}

// CheckManifest validates the snap.manifest.json in dir against the built
// bundle and package.json.
func CheckManifest(dir string) (*manifest.Result, error) {
	return manifest.Check(dir)
}

// FixManifest recomputes the derivable manifest fields in dir and writes the
// result back. It reports whether the file changed.
func FixManifest(dir string) (bool, error) {
	fixed, err := manifest.Fix(dir)
	if err != nil {
		return false, err
	}

	if !fixed.Changed {
		return false, nil
	}

	if err := fixed.Write(dir); err != nil {
		return false, err
	}

	return true, nil
}

// applyDefaults sets zero-value fields to sensible defaults.
func (o *options) applyDefaults() {
	if o.outDir == "" {
		o.outDir = "dist"
	}

	if o.outfileName == "" {
		o.outfileName = project.DefaultOutfileName
	}

	if o.projectDir == "" {
		o.projectDir = "."
	}

	if o.evalTimeout == 0 {
		o.evalTimeout = eval.DefaultTimeout
	}

	if o.logger == nil {
		o.logger = discardLogger()
	}
}

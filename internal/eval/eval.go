// Package eval smoke-tests a built bundle: static source checks for
// constructs the snap sandbox rejects, followed by loading the bundle in a
// node child process with stubbed host globals.
package eval

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DefaultTimeout bounds a single evaluation run.
const DefaultTimeout = 30 * time.Second

// Options configures an evaluation run.
type Options struct {
	// Timeout bounds the node child process. Zero means DefaultTimeout.
	Timeout time.Duration

	// SkipExec disables the node child process and runs only the static
	// checks. Used when no node binary is expected on the host.
	SkipExec bool

	// Logger is used for structured logging.
	Logger *slog.Logger
}

// bannedConstructs are dynamic-code constructs the sandbox rejects at
// install time; catching them at build time gives a faster signal.
var bannedConstructs = []struct {
	pattern *regexp.Regexp
	name    string
}{
	{regexp.MustCompile(`(?m)(?:^|[^\w.])eval\s*\(`), "eval()"},
	{regexp.MustCompile(`\bnew\s+Function\s*\(`), "new Function()"},
	{regexp.MustCompile(`\bprocess\.exit\s*\(`), "process.exit()"},
}

// loaderScript requires the bundle with stubbed snap globals. A load-time
// throw surfaces as a non-zero exit.
const loaderScript = `
'use strict';
globalThis.snap = { request: async () => { throw new Error('snap.request is not available during evaluation'); } };
globalThis.ethereum = undefined;
require(process.argv[1]);
`

// Evaluate runs all checks against the bundle at bundlePath.
func Evaluate(ctx context.Context, bundlePath string, opts Options) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	data, err := os.ReadFile(bundlePath)
	if err != nil {
		return fmt.Errorf("reading bundle %q: %w", bundlePath, err)
	}

	if err := staticCheck(data); err != nil {
		return err
	}

	if opts.SkipExec {
		opts.Logger.Debug("skipping sandboxed execution", slog.String("bundle", bundlePath))
		return nil
	}

	return execCheck(ctx, bundlePath, opts)
}

// staticCheck scans the bundle source for banned constructs.
func staticCheck(bundle []byte) error {
	var violations []string

	for _, c := range bannedConstructs {
		if c.pattern.Match(bundle) {
			violations = append(violations, c.name)
		}
	}

	if len(violations) > 0 {
		return fmt.Errorf("bundle uses disallowed constructs: %s", strings.Join(violations, ", "))
	}

	return nil
}

// execCheck loads the bundle in a node child process with a timeout.
func execCheck(ctx context.Context, bundlePath string, opts Options) error {
	nodePath, err := exec.LookPath("node")
	if err != nil {
		return fmt.Errorf("node not found on PATH: %w", err)
	}

	// require() needs an absolute path to resolve the bundle as a file.
	absBundle, err := filepath.Abs(bundlePath)
	if err != nil {
		return fmt.Errorf("resolving bundle path %q: %w", bundlePath, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var out bytes.Buffer

	cmd := exec.CommandContext(execCtx, nodePath, "--eval", loaderScript, absBundle) //nolint:gosec
	cmd.Stdout = &out
	cmd.Stderr = &out

	if runErr := cmd.Run(); runErr != nil {
		if execCtx.Err() != nil {
			return fmt.Errorf("evaluating bundle: timed out after %s", timeout)
		}

		msg := strings.TrimSpace(out.String())
		if msg == "" {
			return fmt.Errorf("evaluating bundle: %w", runErr)
		}

		return fmt.Errorf("evaluating bundle: %w: %s", runErr, firstLines(msg, 5))
	}

	return nil
}

// firstLines truncates output to at most n lines for error reporting.
func firstLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}

	return strings.Join(lines[:n], "\n") + " [...]"
}

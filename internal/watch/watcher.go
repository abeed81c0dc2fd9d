package watch

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RunFunc executes one build pipeline run. trigger is the path that caused
// the run, or empty for the initial run after subscription setup. Errors
// are reported and isolated per run; they never end the session.
type RunFunc func(ctx context.Context, trigger string) error

// ServeFunc starts the dev server. Called at most once per session, after
// the initial run completes.
type ServeFunc func(ctx context.Context) error

// Options configures a watch session.
type Options struct {
	// SourcePath is the entry file. The watched root is derived from it.
	SourcePath string

	// OutDir is the build output directory; events under it are ignored so
	// the session never rebuilds in response to its own artifacts.
	OutDir string

	// Debounce is the quiet period before a burst of events triggers a
	// rebuild. Zero disables debouncing.
	Debounce time.Duration

	// Ignore overrides the exclusion predicates. Nil means
	// DefaultMatchers(root, OutDir).
	Ignore []Matcher

	// Serve, when non-nil, is invoked once after the initial run. A serve
	// failure is reported and the session continues without a server.
	Serve ServeFunc

	// Logger is used for structured logging.
	Logger *slog.Logger

	// Out is the writer for user-facing status messages.
	Out io.Writer
}

// DefaultOptions returns sensible default watch options.
func DefaultOptions() Options {
	return Options{
		Debounce: 500 * time.Millisecond,
		Logger:   slog.Default(),
		Out:      os.Stderr,
	}
}

// RootDir derives the watched directory from the entry file path: everything
// up to and including the last separator, or "." when the path has no
// directory component. Watching the whole tree keeps renames and moves of
// sibling modules visible even though only one entry file was named.
func RootDir(sourcePath string) string {
	idx := strings.LastIndexAny(sourcePath, `/\`)
	if idx < 0 {
		return "."
	}

	return sourcePath[:idx+1]
}

// Session is a live watch subscription. Stop disposes it; Done is closed
// once the dispatch loop has exited and in-flight runs have drained.
type Session struct {
	root     string
	opts     Options
	runFn    RunFunc
	watcher  *fsnotify.Watcher
	events   <-chan fsnotify.Event
	errs     <-chan error
	runner   *runner
	debounce *debouncer
	cancel   context.CancelFunc
	done     chan struct{}
}

// Start validates the root, registers the subscription, performs the
// initial run, and begins dispatching events in the background.
func Start(ctx context.Context, opts Options, runFn RunFunc) (*Session, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Out == nil {
		opts.Out = io.Discard
	}

	root := RootDir(opts.SourcePath)

	if opts.Ignore == nil {
		opts.Ignore = DefaultMatchers(root, opts.OutDir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	if err := addRecursive(watcher, root, opts.Ignore); err != nil {
		watcher.Close()

		return nil, fmt.Errorf("watching %q: %w", root, err)
	}

	sessCtx, cancel := context.WithCancel(ctx)

	s := &Session{
		root:    root,
		opts:    opts,
		runFn:   runFn,
		watcher: watcher,
		events:  watcher.Events,
		errs:    watcher.Errors,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	s.runner = newRunner(func(trigger string) { s.runOnce(sessCtx, trigger) })
	s.debounce = newDebouncer(opts.Debounce, s.runner.Trigger)

	go s.loop(sessCtx)

	return s, nil
}

// Stop disposes the session and blocks until in-flight work has drained.
func (s *Session) Stop() {
	s.cancel()
	<-s.done
}

// Done is closed when the session has fully stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Root returns the watched directory.
func (s *Session) Root() string {
	return s.root
}

// loop performs the initial run, starts the dev server hook, and then
// dispatches filesystem events until the session context ends.
func (s *Session) loop(ctx context.Context) {
	defer func() {
		s.debounce.stop()

		if s.watcher != nil {
			s.watcher.Close()
		}

		s.runner.Close()
		close(s.done)
	}()

	// Initial run: the subscription walk has completed, so anything the
	// watcher reports from here on is a real change.
	s.runOnce(ctx, "")

	// The dev server starts exactly once, after the initial run, whether or
	// not that run succeeded.
	if s.opts.Serve != nil {
		if err := s.opts.Serve(ctx); err != nil {
			s.opts.Logger.Error("starting dev server", slog.String("error", err.Error()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-s.events:
			if !ok {
				return
			}

			s.dispatch(event)

		case watchErr, ok := <-s.errs:
			if !ok {
				return
			}

			s.opts.Logger.Error("watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// dispatch applies the ignore predicates and event-kind rules to a single
// filesystem event.
func (s *Session) dispatch(event fsnotify.Event) {
	if Ignored(event.Name, s.opts.Ignore) {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		// A new directory joins the subscription; only files trigger runs.
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if s.watcher != nil {
				_ = addRecursive(s.watcher, event.Name, s.opts.Ignore)
			}

			return
		}

		fmt.Fprintf(s.opts.Out, "File added: %s\n", event.Name)
		s.debounce.trigger(event.Name)

	case event.Has(fsnotify.Write):
		fmt.Fprintf(s.opts.Out, "File changed: %s\n", event.Name)
		s.debounce.trigger(event.Name)

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// Removals are announced but never rebuild: the entry tree may be
		// mid-rename and the next add/change will catch up.
		fmt.Fprintf(s.opts.Out, "File removed: %s\n", event.Name)
	}
}

// runOnce executes one pipeline run and reports the outcome. Failures are
// contained here; the session keeps watching.
func (s *Session) runOnce(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}

	now := time.Now().Format("15:04:05")

	label := trigger
	if label == "" {
		label = "(initial)"
	}

	if err := s.runFn(ctx, trigger); err != nil {
		fmt.Fprintf(s.opts.Out, "[%s] %s -> ERROR: %v\n", now, label, err)

		if trigger == "" {
			s.opts.Logger.Error("initial build failed", slog.String("error", err.Error()))
		} else {
			s.opts.Logger.Error("build failed",
				slog.String("path", trigger),
				slog.String("error", err.Error()),
			)
		}

		return
	}

	fmt.Fprintf(s.opts.Out, "[%s] %s -> OK\n", now, label)
}

// Run starts a session and blocks until the context is cancelled or a
// SIGINT/SIGTERM signal is received.
func Run(ctx context.Context, opts Options, runFn RunFunc) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := Start(sigCtx, opts, runFn)
	if err != nil {
		return err
	}

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Watching %s for changes...\n", s.Root())
	}

	select {
	case <-sigCtx.Done():
		s.Stop()
	case <-s.Done():
	}

	if opts.Out != nil {
		fmt.Fprintln(opts.Out, "Shutting down watcher")
	}

	return nil
}

// addRecursive walks root and adds all non-ignored directories to the
// watcher.
func addRecursive(watcher *fsnotify.Watcher, root string, ignore []Matcher) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if path != filepath.Clean(root) && Ignored(path, ignore) {
			return filepath.SkipDir
		}

		return watcher.Add(path)
	})
}

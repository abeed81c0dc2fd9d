package watch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer serializes writes so status output from the dispatch and
// runner goroutines can be asserted on safely.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

// ---------------------------------------------------------------------------
// RootDir
// ---------------------------------------------------------------------------

func TestRootDir(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"bare file", "index.js", "."},
		{"single dir", "src/index.js", "src/"},
		{"nested dirs", "packages/example/src/index.js", "packages/example/src/"},
		{"backslash separator", `src\index.js`, `src\`},
		{"leading dot segment", "./src/index.js", "./src/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RootDir(tt.src))
		})
	}
}

// ---------------------------------------------------------------------------
// Ignore matchers
// ---------------------------------------------------------------------------

func TestDefaultMatchers(t *testing.T) {
	matchers := DefaultMatchers("src/", "dist")

	tests := []struct {
		name    string
		path    string
		ignored bool
	}{
		{"regular source file", "src/helpers.js", false},
		{"entry file", "src/index.js", false},
		{"node_modules", "src/node_modules/dep/index.js", true},
		{"output dir", "dist/bundle.js", true},
		{"nested under output dir", "dist/sub/bundle.js", true},
		{"test dir", "src/test/fixture.js", true},
		{"tests dir", "src/tests/fixture.js", true},
		{"test js file", "src/index.test.js", true},
		{"test ts file", "src/index.test.ts", true},
		{"dotfile", "src/.eslintrc", true},
		{"dot directory", "src/.cache", true},
		{"root itself", "src/", false},
		{"contest dir not excluded", "src/contest/x.js", false},
		{"attestation file not excluded", "src/attest.js", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ignored, Ignored(tt.path, matchers))
		})
	}
}

func TestIgnoreHidden_RootDotExempt(t *testing.T) {
	matchers := DefaultMatchers(".", "dist")

	assert.False(t, Ignored(".", matchers))
	assert.True(t, Ignored(".git", matchers))
	assert.False(t, Ignored("helpers.js", matchers))
}

func TestIgnoreUnder_Empty(t *testing.T) {
	assert.False(t, IgnoreUnder("")("dist/bundle.js"))
}

func TestIgnoreUnder_MixedPathForms(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	// A relative output dir must exclude absolute event names and vice
	// versa: event names follow the form of the source path, not the
	// output dir flag.
	absArtifact := filepath.Join(dir, "dist", "bundle.js")

	assert.True(t, IgnoreUnder("dist")(absArtifact))
	assert.True(t, IgnoreUnder(filepath.Join(dir, "dist"))(filepath.Join("dist", "bundle.js")))
	assert.False(t, IgnoreUnder("dist")(filepath.Join(dir, "src", "index.js")))
}

func TestDefaultMatchers_AbsoluteRootRelativeOutDir(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	matchers := DefaultMatchers(dir+string(filepath.Separator), "dist")

	assert.True(t, Ignored(filepath.Join(dir, "dist", "bundle.js"), matchers))
	assert.False(t, Ignored(filepath.Join(dir, "src", "helpers.js"), matchers))
}

// ---------------------------------------------------------------------------
// debouncer
// ---------------------------------------------------------------------------

func TestDebouncer_CoalescesBurst(t *testing.T) {
	var count atomic.Int32
	var last atomic.Value

	d := newDebouncer(100*time.Millisecond, func(path string) {
		count.Add(1)
		last.Store(path)
	})
	defer d.stop()

	for i := 0; i < 10; i++ {
		d.trigger("src/helpers.js")
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())
	assert.Equal(t, "src/helpers.js", last.Load())
}

func TestDebouncer_LastPathWins(t *testing.T) {
	var last atomic.Value

	d := newDebouncer(50*time.Millisecond, func(path string) {
		last.Store(path)
	})
	defer d.stop()

	d.trigger("a.js")
	d.trigger("b.js")
	d.trigger("c.js")

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, "c.js", last.Load())
}

func TestDebouncer_ZeroIntervalForwardsImmediately(t *testing.T) {
	var count atomic.Int32

	d := newDebouncer(0, func(string) { count.Add(1) })

	d.trigger("a.js")
	d.trigger("b.js")
	assert.Equal(t, int32(2), count.Load())
}

func TestDebouncer_Stop(t *testing.T) {
	var count atomic.Int32

	d := newDebouncer(50*time.Millisecond, func(string) { count.Add(1) })

	d.trigger("a.js")
	d.stop()

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int32(0), count.Load())
}

func TestDebouncer_TriggerAfterStopIsDropped(t *testing.T) {
	var count atomic.Int32

	d := newDebouncer(20*time.Millisecond, func(string) { count.Add(1) })

	d.stop()
	d.trigger("a.js")

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), count.Load())
}

// ---------------------------------------------------------------------------
// runner (single-flight)
// ---------------------------------------------------------------------------

func TestRunner_SingleRun(t *testing.T) {
	var count atomic.Int32

	r := newRunner(func(string) { count.Add(1) })

	r.Trigger("a.js")
	r.Wait()

	assert.Equal(t, int32(1), count.Load())
}

func TestRunner_CoalescesWhileInFlight(t *testing.T) {
	release := make(chan struct{})

	var mu sync.Mutex
	var runs []string

	r := newRunner(func(trigger string) {
		mu.Lock()
		runs = append(runs, trigger)
		first := len(runs) == 1
		mu.Unlock()

		if first {
			<-release
		}
	})

	r.Trigger("a.js")

	// These all arrive while a.js is in flight: they must coalesce into a
	// single pending re-run carrying the latest path.
	time.Sleep(50 * time.Millisecond)
	r.Trigger("b.js")
	r.Trigger("c.js")
	r.Trigger("d.js")

	close(release)
	r.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a.js", "d.js"}, runs)
}

func TestRunner_CloseDropsLateTriggers(t *testing.T) {
	var count atomic.Int32

	r := newRunner(func(string) { count.Add(1) })

	r.Trigger("a.js")
	r.Close()

	// Triggers racing or following shutdown must not start new runs.
	r.Trigger("b.js")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())
}

func TestRunner_SequentialTriggers(t *testing.T) {
	var count atomic.Int32

	r := newRunner(func(string) { count.Add(1) })

	r.Trigger("a.js")
	r.Wait()
	r.Trigger("b.js")
	r.Wait()

	assert.Equal(t, int32(2), count.Load())
}

// ---------------------------------------------------------------------------
// addRecursive
// ---------------------------------------------------------------------------

func TestAddRecursive_SkipsIgnoredDirs(t *testing.T) {
	dir := t.TempDir()

	for _, sub := range []string{"lib", "lib/nested", "node_modules/dep", "test", ".git"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, sub), 0o755))
	}

	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()

	require.NoError(t, addRecursive(watcher, dir, DefaultMatchers(dir, "")))

	watched := map[string]bool{}
	for _, p := range watcher.WatchList() {
		watched[p] = true
	}

	assert.True(t, watched[dir])
	assert.True(t, watched[filepath.Join(dir, "lib")])
	assert.True(t, watched[filepath.Join(dir, "lib", "nested")])
	assert.False(t, watched[filepath.Join(dir, "node_modules")])
	assert.False(t, watched[filepath.Join(dir, "node_modules", "dep")])
	assert.False(t, watched[filepath.Join(dir, "test")])
	assert.False(t, watched[filepath.Join(dir, ".git")])
}

func TestStart_NonExistentRoot(t *testing.T) {
	opts := DefaultOptions()
	opts.SourcePath = "/nonexistent/dir/12345/index.js"
	opts.Out = io.Discard

	_, err := Start(context.Background(), opts, func(context.Context, string) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watching")
}

// ---------------------------------------------------------------------------
// Session (integration)
// ---------------------------------------------------------------------------

type sessionFixture struct {
	dir      string
	out      *syncBuffer
	runs     *atomic.Int32
	triggers *sync.Map
	session  *Session
}

func startSession(t *testing.T, mutate func(*Options)) *sessionFixture {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.js"), []byte("module.exports = 1;\n"), 0o644))

	f := &sessionFixture{
		dir:      dir,
		out:      &syncBuffer{},
		runs:     &atomic.Int32{},
		triggers: &sync.Map{},
	}

	opts := DefaultOptions()
	opts.SourcePath = filepath.Join(dir, "index.js")
	opts.OutDir = filepath.Join(dir, "dist")
	opts.Debounce = 50 * time.Millisecond
	opts.Out = f.out

	if mutate != nil {
		mutate(&opts)
	}

	runFn := func(_ context.Context, trigger string) error {
		n := f.runs.Add(1)
		f.triggers.Store(n, trigger)

		return nil
	}

	session, err := Start(context.Background(), opts, runFn)
	require.NoError(t, err)
	t.Cleanup(session.Stop)

	f.session = session

	return f
}

func TestSession_InitialRun(t *testing.T) {
	f := startSession(t, nil)

	require.Eventually(t, func() bool { return f.runs.Load() >= 1 }, 2*time.Second, 20*time.Millisecond)

	// The first run carries no trigger path.
	first, ok := f.triggers.Load(int32(1))
	require.True(t, ok)
	assert.Equal(t, "", first)
	assert.Contains(t, f.out.String(), "(initial)")
}

func TestSession_FileChangeTriggersRun(t *testing.T) {
	f := startSession(t, nil)

	require.Eventually(t, func() bool { return f.runs.Load() >= 1 }, 2*time.Second, 20*time.Millisecond)
	initial := f.runs.Load()

	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "index.js"), []byte("module.exports = 2;\n"), 0o644))

	require.Eventually(t, func() bool { return f.runs.Load() > initial }, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, f.out.String(), "File changed:")
}

func TestSession_AddedFileTriggersRun(t *testing.T) {
	f := startSession(t, nil)

	require.Eventually(t, func() bool { return f.runs.Load() >= 1 }, 2*time.Second, 20*time.Millisecond)
	initial := f.runs.Load()

	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "helpers.js"), []byte("x\n"), 0o644))

	require.Eventually(t, func() bool { return f.runs.Load() > initial }, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, f.out.String(), "File added:")
}

func TestSession_RemovedFileDoesNotTriggerRun(t *testing.T) {
	f := startSession(t, nil)

	extra := filepath.Join(f.dir, "helpers.js")
	require.NoError(t, os.WriteFile(extra, []byte("x\n"), 0o644))

	require.Eventually(t, func() bool { return f.runs.Load() >= 2 }, 2*time.Second, 20*time.Millisecond)
	before := f.runs.Load()

	require.NoError(t, os.Remove(extra))

	// Give the remove event time to arrive; no run may result from it.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, before, f.runs.Load())
	assert.Contains(t, f.out.String(), "File removed:")
}

func TestSession_ExcludedPathsDoNotTrigger(t *testing.T) {
	f := startSession(t, nil)

	require.Eventually(t, func() bool { return f.runs.Load() >= 1 }, 2*time.Second, 20*time.Millisecond)
	before := f.runs.Load()

	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "index.test.js"), []byte("x\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, ".hidden"), []byte("x\n"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, before, f.runs.Load())
	assert.NotContains(t, f.out.String(), "index.test.js")
}

func TestSession_OutputDirDoesNotTriggerRebuildLoop(t *testing.T) {
	f := startSession(t, nil)

	require.Eventually(t, func() bool { return f.runs.Load() >= 1 }, 2*time.Second, 20*time.Millisecond)
	before := f.runs.Load()

	// Simulate the pipeline writing its own artifact under the output dir.
	require.NoError(t, os.MkdirAll(filepath.Join(f.dir, "dist"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "dist", "bundle.js"), []byte("x\n"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, before, f.runs.Load())
}

func TestSession_RelativeOutDirDoesNotRebuildLoop(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "index.js"), []byte("x\n"), 0o644))
	chdir(t, dir)

	var runs atomic.Int32

	// Absolute source path, relative output dir: the artifact write lands
	// under an absolute event name and must still match the exclusion.
	opts := DefaultOptions()
	opts.SourcePath = filepath.Join(dir, "src", "index.js")
	opts.OutDir = "dist"
	opts.Debounce = 50 * time.Millisecond
	opts.Out = io.Discard

	runFn := func(context.Context, string) error {
		runs.Add(1)

		if err := os.MkdirAll("dist", 0o755); err != nil {
			return err
		}

		return os.WriteFile(filepath.Join("dist", "bundle.js"), []byte("bundle\n"), 0o644)
	}

	session, err := Start(context.Background(), opts, runFn)
	require.NoError(t, err)
	t.Cleanup(session.Stop)

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 2*time.Second, 20*time.Millisecond)

	// The initial run wrote the artifact; give any stray events time to
	// arrive. Writes under the output dir must never feed back into runs.
	time.Sleep(500 * time.Millisecond)
	assert.LessOrEqual(t, runs.Load(), int32(2), "artifact writes must not re-trigger the pipeline")
}

func TestSession_WatcherErrorDoesNotStopSession(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "helpers.js")
	require.NoError(t, os.WriteFile(file, []byte("x\n"), 0o644))

	events := make(chan fsnotify.Event)
	errs := make(chan error)

	var runs atomic.Int32

	out := &syncBuffer{}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		root: dir,
		opts: Options{
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
			Out:    out,
		},
		runFn:  func(context.Context, string) error { runs.Add(1); return nil },
		events: events,
		errs:   errs,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.runner = newRunner(func(trigger string) { s.runOnce(ctx, trigger) })
	s.debounce = newDebouncer(0, s.runner.Trigger)

	go s.loop(ctx)
	t.Cleanup(s.Stop)

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 2*time.Second, 20*time.Millisecond)

	// A watcher-level error is reported and the loop keeps consuming: a
	// change event arriving afterwards still triggers a run.
	errs <- fmt.Errorf("event queue overflow")
	events <- fsnotify.Event{Name: file, Op: fsnotify.Write}

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, out.String(), "File changed:")
}

func TestSession_ServeStartsOnceAfterInitialRun(t *testing.T) {
	var serveCount atomic.Int32
	var runsAtServe atomic.Int32

	f := startSession(t, func(opts *Options) {
		opts.Serve = func(context.Context) error {
			serveCount.Add(1)

			return nil
		}
	})

	require.Eventually(t, func() bool { return serveCount.Load() == 1 }, 2*time.Second, 20*time.Millisecond)
	runsAtServe.Store(f.runs.Load())

	// The initial run happened before serve.
	assert.GreaterOrEqual(t, runsAtServe.Load(), int32(1))

	// Further changes must not start the server again.
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "index.js"), []byte("y\n"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), serveCount.Load())
}

func TestSession_ServeErrorDoesNotStopSession(t *testing.T) {
	f := startSession(t, func(opts *Options) {
		opts.Serve = func(context.Context) error {
			return fmt.Errorf("port already in use")
		}
	})

	require.Eventually(t, func() bool { return f.runs.Load() >= 1 }, 2*time.Second, 20*time.Millisecond)
	before := f.runs.Load()

	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "index.js"), []byte("y\n"), 0o644))
	require.Eventually(t, func() bool { return f.runs.Load() > before }, 2*time.Second, 20*time.Millisecond)
}

func TestSession_RunErrorDoesNotStopSession(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.js"), []byte("x\n"), 0o644))

	var runs atomic.Int32

	opts := DefaultOptions()
	opts.SourcePath = filepath.Join(dir, "index.js")
	opts.Debounce = 50 * time.Millisecond
	opts.Out = io.Discard

	session, err := Start(context.Background(), opts, func(_ context.Context, trigger string) error {
		runs.Add(1)

		return fmt.Errorf("syntax error near %q", trigger)
	})
	require.NoError(t, err)
	t.Cleanup(session.Stop)

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 2*time.Second, 20*time.Millisecond)
	before := runs.Load()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.js"), []byte("y\n"), 0o644))
	require.Eventually(t, func() bool { return runs.Load() > before }, 2*time.Second, 20*time.Millisecond)
}

func TestSession_StopDrains(t *testing.T) {
	f := startSession(t, nil)

	f.session.Stop()

	select {
	case <-f.session.Done():
	default:
		t.Fatal("Done should be closed after Stop")
	}
}

func TestRun_ReturnsOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.js"), []byte("x\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())

	opts := DefaultOptions()
	opts.SourcePath = filepath.Join(dir, "index.js")
	opts.Debounce = 50 * time.Millisecond
	opts.Out = io.Discard

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, func(context.Context, string) error { return nil })
	}()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not shut down in time")
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 500*time.Millisecond, opts.Debounce)
	assert.NotNil(t, opts.Logger)
	assert.NotNil(t, opts.Out)
}

package watch

import "sync"

// runner enforces single-flight pipeline execution: at most one run is in
// flight, and triggers arriving during a run coalesce into one pending
// re-run carrying the latest path. This removes the write race on the
// output artifact that unbounded concurrent rebuilds would cause.
type runner struct {
	run func(trigger string)

	mu         sync.Mutex
	inFlight   bool
	pending    string
	hasPending bool
	closed     bool
	wg         sync.WaitGroup
}

func newRunner(run func(trigger string)) *runner {
	return &runner{run: run}
}

// Trigger requests a pipeline run for trigger. If a run is already in
// flight the request is coalesced into the pending slot, replacing any
// earlier pending trigger. Triggers after Close are dropped.
func (r *runner) Trigger(trigger string) {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()

		return
	}

	if r.inFlight {
		r.pending = trigger
		r.hasPending = true
		r.mu.Unlock()

		return
	}

	r.inFlight = true
	// Add under the mutex so it is ordered before any Wait that observes
	// the closed flag.
	r.wg.Add(1)
	r.mu.Unlock()

	go r.loop(trigger)
}

func (r *runner) loop(trigger string) {
	defer r.wg.Done()

	for {
		r.run(trigger)

		r.mu.Lock()

		if r.hasPending {
			trigger = r.pending
			r.hasPending = false
			r.mu.Unlock()

			continue
		}

		r.inFlight = false
		r.mu.Unlock()

		return
	}
}

// Wait blocks until no run is in flight and no re-run is pending.
func (r *runner) Wait() {
	r.wg.Wait()
}

// Close rejects further triggers and blocks until in-flight work has
// drained. A trigger racing Close either completes its Add before the
// closed flag is set or is dropped, so the drain cannot miss a run.
func (r *runner) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.wg.Wait()
}

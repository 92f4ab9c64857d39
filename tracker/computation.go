package tracker

import (
	"errors"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
)

// A Computation is a tracked, re-runnable unit of logic. While its function
// runs, every dependency read registers an edge back to it; when any of them
// later changes the computation is invalidated and re-run by the flush
// scheduler, rebuilding its dependency set from scratch. It keeps doing so
// until stopped.
type Computation struct {
	tracker *Tracker
	parent  *Computation
	fn      func(*Computation) error

	firstRun    bool
	invalidated bool
	stopped     bool
	// True while the flush scheduler is re-running us. A self-invalidation
	// during a re-run must not enqueue again; the drain loop notices the
	// still-invalidated state and retries once instead.
	recomputing bool

	// Dependencies we registered with during the current run. Owning forward
	// edges; the back edges in each dependency are cleared together with
	// these on every invalidation, re-run and stop.
	deps     mapset.Set[*Dependency]
	children mapset.Set[*Computation]

	invalidateHooks []func(*Computation)
	stopHooks       []func(*Computation)

	// Optional per-computation re-run error sink. Overrides the tracker's.
	onError ErrorFunc
}

func newComputation(t *Tracker, parent *Computation, fn func(*Computation) error) (*Computation, error) {
	c := &Computation{
		tracker:  t,
		parent:   parent,
		fn:       fn,
		deps:     mapset.NewThreadUnsafeSet[*Dependency](),
		children: mapset.NewThreadUnsafeSet[*Computation](),
	}
	t.computations.Add(c)
	if parent != nil {
		parent.children.Add(c)
	}
	if err := c.compute(true); err != nil {
		c.Stop()
		// The stopped handle stays usable, so callers can hold it without
		// nil checks.
		return c, fmt.Errorf("first run failed: %w", err)
	}
	return c, nil
}

// Invalidated reports whether the computation needs a re-run.
func (c *Computation) Invalidated() bool { return c.invalidated }

// Stopped reports whether the computation has been stopped. Stopped is
// terminal: the computation never re-runs and never re-registers anywhere.
func (c *Computation) Stopped() bool { return c.stopped }

// FirstRun reports whether the current (or most recent) run is the initial
// synchronous one.
func (c *Computation) FirstRun() bool { return c.firstRun }

// OnError sets a re-run error sink for this computation, overriding the
// tracker's. First-run errors are returned by Track instead.
func (c *Computation) OnError(fn ErrorFunc) { c.onError = fn }

// OnInvalidate registers fn to run exactly once, at the next invalidation or
// stop, whichever comes first. If the computation is already invalidated or
// stopped fn runs synchronously right away.
func (c *Computation) OnInvalidate(fn func(*Computation)) {
	if fn == nil {
		return
	}
	if c.invalidated || c.stopped {
		if err := runHook(fn, c); err != nil {
			c.tracker.reportError(c, err)
		}
		return
	}
	c.invalidateHooks = append(c.invalidateHooks, fn)
}

// OnStop registers fn to run exactly once when the computation stops,
// synchronously and immediately if it already has.
func (c *Computation) OnStop(fn func(*Computation)) {
	if fn == nil {
		return
	}
	if c.stopped {
		if err := runHook(fn, c); err != nil {
			c.tracker.reportError(c, err)
		}
		return
	}
	c.stopHooks = append(c.stopHooks, fn)
}

// Invalidate marks the computation stale and schedules a re-run. Idempotent
// per run-generation: a second call before the re-run is a no-op. The
// invalidation hooks run in registration order; a failing hook is reported
// but does not stop the remaining hooks or the re-run.
func (c *Computation) Invalidate() {
	if c.invalidated {
		return
	}
	c.invalidated = true

	hooks := c.invalidateHooks
	c.invalidateHooks = nil
	var errs []error
	for _, fn := range hooks {
		if err := runHook(fn, c); err != nil {
			errs = append(errs, err)
		}
	}

	// Edges are rebuilt from scratch on the re-run, so drop them both ways
	// now rather than leaving stale registrations behind.
	c.clearDependencies()

	if !c.recomputing && !c.stopped {
		c.tracker.flusher.Add(c)
		c.tracker.flusher.RequireFlush()
	}

	if len(errs) > 0 {
		c.tracker.reportError(c, errors.Join(errs...))
	}
}

// Stop ceases all re-running, recursively stops child computations and
// unregisters from every dependency. Idempotent; valid from any state.
func (c *Computation) Stop() {
	if c.stopped {
		return
	}
	c.stopped = true

	// Fires the pending invalidation hooks if they haven't run for this
	// generation. No re-run gets scheduled: stopped is checked above.
	c.Invalidate()
	c.tracker.flusher.Remove(c)

	for _, child := range c.children.ToSlice() {
		child.Stop()
	}
	c.children.Clear()

	hooks := c.stopHooks
	c.stopHooks = nil
	var errs []error
	for _, fn := range hooks {
		if err := runHook(fn, c); err != nil {
			errs = append(errs, err)
		}
	}

	if c.parent != nil {
		c.parent.children.Remove(c)
		c.parent = nil
	}
	c.tracker.computations.Remove(c)

	if len(errs) > 0 {
		c.tracker.reportError(c, errors.Join(errs...))
	}
}

// Suspend runs fn with dependency tracking detached from this computation:
// reads inside fn register nothing. The previous tracking context is
// restored on exit, panics included. This is the only sanctioned place to
// yield to other tasks from inside a tracked run.
func (c *Computation) Suspend(fn func()) {
	c.tracker.Untracked(fn)
}

// Runs the tracked function with this computation installed as current.
// Children left over from the previous run are stopped first, then the
// dependency set is cleared so the run re-acquires it from scratch.
func (c *Computation) compute(firstRun bool) error {
	c.firstRun = firstRun
	c.invalidated = false

	for _, child := range c.children.ToSlice() {
		child.Stop()
	}
	c.children.Clear()
	c.clearDependencies()

	t := c.tracker
	prev := t.current
	prevIn := t.inCompute
	t.current = c
	t.inCompute = true
	defer func() {
		t.current = prev
		t.inCompute = prevIn
		if !t.inCompute {
			t.runDeferred()
		}
	}()

	return c.fn(c)
}

// Re-runs an invalidated computation on behalf of the flush scheduler.
func (c *Computation) recompute() error {
	if !c.needsRecompute() {
		return nil
	}
	c.recomputing = true
	err := c.compute(false)
	c.recomputing = false
	if err != nil {
		if c.onError != nil {
			c.onError(c, err)
			return nil
		}
		return fmt.Errorf("recompute: %w", err)
	}
	return nil
}

func (c *Computation) needsRecompute() bool {
	return c.invalidated && !c.stopped
}

func (c *Computation) clearDependencies() {
	for _, d := range c.deps.ToSlice() {
		d.dependents.Remove(c)
	}
	c.deps.Clear()
}

func runHook(fn func(*Computation), c *Computation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("computation hook panicked: %v", r)
		}
	}()
	fn(c)
	return nil
}

// Package tracker is a fine-grained reactive-computation runtime.
// A computation declares, implicitly, which dependencies it read during its
// last run and is re-executed whenever any of them changes. Dependencies are
// tracked, not data values: nothing flows through the graph except
// invalidations.
package tracker

import (
	"errors"
	"log"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/petermattis/goid"
)

var (
	ErrFlushInProgress     = errors.New("a flush is already in progress")
	ErrFlushWhileComputing = errors.New("cannot flush while a computation is running")
	ErrStillInvalidated    = errors.New("computation still invalidated after a retry, giving up")
	ErrWrongGoroutine      = errors.New("tracker used from a goroutine it is not owned by")
)

// ErrorFunc is the reporting sink for errors the runtime collects while it
// finishes a batch of work: failing invalidation hooks, failing re-runs
// during a flush, misuse. The runtime never swallows an error silently.
type ErrorFunc func(from any, err error)

// FlusherFactory builds the flush backend for a tracker. The backend decides
// where a requested flush pass runs: inline, on a run loop, or on a spawned
// goroutine.
type FlusherFactory func(t *Tracker) Flusher

type Option func(*Tracker)

// WithOnError replaces the default log-based error sink.
func WithOnError(fn ErrorFunc) Option {
	return func(t *Tracker) { t.onError = fn }
}

// WithFlusherFactory selects the flush backend. Defaults to EagerFlush.
func WithFlusherFactory(ff FlusherFactory) Option {
	return func(t *Tracker) { t.flusherFactory = ff }
}

// WithOwnershipCheck records the constructing goroutine as the tracker's
// owner and reports any use from another goroutine to the error sink. The
// core is single-threaded cooperative; this catches accidental sharing.
func WithOwnershipCheck() Option {
	return func(t *Tracker) { t.ownerID = goid.Get() }
}

type pausedFrame struct {
	current   *Computation
	inCompute bool
}

// Tracker coordinates the dependency tracking process: it holds the
// currently-running computation and owns the flush scheduler.
type Tracker struct {
	flusher        Flusher
	flusherFactory FlusherFactory
	onError        ErrorFunc

	// Top of the tracking stack. Nested computations save and restore it
	// around their run, so a plain pointer is enough.
	current   *Computation
	inCompute bool

	// Saved tracking contexts for Suspend regions.
	pauseStack []pausedFrame

	// One-shot hooks that run when the outermost computation or batch
	// finishes. The eager flush backend parks deferred flush passes here.
	deferred   []func()
	batchDepth int

	computations mapset.Set[*Computation]
	ownerID      int64
}

func New(opts ...Option) *Tracker {
	t := &Tracker{
		computations: mapset.NewThreadUnsafeSet[*Computation](),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.flusherFactory == nil {
		t.flusherFactory = EagerFlush()
	}
	t.flusher = t.flusherFactory(t)
	return t
}

var (
	defaultTracker *Tracker
	defaultOnce    sync.Once
)

// Default returns the process-wide tracker, constructing it on first call
// with the eager flush backend.
func Default() *Tracker {
	defaultOnce.Do(func() {
		defaultTracker = New()
	})
	return defaultTracker
}

// Track creates a computation, runs fn synchronously and returns the handle.
// fn receives the computation itself so it can stop or suspend from inside.
// If another computation is running the new one becomes its child; stopping
// the parent stops it too, and a parent re-run discards it first.
// An error from the first run stops the computation and is returned.
func (t *Tracker) Track(fn func(*Computation) error) (*Computation, error) {
	t.checkOwner()
	return newComputation(t, t.current, fn)
}

// Reactive is an alias of Track.
func (t *Tracker) Reactive(fn func(*Computation) error) (*Computation, error) {
	return t.Track(fn)
}

// TrackDetached runs fn as a computation with no parent, so it survives the
// re-run or stop of whatever computation is current.
func (t *Tracker) TrackDetached(fn func(*Computation) error) (*Computation, error) {
	t.checkOwner()
	return newComputation(t, nil, fn)
}

// Dependency returns a fresh dependency bound to this tracker.
func (t *Tracker) Dependency() *Dependency {
	return &Dependency{
		tracker:    t,
		dependents: mapset.NewThreadUnsafeSet[*Computation](),
	}
}

// Current returns the running computation, or nil when nothing is tracking.
func (t *Tracker) Current() *Computation { return t.current }

// Active reports whether a computation is currently running.
func (t *Tracker) Active() bool { return t.current != nil }

// Flush drains the pending invalidated computations synchronously.
func (t *Tracker) Flush() {
	t.checkOwner()
	if t.inCompute {
		t.reportError(t, ErrFlushWhileComputing)
		return
	}
	t.flusher.Flush()
}

// Flusher exposes the flush backend, mostly for task-runtime adapters and
// tests that need backend-specific synchronization.
func (t *Tracker) Flusher() Flusher { return t.flusher }

// OnInvalidate attaches fn to the currently running computation. No-op when
// nothing is tracking.
func (t *Tracker) OnInvalidate(fn func(*Computation)) {
	if t.current != nil {
		t.current.OnInvalidate(fn)
	}
}

// OnStop attaches fn to the currently running computation. No-op when
// nothing is tracking.
func (t *Tracker) OnStop(fn func(*Computation)) {
	if t.current != nil {
		t.current.OnStop(fn)
	}
}

// OnBeforeFlush registers a one-shot hook that receives the pending
// computations just before the next non-empty flush pass.
func (t *Tracker) OnBeforeFlush(fn func(pending []*Computation)) {
	t.flusher.OnBeforeFlush(fn)
}

// OnAfterFlush registers a one-shot hook that runs when the next flush pass
// completes.
func (t *Tracker) OnAfterFlush(fn func()) {
	t.flusher.OnAfterFlush(fn)
}

// ComputationCount reports how many computations are alive (not stopped).
func (t *Tracker) ComputationCount() int { return t.computations.Cardinality() }

// PauseTracking detaches dependency collection: until the matching
// ResumeTracking, reads register nothing. Calls nest.
func (t *Tracker) PauseTracking() {
	t.pauseStack = append(t.pauseStack, pausedFrame{t.current, t.inCompute})
	t.current = nil
	t.inCompute = false
}

// ResumeTracking restores the tracking context saved by the matching
// PauseTracking.
func (t *Tracker) ResumeTracking() {
	last := len(t.pauseStack) - 1
	frame := t.pauseStack[last]
	t.pauseStack = t.pauseStack[:last]
	t.current = frame.current
	t.inCompute = frame.inCompute
}

// Untracked runs fn with tracking detached, restoring the previous context
// even if fn panics.
func (t *Tracker) Untracked(fn func()) {
	t.PauseTracking()
	defer t.ResumeTracking()
	fn()
}

func (t *Tracker) reportError(from any, err error) {
	if t.onError != nil {
		t.onError(from, err)
		return
	}
	log.Printf("trackerparty: %v", err)
}

func (t *Tracker) checkOwner() {
	if t.ownerID == 0 {
		return
	}
	if id := goid.Get(); id != t.ownerID {
		t.reportError(t, ErrWrongGoroutine)
	}
}

// StartBatch holds eager flush passes back until the matching EndBatch, so
// several changes collapse into one flush cycle. Calls nest.
func (t *Tracker) StartBatch() { t.batchDepth++ }

// EndBatch closes the innermost batch; closing the outermost one runs any
// held-back flush pass.
func (t *Tracker) EndBatch() {
	t.batchDepth--
	if t.batchDepth == 0 {
		t.runDeferred()
	}
}

// Batch runs fn inside a StartBatch/EndBatch pair.
func (t *Tracker) Batch(fn func()) {
	t.StartBatch()
	defer t.EndBatch()
	fn()
}

// Runs the one-shot deferred hooks once neither a computation nor a batch
// is open. Hooks may queue further hooks, which also run.
func (t *Tracker) runDeferred() {
	if t.inCompute || t.batchDepth > 0 {
		return
	}
	for len(t.deferred) > 0 {
		hooks := t.deferred
		t.deferred = nil
		for _, fn := range hooks {
			fn()
		}
	}
}

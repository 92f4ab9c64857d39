package tracker

import (
	"errors"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// Flusher collects invalidated computations and re-runs each exactly once
// per flush cycle. RequireFlush schedules a pass on the backend's own
// execution context and never blocks; Flush drains synchronously.
//
// Re-entrancy contract: invalidations raised while a pass is draining join
// the same cycle, and two passes never run concurrently.
type Flusher interface {
	Add(c *Computation)
	Remove(c *Computation)
	RequireFlush()
	Flush()
	OnBeforeFlush(fn func(pending []*Computation))
	OnAfterFlush(fn func())
	HasPending() bool
}

// Shared queue and drain logic for all backends.
type flushQueue struct {
	tracker *Tracker

	// FIFO of invalidated computations, deduplicated by identity through
	// the queued set.
	pending []*Computation
	queued  mapset.Set[*Computation]

	inFlush   bool
	willFlush bool

	beforeFlush []func([]*Computation)
	afterFlush  []func()
}

func newFlushQueue(t *Tracker) flushQueue {
	return flushQueue{
		tracker: t,
		queued:  mapset.NewThreadUnsafeSet[*Computation](),
	}
}

func (q *flushQueue) Add(c *Computation) {
	if q.queued.Contains(c) {
		return
	}
	q.queued.Add(c)
	q.pending = append(q.pending, c)
}

func (q *flushQueue) Remove(c *Computation) {
	if !q.queued.Contains(c) {
		return
	}
	q.queued.Remove(c)
	if i := slices.Index(q.pending, c); i != -1 {
		q.pending = slices.Delete(q.pending, i, i+1)
	}
}

func (q *flushQueue) OnBeforeFlush(fn func(pending []*Computation)) {
	if fn != nil {
		q.beforeFlush = append(q.beforeFlush, fn)
	}
}

func (q *flushQueue) OnAfterFlush(fn func()) {
	if fn != nil {
		q.afterFlush = append(q.afterFlush, fn)
	}
}

func (q *flushQueue) HasPending() bool { return len(q.pending) > 0 }

// Drains the queue: re-runs every pending computation, including the ones
// invalidated while draining, until nothing is left. Errors from individual
// re-runs are collected and reported to the sink after the cycle completes,
// so one misbehaving computation cannot starve the rest. A computation that
// comes out of its re-run still invalidated gets one retry within the cycle.
func (q *flushQueue) drain() {
	t := q.tracker
	if q.inFlush {
		t.reportError(t, ErrFlushInProgress)
		return
	}
	if t.inCompute {
		t.reportError(t, ErrFlushWhileComputing)
		return
	}
	q.inFlush = true
	defer func() {
		q.inFlush = false
		q.willFlush = false
	}()

	if len(q.pending) > 0 && len(q.beforeFlush) > 0 {
		hooks := q.beforeFlush
		q.beforeFlush = nil
		snapshot := slices.Clone(q.pending)
		for _, fn := range hooks {
			fn(snapshot)
		}
	}

	var errs []error
	var retried mapset.Set[*Computation]
	for len(q.pending) > 0 {
		c := q.pending[0]
		q.pending = q.pending[1:]
		q.queued.Remove(c)
		if c.stopped {
			continue
		}
		if err := c.recompute(); err != nil {
			errs = append(errs, err)
		}
		if c.needsRecompute() {
			if retried == nil {
				retried = mapset.NewThreadUnsafeSet[*Computation]()
			}
			if retried.Contains(c) {
				errs = append(errs, ErrStillInvalidated)
				continue
			}
			retried.Add(c)
			q.Add(c)
		}
	}

	after := q.afterFlush
	q.afterFlush = nil
	for _, fn := range after {
		fn()
	}

	if len(errs) > 0 {
		t.reportError(t, errors.Join(errs...))
	}
}

// EagerFlusher drains inline as soon as a flush is required. When the
// requirement arrives mid-computation the drain is parked until the
// outermost computation finishes, since re-running computations while one
// is building its dependency set is forbidden.
type EagerFlusher struct {
	flushQueue
}

// EagerFlush is the default backend.
func EagerFlush() FlusherFactory {
	return func(t *Tracker) Flusher {
		return &EagerFlusher{flushQueue: newFlushQueue(t)}
	}
}

func (f *EagerFlusher) RequireFlush() {
	if f.willFlush {
		return
	}
	f.willFlush = true
	if f.tracker.inCompute || f.tracker.batchDepth > 0 {
		f.tracker.deferred = append(f.tracker.deferred, f.drain)
		return
	}
	f.drain()
}

func (f *EagerFlusher) Flush() {
	f.drain()
}

package tracker

import (
	"sync"

	"github.com/petermattis/goid"
)

// Loop is a minimal single-goroutine run loop: posted tasks execute one at a
// time, in order, on the loop's goroutine. It is the execution context for
// the LoopFlusher, standing in for whatever event loop the embedding
// application runs.
type Loop struct {
	mu    sync.Mutex
	tasks []func()

	wake     chan struct{}
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	gid int64
}

func NewLoop() *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	ready := make(chan struct{})
	go l.run(ready)
	<-ready
	return l
}

func (l *Loop) run(ready chan<- struct{}) {
	defer close(l.done)
	l.gid = goid.Get()
	close(ready)
	for {
		l.runPending()
		select {
		case <-l.wake:
		case <-l.quit:
			l.runPending()
			return
		}
	}
}

func (l *Loop) runPending() {
	for {
		l.mu.Lock()
		tasks := l.tasks
		l.tasks = nil
		l.mu.Unlock()
		if len(tasks) == 0 {
			return
		}
		for _, fn := range tasks {
			fn()
		}
	}
}

// Post enqueues fn to run on the loop goroutine. Never blocks.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the loop goroutine and waits for it to finish. Called from
// the loop goroutine itself, fn runs inline.
func (l *Loop) Do(fn func()) {
	if goid.Get() == l.gid {
		fn()
		return
	}
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	<-done
}

// Stop runs the remaining tasks and shuts the loop down. Idempotent.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.quit) })
	<-l.done
}

// LoopFlusher schedules flush passes as tasks on a run loop, so draining
// happens cooperatively on the loop's single goroutine. At most one pass is
// posted at a time; invalidations between the post and the drain are picked
// up by the same pass.
type LoopFlusher struct {
	flushQueue
	loop *Loop
}

// LoopFlush builds the event-loop backend. The tracker must itself be used
// from the loop goroutine; Loop.Do is the simplest way in.
func LoopFlush(loop *Loop) FlusherFactory {
	return func(t *Tracker) Flusher {
		return &LoopFlusher{flushQueue: newFlushQueue(t), loop: loop}
	}
}

func (f *LoopFlusher) RequireFlush() {
	if f.willFlush {
		return
	}
	f.willFlush = true
	f.loop.Post(f.drain)
}

func (f *LoopFlusher) Flush() {
	f.loop.Do(f.drain)
}

package tracker

import (
	"sync"
	"sync/atomic"
)

// SpawnFlusher runs each flush pass on a freshly spawned goroutine, the
// moral equivalent of handing the drain to a green-thread scheduler. At most
// one pass is scheduled at a time and passes are serialized, so the
// single-flush-at-a-time invariant holds; everything else still has to stay
// on one logical thread of control at a time.
type SpawnFlusher struct {
	flushQueue
	scheduled atomic.Bool
	mu        sync.Mutex
	wg        sync.WaitGroup
}

// SpawnFlush builds the goroutine backend.
func SpawnFlush() FlusherFactory {
	return func(t *Tracker) Flusher {
		return &SpawnFlusher{flushQueue: newFlushQueue(t)}
	}
}

func (f *SpawnFlusher) RequireFlush() {
	if !f.scheduled.CompareAndSwap(false, true) {
		return
	}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		f.scheduled.Store(false)
		f.drain()
	}()
}

func (f *SpawnFlusher) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drain()
}

// Sync blocks until every scheduled pass has finished.
func (f *SpawnFlusher) Sync() {
	f.wg.Wait()
}

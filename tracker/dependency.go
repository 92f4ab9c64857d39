package tracker

import mapset "github.com/deckarep/golang-set/v2"

// A Dependency is the fan-out edge set linking one data source to the
// computations that read it. It holds no value; holders compose it with
// whatever storage they like (see the value package).
//
// The dependent set is identity-keyed and deduplicated: reading the same
// source many times inside one run still registers a single edge. Back
// references to computations are non-owning; the owning forward edges live
// in each computation and are cleared on its re-run or stop.
type Dependency struct {
	tracker    *Tracker
	dependents mapset.Set[*Computation]

	// Dependencies that re-broadcast our Changed. Lazily allocated, most
	// dependencies are never followed.
	followers mapset.Set[*Dependency]
}

// Depend registers the currently running computation as a dependent and
// reports whether a new edge was added. Reading reactive state outside any
// computation is legal and simply untracked: with no current computation
// this is a no-op.
func (d *Dependency) Depend() bool {
	d.tracker.checkOwner()
	c := d.tracker.current
	if c == nil || c.stopped {
		return false
	}
	if d.dependents.Contains(c) {
		return false
	}
	d.dependents.Add(c)
	c.deps.Add(d)
	return true
}

// Changed invalidates every dependent computation, leaving the dependent set
// empty, and requires a flush. Safe with zero dependents and safe to call
// from inside a running computation: a computation that reads and then
// writes the same dependency schedules exactly one re-run of itself.
func (d *Dependency) Changed() {
	d.tracker.checkOwner()

	if d.followers != nil {
		for _, f := range d.followers.ToSlice() {
			f.Changed()
		}
	}

	deps := d.dependents.ToSlice()
	if len(deps) == 0 {
		return
	}
	for _, c := range deps {
		// Invalidate drops the back edge from our dependent set.
		c.Invalidate()
	}
	d.tracker.flusher.RequireFlush()
}

// HasDependents reports whether any computation currently depends on this
// source. No side effects.
func (d *Dependency) HasDependents() bool {
	return d.dependents.Cardinality() > 0
}

// Follow re-broadcasts the Changed of each given dependency through this
// one. Reactive containers use it to expose aggregate dependencies like
// "anything in this map changed".
func (d *Dependency) Follow(others ...*Dependency) {
	for _, o := range others {
		if o.followers == nil {
			o.followers = mapset.NewThreadUnsafeSet[*Dependency]()
		}
		o.followers.Add(d)
	}
}

// Unfollow stops re-broadcasting the given dependencies.
func (d *Dependency) Unfollow(others ...*Dependency) {
	for _, o := range others {
		if o.followers != nil {
			o.followers.Remove(d)
		}
	}
}

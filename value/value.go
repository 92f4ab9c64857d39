// Package value provides reactive value cells on top of the tracker
// runtime: a cell composes one dependency with stored data, so reads inside
// a computation register the edge and equality-gated writes invalidate it.
package value

import (
	"reflect"

	"github.com/delaneyj/trackerparty/tracker"
)

// Value is a single reactive cell. Get registers the current computation as
// a dependent; Set fires the change only when the new value actually
// differs, per the cell's equality function.
type Value[T any] struct {
	tracker *tracker.Tracker
	dep     *tracker.Dependency
	val     T
	set     bool
	equal   func(a, b T) bool
}

// New returns a cell holding initial, comparing with reflect.DeepEqual.
func New[T any](t *tracker.Tracker, initial T) *Value[T] {
	v := NewEmpty[T](t)
	v.val = initial
	v.set = true
	return v
}

// NewEq is New with a custom equality function.
func NewEq[T any](t *tracker.Tracker, initial T, equal func(a, b T) bool) *Value[T] {
	v := New(t, initial)
	v.equal = equal
	return v
}

// NewEmpty returns a cell with no value yet. Get reports the zero value
// until the first Set; TryGet tells the two apart.
func NewEmpty[T any](t *tracker.Tracker) *Value[T] {
	return &Value[T]{
		tracker: t,
		dep:     t.Dependency(),
		equal:   deepEqual[T],
	}
}

// Get reads the value, registering the running computation as a dependent.
func (v *Value[T]) Get() T {
	v.dep.Depend()
	return v.val
}

// TryGet is Get plus whether the cell has been set at all.
func (v *Value[T]) TryGet() (T, bool) {
	v.dep.Depend()
	return v.val, v.set
}

// Set stores the new value and invalidates dependents when it differs from
// the previous one. The first Set on an empty cell always counts as a
// change.
func (v *Value[T]) Set(next T) {
	wasSet := v.set
	prev := v.val
	v.val = next
	v.set = true
	if wasSet && v.equal(prev, next) {
		return
	}
	v.dep.Changed()
}

// Dep exposes the underlying dependency, e.g. to Follow it from an
// aggregate.
func (v *Value[T]) Dep() *tracker.Dependency { return v.dep }

func deepEqual[T any](a, b T) bool {
	return reflect.DeepEqual(a, b)
}

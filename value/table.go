package value

import "github.com/delaneyj/trackerparty/tracker"

// Table keys independent reactive cells by a non-owning identifier, the
// side-table shape used for per-instance attributes: the table never owns
// the instances, it only holds their reactive state, and Drop is the
// destruction hook that releases an instance's entry.
type Table[K comparable, T any] struct {
	tracker *tracker.Tracker
	cells   map[K]*Value[T]
	equal   func(a, b T) bool
}

func NewTable[K comparable, T any](t *tracker.Tracker) *Table[K, T] {
	return &Table[K, T]{
		tracker: t,
		cells:   map[K]*Value[T]{},
		equal:   deepEqual[T],
	}
}

// NewTableEq is NewTable with a custom per-cell equality function.
func NewTableEq[K comparable, T any](t *tracker.Tracker, equal func(a, b T) bool) *Table[K, T] {
	tb := NewTable[K, T](t)
	tb.equal = equal
	return tb
}

func (tb *Table[K, T]) cell(key K) *Value[T] {
	c, ok := tb.cells[key]
	if !ok {
		c = NewEmpty[T](tb.tracker)
		c.equal = tb.equal
		tb.cells[key] = c
	}
	return c
}

// Get reads the cell for key, registering the running computation with it.
// A key that was never Set still registers, so the computation re-runs once
// the value arrives.
func (tb *Table[K, T]) Get(key K) (T, bool) {
	return tb.cell(key).TryGet()
}

// Set writes the cell for key.
func (tb *Table[K, T]) Set(key K, v T) {
	tb.cell(key).Set(v)
}

// Drop removes the entry for key, invalidating whatever depended on it.
// Call it from the instance's teardown path.
func (tb *Table[K, T]) Drop(key K) {
	c, ok := tb.cells[key]
	if !ok {
		return
	}
	delete(tb.cells, key)
	c.dep.Changed()
}

// Len reports how many keys currently hold state.
func (tb *Table[K, T]) Len() int { return len(tb.cells) }

// ComputedTable derives each key's value through a tracked computation, so
// the value refreshes reactively whenever its own dependencies change. This
// is the computed-attribute counterpart of Table.
type ComputedTable[K comparable, T any] struct {
	table *Table[K, T]
	comps map[K]*tracker.Computation
	fn    func(K) T
}

func NewComputedTable[K comparable, T any](t *tracker.Tracker, fn func(K) T) *ComputedTable[K, T] {
	return &ComputedTable[K, T]{
		table: NewTable[K, T](t),
		comps: map[K]*tracker.Computation{},
		fn:    fn,
	}
}

// Get reads the derived value for key, starting its computation on first
// access. The computation must not fail on first run; a failing derivation
// is reported through the tracker's error sink on re-runs.
func (ct *ComputedTable[K, T]) Get(key K) (T, error) {
	if _, ok := ct.comps[key]; !ok {
		// The computation survives the caller's computation: the cache
		// outlives any one reader.
		comp, err := ct.table.tracker.TrackDetached(func(*tracker.Computation) error {
			ct.table.Set(key, ct.fn(key))
			return nil
		})
		if err != nil {
			var zero T
			return zero, err
		}
		ct.comps[key] = comp
	}
	v, _ := ct.table.Get(key)
	return v, nil
}

// Drop stops the key's computation and releases its state.
func (ct *ComputedTable[K, T]) Drop(key K) {
	if comp, ok := ct.comps[key]; ok {
		comp.Stop()
		delete(ct.comps, key)
	}
	ct.table.Drop(key)
}

package record

import (
	"reflect"
	"sort"

	"github.com/delaneyj/trackerparty/tracker"
)

// Map is a reactive string-keyed map. Every key carries its own dependency;
// on top of those sit a structure dependency (key added or removed) and two
// aggregates wired with Follow: Values (any value changed) and All (any
// change at all).
//
// Reads are tracked at the narrowest useful grain: Get depends on the key
// when present and on the structure when absent, so a computation that
// missed a key re-runs once the key appears.
type Map struct {
	tracker *tracker.Tracker
	data    map[string]any
	keyDeps map[string]*tracker.Dependency

	structure *tracker.Dependency
	values    *tracker.Dependency
	all       *tracker.Dependency

	equal func(a, b any) bool
}

func NewMap(t *tracker.Tracker) *Map {
	m := &Map{
		tracker:   t,
		data:      map[string]any{},
		keyDeps:   map[string]*tracker.Dependency{},
		structure: t.Dependency(),
		values:    t.Dependency(),
		all:       t.Dependency(),
		equal:     func(a, b any) bool { return reflect.DeepEqual(a, b) },
	}
	m.all.Follow(m.structure, m.values)
	return m
}

// Get reads a key, depending on it. Absent keys depend on the structure
// instead.
func (m *Map) Get(key string) (any, bool) {
	if dep, ok := m.keyDeps[key]; ok {
		dep.Depend()
		return m.data[key], true
	}
	m.structure.Depend()
	return nil, false
}

// Set writes a key. Adding a key fires the structure; changing an existing
// key fires only when the value differs.
func (m *Map) Set(key string, v any) {
	dep, existed := m.keyDeps[key]
	if !existed {
		dep = m.tracker.Dependency()
		m.keyDeps[key] = dep
		m.values.Follow(dep)
		m.data[key] = v
		// One flush cycle for both the new key and the structural change.
		m.tracker.Batch(func() {
			dep.Changed()
			m.structure.Changed()
		})
		return
	}
	prev := m.data[key]
	m.data[key] = v
	if m.equal(prev, v) {
		return
	}
	dep.Changed()
}

// Delete removes a key, firing both its dependency and the structure.
func (m *Map) Delete(key string) {
	dep, ok := m.keyDeps[key]
	if !ok {
		return
	}
	delete(m.data, key)
	delete(m.keyDeps, key)
	m.values.Unfollow(dep)
	m.tracker.Batch(func() {
		dep.Changed()
		m.structure.Changed()
	})
}

// Has reports key presence, depending on the structure.
func (m *Map) Has(key string) bool {
	m.structure.Depend()
	_, ok := m.data[key]
	return ok
}

// Len depends on the structure.
func (m *Map) Len() int {
	m.structure.Depend()
	return len(m.data)
}

// Keys depends on the structure and returns the keys sorted, so callers get
// a stable view.
func (m *Map) Keys() []string {
	m.structure.Depend()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns the aggregate dependency over every value in the map.
func (m *Map) Values() *tracker.Dependency { return m.values }

// Structure returns the dependency over key addition and removal.
func (m *Map) Structure() *tracker.Dependency { return m.structure }

// All returns the dependency over any change whatsoever.
func (m *Map) All() *tracker.Dependency { return m.all }

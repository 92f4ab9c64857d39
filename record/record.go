// Package record builds reactive compound values out of tracker
// dependencies: fixed-field records with one dependency per field, and a
// string-keyed map with structural and aggregate dependencies.
package record

import (
	"fmt"
	"reflect"

	"github.com/cespare/xxhash/v2"
	"github.com/delaneyj/trackerparty/tracker"
)

// Record is a fixed set of named reactive fields. Reading a field inside a
// computation depends on that field only, so writes to other fields don't
// re-run it. Field names are interned to xxhash symbols once at
// construction.
type Record struct {
	tracker *tracker.Tracker
	fields  map[uint64]*fieldSlot
	names   []string
	equal   func(a, b any) bool
}

type fieldSlot struct {
	name string
	dep  *tracker.Dependency
	val  any
	set  bool
}

func sym(name string) uint64 {
	return xxhash.Sum64String(name)
}

// New returns a record with the given fields, all unset.
func New(t *tracker.Tracker, fields ...string) *Record {
	r := &Record{
		tracker: t,
		fields:  make(map[uint64]*fieldSlot, len(fields)),
		names:   fields,
		equal:   func(a, b any) bool { return reflect.DeepEqual(a, b) },
	}
	for _, name := range fields {
		r.fields[sym(name)] = &fieldSlot{name: name, dep: t.Dependency()}
	}
	return r
}

// NewEq is New with a custom field equality function.
func NewEq(t *tracker.Tracker, equal func(a, b any) bool, fields ...string) *Record {
	r := New(t, fields...)
	r.equal = equal
	return r
}

// Fields lists the field names in declaration order.
func (r *Record) Fields() []string { return r.names }

// Get reads a field, registering the running computation with its
// dependency. Unknown fields are an error.
func (r *Record) Get(name string) (any, error) {
	slot, ok := r.fields[sym(name)]
	if !ok {
		return nil, fmt.Errorf("record has no field %q", name)
	}
	slot.dep.Depend()
	return slot.val, nil
}

// Set writes a field, firing its dependency when the value differs from the
// previous one. The first write always fires.
func (r *Record) Set(name string, v any) error {
	slot, ok := r.fields[sym(name)]
	if !ok {
		return fmt.Errorf("record has no field %q", name)
	}
	wasSet := slot.set
	prev := slot.val
	slot.val = v
	slot.set = true
	if wasSet && r.equal(prev, v) {
		return nil
	}
	slot.dep.Changed()
	return nil
}

// FieldDep exposes a field's dependency, e.g. to Follow it from an
// aggregate. Nil for unknown fields.
func (r *Record) FieldDep(name string) *tracker.Dependency {
	slot, ok := r.fields[sym(name)]
	if !ok {
		return nil
	}
	return slot.dep
}

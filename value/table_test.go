package value_test

import (
	"strings"
	"testing"

	"github.com/delaneyj/trackerparty/tracker"
	"github.com/delaneyj/trackerparty/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTablePerKeyIsolation(t *testing.T) {
	trk := tracker.New()
	tb := value.NewTable[string, int](trk)
	tb.Set("a", 1)
	tb.Set("b", 2)

	aRuns, bRuns := 0, 0
	_, err := trk.Track(func(c *tracker.Computation) error {
		tb.Get("a")
		aRuns++
		return nil
	})
	require.NoError(t, err)
	_, err = trk.Track(func(c *tracker.Computation) error {
		tb.Get("b")
		bRuns++
		return nil
	})
	require.NoError(t, err)

	tb.Set("a", 10)
	assert.Equal(t, 2, aRuns)
	assert.Equal(t, 1, bRuns)
}

func TestTableGetBeforeSetRegisters(t *testing.T) {
	trk := tracker.New()
	tb := value.NewTable[int, string](trk)

	var seen []string
	_, err := trk.Track(func(c *tracker.Computation) error {
		got, _ := tb.Get(42)
		seen = append(seen, got)
		return nil
	})
	require.NoError(t, err)

	tb.Set(42, "arrived")
	assert.Equal(t, []string{"", "arrived"}, seen)
}

func TestTableDropInvalidatesAndReleases(t *testing.T) {
	trk := tracker.New()
	tb := value.NewTable[string, int](trk)
	tb.Set("a", 1)
	require.Equal(t, 1, tb.Len())

	var oks []bool
	_, err := trk.Track(func(c *tracker.Computation) error {
		_, ok := tb.Get("a")
		oks = append(oks, ok)
		return nil
	})
	require.NoError(t, err)

	// Drop invalidates the reader, whose re-run observes the absence
	// (and leaves a fresh empty cell behind, still registered).
	tb.Drop("a")
	assert.Equal(t, []bool{true, false}, oks)
	assert.Equal(t, 1, tb.Len())
}

func TestComputedTable(t *testing.T) {
	trk := tracker.New()
	src := value.New(trk, 2)

	derivations := 0
	ct := value.NewComputedTable(trk, func(k int) int {
		derivations++
		return k * src.Get()
	})

	got, err := ct.Get(3)
	require.NoError(t, err)
	assert.Equal(t, 6, got)
	assert.Equal(t, 1, derivations)

	// Cached: a second read doesn't re-derive.
	got, err = ct.Get(3)
	require.NoError(t, err)
	assert.Equal(t, 6, got)
	assert.Equal(t, 1, derivations)

	// Reactive: the derivation itself re-runs when its dependency changes.
	src.Set(5)
	got, err = ct.Get(3)
	require.NoError(t, err)
	assert.Equal(t, 15, got)
	assert.Equal(t, 2, derivations)

	ct.Drop(3)
	src.Set(7)
	assert.Equal(t, 2, derivations)
}

func TestComputedTableReaderTracksDerivedValue(t *testing.T) {
	trk := tracker.New()
	src := value.New(trk, 1)
	ct := value.NewComputedTable(trk, func(k string) string {
		return strings.Repeat(k, src.Get())
	})

	var seen []string
	_, err := trk.Track(func(c *tracker.Computation) error {
		got, err := ct.Get("ab")
		if err != nil {
			return err
		}
		seen = append(seen, got)
		return nil
	})
	require.NoError(t, err)

	src.Set(2)
	assert.Equal(t, []string{"ab", "abab"}, seen)
}

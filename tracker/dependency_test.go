package tracker_test

import (
	"testing"

	"github.com/delaneyj/trackerparty/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDependDeduplicatesWithinRun(t *testing.T) {
	trk := tracker.New()
	dep := trk.Dependency()

	var added []bool
	runs := 0
	_, err := trk.Track(func(c *tracker.Computation) error {
		runs++
		added = append(added, dep.Depend(), dep.Depend(), dep.Depend())
		return nil
	})
	require.NoError(t, err)

	// One edge no matter how many reads, and one re-run per change.
	assert.Equal(t, []bool{true, false, false}, added)
	dep.Changed()
	assert.Equal(t, 2, runs)
}

func TestDependReregistersAcrossRuns(t *testing.T) {
	trk := tracker.New()
	dep := trk.Dependency()

	var added []bool
	_, err := trk.Track(func(c *tracker.Computation) error {
		added = append(added, dep.Depend())
		return nil
	})
	require.NoError(t, err)

	dep.Changed()

	// The re-run rebuilds the dependency set from scratch, so the edge is
	// fresh each generation.
	assert.Equal(t, []bool{true, true}, added)
}

func TestFollowRebroadcastsChanged(t *testing.T) {
	trk := tracker.New()
	leaf := trk.Dependency()
	aggregate := trk.Dependency()
	aggregate.Follow(leaf)

	runs := 0
	_, err := trk.Track(func(c *tracker.Computation) error {
		aggregate.Depend()
		runs++
		return nil
	})
	require.NoError(t, err)

	leaf.Changed()
	assert.Equal(t, 2, runs)

	aggregate.Unfollow(leaf)
	leaf.Changed()
	assert.Equal(t, 2, runs)
}

func TestFollowChain(t *testing.T) {
	trk := tracker.New()
	leaf := trk.Dependency()
	mid := trk.Dependency()
	top := trk.Dependency()
	mid.Follow(leaf)
	top.Follow(mid)

	runs := 0
	_, err := trk.Track(func(c *tracker.Computation) error {
		top.Depend()
		runs++
		return nil
	})
	require.NoError(t, err)

	leaf.Changed()
	assert.Equal(t, 2, runs)
}

func TestChangedClearsDependents(t *testing.T) {
	trk := tracker.New()
	dep := trk.Dependency()

	comp, err := trk.Track(func(c *tracker.Computation) error {
		if c.FirstRun() {
			dep.Depend()
		}
		return nil
	})
	require.NoError(t, err)
	require.True(t, dep.HasDependents())

	// The re-run doesn't read dep again, so the set stays empty.
	dep.Changed()
	assert.False(t, dep.HasDependents())
	comp.Stop()
}

func TestDependFromStoppedComputationIsNoop(t *testing.T) {
	trk := tracker.New()
	dep := trk.Dependency()

	_, err := trk.Track(func(c *tracker.Computation) error {
		c.Stop()
		assert.False(t, dep.Depend())
		return nil
	})
	require.NoError(t, err)
	assert.False(t, dep.HasDependents())
}

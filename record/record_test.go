package record_test

import (
	"testing"

	"github.com/delaneyj/trackerparty/record"
	"github.com/delaneyj/trackerparty/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordPerFieldTracking(t *testing.T) {
	trk := tracker.New()
	point := record.New(trk, "x", "y")
	require.NoError(t, point.Set("x", 10))
	require.NoError(t, point.Set("y", 15))

	var results [][2]any
	_, err := trk.Track(func(c *tracker.Computation) error {
		x, err := point.Get("x")
		if err != nil {
			return err
		}
		y, err := point.Get("y")
		if err != nil {
			return err
		}
		results = append(results, [2]any{x, y})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][2]any{{10, 15}}, results)

	require.NoError(t, point.Set("x", 20))
	assert.Equal(t, [][2]any{{10, 15}, {20, 15}}, results)

	// Writing the same values again changes nothing.
	require.NoError(t, point.Set("x", 20))
	require.NoError(t, point.Set("y", 15))
	assert.Len(t, results, 2)

	require.NoError(t, point.Set("y", 25))
	assert.Equal(t, [][2]any{{10, 15}, {20, 15}, {20, 25}}, results)
}

func TestRecordUnknownField(t *testing.T) {
	trk := tracker.New()
	r := record.New(trk, "x")

	_, err := r.Get("nope")
	assert.Error(t, err)
	assert.Error(t, r.Set("nope", 1))
	assert.Nil(t, r.FieldDep("nope"))
	assert.NotNil(t, r.FieldDep("x"))
	assert.Equal(t, []string{"x"}, r.Fields())
}

func TestRecordFieldOnlyInvalidatesItsReaders(t *testing.T) {
	trk := tracker.New()
	r := record.New(trk, "x", "y")

	xRuns, yRuns := 0, 0
	_, err := trk.Track(func(c *tracker.Computation) error {
		if _, err := r.Get("x"); err != nil {
			return err
		}
		xRuns++
		return nil
	})
	require.NoError(t, err)
	_, err = trk.Track(func(c *tracker.Computation) error {
		if _, err := r.Get("y"); err != nil {
			return err
		}
		yRuns++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, r.Set("x", 1))
	assert.Equal(t, 2, xRuns)
	assert.Equal(t, 1, yRuns)
}

func TestRecordAggregateViaFollow(t *testing.T) {
	trk := tracker.New()
	r := record.New(trk, "x", "y")
	anyField := trk.Dependency()
	anyField.Follow(r.FieldDep("x"), r.FieldDep("y"))

	runs := 0
	_, err := trk.Track(func(c *tracker.Computation) error {
		anyField.Depend()
		runs++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, r.Set("x", 1))
	require.NoError(t, r.Set("y", 2))
	assert.Equal(t, 3, runs)
}

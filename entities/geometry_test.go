package entities

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var square = Polygon{
	{X: 1, Y: 1},
	{X: 5, Y: 1},
	{X: 5, Y: 5},
	{X: 1, Y: 5},
}

func TestClosed(t *testing.T) {
	{
		points, err := square.Closed()
		require.NoError(t, err)
		assert.Len(t, points, len(square)+1)
		assert.Equal(t, square[0], points[len(points)-1])
		assert.Len(t, square, 4, "closing must not touch the stored polygon")
	}
	{
		points, err := Polygon{{X: 3, Y: 3}}.Closed()
		require.NoError(t, err)
		assert.Equal(t, []Point2D{{X: 3, Y: 3}, {X: 3, Y: 3}}, points)
	}
	{
		_, err := Polygon{}.Closed()
		assert.ErrorIs(t, err, ErrEmptyPolygon)
	}
}

func TestIsDegenerate(t *testing.T) {
	assert.Equal(t, false, square.IsDegenerate())
	assert.Equal(t, true, square[:2].IsDegenerate())
	assert.Equal(t, true, square[:1].IsDegenerate())
}

func TestPolygonsFromEntries(t *testing.T) {
	raw := `[{"cgPoints":[{"x":1,"y":2},{"x":3,"y":4}]},{"cgPoints":[{"x":5.5,"y":6}]}]`
	var entries []GeometryEntry
	require.NoError(t, json.Unmarshal([]byte(raw), &entries))

	polygons := PolygonsFromEntries(entries)
	require.Len(t, polygons, 2)
	assert.Equal(t, Polygon{{X: 1, Y: 2}, {X: 3, Y: 4}}, polygons[0])
	assert.Equal(t, Polygon{{X: 5.5, Y: 6}}, polygons[1])
}

func TestPolygonString(t *testing.T) {
	assert.Equal(t, `[{"x":1,"y":1}]`, square[:1].String())
}

package entities

import (
	"encoding/json"
	"errors"
)

var ErrEmptyPolygon = errors.New("polygon has no points")

type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Polygon is an open point list; the closing edge back to the first point is
// implied and only materialised by Closed.
type Polygon []Point2D

// Closed returns the points with the first point re-appended.
func (polygon Polygon) Closed() ([]Point2D, error) {
	if len(polygon) == 0 {
		return nil, ErrEmptyPolygon
	}
	points := make([]Point2D, 0, len(polygon)+1)
	points = append(points, polygon...)
	points = append(points, polygon[0])
	return points, nil
}

// IsDegenerate reports whether the polygon cannot enclose an area.
func (polygon Polygon) IsDegenerate() bool {
	return len(polygon) < 3
}

func (polygon Polygon) String() string {
	b, _ := json.Marshal(polygon)
	return string(b)
}

// GeometryEntry is one element of an annotation list, sidecar or inline.
type GeometryEntry struct {
	Points []Point2D `json:"cgPoints"`
}

func PolygonsFromEntries(entries []GeometryEntry) []Polygon {
	polygons := make([]Polygon, 0, len(entries))
	for _, entry := range entries {
		polygons = append(polygons, Polygon(entry.Points))
	}
	return polygons
}

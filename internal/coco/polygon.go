package coco

import (
	"errors"
	"fmt"
	"math"
)

// ErrMalformedGeometry marks an annotation whose polygon or RLE cannot be
// rasterized. Callers skip the annotation and keep going.
var ErrMalformedGeometry = errors.New("malformed geometry")

// ValidatePolygon checks a flat [x1, y1, x2, y2, ...] vertex list: it needs an
// even number of finite coordinates, at least three vertices, and no two
// non-adjacent edges may cross.
func ValidatePolygon(poly []float64) error {
	if len(poly)%2 != 0 {
		return fmt.Errorf("%w: odd coordinate count %d", ErrMalformedGeometry, len(poly))
	}
	for _, v := range poly {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coordinate", ErrMalformedGeometry)
		}
	}
	distinct := compact(poly)
	if n := len(distinct) / 2; n < 3 {
		return fmt.Errorf("%w: polygon has %d distinct vertices, need at least 3", ErrMalformedGeometry, n)
	}
	if i, j, ok := selfIntersection(distinct); ok {
		return fmt.Errorf("%w: edges %d and %d intersect", ErrMalformedGeometry, i, j)
	}
	return nil
}

// compact drops repeated consecutive vertices, including a closing vertex
// equal to the first one.
func compact(poly []float64) []float64 {
	out := make([]float64, 0, len(poly))
	for i := 0; i+1 < len(poly); i += 2 {
		n := len(out)
		if n >= 2 && out[n-2] == poly[i] && out[n-1] == poly[i+1] {
			continue
		}
		out = append(out, poly[i], poly[i+1])
	}
	for len(out) >= 4 && out[0] == out[len(out)-2] && out[1] == out[len(out)-1] {
		out = out[:len(out)-2]
	}
	return out
}

type point struct{ x, y float64 }

func vertex(poly []float64, i int) point {
	n := len(poly) / 2
	i %= n
	return point{poly[2*i], poly[2*i+1]}
}

// selfIntersection returns the first pair of non-adjacent edges that touch.
// Edge i runs from vertex i to vertex i+1 (wrapping).
func selfIntersection(poly []float64) (int, int, bool) {
	n := len(poly) / 2
	for i := 0; i < n; i++ {
		a, b := vertex(poly, i), vertex(poly, i+1)
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				// first and last edge share vertex 0
				continue
			}
			c, d := vertex(poly, j), vertex(poly, j+1)
			if segmentsIntersect(a, b, c, d) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

func orientation(a, b, c point) int {
	v := (b.x-a.x)*(c.y-a.y) - (b.y-a.y)*(c.x-a.x)
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func onSegment(a, b, p point) bool {
	return math.Min(a.x, b.x) <= p.x && p.x <= math.Max(a.x, b.x) &&
		math.Min(a.y, b.y) <= p.y && p.y <= math.Max(a.y, b.y)
}

func segmentsIntersect(a, b, c, d point) bool {
	o1 := orientation(a, b, c)
	o2 := orientation(a, b, d)
	o3 := orientation(c, d, a)
	o4 := orientation(c, d, b)

	if o1 != o2 && o3 != o4 && o1 != 0 && o2 != 0 && o3 != 0 && o4 != 0 {
		return true
	}
	if o1 == 0 && onSegment(a, b, c) {
		return true
	}
	if o2 == 0 && onSegment(a, b, d) {
		return true
	}
	if o3 == 0 && onSegment(c, d, a) {
		return true
	}
	if o4 == 0 && onSegment(c, d, b) {
		return true
	}
	return false
}

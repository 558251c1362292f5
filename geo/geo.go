package geo

import (
	"math"
	"sort"
	"strconv"
)

// Point is an immutable pair of 2D coordinates. Two points are equal only
// when both coordinates are exactly equal, no epsilon.
type Point struct {
	X, Y float64
}

func (p Point) String() string {
	return strconv.FormatFloat(p.X, 'g', -1, 64) + "," + strconv.FormatFloat(p.Y, 'g', -1, 64)
}

// less orders points by x, then y, ascending
func less(a, b Point) bool {
	return a.X < b.X || (a.X == b.X && a.Y < b.Y)
}

// cross returns the z component of (a-o) x (b-o), positive when o->a->b
// makes a strict left turn.
func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// ConvexHull returns the hull vertices in counter-clockwise order, built
// with the monotone chain method. Points on a hull edge are dropped, only
// strict corners are kept. Inputs of 0 or 1 points come back as-is.
// The input slice is never modified.
func ConvexHull(points []Point) []Point {
	n := len(points)
	if n <= 1 {
		return append([]Point(nil), points...)
	}

	sorted := append([]Point(nil), points...)
	sort.Slice(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })

	hull := make([]Point, 0, 2*n)
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	// upper chain; the lower chain stays untouched below length t
	t := len(hull) + 1
	for i := n - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= t && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	// the last point closes the loop and duplicates hull[0]
	return hull[:len(hull)-1]
}

// PolygonArea computes the shoelace area of a polygon given in vertex
// order, wrapping from the last vertex back to the first. The empty
// polygon has area zero.
func PolygonArea(polygon []Point) float64 {
	n := len(polygon)
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		p, q := polygon[i], polygon[(i+1)%n]
		sum += p.X*q.Y - q.X*p.Y
	}
	return math.Abs(sum) / 2
}

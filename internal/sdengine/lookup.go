package sdengine

import (
	"sort"

	"github.com/nvandessel/sdrun/internal/model"
)

// sortedPoints returns a copy of points ordered by x.
func sortedPoints(points []model.Point) []model.Point {
	out := make([]model.Point, len(points))
	copy(out, points)
	sort.SliceStable(out, func(i, j int) bool { return out[i].X < out[j].X })
	return out
}

// interpolate evaluates a graphical function at x. Values outside the x
// range clamp to the nearest end point.
func interpolate(points []model.Point, x float64) float64 {
	switch {
	case len(points) == 0:
		return 0
	case x <= points[0].X:
		return points[0].Y
	case x >= points[len(points)-1].X:
		return points[len(points)-1].Y
	}

	i := sort.Search(len(points), func(i int) bool { return points[i].X >= x })
	hi, lo := points[i], points[i-1]
	if hi.X == x {
		return hi.Y
	}
	frac := (x - lo.X) / (hi.X - lo.X)
	return lo.Y + frac*(hi.Y-lo.Y)
}

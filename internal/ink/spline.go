package ink

import "github.com/ayusman/kalam/internal/geom"

// curveSteps is the number of line segments used per quadratic piece.
const curveSteps = 8

// Flatten turns a short run of stroke samples into a polyline. Two points
// give a straight segment; longer runs are fitted with quadratic curves
// through the midpoints of consecutive samples, using each inner sample as
// the control point. The polyline always starts at the first sample and
// ends at the last one.
func Flatten(points []geom.Point) []geom.Point {
	if len(points) <= 2 {
		return append([]geom.Point(nil), points...)
	}

	out := make([]geom.Point, 0, (len(points)-2)*curveSteps+2)
	out = append(out, points[0])

	from := points[0]
	for i := 1; i < len(points)-1; i++ {
		ctrl := points[i]
		to := geom.Mid(points[i], points[i+1])
		for s := 1; s <= curveSteps; s++ {
			out = append(out, quadratic(from, ctrl, to, float64(s)/curveSteps))
		}
		from = to
	}

	return append(out, points[len(points)-1])
}

func quadratic(p0, p1, p2 geom.Point, t float64) geom.Point {
	a := p0.Lerp(p1, t)
	b := p1.Lerp(p2, t)
	return a.Lerp(b, t)
}

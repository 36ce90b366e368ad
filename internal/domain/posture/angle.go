package posture

import (
	"math"

	"github.com/okian/posture/internal/domain/model"
)

// FindAngle returns the interior angle at vertex b between the rays b->a and
// b->c, in degrees. A zero-length ray yields 0.
func FindAngle(a, b, c model.Point) float64 {
	v1x, v1y := a.X-b.X, a.Y-b.Y
	v2x, v2y := c.X-b.X, c.Y-b.Y

	n1 := math.Hypot(v1x, v1y)
	n2 := math.Hypot(v2x, v2y)
	if n1 == 0 || n2 == 0 {
		return 0
	}

	cos := (v1x*v2x + v1y*v2y) / (n1 * n2)
	// rounding can push |cos| past 1 for collinear points
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

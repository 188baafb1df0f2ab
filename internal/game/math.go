package game

import "math"

// Simulation primitives: pure math shared by the tick engine.
// Mass is an integer count of mass units; positions are float64 world units.

// MassToRadius converts mass to the collision/render radius.
// radius(m) = ceil(sqrt(100*m)), monotonically non-decreasing in m.
func MassToRadius(mass int64) float64 {
	if mass <= 0 {
		return 0
	}
	return math.Ceil(math.Sqrt(float64(100 * mass)))
}

// SpeedFromMass returns the per-second movement speed for a cell of the given
// mass. Heavier cells move slower on a power curve.
func SpeedFromMass(mass int64, baseSpeed, exponent float64) float64 {
	if mass <= 0 {
		return 0
	}
	return baseSpeed * math.Pow(float64(mass), exponent) * 50
}

// AngleToward returns the angle in radians from (x1,y1) to (x2,y2).
func AngleToward(x1, y1, x2, y2 float64) float64 {
	return math.Atan2(y2-y1, x2-x1)
}

// Distance returns the euclidean distance between two points.
func Distance(x1, y1, x2, y2 float64) float64 {
	dx := x2 - x1
	dy := y2 - y1
	return math.Sqrt(dx*dx + dy*dy)
}

// clampToBounds clamps a center position so a node of radius r stays inside
// the world rectangle.
func clampToBounds(x, y, r, width, height float64) (float64, float64) {
	if x < r {
		x = r
	}
	if x > width-r {
		x = width - r
	}
	if y < r {
		y = r
	}
	if y > height-r {
		y = height - r
	}
	return x, y
}

// reflectOffBorders mirrors the travel angle of a ballistic node that crossed
// a world border and clamps the position back in bounds. Returns the possibly
// adjusted position and angle.
func reflectOffBorders(x, y, r, angle, width, height float64) (float64, float64, float64) {
	if x < r || x > width-r {
		angle = math.Pi - angle
	}
	if y < r || y > height-r {
		angle = -angle
	}
	x, y = clampToBounds(x, y, r, width, height)
	return x, y, angle
}

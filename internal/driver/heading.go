package driver

import "math"

// CompassHeading converts the x/y magnetometer components to a heading in
// degrees. No tilt compensation is applied.
func CompassHeading(mx, my float64) float64 {
	if my == 0 {
		if mx <= 0 {
			return 0
		}
		return 180
	}
	raw := math.Atan(mx/my) * 180 / math.Pi
	if my <= 0 {
		return math.Round(270 + raw)
	}
	return math.Round(90 + raw)
}

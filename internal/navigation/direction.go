package navigation

// Spin directions expressed as power angles.
const (
	Clockwise        = 90.0
	CounterClockwise = 270.0
)

// CalcDirection picks the shorter way around the compass from current to
// target. It returns the power angle to spin with together with the clockwise
// and counter-clockwise distances in degrees.
func CalcDirection(current, target float64) (direction, dcw, dccw float64) {
	if current <= target {
		dcw = target - current
		dccw = current + 360 - target
	} else {
		dcw = 360 - current + target
		dccw = current - target
	}
	if dcw <= dccw {
		return Clockwise, dcw, dccw
	}
	return CounterClockwise, dcw, dccw
}

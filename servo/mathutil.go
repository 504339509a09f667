package servo

import "math"

// float32NaN returns a float32 NaN for use as the "unspecified"
// sentinel in CommandData fields.
func float32NaN() float32 {
	return float32(math.NaN())
}

// isNaN32 reports whether f is NaN. Used pervasively: spec §7 requires
// NaN in any user-facing field (position, velocity, stop_position,
// timeout_s, bounds_min/max) to mean "unspecified" and never leak into
// an output.
func isNaN32(f float32) bool {
	return f != f
}

// clamp32 bounds x to [lo, hi].
func clamp32(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// threshold32 zeros x while it is strictly between negT and posT
// (values equal to either bound pass through), matching the
// measured-velocity deadband ControlLaws applies before the position
// PID sees it.
func threshold32(x, negT, posT float32) float32 {
	if x > negT && x < posT {
		return 0
	}
	return x
}

// wrap0_2Pi folds a Q31-radian-derived angle into [0, 2π).
func wrap0_2Pi(theta float32) float32 {
	const twoPi = float32(2 * math.Pi)
	for theta < 0 {
		theta += twoPi
	}
	for theta >= twoPi {
		theta -= twoPi
	}
	return theta
}

// signOf returns -1, 0, or 1 matching the sign of x.
func signOf(x float32) float32 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

package servo

import "math"

// sinCos returns sin(theta), cos(theta). The original firmware uses a
// Q31 fixed-point CORDIC; on a target with a hardware FPU (this core's
// assumption per spec §1 — a PWM timer + ADCs + SPI encoder, not a
// CORDIC-only part) math.Sincos is the direct equivalent and this is
// where a real CORDIC implementation would be swapped in behind the
// same signature.
func sinCos(theta float32) (sin, cos float32) {
	s, c := math.Sincos(float64(theta))
	return float32(s), float32(c)
}

// clarkePark transforms three phase currents into rotor-frame (d, q)
// given the electrical angle's sin/cos.
func clarkePark(ia, ib, ic, sin, cos float32) (d, q float32) {
	// Clarke: project onto a stationary alpha/beta frame.
	alpha := ia
	beta := (ia + 2*ib) / sqrt3

	// Park: rotate alpha/beta into the rotor frame.
	d = alpha*cos + beta*sin
	q = -alpha*sin + beta*cos
	return d, q
}

// inverseClarkePark transforms rotor-frame (d, q) voltages back to
// three phase voltages given the electrical angle's sin/cos.
func inverseClarkePark(d, q, sin, cos float32) (va, vb, vc float32) {
	alpha := d*cos - q*sin
	beta := d*sin + q*cos

	va = alpha
	vb = (-alpha + beta*sqrt3) / 2
	vc = (-alpha - beta*sqrt3) / 2
	return va, vb, vc
}

const sqrt3 = float32(1.7320508075688772)

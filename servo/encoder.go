package servo

import "math"

// kStartupRezeroTicks is the window (in ISR ticks) during which a
// pending SetPosition is resolved against the nearest 65536-count
// wrap rather than applied directly, so a rezero requested right at
// power-on doesn't race the first unwrap (spec §4.2).
const kStartupRezeroTicks = uint16(kPwmRateHz / 100) // 10ms

// PositionSensor is the one absolute SPI encoder this core drives.
// Sample returns the raw 16-bit position for the current tick; a
// non-nil error latches EncoderFault.
type PositionSensor interface {
	Sample() (uint16, error)
}

// EncoderUnwrapper turns a 16-bit absolute position into a
// monotonically-unwrapping 32-bit count and the electrical angle that
// count implies, given a motor's per-sector offset table (spec §4.2).
type EncoderUnwrapper struct {
	motor *Motor

	haveLast bool
	lastRaw  uint16
	unwrapped int32

	startupCount   uint16
	pendingSetLow  bool
	pendingSet     float32 // raw units, same scale as unwrapped
	rezeroed       bool
}

// NewEncoderUnwrapper binds the unwrapper to the motor whose
// OffsetTable/Invert/Poles it reads.
func NewEncoderUnwrapper(motor *Motor) *EncoderUnwrapper {
	return &EncoderUnwrapper{motor: motor}
}

// RequestSetPosition arms a one-shot rezero to rawUnits (encoder
// counts, unwrappedPositionScale already divided out by the caller).
// On the next Update inside the startup window, the accumulator takes
// the k*65536 + current reading value nearest rawUnits; after the
// window, it is set to rawUnits directly.
func (e *EncoderUnwrapper) RequestSetPosition(rawUnits float32) {
	e.pendingSetLow = true
	e.pendingSet = rawUnits
}

// applyInvert flips the raw reading around the 16-bit wrap if the
// motor record says the encoder runs backwards relative to phase
// order.
func (e *EncoderUnwrapper) applyInvert(raw uint16) uint16 {
	if e.motor.Invert {
		return 0 - raw // wraps mod 65536 in uint16 arithmetic
	}
	return raw
}

// Update consumes one raw sample, advances the unwrapped accumulator,
// and returns the new unwrapped count plus the per-tick signed delta
// VelocityEstimator wants. overLimit reports a jump larger than
// kMaxPositionDelta permits at the configured tick rate; the caller
// latches EncoderFault rather than trusting the sample.
func (e *EncoderUnwrapper) Update(raw uint16) (unwrapped int32, delta int32, overLimit bool) {
	raw = e.applyInvert(raw)

	if e.startupCount < kStartupRezeroTicks {
		e.startupCount++
	}

	if !e.haveLast {
		e.haveLast = true
		e.lastRaw = raw
		e.unwrapped = int32(raw)
		if e.pendingSetLow {
			e.resolveStartupSet(raw)
		}
		return e.unwrapped, 0, false
	}

	d := wrapDelta(e.lastRaw, raw)
	e.lastRaw = raw
	e.unwrapped += d

	if e.pendingSetLow {
		if e.startupCount < kStartupRezeroTicks {
			e.resolveStartupSet(raw)
		} else {
			// Outside the startup window a rezero snaps the
			// accumulator directly to the requested value; there is
			// no ambiguous wrap to resolve.
			e.unwrapped = int32(e.pendingSet)
			e.pendingSetLow = false
			e.rezeroed = true
		}
	}

	over := float32(d) > kMaxPositionDelta || float32(d) < -kMaxPositionDelta
	return e.unwrapped, d, over
}

// resolveStartupSet picks the k*65536 + raw candidate nearest
// pendingSet, matching the firmware's power-on rezero behavior when a
// SetPosition command races the first few samples.
func (e *EncoderUnwrapper) resolveStartupSet(raw uint16) {
	base := e.pendingSet - float32(raw)
	k := roundFloat32(base / 65536.0)
	e.unwrapped = int32(k*65536.0) + int32(raw)
	e.pendingSetLow = false
	e.rezeroed = true
}

// Rezeroed reports whether a SetPosition has been resolved since the
// last call, clearing the flag (used by Status.Rezeroed).
func (e *EncoderUnwrapper) Rezeroed() bool {
	r := e.rezeroed
	e.rezeroed = false
	return r
}

// ElectricalTheta returns the electrical angle implied by a wrapped
// 16-bit position: mechanical angle * poles/2, plus the
// per-sector calibration offset looked up from the motor's table.
func (e *EncoderUnwrapper) ElectricalTheta(wrapped uint16) float32 {
	m := e.motor
	mechanical := float32(wrapped) / 65536.0 * 2 * float32(math.Pi)
	theta := wrap0_2Pi(mechanical * m.positionConstant())

	if m.OffsetLen > 0 {
		sector := uint32(wrapped) * uint32(m.OffsetLen) / 65536
		theta = wrap0_2Pi(theta + m.OffsetTable[sector])
	}
	return theta
}

// wrapDelta returns the signed shortest-path delta from prev to cur
// across a 16-bit wrap, matching spec's "treat consecutive raw
// samples as points on a circle of circumference 65536."
func wrapDelta(prev, cur uint16) int32 {
	d := int32(cur) - int32(prev)
	switch {
	case d > 32768:
		d -= 65536
	case d < -32768:
		d += 65536
	}
	return d
}

func roundFloat32(x float32) float32 {
	if x >= 0 {
		return float32(int32(x + 0.5))
	}
	return float32(int32(x - 0.5))
}

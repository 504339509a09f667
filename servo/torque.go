package servo

// kFudge has no physical derivation in the original firmware; it is
// carried here numerically identical so any previously-calibrated
// motor record (RotationTorqueScale, etc.) still interchanges (spec §9
// design note).
const kFudge = 0.78

// kMaxUnconfiguredCurrent is a 5 A q-axis current bound for a motor
// whose torque constant isn't configured (spec §4.5). Nothing reads
// it: with an unconfigured TorqueModel, TorqueToCurrent returns 0, so
// the torque-driven laws command no q-axis current at all.
const kMaxUnconfiguredCurrent = 5.0

// TorqueModel maps current to torque and back, including the
// rotation-dependent scale/cutoff a motor's datasheet specifies at
// different current levels.
type TorqueModel struct {
	motor *Motor
}

// NewTorqueModel binds a TorqueModel to the motor record it reads its
// coefficients from.
func NewTorqueModel(motor *Motor) *TorqueModel {
	return &TorqueModel{motor: motor}
}

// CurrentToTorque converts q-axis current (amps) to torque (N*m).
func (t *TorqueModel) CurrentToTorque(currentA float32) float32 {
	m := t.motor
	if !m.torqueConfigured() {
		return 0
	}
	scale := m.RotationTorqueScale * kFudge
	if currentA > m.RotationCurrentCutoffA {
		over := currentA - m.RotationCurrentCutoffA
		return scale*m.RotationCurrentCutoffA + scale*m.RotationCurrentScale*over
	}
	if currentA < -m.RotationCurrentCutoffA {
		under := currentA + m.RotationCurrentCutoffA
		return scale*(-m.RotationCurrentCutoffA) + scale*m.RotationCurrentScale*under
	}
	return scale * currentA
}

// TorqueToCurrent is CurrentToTorque's inverse, used by ControlLaws to
// turn a PID's torque output into a q-axis current command (spec
// property P8: round-trips within 1e-6 for |i| below the cutoff).
func (t *TorqueModel) TorqueToCurrent(torqueNm float32) float32 {
	m := t.motor
	if !m.torqueConfigured() {
		return 0
	}
	scale := m.RotationTorqueScale * kFudge
	cutoffTorque := scale * m.RotationCurrentCutoffA
	switch {
	case torqueNm > cutoffTorque:
		over := (torqueNm - cutoffTorque) / (scale * m.RotationCurrentScale)
		return m.RotationCurrentCutoffA + over
	case torqueNm < -cutoffTorque:
		under := (torqueNm + cutoffTorque) / (scale * m.RotationCurrentScale)
		return -m.RotationCurrentCutoffA + under
	default:
		return torqueNm / scale
	}
}

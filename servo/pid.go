package servo

// PidRegulator is a generic PID with feed-forward and per-axis scale
// options (spec §4.8). Each cascaded loop — current d/q, position —
// owns one instance and its own PidState inside Status.
type PidRegulator struct {
	opts  PidOptions
	state *PidState
}

// NewPidRegulator binds a regulator to the PidState slot it will
// mutate; state lives inside Status so it's observable for telemetry
// without a second copy.
func NewPidRegulator(opts PidOptions, state *PidState) *PidRegulator {
	return &PidRegulator{opts: opts, state: state}
}

// SetOptions replaces the gains/scale options, e.g. after UpdateConfig
// or when ControlLaws temporarily overrides KpScale/KdScale (as
// ZeroVelocity does: KpScale=0, KdScale=1).
func (p *PidRegulator) SetOptions(opts PidOptions) {
	p.opts = opts
}

// Apply computes one PID step and advances the integrator. rate is the
// ISR tick rate in Hz (kPwmRateHz in production, overridable in tests).
func (p *PidRegulator) Apply(measured, desired, measuredD, desiredD, rate float32) float32 {
	err := desired - measured
	errD := desiredD - measuredD
	if p.opts.DerivativeOnMeasurement {
		// Derivative acts on -measuredD directly rather than on the
		// error term, avoiding derivative kick when desiredD steps.
		errD = -measuredD
	}

	p.state.Integral += p.opts.Ki / rate * err
	if p.opts.IntegralMax > 0 {
		p.state.Integral = clamp32(p.state.Integral, -p.opts.IntegralMax, p.opts.IntegralMax)
	}

	p.state.LastError = err
	p.state.Desired = desired
	p.state.DesiredD = desiredD

	return p.opts.Kp*p.opts.KpScale*err + p.opts.Kd*p.opts.KdScale*errD + p.state.Integral
}

// Clear resets the integrator, last error, and desireds to zero (spec
// §4.8: "Clear() resets integrator and last-error to 0 and desireds to
// 0"). Controller calls this through ControlLaws when a mode
// transition or a latched fault leaves a PID active set.
func (p *PidRegulator) Clear() {
	p.state.Integral = 0
	p.state.LastError = 0
	p.state.Desired = 0
	p.state.DesiredD = 0
}

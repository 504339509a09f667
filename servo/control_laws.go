package servo

// ControlLaws turns one tick's (Mode, CommandData, Status) into a
// Control: the PWM/voltage/current the ISR commits to the driver
// (spec §4.4, §4.5). It owns the three PID regulators and the torque
// model a single motor needs; Controller holds one ControlLaws per
// motor.
type ControlLaws struct {
	motor  *Motor
	cfg    *ServoConfig
	posCfg *PositionConfig

	pidD        *PidRegulator
	pidQ        *PidRegulator
	pidPosition *PidRegulator
	torque      *TorqueModel

	timeoutRemaining         float32 // seconds left before PositionTimeout fires
	timeoutConsumed          bool    // set by the last TickTimeout call
	positionOverrideConsumed bool    // set by positionControl's last Apply call
}

// PositionOverrideConsumed reports whether the most recent Apply call
// consumed an absolute cmd.Position override, meaning the caller
// should clear it from the published command so the next tick falls
// back to velocity-integrated tracking (spec §4.4).
func (c *ControlLaws) PositionOverrideConsumed() bool {
	return c.positionOverrideConsumed
}

// NewControlLaws wires a ControlLaws to the state slots it mutates
// inside st; cfg and motor are read, never copied, so UpdateConfig
// takes effect on the next tick.
func NewControlLaws(motor *Motor, cfg *ServoConfig, posCfg *PositionConfig, st *Status) *ControlLaws {
	return &ControlLaws{
		motor:       motor,
		cfg:         cfg,
		posCfg:      posCfg,
		pidD:        NewPidRegulator(cfg.PidDq, &st.PidD),
		pidQ:        NewPidRegulator(cfg.PidDq, &st.PidQ),
		pidPosition: NewPidRegulator(cfg.PidPosition, &st.PidPosition),
		torque:      NewTorqueModel(motor),
	}
}

// RefreshOptions re-reads cfg into the PID regulators; called after
// UpdateConfig.
func (c *ControlLaws) RefreshOptions() {
	c.pidD.SetOptions(c.cfg.PidDq)
	c.pidQ.SetOptions(c.cfg.PidDq)
	c.pidPosition.SetOptions(c.cfg.PidPosition)
}

// clearCurrentLoops resets the D/Q integrators; called whenever a
// mode transition leaves the current-PID-active set (spec §4.8).
func (c *ControlLaws) clearCurrentLoops() {
	c.pidD.Clear()
	c.pidQ.Clear()
}

// clearPositionLoop resets the position integrator; called whenever a
// mode transition leaves the position-PID-active set.
func (c *ControlLaws) clearPositionLoop() {
	c.pidPosition.Clear()
}

// limitPwm bounds a duty cycle to the ADC's current-sense window
// (spec invariant: every written duty in [kMinPwm, kMaxPwm]).
func limitPwm(duty float32) float32 {
	return clamp32(duty, kMinPwm, kMaxPwm)
}

// voltageToPwm converts a phase voltage command into a duty cycle
// centered at 50%, given the measured bus voltage. busVoltage <= 0 is
// treated as undriveable and maps to the centered duty with no
// authority, rather than dividing by zero.
func voltageToPwm(voltage, busVoltage float32) float32 {
	if busVoltage <= 0 {
		return 0.5
	}
	return limitPwm(0.5 + voltage/busVoltage/2)
}

// offsetPwm lifts small commands away from 50% duty. When cfg.PwmMin
// is positive and the command's distance from center is nonzero and
// below cfg.PwmMinBlend, that distance is raised to at least
// PwmMin*(1 - distance/PwmMinBlend). Commands at or beyond PwmMinBlend
// from center pass through with no added offset. Every result is
// clamped by limitPwm.
func (c *ControlLaws) offsetPwm(duty float32) float32 {
	centered := duty - 0.5
	mag := centered
	if mag < 0 {
		mag = -mag
	}
	if c.cfg.PwmMin <= 0 || mag >= c.cfg.PwmMinBlend {
		return limitPwm(duty)
	}
	if mag == 0 {
		return limitPwm(duty)
	}
	frac := mag / c.cfg.PwmMinBlend
	floor := c.cfg.PwmMin * (1 - frac)
	if mag < floor {
		centered = signOf(centered) * floor
	}
	return limitPwm(0.5 + centered)
}

// Apply advances every active PID/estimator this tick's mode needs and
// returns the Control snapshot ControlLaws' caller (Controller.Tick)
// commits to the driver.
func (c *ControlLaws) Apply(mode Mode, cmd *CommandData, st *Status, dt float32) Control {
	c.positionOverrideConsumed = false
	switch mode {
	case Stopped, Fault, Enabling, Calibrating, CalibrationComplete:
		return c.stoppedControl()
	case Pwm:
		return c.pwmControl(cmd)
	case Voltage:
		return c.voltageControl(cmd, st)
	case VoltageFoc:
		return c.focControl(cmd.Theta, cmd.DV, cmd.QV, st)
	case VoltageDq:
		return c.focControl(st.ElectricalTheta, cmd.DV, cmd.QV, st)
	case Current:
		return c.currentControl(cmd.IdA, cmd.IqA, st, dt)
	case Position:
		return c.positionControl(cmd, st, dt, false)
	case PositionTimeout:
		return c.positionControl(cmd, st, dt, true)
	case ZeroVelocity:
		return c.zeroVelocityControl(st, dt)
	case StayWithinBounds:
		return c.stayWithinBoundsControl(cmd, st, dt)
	default:
		return c.stoppedControl()
	}
}

// stoppedControl is the Stopped/Fault output: the driver is powered
// down, so the written duty is the literal zero register value, not
// the 0.5-centered encoding active modes use.
func (c *ControlLaws) stoppedControl() Control {
	return Control{Pwm: [3]float32{0, 0, 0}}
}

func (c *ControlLaws) pwmControl(cmd *CommandData) Control {
	var ctl Control
	ctl.Pwm[0] = c.offsetPwm(cmd.Pwm[0])
	ctl.Pwm[1] = c.offsetPwm(cmd.Pwm[1])
	ctl.Pwm[2] = c.offsetPwm(cmd.Pwm[2])
	return ctl
}

func (c *ControlLaws) voltageControl(cmd *CommandData, st *Status) Control {
	var ctl Control
	ctl.Voltage = cmd.Voltage
	ctl.Pwm[0] = c.offsetPwm(voltageToPwm(cmd.Voltage[0], st.BusVoltage))
	ctl.Pwm[1] = c.offsetPwm(voltageToPwm(cmd.Voltage[1], st.BusVoltage))
	ctl.Pwm[2] = c.offsetPwm(voltageToPwm(cmd.Voltage[2], st.BusVoltage))
	return ctl
}

// focControl drives the inverters directly from a commanded d/q
// voltage pair and an electrical angle, skipping both current PIDs.
// VoltageFoc uses the command's own Theta (open loop); VoltageDq uses
// the encoder's measured electrical angle (closed loop on angle only).
func (c *ControlLaws) focControl(theta, dv, qv float32, st *Status) Control {
	sin, cos := sinCos(theta)
	va, vb, vc := inverseClarkePark(dv, qv, sin, cos)

	var ctl Control
	ctl.DV, ctl.QV = dv, qv
	ctl.Voltage = [3]float32{va, vb, vc}
	ctl.Pwm[0] = c.offsetPwm(voltageToPwm(va, st.BusVoltage))
	ctl.Pwm[1] = c.offsetPwm(voltageToPwm(vb, st.BusVoltage))
	ctl.Pwm[2] = c.offsetPwm(voltageToPwm(vc, st.BusVoltage))
	return ctl
}

// currentControl closes the D/Q current loops around desired Id/Iq,
// producing the voltages focControl would need to hit them.
func (c *ControlLaws) currentControl(desiredID, desiredIQ float32, st *Status, dt float32) Control {
	rate := float32(1)
	if dt > 0 {
		rate = 1 / dt
	}

	sin, cos := st.Sin, st.Cos
	measuredD, measuredQ := clarkePark(st.CurrentA, st.CurrentB, st.CurrentC, sin, cos)
	st.DA, st.QA = measuredD, measuredQ

	dv := c.pidD.Apply(measuredD, desiredID, 0, 0, rate)
	qv := c.pidQ.Apply(measuredQ, desiredIQ, 0, 0, rate)

	ctl := c.focControl(st.ElectricalTheta, dv, qv, st)
	ctl.IdA, ctl.IqA = desiredID, desiredIQ
	ctl.TorqueNm = c.torque.CurrentToTorque(desiredIQ)
	return ctl
}

// updateControlPosition advances st.ControlPosition by one tick's
// worth of velocity, honoring an absolute override, the configured
// position bounds, and a stop_position the setpoint may never cross
// in the direction of travel (spec §4.4 Position update law). It
// reports whether cmd.Position was consumed this tick, so the caller
// can clear the one-shot override in the published command, and the
// resulting velocity_command (zeroed once a bound or stop_position
// pins the setpoint).
func updateControlPosition(st *Status, posCfg *PositionConfig, cmdPosition, cmdVelocity, stopPosition float32) (controlPos, velocityCommand float32, consumedPosition bool) {
	switch {
	case !isNaN32(cmdPosition):
		controlPos = cmdPosition
		consumedPosition = true
	case isNaN32(st.ControlPosition):
		controlPos = st.UnwrappedPosition
	default:
		controlPos = st.ControlPosition
	}

	velocityCommand = cmdVelocity
	if isNaN32(velocityCommand) {
		velocityCommand = 0
	}

	before := controlPos
	controlPos = clamp32(controlPos+velocityCommand/kPwmRateHz, posCfg.Min, posCfg.Max)
	if !isNaN32(stopPosition) && (controlPos-stopPosition)*velocityCommand > 0 {
		controlPos = stopPosition
	}
	if controlPos == before {
		velocityCommand = 0
	}
	return controlPos, velocityCommand, consumedPosition
}

// positionControl closes the outer position loop. Its output is a
// torque (via feedforward + PID), converted to a desired q-axis
// current and handed to currentControl. timedOut selects the
// PositionTimeout variant, which clamps torque to
// cfg.TimeoutMaxTorqueNm and ignores the command's own MaxTorqueNm.
func (c *ControlLaws) positionControl(cmd *CommandData, st *Status, dt float32, timedOut bool) Control {
	rate := float32(1)
	if dt > 0 {
		rate = 1 / dt
	}

	desiredPos, desiredVel, consumed := updateControlPosition(st, c.posCfg, cmd.Position, cmd.Velocity, cmd.StopPosition)
	st.ControlPosition = desiredPos
	c.positionOverrideConsumed = consumed

	measuredVel := threshold32(st.Velocity, -c.cfg.VelocityThreshold, c.cfg.VelocityThreshold)

	c.pidPosition.SetOptions(PidOptions{
		Kp:                      c.cfg.PidPosition.Kp,
		Ki:                      c.cfg.PidPosition.Ki,
		Kd:                      c.cfg.PidPosition.Kd,
		KpScale:                 clampKScale(cmd.KpScale),
		KdScale:                 clampKScale(cmd.KdScale),
		IntegralMax:             c.cfg.PidPosition.IntegralMax,
		DerivativeOnMeasurement: c.cfg.PidPosition.DerivativeOnMeasurement,
	})

	torque := c.pidPosition.Apply(st.UnwrappedPosition, desiredPos, measuredVel, desiredVel, rate)

	ff := cmd.FeedforwardNm * c.cfg.FeedforwardScale
	if isNaN32(ff) {
		ff = 0
	}
	torque += ff

	maxTorque := c.cfg.TimeoutMaxTorqueNm
	if !timedOut && !isNaN32(cmd.MaxTorqueNm) {
		maxTorque = cmd.MaxTorqueNm
	}
	if maxTorque > 0 {
		torque = clamp32(torque, -maxTorque, maxTorque)
	}

	desiredIQ := c.torque.TorqueToCurrent(torque * c.motor.UnwrappedPositionScale)
	ctl := c.currentControl(c.fluxBrakeCurrent(st), desiredIQ, st, dt)
	ctl.TorqueNm = torque
	return ctl
}

// fluxBrakeCurrent returns the d-axis current the Position law injects
// to dump excess bus energy into the windings once the 1ms-filtered
// bus voltage rises past flux_brake_min_voltage (regenerative braking
// protection, spec §4.4). Zero when unconfigured (resistance <= 0) or
// below the threshold.
func (c *ControlLaws) fluxBrakeCurrent(st *Status) float32 {
	if c.cfg.FluxBrakeResistanceOhm <= 0 {
		return 0
	}
	over := st.FiltBusVoltage1ms - c.cfg.FluxBrakeMinVoltage
	if over <= 0 {
		return 0
	}
	return over / c.cfg.FluxBrakeResistanceOhm
}

// stayWithinBoundsControl implements the StayWithinBounds law (spec
// §4.4, P9): inside [cmd.BoundsMin, cmd.BoundsMax] the position PID is
// held idle and only feedforward torque (as q-current) is applied;
// outside, it delegates to positionControl targeting the violated
// bound with zero velocity.
func (c *ControlLaws) stayWithinBoundsControl(cmd *CommandData, st *Status, dt float32) Control {
	if !outsideBounds(st.UnwrappedPosition, cmd.BoundsMin, cmd.BoundsMax) {
		c.clearPositionLoop()

		ff := cmd.FeedforwardNm * c.cfg.FeedforwardScale
		if isNaN32(ff) {
			ff = 0
		}
		maxTorque := cmd.MaxTorqueNm
		if isNaN32(maxTorque) {
			maxTorque = c.cfg.TimeoutMaxTorqueNm
		}
		torque := ff
		if maxTorque > 0 {
			torque = clamp32(torque, -maxTorque, maxTorque)
		}

		desiredIQ := c.torque.TorqueToCurrent(torque * c.motor.UnwrappedPositionScale)
		ctl := c.currentControl(0, desiredIQ, st, dt)
		ctl.TorqueNm = torque
		return ctl
	}

	target := cmd.BoundsMax
	if !isNaN32(cmd.BoundsMin) && st.UnwrappedPosition < cmd.BoundsMin {
		target = cmd.BoundsMin
	}
	bounded := *cmd
	bounded.Position = target
	bounded.Velocity = 0
	bounded.StopPosition = float32NaN()
	ctl := c.positionControl(&bounded, st, dt, false)
	// The override consumed above is the synthesized bound target, not
	// a real cmd.Position from the caller; nothing to clear from the
	// published command.
	c.positionOverrideConsumed = false
	return ctl
}

// zeroVelocityControl is the Position law with KpScale forced to 0 and
// KdScale to 1, the setpoint held at the current position with zero
// velocity and no feedforward, and torque limited to
// cfg.TimeoutMaxTorqueNm: only the velocity (derivative) term opposes
// motion, so the axis
// brakes to a stop wherever it already is rather than seeking a
// position (spec §4.4).
func (c *ControlLaws) zeroVelocityControl(st *Status, dt float32) Control {
	rate := float32(1)
	if dt > 0 {
		rate = 1 / dt
	}
	saved := c.pidPosition.opts
	c.pidPosition.SetOptions(PidOptions{
		Kp: saved.Kp, Ki: saved.Ki, Kd: saved.Kd,
		KpScale: 0, KdScale: 1,
		IntegralMax:             saved.IntegralMax,
		DerivativeOnMeasurement: saved.DerivativeOnMeasurement,
	})
	measuredVel := threshold32(st.Velocity, -c.cfg.VelocityThreshold, c.cfg.VelocityThreshold)
	torque := c.pidPosition.Apply(st.UnwrappedPosition, st.UnwrappedPosition, measuredVel, 0, rate)
	if maxTorque := c.cfg.TimeoutMaxTorqueNm; maxTorque > 0 {
		torque = clamp32(torque, -maxTorque, maxTorque)
	}
	desiredIQ := c.torque.TorqueToCurrent(torque * c.motor.UnwrappedPositionScale)
	ctl := c.currentControl(c.fluxBrakeCurrent(st), desiredIQ, st, dt)
	ctl.TorqueNm = torque
	c.pidPosition.SetOptions(saved)
	return ctl
}

// clampKScale bounds a command's KpScale/KdScale multiplier to
// [0, 1e6] and substitutes 1 for NaN (unspecified).
func clampKScale(scale float32) float32 {
	if isNaN32(scale) {
		return 1
	}
	return clamp32(scale, 0, 1e6)
}

// TickTimeout advances the countdown toward PositionTimeout. cmdTimeout
// is the command's one-shot TimeoutS field: zero means nothing new was
// published since the last consume and the existing countdown simply
// decrements, while a nonzero finite value or NaN reloads the
// countdown and is reported as consumed (spec §9: "current_data_->
// timeout_s is also cleared when it is NaN, because NaN != 0.0f is
// true in the source guard" -- preserved here exactly, so an explicit
// NaN reloads c.timeoutRemaining to NaN for that tick rather than
// being treated as "no command"). Returns true once the countdown
// reaches zero, meaning the caller should request a transition into
// PositionTimeout.
func (c *ControlLaws) TickTimeout(cmdTimeout, dt float32) bool {
	c.timeoutConsumed = isNaN32(cmdTimeout) || cmdTimeout != 0
	if c.timeoutConsumed {
		c.timeoutRemaining = cmdTimeout
	}
	if c.timeoutRemaining <= 0 {
		return false
	}
	c.timeoutRemaining -= dt
	if c.timeoutRemaining <= 0 {
		c.timeoutRemaining = 0
		return true
	}
	return false
}

// TimeoutConsumed reports whether the most recent TickTimeout call
// consumed a one-shot cmd.TimeoutS, meaning the caller should clear it
// back to zero in the published command.
func (c *ControlLaws) TimeoutConsumed() bool {
	return c.timeoutConsumed
}

// TimeoutRemaining reports the current countdown for Status.TimeoutS.
func (c *ControlLaws) TimeoutRemaining() float32 {
	return c.timeoutRemaining
}

// ResetTimeout reloads the countdown, used when entering a
// timeout-bearing mode fresh (Position, ZeroVelocity, StayWithinBounds)
// with a default from cfg.DefaultTimeoutS if the command didn't
// specify one.
func (c *ControlLaws) ResetTimeout(cmdTimeout float32) {
	if isNaN32(cmdTimeout) {
		c.timeoutRemaining = c.cfg.DefaultTimeoutS
		return
	}
	c.timeoutRemaining = cmdTimeout
}

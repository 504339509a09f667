package servo

// tick runs one ISR-rate pass: sample hardware, unwrap position,
// resolve the requested mode, dispatch ControlLaws, and commit the
// result to the PWM/GPIO registers. It is the single place per-tick
// work happens; Controller.Tick is a thin wrapper that also advances
// the global tick counter.
func (c *Controller) tick(dt float32) {
	st := &c.status

	driverFault := c.regs.GPIO != nil && c.regs.GPIO.DriverFault()

	if c.regs.ADC != nil {
		sample, err := c.regs.ADC.Sample()
		if err != nil {
			c.latchFault(DmaStreamTransferError)
		} else {
			c.frontend.Update(sample, c.offsetA, c.offsetB, c.offsetC, st)
		}
	}

	rawPos, err := c.sensor.Sample()
	if err != nil {
		c.latchFault(EncoderFault)
	} else {
		unwrapped, delta, overLimit := c.encoder.Update(rawPos)
		if overLimit {
			c.latchFault(EncoderFault)
		}
		st.PositionRaw = rawPos
		st.Position = rawPos
		st.UnwrappedPositionRaw = unwrapped
		st.UnwrappedPosition = float32(unwrapped) * c.motor.UnwrappedPositionScale
		st.ElectricalTheta = c.encoder.ElectricalTheta(rawPos)
		st.Sin, st.Cos = sinCos(st.ElectricalTheta)
		c.velocity.Push(delta)
		st.Velocity = c.velocity.Velocity(c.motor.UnwrappedPositionScale, 1/dt)
		if c.encoder.Rezeroed() {
			st.Rezeroed = true
			RecordDiag(DiagEncoderRezero, st.Mode, Success, unwrapped)
		}
	}

	if fault, derate := c.safety.Check(st, driverFault); fault != Success {
		c.latchFault(fault)
	} else {
		c.currentDerate = derate
	}

	cmd := c.cmdCh.Take()

	if c.handleOneShots(&cmd, st) {
		// A one-shot (SetPosition/RezeroPosition) just fired; the
		// Status fields it touches are already updated, nothing else
		// to dispatch against them this tick.
	}

	next, fault := RequestMode(c.mode, cmd.Mode, st, &c.posCfg)
	c.transitionTo(next, fault, st)

	switch c.mode {
	case Enabling:
		c.advanceEnabling(st)
	case Calibrating:
		c.advanceCalibrating(st)
	default:
		if c.mode.usesPositionPid() && c.mode != PositionTimeout {
			if c.laws.TickTimeout(cmd.TimeoutS, dt) {
				c.transitionTo(PositionTimeout, Success, st)
				RecordDiag(DiagModeChange, PositionTimeout, Success, 0)
			}
			if c.laws.TimeoutConsumed() {
				c.cmdCh.ClearTimeout()
			}
		}
		st.TimeoutS = c.laws.TimeoutRemaining()

		ctl := c.laws.Apply(c.mode, &cmd, st, dt)
		if c.laws.PositionOverrideConsumed() {
			c.cmdCh.ClearPosition()
		}
		c.commit(ctl, st)
	}
}

// handleOneShots applies a pending SetPosition/RezeroPosition/Rezero
// from cmd, if any, and reports whether it did. These never coexist
// with a mode dispatch's normal output in the same tick beyond what
// the mode already reads from st.
func (c *Controller) handleOneShots(cmd *CommandData, st *Status) bool {
	applied := false
	if !isNaN32(cmd.SetPosition) {
		c.encoder.RequestSetPosition(cmd.SetPosition / c.motor.UnwrappedPositionScale)
		applied = true
	}
	if !isNaN32(cmd.RezeroPosition) || cmd.Rezero {
		target := cmd.RezeroPosition
		if isNaN32(target) {
			target = 0
		}
		c.encoder.RequestSetPosition(target / c.motor.UnwrappedPositionScale)
		applied = true
	}
	return applied
}

// latchFault forces the mode machine into Fault and records it,
// matching spec §4.7: any safety-gate failure is immediately
// terminal for the current tick's output (stoppedControl commits
// next).
func (c *Controller) latchFault(code FaultCode) {
	c.status.Fault = code
	if c.mode != Fault {
		if c.mode.usesCurrentPid() {
			c.laws.clearCurrentLoops()
		}
		if c.mode.usesPositionPid() {
			c.laws.clearPositionLoop()
		}
		c.mode = Fault
		c.status.Mode = Fault
		RecordDiag(DiagFault, Fault, code, 0)
	}
}

// transitionTo applies a RequestMode result, clearing whichever PID
// active sets the old mode leaves and the new mode doesn't share
// (spec §4.4/§4.8), and records a diagnostic on any change.
func (c *Controller) transitionTo(next Mode, fault FaultCode, st *Status) {
	if next == c.mode {
		st.Fault = fault
		return
	}
	if !next.usesCurrentPid() && c.mode.usesCurrentPid() {
		c.laws.clearCurrentLoops()
	}
	if !next.usesPositionPid() && c.mode.usesPositionPid() {
		c.laws.clearPositionLoop()
	}
	if next.usesPositionPid() && !c.mode.usesPositionPid() {
		c.laws.ResetTimeout(float32NaN())
		st.ControlPosition = float32NaN()
	}
	RecordDiag(DiagModeChange, next, fault, 0)
	c.mode = next
	st.Mode = next
	st.Fault = fault
}

// advanceEnabling runs the brief gate between a Stopped->active
// request and Calibrating: it exists so a single tick's driver-fault
// read has a chance to veto before PWM ever drives the bridge.
func (c *Controller) advanceEnabling(st *Status) {
	if c.regs.GPIO != nil {
		c.regs.GPIO.SetDriverEnable(true)
	}
	c.transitionTo(Calibrating, Success, st)
	st.CalibrationSamples = 0
}

// advanceCalibrating accumulates zero-current ADC offset samples for
// kCalibrateCount ticks (or cfg.CalibrateCount if set), then
// self-promotes to CalibrationComplete (spec §4.4/§4.1).
func (c *Controller) advanceCalibrating(st *Status) {
	n := kCalibrateCount
	if c.cfg.CalibrateCount > 0 {
		n = c.cfg.CalibrateCount
	}

	c.offsetSumA += uint32(st.CurrentRawA)
	c.offsetSumB += uint32(st.CurrentRawB)
	c.offsetSumC += uint32(st.CurrentRawC)
	st.CalibrationSamples++
	RecordDiag(DiagCalibrationSample, Calibrating, Success, int32(st.CalibrationSamples))

	if int(st.CalibrationSamples) < n {
		return
	}

	c.offsetA = uint16(c.offsetSumA / uint32(n))
	c.offsetB = uint16(c.offsetSumB / uint32(n))
	c.offsetC = uint16(c.offsetSumC / uint32(n))
	st.CurrentOffsetA, st.CurrentOffsetB, st.CurrentOffsetC = c.offsetA, c.offsetB, c.offsetC
	c.offsetSumA, c.offsetSumB, c.offsetSumC = 0, 0, 0

	if c.motor.Poles == 0 {
		c.latchFault(MotorNotConfigured)
		return
	}

	RecordDiag(DiagCalibrationDone, CalibrationComplete, Success, 0)
	c.transitionTo(CalibrationComplete, Success, st)
}

// commit applies current-derate and writes the final duty cycle to
// the PWM registers.
func (c *Controller) commit(ctl Control, st *Status) {
	c.status.DA, c.status.QA = st.DA, st.QA
	if c.currentDerate < 1 {
		ctl.IdA *= c.currentDerate
		ctl.IqA *= c.currentDerate
	}
	c.lastControl = ctl
	live := c.mode != Stopped && c.mode != Fault
	if c.regs.PWM != nil {
		c.regs.PWM.SetDuty(ctl.Pwm[0], ctl.Pwm[1], ctl.Pwm[2])
		c.regs.PWM.SetEnabled(live)
	}
	if c.regs.GPIO != nil {
		c.regs.GPIO.SetDriverEnable(live)
	}
}

package servo

// Mode enumerates every state of the top-level mode machine. Order
// matches spec §4.4; NumModes is intentionally the zero value so an
// unset Mode reads as invalid rather than as a plausible active mode.
type Mode uint8

const (
	NumModes Mode = iota
	Stopped
	Fault
	Enabling
	Calibrating
	CalibrationComplete
	Pwm
	Voltage
	VoltageFoc
	VoltageDq
	Current
	Position
	PositionTimeout
	ZeroVelocity
	StayWithinBounds
)

func (m Mode) String() string {
	switch m {
	case Stopped:
		return "stopped"
	case Fault:
		return "fault"
	case Enabling:
		return "enabling"
	case Calibrating:
		return "calibrating"
	case CalibrationComplete:
		return "calibration_complete"
	case Pwm:
		return "pwm"
	case Voltage:
		return "voltage"
	case VoltageFoc:
		return "voltage_foc"
	case VoltageDq:
		return "voltage_dq"
	case Current:
		return "current"
	case Position:
		return "position"
	case PositionTimeout:
		return "position_timeout"
	case ZeroVelocity:
		return "zero_velocity"
	case StayWithinBounds:
		return "stay_within_bounds"
	default:
		return "invalid"
	}
}

// isActive reports whether m is one of the active control modes
// (anything past CalibrationComplete). Enabling, Calibrating and
// CalibrationComplete are not active.
func (m Mode) isActive() bool {
	switch m {
	case Pwm, Voltage, VoltageFoc, VoltageDq, Current, Position,
		PositionTimeout, ZeroVelocity, StayWithinBounds:
		return true
	default:
		return false
	}
}

// usesCurrentPid reports membership in the current-PID active set
// (spec §4.4): a transition from one of these to a mode outside the
// set clears PidD/PidQ (see Controller.transitionTo).
func (m Mode) usesCurrentPid() bool {
	switch m {
	case Current, Position, PositionTimeout, ZeroVelocity, StayWithinBounds:
		return true
	default:
		return false
	}
}

// usesPositionPid reports membership in the position-PID active set.
func (m Mode) usesPositionPid() bool {
	switch m {
	case Position, PositionTimeout, ZeroVelocity, StayWithinBounds:
		return true
	default:
		return false
	}
}

// FaultCode enumerates Status.Fault values. The Uart*/Dma* entries are
// reserved exactly as spec §6 lists them (never raised by this core;
// kept so a shared enum with the out-of-scope UART/CAN framing layer
// stays stable).
type FaultCode uint8

const (
	Success FaultCode = iota
	DmaStreamTransferError
	DmaStreamFifoError
	UartOverrunError
	UartFramingError
	UartNoiseError
	UartBufferOverrunError
	UartParityError
	CalibrationFault
	MotorDriverFault
	OverVoltage
	EncoderFault
	MotorNotConfigured
	PwmCycleOverrun
	OverTemperature
	StartOutsideLimit
)

func (f FaultCode) String() string {
	switch f {
	case Success:
		return "success"
	case CalibrationFault:
		return "calibration_fault"
	case MotorDriverFault:
		return "motor_driver_fault"
	case OverVoltage:
		return "over_voltage"
	case EncoderFault:
		return "encoder_fault"
	case MotorNotConfigured:
		return "motor_not_configured"
	case PwmCycleOverrun:
		return "pwm_cycle_overrun"
	case OverTemperature:
		return "over_temperature"
	case StartOutsideLimit:
		return "start_outside_limit"
	default:
		return "reserved"
	}
}

// RequestMode evaluates a foreground-requested mode transition against
// the current mode and the latest Status, returning the mode and
// fault the ISR should adopt this tick. It implements the transition
// table in spec §4.4 exactly; Controller.tick calls it once per tick
// before dispatching.
func RequestMode(current Mode, requested Mode, st *Status, posCfg *PositionConfig) (Mode, FaultCode) {
	if requested == Stopped {
		return Stopped, Success
	}
	if current == Fault {
		return Fault, st.Fault
	}
	if current == Stopped {
		// Stopped can only be escaped via Enabling; Controller.tick's
		// advanceEnabling enables the driver and promotes Enabling ->
		// Calibrating within the same tick. The millisecond supervisor
		// poll takes no part in this edge.
		if requested.isActive() || requested == Calibrating {
			return Enabling, Success
		}
		return Stopped, Success
	}
	if current == PositionTimeout {
		// Terminal active state; only Stopped (handled above) exits it.
		return current, st.Fault
	}
	if current == Enabling || current == Calibrating {
		// advanceEnabling/advanceCalibrating own these edges; a foreground mode
		// request is latched for when calibration completes by simply
		// leaving `current` alone — the caller re-requests once active.
		return current, st.Fault
	}
	if current == CalibrationComplete || current.isActive() {
		if requested.isActive() {
			if (requested == Position || requested == StayWithinBounds) &&
				outsideBounds(st.UnwrappedPosition, posCfg.Min, posCfg.Max) {
				return Fault, StartOutsideLimit
			}
			return requested, Success
		}
		// Ignore non-active, non-Stopped requests (e.g. stray
		// Calibrating) once past calibration.
		return current, st.Fault
	}
	return current, st.Fault
}

func outsideBounds(pos, min, max float32) bool {
	if isNaN32(min) && isNaN32(max) {
		return false
	}
	if !isNaN32(min) && pos < min {
		return true
	}
	if !isNaN32(max) && pos > max {
		return true
	}
	return false
}

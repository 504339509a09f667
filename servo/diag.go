package servo

// DiagEvent captures one ISR-context occurrence worth remembering after
// the fact: a mode transition, a fault, a calibration milestone, or a
// PWM-cycle overrun. Recording one is O(1), allocation-free, and safe
// to call from inside Controller.Tick.
type DiagEvent struct {
	Kind  DiagKind
	Tick  uint32
	Mode  Mode
	Fault FaultCode
	Value int32
}

// DiagKind enumerates the occurrences worth recording.
type DiagKind uint8

const (
	DiagNone DiagKind = iota
	DiagModeChange
	DiagFault
	DiagCalibrationSample
	DiagCalibrationDone
	DiagPwmOverrun
	DiagEncoderRezero
)

func (k DiagKind) String() string {
	switch k {
	case DiagModeChange:
		return "mode_change"
	case DiagFault:
		return "fault"
	case DiagCalibrationSample:
		return "calibration_sample"
	case DiagCalibrationDone:
		return "calibration_done"
	case DiagPwmOverrun:
		return "pwm_overrun"
	case DiagEncoderRezero:
		return "encoder_rezero"
	default:
		return "none"
	}
}

// diagRingSize is a fixed 32-entry post-mortem window.
const diagRingSize = 32

// DiagRing is a fixed-size, lock-protected-only-by-interrupt-masking
// ring buffer of DiagEvent. The ISR writes through RecordDiag; the
// foreground drains it with Drain and forwards entries to zerolog.
type DiagRing struct {
	buf  [diagRingSize]DiagEvent
	head uint8
	n    uint8
}

var globalDiag DiagRing

// RecordDiag appends an event to the global diagnostic ring. Safe to
// call from ISR context: no allocation, bounded work, interrupt-masked
// for the duration of the write.
func RecordDiag(kind DiagKind, mode Mode, fault FaultCode, value int32) {
	state := disableInterrupts()
	globalDiag.buf[globalDiag.head] = DiagEvent{
		Kind:  kind,
		Tick:  getTicks(),
		Mode:  mode,
		Fault: fault,
		Value: value,
	}
	globalDiag.head = (globalDiag.head + 1) % diagRingSize
	if globalDiag.n < diagRingSize {
		globalDiag.n++
	}
	restoreInterrupts(state)
}

// Drain removes and returns every event currently in the ring, oldest
// first. Intended for foreground-context callers only.
func Drain() []DiagEvent {
	state := disableInterrupts()
	n := globalDiag.n
	start := (globalDiag.head - n + diagRingSize) % diagRingSize
	out := make([]DiagEvent, n)
	for i := uint8(0); i < n; i++ {
		out[i] = globalDiag.buf[(start+i)%diagRingSize]
	}
	globalDiag.n = 0
	restoreInterrupts(state)
	return out
}

package servo

// kPwmRateHz is the ISR tick rate: once per PWM up/down cycle.
const kPwmRateHz = 40000

// kCurrentSampleTime is the ADC sampling window the PWM duty cycle must
// reserve at both rails so the current-sense ADCs have a stable window
// to convert in. See kMinPwm/kMaxPwm below.
const kCurrentSampleTime = 1.85e-6 // seconds

// kMinPwm and kMaxPwm bound every duty cycle this core ever writes
// (spec invariant: duty in [kMinPwm, kMaxPwm]).
const (
	kMinPwm = kCurrentSampleTime * 2 * kPwmRateHz
	kMaxPwm = 1 - kMinPwm
)

// kMaxPositionDelta bounds how far the encoder may move in one tick
// before EncoderUnwrapper treats it as a fault rather than real motion:
// 28000rpm/60 * 65536 counts/rev / kPwmRateHz ticks/s.
const kMaxPositionDelta = 28000.0 / 60.0 * 65536.0 / kPwmRateHz

// kCalibrateCount is the number of ISR ticks the Calibrating mode
// accumulates ADC samples over before self-promoting.
const kCalibrateCount = 256

// tickCount is the ISR's monotonic tick counter, advanced once per
// call to Controller.Tick. RecordDiag stamps each DiagEvent with it.
var tickCount uint32

// Ticks returns the current ISR tick count.
func Ticks() uint32 {
	return getTicks()
}

// SetTicks overrides the tick counter; used by tests and the
// simulator to drive deterministic timelines.
func SetTicks(t uint32) {
	setTicks(t)
}

// TickPeriod is the fixed duration of one ISR tick.
const TickPeriod = 1.0 / kPwmRateHz

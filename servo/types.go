package servo

// maxSectorTable bounds the inline electrical-offset table so Motor
// never allocates: spec requires the table length to be a power of two
// no larger than 1024 that divides 65536.
const maxSectorTable = 1024

// Motor is the calibration-time rotor description. It is written only
// by the foreground (config load / UpdateConfig) and read only by the
// ISR; spec invariant I7 requires Poles > 0 before any current-bearing
// mode dispatches.
type Motor struct {
	Name string // persisted with the record; no control code reads it

	Poles  uint16
	Invert bool

	// OffsetTable holds OffsetLen entries (a power of two <= 1024
	// dividing 65536); OffsetTable[i] is the electrical-angle
	// correction for the i-th of OffsetLen equal sectors of one
	// mechanical revolution.
	OffsetTable [maxSectorTable]float32
	OffsetLen   uint16

	ResistanceOhm            float32
	VPerHz                   float32 // back-EMF constant
	UnwrappedPositionScale   float32 // gear ratio: raw counts -> physical units
	RotationCurrentCutoffA   float32
	RotationCurrentScale     float32
	RotationTorqueScale      float32

	// HwRevision selects the aux-ADC sampling branch in SensorFrontEnd
	// (spec §4.1): <=4 multiplexes ADC5, >=5 pins ADC4/ADC5 separately.
	HwRevision uint8
}

// positionConstant is poles/2, the mechanical-to-electrical angle
// multiplier used throughout EncoderUnwrapper.
func (m *Motor) positionConstant() float32 {
	return float32(m.Poles) / 2
}

// torqueConfigured reports whether the rotation-dependent torque model
// has usable coefficients (spec §4.5, "if torque constant not
// configured").
func (m *Motor) torqueConfigured() bool {
	return m.RotationTorqueScale != 0
}

// PidOptions configures one axis of PidRegulator (spec §4.8).
type PidOptions struct {
	Kp, Ki, Kd         float32
	KpScale, KdScale   float32 // per-call multipliers (e.g. ZeroVelocity zeroes KpScale)
	IntegralMax        float32 // anti-windup clamp magnitude; 0 disables clamping
	DerivativeOnMeasurement bool
}

// ServoConfig holds runtime limits and PID gains, reloadable via
// UpdateConfig.
type ServoConfig struct {
	IGain              float32
	VScaleV            float32
	MaxVoltage         float32
	FaultTemperatureC  float32
	DerateTemperatureC float32
	DerateCurrentA     float32
	MaxCurrentA        float32

	VelocityThreshold    float32
	VelocityFilterLength int

	DefaultTimeoutS    float32
	TimeoutMaxTorqueNm float32

	PwmMin      float32
	PwmMinBlend float32

	FeedforwardScale float32
	PositionDerate   float32

	FluxBrakeMinVoltage   float32
	FluxBrakeResistanceOhm float32

	PidDq       PidOptions
	PidPosition PidOptions

	AdcCurCycles uint32
	AdcAuxCycles uint32

	CalibrateCount int // defaults to kCalibrateCount; overridable for test/bench speed
}

// PositionConfig bounds the commanded position. NaN in either field
// means "no bound" (spec §3).
type PositionConfig struct {
	Min float32
	Max float32
}

// CommandData is what the foreground publishes and the ISR consumes
// every tick through the CommandChannel double buffer (spec §4.6).
// NaN in any of Position, Velocity, StopPosition, BoundsMin/Max means
// "unspecified." TimeoutS is the odd one out: zero is its "nothing
// new" sentinel, and NaN is instead one of the values that reload the
// countdown (spec §9's NaN-also-clears quirk), so it is one-shot
// consumed and cleared to zero rather than to NaN -- see
// ControlLaws.TickTimeout and CommandChannel.ClearTimeout.
type CommandData struct {
	Mode Mode

	Pwm     [3]float32
	Voltage [3]float32
	Theta   float32
	DV, QV  float32
	IdA, IqA float32

	Position    float32
	Velocity    float32
	FeedforwardNm float32
	KpScale, KdScale float32
	MaxTorqueNm float32
	StopPosition float32

	BoundsMin, BoundsMax float32
	TimeoutS             float32

	// One-shot fields: the ISR consumes and clears these to a
	// sentinel (NaN for floats, false for bools) so they are never
	// re-applied on the next tick (spec §4.6, §9).
	SetPosition    float32 // NaN when not pending
	RezeroPosition float32 // NaN when not pending
	Rezero         bool
}

// defaultCommandData is the sentinel-filled zero value: every
// "unspecified" field is NaN rather than 0, matching spec semantics,
// except TimeoutS whose "unspecified" sentinel is 0.
func defaultCommandData() CommandData {
	nan := float32NaN()
	return CommandData{
		Mode:         Stopped,
		Position:     nan,
		Velocity:     nan,
		StopPosition: nan,
		BoundsMin:    nan,
		BoundsMax:    nan,
		TimeoutS:     0,
		SetPosition:  nan,
		RezeroPosition: nan,
		MaxTorqueNm:  nan,
		FeedforwardNm: 0,
		KpScale:      1,
		KdScale:      1,
	}
}

// PidState is the persistent state of one PidRegulator instance,
// exposed read-only via Status for telemetry.
type PidState struct {
	Integral  float32
	LastError float32
	Desired   float32
	DesiredD  float32
}

// Status is the ISR's observable snapshot, mutated inside
// Controller.Tick; the millisecond supervisor poll only clears
// Rezeroed.
type Status struct {
	Mode  Mode
	Fault FaultCode

	CurrentRawA, CurrentRawB, CurrentRawC uint16
	CurrentOffsetA, CurrentOffsetB, CurrentOffsetC uint16
	CurrentA, CurrentB, CurrentC float32

	BusVoltageRaw  uint16
	BusVoltage     float32
	FiltBusVoltage500ms float32
	FiltBusVoltage1ms   float32

	PositionRaw       uint16
	Position          uint16
	UnwrappedPositionRaw int32
	UnwrappedPosition    float32

	Velocity float32

	ElectricalTheta float32
	Sin, Cos        float32

	DA, QA     float32
	TorqueNm   float32

	AdcFetTempRaw   uint16
	FetTempC        float32
	AdcMotorTempRaw uint16
	MotorTempC      float32

	TimeoutS float32

	PidD, PidQ, PidPosition PidState

	ControlPosition float32
	Rezeroed        bool

	StartupCount uint16

	CalibrationSamples uint16
}

// Control is the per-tick output snapshot ControlLaws produces.
type Control struct {
	Pwm      [3]float32
	Voltage  [3]float32
	DV, QV   float32
	IdA, IqA float32
	TorqueNm float32
}

package servo

// thermistorTable interpolates a linearized NTC thermistor curve from
// raw ADC counts to degrees C. The firmware ships one fixed table for
// the FET and motor thermistors; entries are (rawCounts, celsius)
// pairs in descending raw order (higher temperature -> lower
// resistance -> lower raw count for a pull-up divider).
var thermistorTable = [...][2]float32{
	{3085, -40}, {2851, -20}, {2493, 0}, {2040, 20},
	{1563, 40}, {1132, 60}, {788, 80}, {531, 100},
	{349, 120}, {224, 140}, {142, 160},
}

// interpolateThermistor maps a raw ADC count to degrees C by linear
// interpolation between the two bracketing table entries, clamping at
// the ends rather than extrapolating.
func interpolateThermistor(raw uint16) float32 {
	t := thermistorTable[:]
	if raw >= uint16(t[0][0]) {
		return t[0][1]
	}
	last := len(t) - 1
	if raw <= uint16(t[last][0]) {
		return t[last][1]
	}
	for i := 0; i < last; i++ {
		hi, lo := t[i], t[i+1]
		if raw <= uint16(hi[0]) && raw >= uint16(lo[0]) {
			frac := (hi[0] - float32(raw)) / (hi[0] - lo[0])
			return hi[1] + frac*(lo[1]-hi[1])
		}
	}
	return t[last][1]
}

// ADCSample is one tick's worth of raw conversions: three phase
// currents, bus voltage, and whichever of FET/motor temperature this
// tick's aux mux round visits (spec §4.1).
type ADCSample struct {
	CurrentA, CurrentB, CurrentC uint16
	BusVoltage                  uint16

	HaveFetTemp   bool
	FetTempRaw    uint16
	HaveMotorTemp bool
	MotorTempRaw  uint16
}

// ADCSource has the same method set as ADCRegisters, which is what
// Controller.tick samples every tick before handing the result to
// SensorFrontEnd.Update. A non-nil error from that Sample latches
// DmaStreamTransferError.
type ADCSource interface {
	Sample() (ADCSample, error)
}

// SensorFrontEnd turns raw ADC samples into calibrated currents,
// filtered bus voltage, and interpolated temperatures. It branches on
// the motor's hardware revision (<=4 vs >=5), but both branches apply
// whichever thermistor readings the sample carries; which thermistor a
// tick visits is decided by the ADC source through ADCSample's
// HaveFetTemp/HaveMotorTemp flags.
type SensorFrontEnd struct {
	motor *Motor

	currentScale float32 // amps per raw ADC count, from shunt + gain
	voltageScale float32 // volts per raw ADC count

	auxToggle bool // hwRevision<=4: flips every tick; no reading depends on it
}

// NewSensorFrontEnd binds scale factors derived from the board's shunt
// resistor and amplifier gain (not part of Motor: they're board-level,
// not motor-level).
func NewSensorFrontEnd(motor *Motor, currentScale, voltageScale float32) *SensorFrontEnd {
	return &SensorFrontEnd{motor: motor, currentScale: currentScale, voltageScale: voltageScale}
}

// Update converts one ADCSample into calibrated readings, writing them
// into st. offsetA/B/C are the zero-current calibration offsets
// Controller captured during Calibrating.
func (s *SensorFrontEnd) Update(sample ADCSample, offsetA, offsetB, offsetC uint16, st *Status) {
	st.CurrentRawA, st.CurrentRawB, st.CurrentRawC = sample.CurrentA, sample.CurrentB, sample.CurrentC
	st.CurrentA = (float32(sample.CurrentA) - float32(offsetA)) * s.currentScale
	st.CurrentB = (float32(sample.CurrentB) - float32(offsetB)) * s.currentScale
	st.CurrentC = (float32(sample.CurrentC) - float32(offsetC)) * s.currentScale

	st.BusVoltageRaw = sample.BusVoltage
	st.BusVoltage = float32(sample.BusVoltage) * s.voltageScale
	// First-order IIR filters matching the firmware's 500ms/1ms time
	// constants at kPwmRateHz.
	st.FiltBusVoltage500ms += (st.BusVoltage - st.FiltBusVoltage500ms) / (0.5 * kPwmRateHz)
	st.FiltBusVoltage1ms += (st.BusVoltage - st.FiltBusVoltage1ms) / (0.001 * kPwmRateHz)

	if s.motor.HwRevision <= 4 {
		s.updateMuxedAux(sample, st)
	} else {
		s.updateSeparateAux(sample, st)
	}
}

// updateMuxedAux implements the hwRevision<=4 path: it flips auxToggle
// and applies the FET and/or motor thermistor reading the sample
// carries. It does not itself alternate between the two thermistors.
func (s *SensorFrontEnd) updateMuxedAux(sample ADCSample, st *Status) {
	s.auxToggle = !s.auxToggle
	if sample.HaveFetTemp {
		st.AdcFetTempRaw = sample.FetTempRaw
		st.FetTempC = interpolateThermistor(sample.FetTempRaw)
	}
	if sample.HaveMotorTemp {
		st.AdcMotorTempRaw = sample.MotorTempRaw
		st.MotorTempC = interpolateThermistor(sample.MotorTempRaw)
	}
}

// updateSeparateAux implements the hwRevision>=5 path: both
// thermistors are pinned to their own ADC channel and sampled every
// tick.
func (s *SensorFrontEnd) updateSeparateAux(sample ADCSample, st *Status) {
	if sample.HaveFetTemp {
		st.AdcFetTempRaw = sample.FetTempRaw
		st.FetTempC = interpolateThermistor(sample.FetTempRaw)
	}
	if sample.HaveMotorTemp {
		st.AdcMotorTempRaw = sample.MotorTempRaw
		st.MotorTempC = interpolateThermistor(sample.MotorTempRaw)
	}
}

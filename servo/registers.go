package servo

// PWMRegisters is the abstract three-phase complementary PWM timer
// interface Controller.commit writes every tick it dispatches a mode.
// A real target backs this with direct compare-register writes from
// the ISR; simhw backs it with a recorded duty-cycle trace for tests.
type PWMRegisters interface {
	// SetDuty writes the A/B/C compare values as a fraction of the
	// timer period: each clamped to [kMinPwm, kMaxPwm] in active
	// modes, and 0 in Stopped and Fault.
	SetDuty(a, b, c float32)

	// SetEnabled gates the high-side/low-side driver outputs; Stopped
	// and Fault both call SetEnabled(false).
	SetEnabled(enabled bool)
}

// ADCRegisters is the abstract current/voltage/temperature ADC
// sequencer. Controller.tick calls Sample once per tick and passes the
// result to SensorFrontEnd; the implementation owns whatever DMA or
// polling scheme the target uses.
type ADCRegisters interface {
	Sample() (ADCSample, error)
}

// GPIORegisters exposes the handful of discrete signals the Controller
// touches outside the PWM/ADC/encoder paths: driver
// fault input, driver enable output, and an optional debug strobe.
type GPIORegisters interface {
	DriverFault() bool
	SetDriverEnable(enabled bool)
	SetDebugStrobe(on bool)
}

// ClockedRegisters bundles the three register interfaces a
// Controller needs to drive one motor; Controller holds one of these
// plus a PositionSensor.
type ClockedRegisters struct {
	PWM  PWMRegisters
	ADC  ADCRegisters
	GPIO GPIORegisters
}

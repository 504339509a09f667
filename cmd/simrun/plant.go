package main

import "bldcservo/servo"

// plant is a rough single-inertia physical model standing in for a
// real motor+load: PWM duty asymmetry maps to a driving torque,
// viscous damping opposes velocity, and the resulting angle feeds
// back as the raw encoder count and a representative current sample.
// It exists only to give simrun something that closes the loop;
// it is not a claim about any particular motor's dynamics.
type plant struct {
	angleRaw float64 // accumulated raw encoder units, unwrapped
	velocity float64 // raw units/sec

	inertia  float64
	damping  float64
	torqueK  float64
	busVolts float64
}

func newPlant() *plant {
	return &plant{
		inertia:  0.02,
		damping:  0.15,
		torqueK:  2000,
		busVolts: 48,
	}
}

// advance integrates one tick of motion from the last committed
// Control.
func (p *plant) advance(ctl servo.Control, dt float32) {
	mean := (ctl.Pwm[0] + ctl.Pwm[1] + ctl.Pwm[2]) / 3
	drive := (ctl.Pwm[0] - mean) - (ctl.Pwm[1]-mean)*0.5 - (ctl.Pwm[2]-mean)*0.5

	torque := float64(drive) * p.torqueK
	accel := (torque - p.damping*p.velocity) / p.inertia
	p.velocity += accel * float64(dt)
	p.angleRaw += p.velocity * float64(dt)
}

// rawPosition is wrapped by plantEncoder below; plantADC wraps
// adcSample the same way, since servo.PositionSensor and
// servo.ADCRegisters both name their method Sample with different
// signatures and Go won't let one type implement both directly.
func (p *plant) rawPosition() uint16 {
	wrapped := int64(p.angleRaw)
	wrapped %= 65536
	if wrapped < 0 {
		wrapped += 65536
	}
	return uint16(wrapped)
}

func (p *plant) adcSample() servo.ADCSample {
	return servo.ADCSample{
		CurrentA: 2048, CurrentB: 2048, CurrentC: 2048,
		BusVoltage:    uint16(p.busVolts / 0.02),
		HaveFetTemp:   true,
		FetTempRaw:    2493, // ~0C on the thermistor table; cool plant
		HaveMotorTemp: true,
		MotorTempRaw:  2493,
	}
}

type plantADC struct{ p *plant }

func (a plantADC) Sample() (servo.ADCSample, error) { return a.p.adcSample(), nil }

type plantEncoder struct{ p *plant }

func (e plantEncoder) Sample() (uint16, error) { return e.p.rawPosition(), nil }

// Package simhw provides fake hardware collaborators for
// servo.Controller: a PWM/GPIO/ADC register set and a position
// sensor. Each fake records what it is told and returns what its
// fields hold; no physical model drives them. Tests and the simulator
// binary use them to run a Controller without real silicon.
package simhw

import "bldcservo/servo"

// FakePWM records every duty cycle it's told to write and whether the
// bridge is enabled, for assertions in servo package tests.
type FakePWM struct {
	DutyA, DutyB, DutyC float32
	Enabled             bool
	WriteCount          int
}

func (p *FakePWM) SetDuty(a, b, c float32) {
	p.DutyA, p.DutyB, p.DutyC = a, b, c
	p.WriteCount++
}

func (p *FakePWM) SetEnabled(enabled bool) {
	p.Enabled = enabled
}

// FakeGPIO is a settable driver-fault input plus recorded enable/
// strobe outputs.
type FakeGPIO struct {
	Fault        bool
	EnableCalls  int
	EnableState  bool
	StrobeState  bool
}

func (g *FakeGPIO) DriverFault() bool { return g.Fault }

func (g *FakeGPIO) SetDriverEnable(enabled bool) {
	g.EnableCalls++
	g.EnableState = enabled
}

func (g *FakeGPIO) SetDebugStrobe(on bool) {
	g.StrobeState = on
}

// FakeADC returns a pre-loaded ADCSample on every call, or a
// pre-loaded error if Err is set. Tests mutate Data directly between
// ticks to script a current/voltage/temperature trace.
type FakeADC struct {
	Data  servo.ADCSample
	Err   error
	Calls int
}

func (a *FakeADC) Sample() (servo.ADCSample, error) {
	a.Calls++
	return a.Data, a.Err
}

// FakeEncoder is a PositionSensor whose raw reading a test drives
// directly, optionally injecting an error to exercise EncoderFault.
type FakeEncoder struct {
	Raw   uint16
	Err   error
	Calls int
}

func (e *FakeEncoder) Sample() (uint16, error) {
	e.Calls++
	return e.Raw, e.Err
}

package servo

import "testing"

func testSafetyConfig() *ServoConfig {
	return &ServoConfig{
		MaxVoltage:         48,
		FaultTemperatureC:  100,
		DerateTemperatureC: 80,
		MaxCurrentA:        20,
		DerateCurrentA:     10,
	}
}

func TestSafetyGateDriverFaultWins(t *testing.T) {
	g := NewSafetyGate(testSafetyConfig())
	st := &Status{BusVoltage: 24, FetTempC: 30}
	fault, derate := g.Check(st, true)
	if fault != MotorDriverFault || derate != 0 {
		t.Fatalf("got (%v, %v), want (MotorDriverFault, 0)", fault, derate)
	}
}

func TestSafetyGateOverVoltage(t *testing.T) {
	g := NewSafetyGate(testSafetyConfig())
	st := &Status{BusVoltage: 49}
	fault, _ := g.Check(st, false)
	if fault != OverVoltage {
		t.Fatalf("fault = %v, want OverVoltage", fault)
	}
}

func TestSafetyGateOverTemperature(t *testing.T) {
	g := NewSafetyGate(testSafetyConfig())
	st := &Status{BusVoltage: 24, FetTempC: 101}
	fault, _ := g.Check(st, false)
	if fault != OverTemperature {
		t.Fatalf("fault = %v, want OverTemperature", fault)
	}
}

func TestSafetyGateNoFaultBelowLimits(t *testing.T) {
	g := NewSafetyGate(testSafetyConfig())
	st := &Status{BusVoltage: 24, FetTempC: 50, MotorTempC: 50}
	fault, derate := g.Check(st, false)
	if fault != Success || derate != 1 {
		t.Fatalf("got (%v, %v), want (Success, 1)", fault, derate)
	}
}

func TestSafetyGateLinearDerateBetweenThresholds(t *testing.T) {
	g := NewSafetyGate(testSafetyConfig())
	// Halfway between DerateTemperatureC=80 and FaultTemperatureC=100.
	st := &Status{BusVoltage: 24, FetTempC: 90}
	fault, derate := g.Check(st, false)
	if fault != Success {
		t.Fatalf("fault = %v, want Success", fault)
	}
	if !almostEqual32(derate, 0.5, 1e-5) {
		t.Fatalf("derate = %v, want 0.5 halfway through the derate band", derate)
	}
}

func TestSafetyGateDerateUsesHottestSensor(t *testing.T) {
	g := NewSafetyGate(testSafetyConfig())
	st := &Status{BusVoltage: 24, FetTempC: 50, MotorTempC: 90}
	_, derate := g.Check(st, false)
	if !almostEqual32(derate, 0.5, 1e-5) {
		t.Fatalf("derate = %v, want 0.5 driven by the hotter motor sensor", derate)
	}
}

func TestCurrentLimitUnaffectedWithoutDerate(t *testing.T) {
	g := NewSafetyGate(testSafetyConfig())
	if got := g.CurrentLimit(1); got != 20 {
		t.Fatalf("CurrentLimit(1) = %v, want MaxCurrentA=20", got)
	}
}

func TestCurrentLimitCapsToDerateCurrentOnceDerating(t *testing.T) {
	g := NewSafetyGate(testSafetyConfig())
	got := g.CurrentLimit(0.5)
	want := float32(10 * 0.5) // capped to DerateCurrentA=10, then scaled
	if !almostEqual32(got, want, 1e-5) {
		t.Fatalf("CurrentLimit(0.5) = %v, want %v", got, want)
	}
}

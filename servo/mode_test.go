package servo

import "testing"

func TestRequestModeStoppedAlwaysWins(t *testing.T) {
	st := &Status{Fault: Success}
	posCfg := &PositionConfig{Min: float32NaN(), Max: float32NaN()}

	for _, current := range []Mode{Stopped, Fault, Enabling, Calibrating, CalibrationComplete, Position} {
		got, fault := RequestMode(current, Stopped, st, posCfg)
		if got != Stopped || fault != Success {
			t.Fatalf("from %s: got (%s, %s), want (stopped, success)", current, got, fault)
		}
	}
}

func TestP1_FaultOnlyExitsViaStopped(t *testing.T) {
	st := &Status{Fault: OverVoltage}
	posCfg := &PositionConfig{Min: float32NaN(), Max: float32NaN()}

	for _, requested := range []Mode{Position, Voltage, Current, Calibrating, ZeroVelocity} {
		got, fault := RequestMode(Fault, requested, st, posCfg)
		if got != Fault || fault != OverVoltage {
			t.Fatalf("requesting %s from Fault: got (%s, %s), want to stay in Fault", requested, got, fault)
		}
	}
	got, fault := RequestMode(Fault, Stopped, st, posCfg)
	if got != Stopped || fault != Success {
		t.Fatalf("Stopped from Fault: got (%s, %s)", got, fault)
	}
}

func TestStoppedOnlyEscapesViaEnabling(t *testing.T) {
	st := &Status{Fault: Success}
	posCfg := &PositionConfig{Min: float32NaN(), Max: float32NaN()}

	got, _ := RequestMode(Stopped, Position, st, posCfg)
	if got != Enabling {
		t.Fatalf("Stopped->Position: got %s, want Enabling", got)
	}
	got, _ = RequestMode(Stopped, Calibrating, st, posCfg)
	if got != Enabling {
		t.Fatalf("Stopped->Calibrating: got %s, want Enabling", got)
	}
}

func TestPositionTimeoutIsTerminalExceptForStopped(t *testing.T) {
	st := &Status{Fault: Success}
	posCfg := &PositionConfig{Min: float32NaN(), Max: float32NaN()}

	got, _ := RequestMode(PositionTimeout, Position, st, posCfg)
	if got != PositionTimeout {
		t.Fatalf("PositionTimeout->Position: got %s, want to stay", got)
	}
	got, _ = RequestMode(PositionTimeout, Stopped, st, posCfg)
	if got != Stopped {
		t.Fatalf("PositionTimeout->Stopped: got %s, want Stopped", got)
	}
}

func TestS5_PositionStartOutsideLimitRejected(t *testing.T) {
	st := &Status{Fault: Success, UnwrappedPosition: 0.6}
	posCfg := &PositionConfig{Min: -0.5, Max: 0.5}

	got, fault := RequestMode(CalibrationComplete, Position, st, posCfg)
	if got != Fault || fault != StartOutsideLimit {
		t.Fatalf("got (%s, %s), want (Fault, StartOutsideLimit)", got, fault)
	}
}

func TestRequestModeInsideBoundsAccepted(t *testing.T) {
	st := &Status{Fault: Success, UnwrappedPosition: 0.1}
	posCfg := &PositionConfig{Min: -0.5, Max: 0.5}

	got, fault := RequestMode(CalibrationComplete, Position, st, posCfg)
	if got != Position || fault != Success {
		t.Fatalf("got (%s, %s), want (Position, Success)", got, fault)
	}
}

func TestModeActiveSetMembership(t *testing.T) {
	active := []Mode{Pwm, Voltage, VoltageFoc, VoltageDq, Current, Position, PositionTimeout, ZeroVelocity, StayWithinBounds}
	for _, m := range active {
		if !m.isActive() {
			t.Errorf("%s should be active", m)
		}
	}
	inactive := []Mode{Stopped, Fault, Enabling, Calibrating, CalibrationComplete}
	for _, m := range inactive {
		if m.isActive() {
			t.Errorf("%s should not be active", m)
		}
	}
}

func TestUsesCurrentAndPositionPidSets(t *testing.T) {
	if !Position.usesCurrentPid() || !Position.usesPositionPid() {
		t.Fatal("Position should use both PID sets")
	}
	if !Current.usesCurrentPid() || Current.usesPositionPid() {
		t.Fatal("Current should use only the current PID set")
	}
	if Voltage.usesCurrentPid() || Voltage.usesPositionPid() {
		t.Fatal("Voltage should use neither PID set")
	}
}

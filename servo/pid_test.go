package servo

import "testing"

func TestPidRegulatorProportional(t *testing.T) {
	st := &PidState{}
	p := NewPidRegulator(PidOptions{Kp: 2, KpScale: 1, KdScale: 1}, st)

	out := p.Apply(0, 1, 0, 0, 1000)
	if out != 2 {
		t.Fatalf("got %v, want 2 (Kp*error)", out)
	}
}

func TestPidRegulatorIntegralAccumulates(t *testing.T) {
	st := &PidState{}
	p := NewPidRegulator(PidOptions{Ki: 1, KpScale: 1, KdScale: 1}, st)

	p.Apply(0, 1, 0, 0, 100) // integral += 1/100 * 1 = 0.01
	p.Apply(0, 1, 0, 0, 100) // integral += 0.01 -> 0.02

	if diff := st.Integral - 0.02; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("integral = %v, want 0.02", st.Integral)
	}
}

func TestPidRegulatorIntegralClampsToMax(t *testing.T) {
	st := &PidState{}
	p := NewPidRegulator(PidOptions{Ki: 100, IntegralMax: 1, KpScale: 1, KdScale: 1}, st)

	for i := 0; i < 10; i++ {
		p.Apply(0, 1, 0, 0, 1)
	}
	if st.Integral != 1 {
		t.Fatalf("integral = %v, want clamped to 1", st.Integral)
	}
}

func TestPidRegulatorDerivativeOnMeasurement(t *testing.T) {
	st := &PidState{}
	p := NewPidRegulator(PidOptions{Kd: 3, KpScale: 1, KdScale: 1, DerivativeOnMeasurement: true}, st)

	out := p.Apply(0, 1, 5, 100, 1000) // desiredD is ignored; errD = -measuredD = -5
	if out != -15 {
		t.Fatalf("got %v, want -15 (Kd * -measuredD)", out)
	}
}

func TestPidRegulatorClearResetsState(t *testing.T) {
	st := &PidState{Integral: 5, LastError: 2, Desired: 1, DesiredD: 1}
	p := NewPidRegulator(PidOptions{}, st)
	p.Clear()

	if st.Integral != 0 || st.LastError != 0 || st.Desired != 0 || st.DesiredD != 0 {
		t.Fatalf("Clear left nonzero state: %+v", st)
	}
}

func TestPidRegulatorKpKdScale(t *testing.T) {
	st := &PidState{}
	p := NewPidRegulator(PidOptions{Kp: 10, KpScale: 0.5, KdScale: 1}, st)

	out := p.Apply(0, 1, 0, 0, 1000)
	if out != 5 {
		t.Fatalf("got %v, want 5 (Kp*KpScale*error)", out)
	}
}

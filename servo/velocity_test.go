package servo

import "testing"

func TestVelocityEstimatorConstantDelta(t *testing.T) {
	var v VelocityEstimator
	v.SetLength(4)
	for i := 0; i < 4; i++ {
		v.Push(100)
	}
	// sum=400, scale=1, rate=40000 -> 400*40000/(65536*4) ~ 61.035
	got := v.Velocity(1, 40000)
	want := float32(400) * 40000 / (65536.0 * 4)
	if !almostEqual32(got, want, 1e-3) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestVelocityEstimatorZeroWhenEmpty(t *testing.T) {
	var v VelocityEstimator
	if got := v.Velocity(1, 40000); got != 0 {
		t.Fatalf("empty estimator returned %v, want 0", got)
	}
}

func TestVelocityEstimatorEvictsOldestPastLength(t *testing.T) {
	var v VelocityEstimator
	v.SetLength(2)
	v.Push(1000)
	v.Push(1000)
	v.Push(0) // evicts the first 1000; sum should now be 1000, not 2000

	got := v.Velocity(1, 1)
	want := float32(1000) / (65536.0 * 2)
	if !almostEqual32(got, want, 1e-6) {
		t.Fatalf("got %v, want %v (oldest sample not evicted)", got, want)
	}
}

func TestVelocityEstimatorSetLengthResetsHistory(t *testing.T) {
	var v VelocityEstimator
	v.SetLength(4)
	v.Push(100)
	v.Push(100)
	v.SetLength(8)
	if v.filled != 0 || v.sum != 0 {
		t.Fatalf("SetLength did not reset history: filled=%d sum=%d", v.filled, v.sum)
	}
}

func TestVelocityEstimatorClampsLength(t *testing.T) {
	var v VelocityEstimator
	v.SetLength(10000)
	if v.length != maxVelocityFilterLength {
		t.Fatalf("length = %d, want clamped to %d", v.length, maxVelocityFilterLength)
	}
	v.SetLength(0)
	if v.length != 1 {
		t.Fatalf("length = %d, want clamped to 1", v.length)
	}
}

package servo

import (
	"math"
	"testing"
)

func almostEqual32(a, b, tol float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func TestClarkeParkRoundTrip(t *testing.T) {
	sin, cos := sinCos(float32(1.2))
	d, q := float32(3.0), float32(-1.5)

	va, vb, vc := inverseClarkePark(d, q, sin, cos)
	// A balanced three-phase set sums to zero; recovering d/q from the
	// phases should return the original values.
	gotD, gotQ := clarkePark(va, vb, vc, sin, cos)

	if !almostEqual32(gotD, d, 1e-3) || !almostEqual32(gotQ, q, 1e-3) {
		t.Fatalf("round trip: got (%v, %v), want (%v, %v)", gotD, gotQ, d, q)
	}
}

func TestInverseClarkeParkPhasesSumToZero(t *testing.T) {
	sin, cos := sinCos(float32(0.5))
	va, vb, vc := inverseClarkePark(2, -1, sin, cos)
	sum := va + vb + vc
	if !almostEqual32(sum, 0, 1e-4) {
		t.Fatalf("phase sum = %v, want ~0", sum)
	}
}

func TestSinCosMatchesMath(t *testing.T) {
	theta := float32(math.Pi / 3)
	sin, cos := sinCos(theta)
	wantSin, wantCos := math.Sincos(float64(theta))
	if !almostEqual32(sin, float32(wantSin), 1e-6) || !almostEqual32(cos, float32(wantCos), 1e-6) {
		t.Fatalf("sinCos(%v) = (%v, %v), want (%v, %v)", theta, sin, cos, wantSin, wantCos)
	}
}

package servo

// maxVelocityFilterLength bounds VelocityEstimator's ring so it never
// allocates; spec requires the configured filter length to satisfy
// N <= 256.
const maxVelocityFilterLength = 256

// VelocityEstimator tracks unwrapped-position velocity from a ring of
// signed per-tick deltas (spec §4.3). It keeps a running integer sum
// so advancing the ring costs one subtraction and one addition; the
// division into physical units/sec happens once, in Velocity.
type VelocityEstimator struct {
	deltas [maxVelocityFilterLength]int32
	length int
	next   int
	filled int
	sum    int64
}

// SetLength resizes the ring, discarding history. length is clamped to
// [1, maxVelocityFilterLength].
func (v *VelocityEstimator) SetLength(length int) {
	if length < 1 {
		length = 1
	}
	if length > maxVelocityFilterLength {
		length = maxVelocityFilterLength
	}
	v.length = length
	v.next = 0
	v.filled = 0
	v.sum = 0
	for i := range v.deltas {
		v.deltas[i] = 0
	}
}

// Push records one tick's unwrapped-position delta (raw encoder
// counts, signed, from EncoderUnwrapper).
func (v *VelocityEstimator) Push(delta int32) {
	if v.length == 0 {
		v.SetLength(maxVelocityFilterLength)
	}
	if v.filled == v.length {
		v.sum -= int64(v.deltas[v.next])
	} else {
		v.filled++
	}
	v.deltas[v.next] = delta
	v.sum += int64(delta)
	v.next = (v.next + 1) % v.length
}

// Velocity converts the running sum into physical units/second:
// velocity = sum * unwrappedPositionScale * rateHz / (65536 * N),
// where N is the number of deltas pushed so far, capped at the ring
// length. Until the ring fills, N is smaller than the ring length.
func (v *VelocityEstimator) Velocity(unwrappedPositionScale, rateHz float32) float32 {
	if v.filled == 0 {
		return 0
	}
	return float32(v.sum) * unwrappedPositionScale * rateHz / (65536.0 * float32(v.filled))
}

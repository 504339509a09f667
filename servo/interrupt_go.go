//go:build !tinygo

package servo

// intState is a placeholder for interrupt state when running on
// regular Go (host tests, the simulator binary).
type intState uintptr

// disableInterrupts is a no-op outside of TinyGo: the host has no
// notion of the PWM-rate ISR preempting the foreground, so the
// critical sections it guards (the command double buffer swap, the
// diagnostic ring write) are already race-free under the test
// scheduler's cooperative goroutines.
func disableInterrupts() intState {
	return 0
}

// restoreInterrupts is the paired no-op for disableInterrupts.
func restoreInterrupts(state intState) {
	_ = state
}

//go:build tinygo

package servo

import "runtime/interrupt"

type intState = interrupt.State

// disableInterrupts masks interrupts so the foreground can swap the
// command double buffer or drain the diagnostic ring without the
// 40kHz ISR observing a half-written state.
func disableInterrupts() intState {
	return interrupt.Disable()
}

// restoreInterrupts restores the interrupt mask captured by
// disableInterrupts.
func restoreInterrupts(state intState) {
	interrupt.Restore(state)
}

package servo

// CommandChannel hands a CommandData from the foreground to the ISR
// without the ISR ever blocking on a lock (spec §4.6). Two
// pre-allocated slots are swapped under a disableInterrupts/
// restoreInterrupts critical section; the ISR's one-shot field
// consumption (SetPosition, RezeroPosition, Rezero) happens inside
// that same critical section on Take, satisfying invariant I8 that a
// one-shot field is applied at most once even if the foreground races
// a second Publish in between ISR ticks.
type CommandChannel struct {
	slots   [2]CommandData
	current int // index of the slot the ISR should read next
}

// NewCommandChannel returns a channel pre-loaded with the sentinel
// default command (Stopped, every optional field at its "unspecified"
// sentinel: NaN, except TimeoutS at 0).
func NewCommandChannel() *CommandChannel {
	ch := &CommandChannel{}
	ch.slots[0] = defaultCommandData()
	ch.slots[1] = defaultCommandData()
	return ch
}

// Publish installs next as the command the ISR will read on its next
// Take, preserving one-shot fields that weren't touched by the caller
// (NaN/false) so an unrelated Publish doesn't cancel a pending
// SetPosition/Rezero the ISR hasn't consumed yet.
func (c *CommandChannel) Publish(next CommandData) {
	state := disableInterrupts()
	pending := c.slots[c.current]
	other := 1 - c.current
	if isNaN32(next.SetPosition) {
		next.SetPosition = pending.SetPosition
	}
	if isNaN32(next.RezeroPosition) {
		next.RezeroPosition = pending.RezeroPosition
	}
	if !next.Rezero {
		next.Rezero = pending.Rezero
	}
	c.slots[other] = next
	c.current = other
	restoreInterrupts(state)
}

// Take returns the ISR's current command with one-shot fields intact
// for the caller to act on, then clears them in place so a second
// Take before the next Publish sees them already consumed.
func (c *CommandChannel) Take() CommandData {
	state := disableInterrupts()
	cmd := c.slots[c.current]
	c.slots[c.current].SetPosition = float32NaN()
	c.slots[c.current].RezeroPosition = float32NaN()
	c.slots[c.current].Rezero = false
	restoreInterrupts(state)
	return cmd
}

// ClearPosition consumes an absolute Position override after the
// Position control law has applied it for one tick: it clears the
// field in place (not just in the caller's copy) so a Take before the
// next Publish sees NaN and falls back to velocity-integrated tracking
// of ControlPosition (spec §4.4's "clear data.position").
func (c *CommandChannel) ClearPosition() {
	state := disableInterrupts()
	c.slots[c.current].Position = float32NaN()
	restoreInterrupts(state)
}

// ClearTimeout consumes a one-shot cmd.TimeoutS after TickTimeout has
// reloaded the countdown from it for one tick: it clears the field in
// place back to zero (the channel's "nothing new" sentinel for this
// field, distinct from the NaN sentinel the other optional fields use)
// so a Take before the next Publish sees zero and leaves the running
// countdown alone (spec §9, "current_data_->timeout_s ... written back
// to a consumed sentinel").
func (c *CommandChannel) ClearTimeout() {
	state := disableInterrupts()
	c.slots[c.current].TimeoutS = 0
	restoreInterrupts(state)
}

// Peek returns the current command without consuming one-shot fields;
// used by telemetry and tests that want to observe pending state
// without racing the ISR's own consumption.
func (c *CommandChannel) Peek() CommandData {
	state := disableInterrupts()
	cmd := c.slots[c.current]
	restoreInterrupts(state)
	return cmd
}

package servo

// supervisor is Controller's millisecond-rate foreground half: it
// never touches PWM/ADC registers directly, only Status (read, plus
// clearing Rezeroed) and the diagnostic ring (drain), so it can run on
// a regular goroutine
// with regular scheduling jitter while the ISR stays deterministic.
type supervisor struct {
	ctrl *Controller
}

func newSupervisor(ctrl *Controller) *supervisor {
	return &supervisor{ctrl: ctrl}
}

// poll drains diagnostics and publishes a status snapshot to
// telemetry, then clears Status.Rezeroed so it reads as
// edge-triggered (set by the ISR, observed and cleared here) rather
// than sticky.
func (s *supervisor) poll() {
	c := s.ctrl

	events := Drain()
	if c.telemetry != nil && len(events) > 0 {
		c.telemetry.PublishDiag(events)
	}
	if c.telemetry != nil {
		c.telemetry.PublishStatus(c.status)
	}
	c.status.Rezeroed = false
}

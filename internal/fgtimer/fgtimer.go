// Package fgtimer implements the millisecond-rate foreground timer
// servo.Controller.PollMillisecond runs on. It wraps a time.Ticker
// driving a goroutine; the package has no TinyGo-specific variant, so
// every build uses this same implementation.
package fgtimer

import "time"

// Timer drives a tick func() on a steady period until Stop. It
// satisfies servo.MillisecondTimer.
type Timer struct {
	period time.Duration
	ticker *time.Ticker
	done   chan struct{}
	exited chan struct{}
}

// New returns a Timer that will call its tick function once per
// period once Start is called.
func New(period time.Duration) *Timer {
	return &Timer{period: period}
}

// Start begins calling tick on every period until Stop. Start must
// not be called again before a matching Stop.
func (t *Timer) Start(tick func()) {
	t.ticker = time.NewTicker(t.period)
	t.done = make(chan struct{})
	t.exited = make(chan struct{})
	exited := t.exited
	go func() {
		defer close(exited)
		for {
			select {
			case <-t.ticker.C:
				select {
				case <-t.done:
					return
				default:
				}
				tick()
			case <-t.done:
				return
			}
		}
	}()
}

// Stop halts the ticker goroutine and releases the underlying
// time.Ticker.
func (t *Timer) Stop() {
	if t.ticker != nil {
		t.ticker.Stop()
	}
	if t.done != nil {
		close(t.done)
		<-t.exited
	}
}

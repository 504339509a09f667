package servo

import "testing"

func TestP7_PublishIsObservedAtomically(t *testing.T) {
	ch := NewCommandChannel()
	ch.Publish(CommandData{Mode: Position, Position: 1.5, Velocity: 2.5, KpScale: 1, KdScale: 1})

	got := ch.Take()
	if got.Mode != Position || got.Position != 1.5 || got.Velocity != 2.5 {
		t.Fatalf("Take after Publish returned partial/stale record: %+v", got)
	}
}

func TestCommandChannelOneShotConsumedOnce(t *testing.T) {
	ch := NewCommandChannel()
	ch.Publish(CommandData{Mode: Stopped, SetPosition: 3.0, RezeroPosition: float32NaN(), KpScale: 1, KdScale: 1})

	first := ch.Take()
	if isNaN32(first.SetPosition) {
		t.Fatal("first Take should observe the pending SetPosition")
	}

	second := ch.Take()
	if !isNaN32(second.SetPosition) {
		t.Fatalf("second Take should see SetPosition already consumed, got %v", second.SetPosition)
	}
}

func TestCommandChannelPublishPreservesPendingOneShot(t *testing.T) {
	ch := NewCommandChannel()
	ch.Publish(CommandData{Mode: Stopped, SetPosition: 3.0, RezeroPosition: float32NaN(), KpScale: 1, KdScale: 1})

	// A second Publish that doesn't mention SetPosition shouldn't
	// cancel the still-pending one from the first Publish.
	ch.Publish(CommandData{Mode: Position, SetPosition: float32NaN(), RezeroPosition: float32NaN(), KpScale: 1, KdScale: 1})

	got := ch.Take()
	if isNaN32(got.SetPosition) || got.SetPosition != 3.0 {
		t.Fatalf("pending SetPosition lost across unrelated Publish: %v", got.SetPosition)
	}
	if got.Mode != Position {
		t.Fatalf("mode = %s, want Position from the second Publish", got.Mode)
	}
}

func TestCommandChannelPeekDoesNotConsume(t *testing.T) {
	ch := NewCommandChannel()
	ch.Publish(CommandData{Mode: Stopped, SetPosition: 3.0, RezeroPosition: float32NaN(), KpScale: 1, KdScale: 1})

	peeked := ch.Peek()
	if isNaN32(peeked.SetPosition) {
		t.Fatal("Peek should observe the pending SetPosition")
	}
	taken := ch.Take()
	if isNaN32(taken.SetPosition) {
		t.Fatal("Take after Peek should still observe the pending SetPosition")
	}
}

package sim

import (
	"testing"
	"time"
)

func TestLagNetworkHoldsUntilDue(t *testing.T) {
	clock := newFakeClock()
	n := NewLagNetwork[string](clock.Now)

	n.Send(100*time.Millisecond, "a")
	if _, ok := n.Receive(); ok {
		t.Fatal("message delivered before its lag elapsed")
	}
	clock.Advance(99 * time.Millisecond)
	if _, ok := n.Receive(); ok {
		t.Fatal("message delivered 1ms early")
	}
	clock.Advance(time.Millisecond)
	got, ok := n.Receive()
	if !ok || got != "a" {
		t.Fatalf("Receive = %q, %v; want a, true", got, ok)
	}
	if _, ok := n.Receive(); ok {
		t.Fatal("message delivered twice")
	}
}

func TestLagNetworkZeroLag(t *testing.T) {
	n := NewLagNetwork[int](newFakeClock().Now)
	n.Send(0, 7)
	if got, ok := n.Receive(); !ok || got != 7 {
		t.Fatalf("Receive = %d, %v; want 7, true", got, ok)
	}
}

func TestLagNetworkFIFOAmongDue(t *testing.T) {
	clock := newFakeClock()
	n := NewLagNetwork[string](clock.Now)

	// a 的到达时间晚于 b，但两者都已到达时仍按入队顺序取出
	n.Send(100*time.Millisecond, "a")
	n.Send(10*time.Millisecond, "b")
	n.Send(50*time.Millisecond, "c")

	clock.Advance(200 * time.Millisecond)
	var got []string
	for {
		m, ok := n.Receive()
		if !ok {
			break
		}
		got = append(got, m)
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("drained %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("drained %v, want %v", got, want)
		}
	}
}

func TestLagNetworkSkipsUndueHead(t *testing.T) {
	clock := newFakeClock()
	n := NewLagNetwork[string](clock.Now)

	n.Send(time.Second, "slow")
	n.Send(10*time.Millisecond, "fast")
	clock.Advance(20 * time.Millisecond)

	if got, ok := n.Receive(); !ok || got != "fast" {
		t.Fatalf("Receive = %q, %v; want fast, true", got, ok)
	}
	if _, ok := n.Receive(); ok {
		t.Fatal("slow message delivered early")
	}
	if n.Len() != 1 {
		t.Fatalf("Len = %d, want 1", n.Len())
	}
	clock.Advance(time.Second)
	if got, ok := n.Receive(); !ok || got != "slow" {
		t.Fatalf("Receive = %q, %v; want slow, true", got, ok)
	}
	if n.Len() != 0 {
		t.Fatalf("Len = %d, want 0", n.Len())
	}
}

func TestLagNetworkNeverEarlyUnderMixedLags(t *testing.T) {
	clock := newFakeClock()
	n := NewLagNetwork[time.Time](clock.Now)

	lags := []time.Duration{30, 0, 70, 10, 50, 20, 90, 40}
	for _, l := range lags {
		n.Send(l*time.Millisecond, clock.Now().Add(l*time.Millisecond))
		clock.Advance(5 * time.Millisecond)
	}
	delivered := 0
	for step := 0; step < 40; step++ {
		for {
			due, ok := n.Receive()
			if !ok {
				break
			}
			if clock.Now().Before(due) {
				t.Fatalf("message due at %v delivered at %v", due, clock.Now())
			}
			delivered++
		}
		clock.Advance(5 * time.Millisecond)
	}
	if delivered != len(lags) {
		t.Fatalf("delivered %d messages, want %d", delivered, len(lags))
	}
}

func TestLagNetworkConcurrentSendReceive(t *testing.T) {
	n := NewLagNetwork[int](nil)
	const total = 1000

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			n.Send(0, i)
		}
	}()

	next := 0
	deadline := time.After(5 * time.Second)
	for next < total {
		select {
		case <-deadline:
			t.Fatalf("received %d of %d messages", next, total)
		default:
		}
		if m, ok := n.Receive(); ok {
			if m != next {
				t.Fatalf("received %d, want %d", m, next)
			}
			next++
		}
	}
	<-done
}

package sim

import (
	"math"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newTestServer(t *testing.T, clock *fakeClock) *Server {
	t.Helper()
	s, err := NewServer(ServerConfig{UpdateRateHz: 4, Clock: clock.Now})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func newTestClient(t *testing.T, clock *fakeClock, name string, lag time.Duration, prediction, reconciliation bool) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		Name:           name,
		Lag:            lag,
		Prediction:     prediction,
		Reconciliation: reconciliation,
		UpdateRateHz:   60,
		Clock:          clock.Now,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func selfPosition(t *testing.T, c *Client) float64 {
	t.Helper()
	id, ok := c.ID()
	if !ok {
		t.Fatalf("client %s not connected", c.Name())
	}
	e, ok := c.Entity(id)
	if !ok {
		t.Fatalf("client %s has no self entity yet", c.Name())
	}
	return e.Position
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

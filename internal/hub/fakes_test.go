// ABOUTME: Test doubles for the hub package: scripted transports and dialers
// ABOUTME: Shared by connection, broadcaster, and transport tests

package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// invocation records one outbound Invoke call.
type invocation struct {
	target string
	args   []any
}

// fakeTransport is a scriptable Transport.
type fakeTransport struct {
	mu          sync.Mutex
	frames      chan Frame
	invocations []invocation
	closed      bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{frames: make(chan Frame, 16)}
}

func (t *fakeTransport) Invoke(_ context.Context, target string, args ...any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.invocations = append(t.invocations, invocation{target: target, args: args})
	return nil
}

func (t *fakeTransport) Frames() <-chan Frame { return t.frames }

func (t *fakeTransport) Close() error {
	t.drop()
	return nil
}

// drop simulates a transport-level connection loss.
func (t *fakeTransport) drop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.frames)
	}
}

// emit injects an inbound frame.
func (t *fakeTransport) emit(target string, args ...any) {
	raw := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			panic(err)
		}
		raw = append(raw, data)
	}
	t.frames <- Frame{Target: target, Arguments: raw}
}

// emitRaw injects a frame with a pre-encoded argument.
func (t *fakeTransport) emitRaw(target string, arg string) {
	t.frames <- Frame{Target: target, Arguments: []json.RawMessage{json.RawMessage(arg)}}
}

// invoked returns a snapshot of recorded invocations.
func (t *fakeTransport) invoked() []invocation {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]invocation, len(t.invocations))
	copy(out, t.invocations)
	return out
}

// fakeDialer hands out fakeTransports and counts dials.
type fakeDialer struct {
	mu         sync.Mutex
	dials      int
	err        error
	delay      time.Duration
	transports []*fakeTransport
}

func (d *fakeDialer) Dial(ctx context.Context, _ string, tokenFactory func() string) (Transport, error) {
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	// Token factory is consulted once per handshake
	_ = tokenFactory()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	t := newFakeTransport()
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// latest returns the most recently dialed transport.
func (d *fakeDialer) latest() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

// staticToken is a fixed-credential TokenSource.
type staticToken string

func (s staticToken) Token() string { return string(s) }

// waitForState polls until the connection reaches the wanted state or the
// timeout elapses. Returns whether the state was reached.
func waitForState(c *Conn, want State, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return c.State() == want
}

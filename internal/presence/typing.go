// ABOUTME: Auto-expiring typing indicator driven by start-only signals
// ABOUTME: The transport has no stop-typing event; expiry models it client-side

package presence

import (
	"sync"
	"time"
)

// TypingIndicator converts start-only typing signals into a boolean that
// falls back to false after an expiry window. Every new signal restarts the
// window. The transport protocol has no stop event, so expiry is the only
// way an indicator ever clears.
type TypingIndicator struct {
	mu     sync.Mutex
	expiry time.Duration
	timer  *time.Timer
	active bool
	// gen identifies the current expiry window. A timer callback that fired
	// for an older window carries a stale generation and is ignored, so a
	// restart racing an in-flight expiry never clears the indicator early.
	gen      uint64
	onChange func(bool)
	stopped  bool
}

// NewTypingIndicator creates an indicator. onChange is invoked on every
// transition (true on the first signal, false on expiry); it may be nil.
func NewTypingIndicator(expiry time.Duration, onChange func(bool)) *TypingIndicator {
	if onChange == nil {
		onChange = func(bool) {}
	}
	return &TypingIndicator{
		expiry:   expiry,
		onChange: onChange,
	}
}

// Signal records an inbound typing-started event, restarting the expiry
// window.
func (ti *TypingIndicator) Signal() {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	if ti.stopped {
		return
	}

	transition := !ti.active
	ti.active = true

	ti.gen++
	gen := ti.gen
	if ti.timer != nil {
		ti.timer.Stop()
	}
	ti.timer = time.AfterFunc(ti.expiry, func() { ti.expire(gen) })

	if transition {
		ti.onChange(true)
	}
}

// expire clears the indicator when the window elapses with no new signal.
func (ti *TypingIndicator) expire(gen uint64) {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	if ti.stopped || !ti.active || gen != ti.gen {
		return
	}
	ti.active = false
	ti.onChange(false)
}

// Active reports whether the remote party is currently typing.
func (ti *TypingIndicator) Active() bool {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	return ti.active
}

// Stop cancels the pending expiry and freezes the indicator. Used on
// session teardown so no callback fires after the view is gone.
func (ti *TypingIndicator) Stop() {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	ti.stopped = true
	ti.active = false
	if ti.timer != nil {
		ti.timer.Stop()
		ti.timer = nil
	}
}

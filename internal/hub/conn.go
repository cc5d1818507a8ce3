// ABOUTME: Connection manager for the conversations hub: one connection per process
// ABOUTME: Idempotent connect, jittered-backoff reconnect, best-effort outbound invocations

package hub

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

const dialTimeout = 10 * time.Second

// TokenSource supplies the credential captured at handshake time.
type TokenSource interface {
	Token() string
}

// Options tunes the reconnect policy.
type Options struct {
	// ReconnectWindow is how long after a drop automatic retries continue
	// before the connection settles into terminal Disconnected.
	ReconnectWindow time.Duration
	// ReconnectMaxDelay bounds the random delay between retries.
	ReconnectMaxDelay time.Duration
}

// connectAttempt memoizes one handshake so concurrent Connect calls share a
// single transport instead of racing to open two.
type connectAttempt struct {
	done chan struct{}
	err  error
}

// Conn owns the single push-channel connection for the process. Any number
// of sessions and list views share it; their joins are reference-counted
// and their event subscriptions are independent.
type Conn struct {
	url         string
	tokens      TokenSource
	dialer      Dialer
	broadcaster *Broadcaster
	logger      *slog.Logger
	opts        Options

	mu        sync.Mutex
	state     State
	transport Transport
	attempt   *connectAttempt
	// gen identifies the current transport generation. Every new transport
	// and every explicit disconnect bumps it, so goroutines spawned for an
	// older generation notice they are stale and stand down.
	gen    int
	joined map[int64]int // conversation id -> session refcount
}

// NewConn creates a connection manager. It does not connect; call Connect.
// Pass nil logger for slog.Default.
func NewConn(url string, tokens TokenSource, dialer Dialer, opts Options, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ReconnectWindow <= 0 {
		opts.ReconnectWindow = 60 * time.Second
	}
	if opts.ReconnectMaxDelay <= 0 {
		opts.ReconnectMaxDelay = 10 * time.Second
	}
	logger = logger.With("component", "hub")
	return &Conn{
		url:         url,
		tokens:      tokens,
		dialer:      dialer,
		broadcaster: NewBroadcaster(logger),
		logger:      logger,
		opts:        opts,
		state:       StateDisconnected,
		joined:      make(map[int64]int),
	}
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers for all hub events (state changes, messages, typing,
// seen, presence, list-changed). The subscription ends when ctx is
// cancelled or Unsubscribe is called with the returned id.
func (c *Conn) Subscribe(ctx context.Context) (<-chan Event, string) {
	return c.broadcaster.Subscribe(ctx)
}

// Unsubscribe removes a subscription by id.
func (c *Conn) Unsubscribe(subID string) {
	c.broadcaster.Unsubscribe(subID)
}

// Connect opens the hub connection. Idempotent: concurrent and repeated
// calls share one handshake. Resolves without connecting when no credential
// is stored; anonymous sessions never open the channel. Returns the
// handshake error on failure, after which a later call retries fresh.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if att := c.attempt; att != nil {
		c.mu.Unlock()
		select {
		case <-att.done:
			return att.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	token := c.tokens.Token()
	if token == "" {
		c.mu.Unlock()
		c.logger.Debug("no credential stored, staying offline")
		return nil
	}

	att := &connectAttempt{done: make(chan struct{})}
	c.attempt = att
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	tr, err := c.dialer.Dial(ctx, c.url, func() string { return token })

	c.mu.Lock()
	if err != nil {
		att.err = err
		c.attempt = nil
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		close(att.done)
		return err
	}

	c.transport = tr
	c.gen++
	gen := c.gen
	c.setStateLocked(StateConnected)
	c.mu.Unlock()
	close(att.done)

	c.logger.Info("hub connected")
	go c.readLoop(tr, gen)
	return nil
}

// Disconnect tears the connection down and clears the memoized handshake so
// a subsequent Connect starts fresh. Safe to call when never connected.
func (c *Conn) Disconnect() error {
	// Let an in-flight handshake settle first so its transport is visible
	c.mu.Lock()
	att := c.attempt
	c.mu.Unlock()
	if att != nil {
		<-att.done
	}

	c.mu.Lock()
	c.attempt = nil
	tr := c.transport
	c.transport = nil
	c.gen++
	c.joined = make(map[int64]int)
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if tr != nil {
		_ = tr.Close()
		c.logger.Info("hub disconnected")
	}
	return nil
}

// Close disconnects and shuts down the event fan-out.
func (c *Conn) Close() error {
	err := c.Disconnect()
	c.broadcaster.Close()
	return err
}

// JoinConversation subscribes this connection to a conversation's push
// scope. Joins are reference-counted: two open sessions for the same
// conversation hold two references, and the server-side leave only happens
// when the last one goes. No-op when not connected.
func (c *Conn) JoinConversation(ctx context.Context, id int64) {
	c.mu.Lock()
	tr := c.transport
	connected := c.state == StateConnected
	if connected && tr != nil {
		c.joined[id]++
	}
	c.mu.Unlock()

	if !connected || tr == nil {
		c.logger.Warn("cannot join conversation: not connected", "conversation_id", id)
		return
	}
	if err := tr.Invoke(ctx, TargetJoinConversation, id); err != nil {
		c.logger.Warn("join invocation failed", "conversation_id", id, "error", err)
		return
	}
	c.logger.Debug("joined conversation", "conversation_id", id)
}

// LeaveConversation releases one reference on a conversation scope,
// invoking the server-side leave only when no session holds it anymore.
// No-op when not connected.
func (c *Conn) LeaveConversation(ctx context.Context, id int64) {
	c.mu.Lock()
	tr := c.transport
	connected := c.state == StateConnected
	remaining := 0
	if n, ok := c.joined[id]; ok {
		if n <= 1 {
			delete(c.joined, id)
		} else {
			c.joined[id] = n - 1
			remaining = n - 1
		}
	}
	c.mu.Unlock()

	if !connected || tr == nil {
		return
	}
	if remaining > 0 {
		// Another session is still scoped to this conversation
		return
	}
	if err := tr.Invoke(ctx, TargetLeaveConversation, id); err != nil {
		c.logger.Warn("leave invocation failed", "conversation_id", id, "error", err)
	}
}

// Typing signals, best effort, that the local user is typing.
// No-op when not connected.
func (c *Conn) Typing(ctx context.Context, id int64) {
	c.invoke(ctx, TargetTyping, id)
}

// Seen acknowledges, best effort, that the local user has read the
// conversation. No-op when not connected.
func (c *Conn) Seen(ctx context.Context, id int64) {
	c.invoke(ctx, TargetSeen, id)
}

// invoke performs a best-effort outbound invocation: silent no-op when not
// connected, logged warning on transport failure, never an error to the
// caller. The authoritative poll path is the safety net.
func (c *Conn) invoke(ctx context.Context, target string, id int64) {
	c.mu.Lock()
	tr := c.transport
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || tr == nil {
		return
	}
	if err := tr.Invoke(ctx, target, id); err != nil {
		c.logger.Warn("invocation failed", "target", target, "conversation_id", id, "error", err)
	}
}

// readLoop drains the transport and fans events out. When the transport
// drops and this generation is still current, it hands off to the
// reconnect loop.
func (c *Conn) readLoop(tr Transport, gen int) {
	for f := range tr.Frames() {
		for _, ev := range decodeFrame(f, c.logger) {
			c.broadcaster.Publish(ev)
		}
	}

	c.mu.Lock()
	if c.gen != gen {
		// Superseded by an explicit disconnect or a newer transport
		c.mu.Unlock()
		return
	}
	c.transport = nil
	c.setStateLocked(StateReconnecting)
	c.mu.Unlock()

	c.logger.Warn("hub connection dropped, reconnecting")
	go c.reconnectLoop(gen)
}

// reconnectLoop retries the handshake with jittered delays until the
// reconnect window closes, then settles into terminal Disconnected and
// leaves the next move to the caller.
func (c *Conn) reconnectLoop(gen int) {
	start := time.Now()
	for {
		time.Sleep(rand.N(c.opts.ReconnectMaxDelay))
		if time.Since(start) >= c.opts.ReconnectWindow {
			break
		}

		c.mu.Lock()
		stale := c.gen != gen
		c.mu.Unlock()
		if stale {
			return
		}

		token := c.tokens.Token()
		if token == "" {
			break
		}

		dialCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		tr, err := c.dialer.Dial(dialCtx, c.url, func() string { return token })
		cancel()
		if err != nil {
			c.logger.Warn("reconnect attempt failed", "error", err)
			continue
		}

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			_ = tr.Close()
			return
		}
		c.transport = tr
		c.gen++
		newGen := c.gen
		rejoin := make([]int64, 0, len(c.joined))
		for id := range c.joined {
			rejoin = append(rejoin, id)
		}
		c.setStateLocked(StateConnected)
		c.mu.Unlock()

		// Conversation scope is connection-scoped server-side; restore it
		// for every session that was joined when the old transport dropped.
		for _, id := range rejoin {
			if err := tr.Invoke(context.Background(), TargetJoinConversation, id); err != nil {
				c.logger.Warn("rejoin failed", "conversation_id", id, "error", err)
			}
		}

		c.logger.Info("hub reconnected")
		go c.readLoop(tr, newGen)
		return
	}

	c.mu.Lock()
	if c.gen == gen {
		c.attempt = nil
		c.setStateLocked(StateDisconnected)
	}
	c.mu.Unlock()
	c.logger.Warn("hub reconnect window exhausted, staying disconnected")
}

// setStateLocked records a state transition and publishes it.
// Must be called with mu held; the broadcaster has its own lock.
func (c *Conn) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug("connection state changed", "from", c.state.String(), "to", s.String())
	c.state = s
	c.broadcaster.Publish(Event{Kind: KindStateChange, State: s})
}

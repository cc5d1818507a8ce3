// ABOUTME: Websocket implementation of the hub transport using gorilla/websocket
// ABOUTME: JSON frames over a persistent socket, token supplied once at handshake

package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// WebsocketDialer opens websocket transports to the conversations hub.
type WebsocketDialer struct {
	logger *slog.Logger
}

// NewWebsocketDialer creates a dialer. Pass nil logger for default.
func NewWebsocketDialer(logger *slog.Logger) *WebsocketDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebsocketDialer{logger: logger.With("component", "ws")}
}

// Dial performs the handshake. The access token rides on the handshake URL;
// browsers cannot set headers on websocket upgrades and the server reads
// the access_token query parameter.
func (d *WebsocketDialer) Dial(ctx context.Context, hubURL string, tokenFactory func() string) (Transport, error) {
	u, err := url.Parse(hubURL)
	if err != nil {
		return nil, fmt.Errorf("parsing hub url: %w", err)
	}

	q := u.Query()
	q.Set("access_token", tokenFactory())
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("hub handshake failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("hub handshake failed: %w", err)
	}

	t := &wsTransport{
		conn:   conn,
		frames: make(chan Frame, subscriberBufferSize),
		logger: d.logger,
	}
	go t.readPump()
	return t, nil
}

// wsTransport is one live websocket connection.
type wsTransport struct {
	conn   *websocket.Conn
	frames chan Frame
	logger *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// readPump decodes inbound frames until the socket drops, then closes the
// frame channel so the connection manager observes the drop.
func (t *wsTransport) readPump() {
	defer close(t.frames)

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Debug("websocket read failed", "error", err)
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.logger.Warn("dropping unparseable hub frame", "error", err)
			continue
		}
		t.frames <- f
	}
}

// Invoke marshals and writes an invocation frame.
func (t *wsTransport) Invoke(ctx context.Context, target string, args ...any) error {
	rawArgs := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("encoding %s argument: %w", target, err)
		}
		rawArgs = append(rawArgs, raw)
	}

	payload, err := json.Marshal(Frame{Target: target, Arguments: rawArgs})
	if err != nil {
		return fmt.Errorf("encoding %s frame: %w", target, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	}

	// gorilla permits one concurrent writer
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("writing %s frame: %w", target, err)
	}
	return nil
}

// Frames implements Transport.
func (t *wsTransport) Frames() <-chan Frame {
	return t.frames
}

// Close tears the socket down. Safe to call multiple times.
func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		_ = t.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}
